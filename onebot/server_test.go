package onebot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/streamflow/config"
	"github.com/BaSui01/streamflow/types"
)

// captureSink 按到达顺序收集事件。
type captureSink struct {
	mu     sync.Mutex
	events []types.Event
	err    error
}

func (s *captureSink) Route(ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) snapshot() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Event, len(s.events))
	copy(out, s.events)
	return out
}

func testConfig(token string) config.OneBotConfig {
	return config.OneBotConfig{
		ListenAddr:  "127.0.0.1:0",
		Path:        "/onebot/v11/ws",
		AccessToken: token,
		Platform:    "qq",
		ReadLimit:   1 << 20,
	}
}

func startServer(t *testing.T, cfg config.OneBotConfig, sink EventSink) *Server {
	t.Helper()
	srv := NewServer(cfg, sink, zap.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func dial(t *testing.T, srv *Server, header http.Header) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := fmt.Sprintf("ws://%s%s", srv.Addr(), srv.cfg.Path)
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestServer_RoutesEventsInOrder(t *testing.T) {
	sink := &captureSink{}
	srv := startServer(t, testConfig(""), sink)

	conn := dial(t, srv, nil)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for i := 1; i <= 3; i++ {
		writeFrame(t, conn, fmt.Sprintf(
			`{"post_type":"message","message_type":"group","group_id":42,"user_id":7,"message_id":%d,"raw_message":"hello %d"}`, i, i))
	}

	waitFor(t, 5*time.Second, func() bool { return len(sink.snapshot()) == 3 })

	events := sink.snapshot()
	for i, ev := range events {
		msg, ok := ev.(types.MessageEvent)
		require.True(t, ok)
		assert.Equal(t, "qq", msg.Platform)
		assert.Equal(t, types.ScopeGroup, msg.Scope)
		assert.Equal(t, int64(i+1), msg.MessageID)
	}
}

func TestServer_MalformedFrameDoesNotKillConnection(t *testing.T) {
	sink := &captureSink{}
	srv := startServer(t, testConfig(""), sink)

	conn := dial(t, srv, nil)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeFrame(t, conn, `{not json`)
	writeFrame(t, conn, `{"post_type":"meta_event","meta_event_type":"heartbeat"}`)

	waitFor(t, 5*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	assert.Equal(t, types.EventMeta, sink.snapshot()[0].Type())
}

func TestServer_RejectsMissingToken(t *testing.T) {
	sink := &captureSink{}
	srv := startServer(t, testConfig("secret"), sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := fmt.Sprintf("ws://%s%s", srv.Addr(), srv.cfg.Path)
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestServer_AcceptsBearerToken(t *testing.T) {
	sink := &captureSink{}
	srv := startServer(t, testConfig("secret"), sink)

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	header.Set("X-Self-ID", "10001")
	conn := dial(t, srv, header)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeFrame(t, conn, `{"post_type":"message","message_type":"private","user_id":7,"message_id":1,"raw_message":"hi"}`)
	waitFor(t, 5*time.Second, func() bool { return len(sink.snapshot()) == 1 })
}

func TestServer_AcceptsQueryToken(t *testing.T) {
	sink := &captureSink{}
	srv := startServer(t, testConfig("secret"), sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := fmt.Sprintf("ws://%s%s?access_token=secret", srv.Addr(), srv.cfg.Path)
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeFrame(t, conn, `{"post_type":"notice","notice_type":"group_recall","group_id":42}`)
	waitFor(t, 5*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	assert.Equal(t, types.EventNotice, sink.snapshot()[0].Type())
}

func TestServer_SinkClosedStopsReadLoop(t *testing.T) {
	sink := &captureSink{err: types.ErrClosed}
	srv := startServer(t, testConfig(""), sink)

	conn := dial(t, srv, nil)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeFrame(t, conn, `{"post_type":"message","message_type":"private","user_id":7,"raw_message":"x"}`)

	// 读取循环退出后服务端应主动关闭连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Empty(t, sink.snapshot())
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	sink := &captureSink{}
	srv := NewServer(testConfig(""), sink, zap.NewNop())
	require.NoError(t, srv.Start())

	conn := dial(t, srv, nil)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, _, err := conn.Read(ctx)
	require.Error(t, err)

	// 幂等
	require.NoError(t, srv.Shutdown(ctx))
}

func TestServer_StartTwiceIsNoop(t *testing.T) {
	sink := &captureSink{}
	srv := startServer(t, testConfig(""), sink)
	require.NoError(t, srv.Start())
}
