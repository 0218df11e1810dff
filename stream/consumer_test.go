package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/streamflow/types"
)

// recordingHandler 按到达顺序记录处理过的事件。
type recordingHandler struct {
	mu     sync.Mutex
	events []types.Event
	block  chan struct{} // 非 nil 时，每个事件处理前都会等待
}

func (h *recordingHandler) HandleEvent(ctx context.Context, key types.StreamKey, ev types.Event) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) snapshot() []types.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.Event(nil), h.events...)
}

func testKey() types.StreamKey {
	return types.NewStreamKey("qq", "1001", types.KindGroup)
}

func msgEvent(id int64) types.MessageEvent {
	return types.MessageEvent{Platform: "qq", Scope: types.ScopeGroup, GroupID: 1001, MessageID: id}
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

func TestConsumer_FIFOOrdering(t *testing.T) {
	handler := &recordingHandler{}
	c := NewConsumer(testKey(), 100, time.Second, handler, zap.NewNop(), nil)
	c.Start()
	defer c.Stop()

	const n = 50
	for i := int64(0); i < n; i++ {
		require.True(t, c.Enqueue(msgEvent(i)))
	}

	waitFor(t, 2*time.Second, func() bool { return len(handler.snapshot()) == n })

	got := handler.snapshot()
	for i := int64(0); i < n; i++ {
		assert.Equal(t, i, got[i].(types.MessageEvent).MessageID, "event %d out of order", i)
	}
}

func TestConsumer_DropNewestOnOverflow(t *testing.T) {
	release := make(chan struct{})
	handler := &recordingHandler{block: release}
	c := NewConsumer(testKey(), 2, time.Second, handler, zap.NewNop(), nil)

	// worker 未启动，队列容量 2：5 条突发应恰好丢 3 条
	accepted := 0
	for i := int64(0); i < 5; i++ {
		if c.Enqueue(msgEvent(i)) {
			accepted++
		}
	}
	assert.Equal(t, 2, accepted)
	assert.Equal(t, int64(3), c.Stats().OverflowCount)

	// 启动后恰好送达最早入队的 2 条（保留缓冲历史，丢弃新事件）
	c.Start()
	close(release)
	waitFor(t, 2*time.Second, func() bool { return len(handler.snapshot()) == 2 })

	got := handler.snapshot()
	assert.Equal(t, int64(0), got[0].(types.MessageEvent).MessageID)
	assert.Equal(t, int64(1), got[1].(types.MessageEvent).MessageID)
	assert.Equal(t, int64(2), c.Stats().TotalMessages)

	c.Stop()
}

func TestConsumer_HandlerErrorDoesNotKillWorker(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	handler := EventHandlerFunc(func(ctx context.Context, key types.StreamKey, ev types.Event) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return assert.AnError
		}
		return nil
	})

	c := NewConsumer(testKey(), 10, time.Second, handler, zap.NewNop(), nil)
	c.Start()
	defer c.Stop()

	c.Enqueue(msgEvent(1))
	c.Enqueue(msgEvent(2))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
	assert.Equal(t, int64(2), c.Stats().TotalMessages)
}

func TestConsumer_HandlerPanicRecovered(t *testing.T) {
	handler := EventHandlerFunc(func(ctx context.Context, key types.StreamKey, ev types.Event) error {
		if ev.(types.MessageEvent).MessageID == 1 {
			panic("bad event")
		}
		return nil
	})

	c := NewConsumer(testKey(), 10, time.Second, handler, zap.NewNop(), nil)
	c.Start()
	defer c.Stop()

	c.Enqueue(msgEvent(1))
	c.Enqueue(msgEvent(2))

	waitFor(t, 2*time.Second, func() bool { return c.Stats().TotalMessages == 2 })
}

func TestConsumer_StartStopIdempotent(t *testing.T) {
	c := NewConsumer(testKey(), 10, time.Second, &recordingHandler{}, zap.NewNop(), nil)

	c.Start()
	c.Start() // 重复启动无效果
	assert.True(t, c.IsRunning())

	c.Stop()
	c.Stop() // 重复停止无效果
	assert.False(t, c.IsRunning())
}

func TestConsumer_StatsAvgProcessingTime(t *testing.T) {
	handler := EventHandlerFunc(func(ctx context.Context, key types.StreamKey, ev types.Event) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	c := NewConsumer(testKey(), 10, time.Second, handler, zap.NewNop(), nil)
	c.Start()
	defer c.Stop()

	c.Enqueue(msgEvent(1))
	c.Enqueue(msgEvent(2))

	waitFor(t, 2*time.Second, func() bool { return c.Stats().TotalMessages == 2 })

	st := c.Stats()
	assert.GreaterOrEqual(t, st.AvgProcessingTime, 5*time.Millisecond)
	assert.Equal(t, "qq:1001:group", st.StreamID)
}
