package onebot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/streamflow/config"
	"github.com/BaSui01/streamflow/types"
)

// =====================================================
// OneBot v11 反向 WebSocket 接入
// =====================================================
//
// napcat 等 OneBot 实现作为客户端主动连入本服务，
// 每条连接上的 JSON 事件解码后交给 EventSink 路由。

// EventSink 接收解码后的入站事件。*stream.Router 实现此接口。
type EventSink interface {
	Route(ev types.Event) error
}

// Server 监听反向 WebSocket 连接并持续读取事件。
type Server struct {
	cfg    config.OneBotConfig
	sink   EventSink
	logger *zap.Logger

	httpSrv  *http.Server
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*websocket.Conn

	wg      sync.WaitGroup
	started bool
}

// NewServer 创建 OneBot 接入服务。sink 不能为空。
func NewServer(cfg config.OneBotConfig, sink EventSink, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With(zap.String("component", "onebot_server")),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[string]*websocket.Conn),
	}
}

// Start 开始监听。立即返回，接受循环在后台运行。
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("onebot listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWS)
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.started = true
	s.logger.Info("OneBot 反向 WebSocket 服务启动",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.cfg.Path))

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("OneBot 服务异常退出", zap.Error(err))
		}
	}()
	return nil
}

// Addr 返回实际监听地址（ListenAddr 使用 ":0" 时由此取回端口）。
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.ListenAddr
	}
	return s.listener.Addr().String()
}

// Shutdown 停止接受新连接，关闭现有连接并等待读取循环退出。
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	srv := s.httpSrv
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.cancel()
	// WebSocket 连接被劫持，http.Server.Shutdown 不会替我们关闭它们
	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}

	err := srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// handleWS 校验访问令牌并升级连接，然后进入读取循环。
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		s.logger.Warn("拒绝未授权的 OneBot 连接", zap.String("remote", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // OneBot 客户端不发送浏览器 Origin
	})
	if err != nil {
		s.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}
	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}

	connID := uuid.NewString()
	selfID := r.Header.Get("X-Self-ID")

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.conns[connID] = conn
	s.wg.Add(1)
	s.mu.Unlock()

	logger := s.logger.With(
		zap.String("conn_id", connID),
		zap.String("self_id", selfID),
		zap.String("remote", r.RemoteAddr))
	logger.Info("OneBot 客户端已连接")

	go s.readLoop(conn, connID, logger)
}

// authorize 校验 Authorization 头或 access_token 查询参数。
// 未配置令牌时放行所有连接。
func (s *Server) authorize(r *http.Request) bool {
	token := s.cfg.AccessToken
	if token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.TrimPrefix(auth, "Bearer ") == token || strings.TrimPrefix(auth, "Token ") == token {
		return true
	}
	return r.URL.Query().Get("access_token") == token
}

// readLoop 逐帧读取事件并路由，连接断开或服务停止时退出。
func (s *Server) readLoop(conn *websocket.Conn, connID string, logger *zap.Logger) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, connID)
		s.mu.Unlock()
		s.wg.Done()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		logger.Info("OneBot 客户端已断开")
	}()

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			logger.Warn("读取 OneBot 帧失败", zap.Error(err))
			return
		}

		ev, err := types.ParseEvent(s.cfg.Platform, data)
		if err != nil {
			// 单帧解析失败不应拖垮整条连接
			logger.Warn("丢弃无法解析的事件", zap.Error(err))
			continue
		}

		if err := s.sink.Route(ev); err != nil {
			if errors.Is(err, types.ErrClosed) {
				logger.Info("路由器已关闭，停止读取")
				return
			}
			logger.Warn("事件路由失败", zap.Error(err))
		}
	}
}
