// Package streamflow wires the full ingestion pipeline together: OneBot
// reverse-WebSocket intake, per-stream FIFO routing, conversation state and
// the adaptive dispatch scheduler.
//
// Usage:
//
//	import "github.com/BaSui01/streamflow"
//
//	cfg := config.DefaultConfig()
//	p, err := streamflow.New(cfg, myProcessor, logger)
//	if err != nil { ... }
//	if err := p.Start(); err != nil { ... }
//	defer p.Stop(context.Background())
//
// Each component can also be constructed directly from its own package when
// finer control is needed; [Pipeline] is the batteries-included composition.
package streamflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/streamflow/config"
	"github.com/BaSui01/streamflow/conversation"
	"github.com/BaSui01/streamflow/internal/metrics"
	"github.com/BaSui01/streamflow/onebot"
	"github.com/BaSui01/streamflow/processor"
	"github.com/BaSui01/streamflow/scheduler"
	"github.com/BaSui01/streamflow/stream"
	"github.com/BaSui01/streamflow/types"
)

// historyRecordTimeout bounds the Redis write made after each process cycle.
const historyRecordTimeout = 3 * time.Second

// Pipeline is the assembled ingestion pipeline. Construct with [New], then
// Start/Stop. All components share one logger and one metrics collector.
type Pipeline struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector

	store   *conversation.Store
	history *conversation.HistoryRecorder
	router  *stream.Router
	manager *scheduler.Manager
	server  *onebot.Server

	policyFactory scheduler.PolicyFactory
}

// Option customizes the pipeline built by [New].
type Option func(*Pipeline)

// WithCollector sets a pre-built metrics collector. Useful when the caller
// registers collectors on a shared registry.
func WithCollector(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.collector = c }
}

// WithHistory sets a pre-built history recorder, overriding the one the
// pipeline would build from cfg.Redis.
func WithHistory(h *conversation.HistoryRecorder) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithPolicyFactory sets the admission policy factory for new stream loops.
func WithPolicyFactory(f scheduler.PolicyFactory) Option {
	return func(p *Pipeline) { p.policyFactory = f }
}

// New assembles a pipeline from configuration. proc 为每个会话流的消息处理器，
// 不能为空。返回的 Pipeline 尚未启动。
func New(cfg *config.Config, proc processor.Processor, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("streamflow: nil config")
	}
	if proc == nil {
		return nil, fmt.Errorf("streamflow: nil processor")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("streamflow: invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		store:  conversation.NewStore(logger),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.collector == nil && cfg.Metrics.Enabled {
		p.collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	// 调度器按流 ID 回查会话上下文
	source := scheduler.ContextSourceFunc(func(streamID string) (scheduler.Conversation, bool) {
		c, ok := p.store.Get(streamID)
		if !ok {
			return nil, false
		}
		return c, true
	})
	p.manager = scheduler.NewManager(cfg.Scheduler, source, proc, logger, p.collector)
	if p.policyFactory != nil {
		p.manager.SetPolicyFactory(p.policyFactory)
	}

	if p.history == nil && cfg.Redis.Enabled {
		h, err := conversation.NewHistoryRecorder(cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("streamflow: history recorder: %w", err)
		}
		p.history = h
	}

	// 处理周期结束后把消费掉的消息落入历史
	p.manager.OnCycle(func(streamID string, res *processor.Result) {
		if res == nil || len(res.Consumed) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), historyRecordTimeout)
		defer cancel()
		p.history.Record(ctx, streamID, res.Consumed)
	})

	p.router = stream.NewRouter(cfg.Stream, stream.EventHandlerFunc(p.handleEvent), logger, p.collector)
	p.router.OnEvict(func(streamID string) {
		p.store.Remove(streamID)
		p.manager.StopStream(streamID)
	})

	p.server = onebot.NewServer(cfg.OneBot, p.router, logger)
	return p, nil
}

// handleEvent 在流的消费协程内执行：缓存消息并确保调度循环已启动。
// 非会话事件（通知、元事件、未知事件）此处直接忽略。
func (p *Pipeline) handleEvent(ctx context.Context, key types.StreamKey, ev types.Event) error {
	msg, ok := ev.(types.MessageEvent)
	if !ok || !key.IsConversational() {
		return nil
	}

	streamID := key.String()
	conv := p.store.GetOrCreate(streamID)
	conv.AppendCached(types.MessageFromEvent(streamID, msg))

	return p.manager.StartStream(streamID)
}

// Start 按依赖顺序启动所有组件：调度器、路由器，最后对外监听。
func (p *Pipeline) Start() error {
	p.manager.Start()
	p.router.Start()
	if err := p.server.Start(); err != nil {
		p.router.Stop()
		p.manager.Stop()
		return err
	}
	p.logger.Info("流水线已启动",
		zap.String("listen", p.server.Addr()),
		zap.Int("max_streams", p.cfg.Stream.MaxStreams),
		zap.Int("max_concurrent", p.cfg.Scheduler.MaxConcurrent))
	return nil
}

// Stop 按接入到处理的顺序停机：先断开外部连接，再停路由与调度，
// 最后关闭历史存储。
func (p *Pipeline) Stop(ctx context.Context) error {
	var errs []error
	if err := p.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown onebot server: %w", err))
	}
	p.router.Stop()
	p.manager.Stop()
	if err := p.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close history recorder: %w", err))
	}
	p.logger.Info("流水线已停止")
	return errors.Join(errs...)
}

// Router 返回流路由器，供外部查询运行状态。
func (p *Pipeline) Router() *stream.Router { return p.router }

// Scheduler 返回调度管理器。
func (p *Pipeline) Scheduler() *scheduler.Manager { return p.manager }

// Store 返回会话上下文存储。
func (p *Pipeline) Store() *conversation.Store { return p.store }

// History 返回历史记录器，未启用 Redis 时为 nil（所有方法对 nil 安全）。
func (p *Pipeline) History() *conversation.HistoryRecorder { return p.history }
