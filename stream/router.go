package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/streamflow/config"
	"github.com/BaSui01/streamflow/internal/metrics"
	"github.com/BaSui01/streamflow/types"
)

// =============================================================================
// 🚏 流路由器
// =============================================================================

// RouterSummary 所有活跃流的聚合统计
type RouterSummary struct {
	TotalStreams           int     `json:"total_streams"`
	MaxStreams             int     `json:"max_streams"`
	TotalMessagesProcessed int64   `json:"total_messages_processed"`
	TotalQueueSize         int     `json:"total_queue_size"`
	AvgQueueSize           float64 `json:"avg_queue_size"`
	TotalQueueOverflows    int64   `json:"total_queue_overflows"`
	BusiestStream          string  `json:"busiest_stream"`
	CapacityBreaches       int64   `json:"capacity_breaches"`
}

// Router 拥有流键 → 消费者的映射。热路径（已有消费者）只做一次读锁查表；
// 写锁仅在创建与淘汰时持有。
type Router struct {
	cfg     config.StreamConfig
	handler EventHandler
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.RWMutex
	streams map[types.StreamKey]*Consumer

	// onEvict 在消费者被淘汰或路由器关闭时回调（用于清理会话上下文）
	onEvict func(streamID string)

	// breachLog 限制容量突破日志的频率，避免持续过载时刷屏
	breachLog *rate.Limiter

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	closed  atomic.Bool

	totalRouted atomic.Int64
	breaches    atomic.Int64
}

// NewRouter 创建路由器。
func NewRouter(cfg config.StreamConfig, handler EventHandler, logger *zap.Logger, collector *metrics.Collector) *Router {
	return &Router{
		cfg:       cfg,
		handler:   handler,
		logger:    logger.With(zap.String("component", "stream_router")),
		metrics:   collector,
		streams:   make(map[types.StreamKey]*Consumer),
		breachLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// OnEvict 注册淘汰回调。必须在 Start 之前调用。
func (r *Router) OnEvict(fn func(streamID string)) {
	r.onEvict = fn
}

// Start 启动后台空闲清理任务。幂等。
func (r *Router) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go r.cleanupLoop(ctx)

	r.logger.Info("stream router started",
		zap.Int("max_streams", r.cfg.MaxStreams),
		zap.Duration("stream_timeout", r.cfg.StreamTimeout),
		zap.Duration("cleanup_interval", r.cfg.CleanupInterval))
}

// Stop 停止清理任务和全部消费者并清空映射。幂等。
func (r *Router) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.closed.Store(true)
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	victims := make([]*Consumer, 0, len(r.streams))
	for _, c := range r.streams {
		victims = append(victims, c)
	}
	r.streams = make(map[types.StreamKey]*Consumer)
	r.mu.Unlock()

	for _, c := range victims {
		c.Stop()
		if r.onEvict != nil {
			r.onEvict(c.Key().String())
		}
	}
	r.metrics.SetActiveStreams(0)

	r.logger.Info("stream router stopped", zap.Int("streams_closed", len(victims)))
}

// Route 将事件投递到其流键对应的消费者，必要时创建消费者。
// 队列溢出按 drop-newest 丢弃并计数，但 Route 本身不报错；
// 只有路由器已关闭才返回错误。
func (r *Router) Route(ev types.Event) error {
	if r.closed.Load() {
		return types.NewError(types.ErrCodeRouterClosed, "router is stopped").WithCause(types.ErrClosed)
	}

	key := KeyFor(ev)
	r.totalRouted.Add(1)
	r.metrics.RecordEventRouted(string(ev.Type()))

	// 热路径：读锁查表
	r.mu.RLock()
	c := r.streams[key]
	r.mu.RUnlock()

	if c == nil {
		c = r.getOrCreate(key)
	}
	c.Enqueue(ev)
	return nil
}

// getOrCreate 双重检查后创建并注册新消费者。达到软上限时先做一次
// 空闲清扫；清扫后仍超限则记录错误但仍然接纳（软上限，不拒绝事件）。
func (r *Router) getOrCreate(key types.StreamKey) *Consumer {
	r.mu.Lock()

	if c, ok := r.streams[key]; ok {
		r.mu.Unlock()
		return c
	}

	var victims []*Consumer
	if len(r.streams) >= r.cfg.MaxStreams {
		victims = r.collectIdleLocked(time.Now())
		for _, v := range victims {
			delete(r.streams, v.Key())
		}
	}

	breached := len(r.streams) >= r.cfg.MaxStreams

	c := NewConsumer(key, r.cfg.QueueSize, r.cfg.StopTimeout, r.handler, r.logger, r.metrics)
	c.Start()
	r.streams[key] = c
	total := len(r.streams)
	r.mu.Unlock()

	r.metrics.SetActiveStreams(total)
	r.stopEvicted(victims)

	if breached {
		r.breaches.Add(1)
		r.metrics.RecordCapacityBreach()
		if r.breachLog.Allow() {
			r.logger.Error("stream capacity exceeded, admitting above soft limit",
				zap.Int("max_streams", r.cfg.MaxStreams),
				zap.Int("total_streams", total),
				zap.String("new_stream", key.String()))
		}
	} else {
		r.logger.Info("stream consumer created",
			zap.String("stream", key.String()),
			zap.Int("total_streams", total))
	}

	return c
}

// cleanupLoop 周期性淘汰空闲流。
func (r *Router) cleanupLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepIdle(time.Now())
		}
	}
}

// sweepIdle 移除空闲超时的消费者并停止它们。
func (r *Router) sweepIdle(now time.Time) int {
	r.mu.Lock()
	victims := r.collectIdleLocked(now)
	for _, v := range victims {
		delete(r.streams, v.Key())
	}
	total := len(r.streams)
	r.mu.Unlock()

	if len(victims) == 0 {
		return 0
	}

	r.metrics.SetActiveStreams(total)
	r.stopEvicted(victims)

	r.logger.Info("idle streams evicted",
		zap.Int("evicted", len(victims)),
		zap.Int("remaining", total))
	return len(victims)
}

// collectIdleLocked 在持锁状态下挑出空闲超时的消费者，不做停止动作。
func (r *Router) collectIdleLocked(now time.Time) []*Consumer {
	var victims []*Consumer
	for _, c := range r.streams {
		if now.Sub(c.LastActiveAt()) > r.cfg.StreamTimeout {
			victims = append(victims, c)
		}
	}
	return victims
}

// stopEvicted 在锁外停止被淘汰的消费者并触发回调。
func (r *Router) stopEvicted(victims []*Consumer) {
	for _, v := range victims {
		v.Stop()
		r.metrics.RecordStreamEvicted(v.Key().String())
		if r.onEvict != nil {
			r.onEvict(v.Key().String())
		}
	}
}

// StreamStats 返回单个流的统计，流不存在时 ok 为 false。
func (r *Router) StreamStats(key types.StreamKey) (ConsumerStats, bool) {
	r.mu.RLock()
	c, ok := r.streams[key]
	r.mu.RUnlock()
	if !ok {
		return ConsumerStats{}, false
	}
	return c.Stats(), true
}

// Summary 聚合所有活跃流的统计。
func (r *Router) Summary() RouterSummary {
	r.mu.RLock()
	consumers := make([]*Consumer, 0, len(r.streams))
	for _, c := range r.streams {
		consumers = append(consumers, c)
	}
	r.mu.RUnlock()

	s := RouterSummary{
		TotalStreams:     len(consumers),
		MaxStreams:       r.cfg.MaxStreams,
		CapacityBreaches: r.breaches.Load(),
	}

	var busiest int64 = -1
	for _, c := range consumers {
		st := c.Stats()
		s.TotalMessagesProcessed += st.TotalMessages
		s.TotalQueueSize += st.QueueSize
		s.TotalQueueOverflows += st.OverflowCount
		if st.TotalMessages > busiest {
			busiest = st.TotalMessages
			s.BusiestStream = st.StreamID
		}
	}
	if len(consumers) > 0 {
		s.AvgQueueSize = float64(s.TotalQueueSize) / float64(len(consumers))
	}
	return s
}
