package stream

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/streamflow/internal/metrics"
	"github.com/BaSui01/streamflow/types"
)

// =============================================================================
// 📨 单流消费者
// =============================================================================

// EventHandler 处理出队后的事件（协议层轻量处理）。
// handler 返回的错误只影响该事件的统计，不会终止消费循环。
type EventHandler interface {
	HandleEvent(ctx context.Context, key types.StreamKey, ev types.Event) error
}

// EventHandlerFunc 将函数适配为 EventHandler。
type EventHandlerFunc func(ctx context.Context, key types.StreamKey, ev types.Event) error

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, key types.StreamKey, ev types.Event) error {
	return f(ctx, key, ev)
}

// ConsumerStats 单流消费统计快照
type ConsumerStats struct {
	StreamID          string        `json:"stream_id"`
	QueueSize         int           `json:"queue_size"`
	TotalMessages     int64         `json:"total_messages"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	OverflowCount     int64         `json:"overflow_count"`
	LastActiveAt      time.Time     `json:"last_active_at"`
}

// Consumer 拥有一个流键的有界队列和唯一 worker。
// 不变量：任意时刻最多只有一个 worker 从 queue 读取。
type Consumer struct {
	key     types.StreamKey
	queue   chan types.Event
	handler EventHandler
	logger  *zap.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	running     atomic.Bool
	stopTimeout time.Duration

	lastActive    atomic.Int64 // unix nano
	totalMessages atomic.Int64
	totalHandleNS atomic.Int64
	overflowCount atomic.Int64
}

// NewConsumer 创建消费者，不启动 worker。
func NewConsumer(key types.StreamKey, queueSize int, stopTimeout time.Duration, handler EventHandler, logger *zap.Logger, collector *metrics.Collector) *Consumer {
	c := &Consumer{
		key:         key,
		queue:       make(chan types.Event, queueSize),
		handler:     handler,
		logger:      logger.With(zap.String("component", "stream_consumer"), zap.String("stream", key.String())),
		metrics:     collector,
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}
	c.lastActive.Store(time.Now().UnixNano())
	return c
}

// Key 返回该消费者的流键。
func (c *Consumer) Key() types.StreamKey { return c.key }

// Start 启动 worker。幂等：重复调用无效果。
func (c *Consumer) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.workerLoop()
}

// Stop 通知 worker 退出并等待其结束（有界等待，不强杀）。
// 幂等：未启动或已停止时直接返回。
func (c *Consumer) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.cancel()

	select {
	case <-c.done:
	case <-time.After(c.stopTimeout):
		c.logger.Warn("worker did not exit within stop timeout",
			zap.Duration("timeout", c.stopTimeout))
	}
}

// IsRunning 返回 worker 是否存活。
func (c *Consumer) IsRunning() bool { return c.running.Load() }

// Enqueue 非阻塞入队。队列满时丢弃**新来的**事件（drop-newest），
// 保留已缓冲的历史，并累计溢出计数。返回事件是否被接受。
func (c *Consumer) Enqueue(ev types.Event) bool {
	select {
	case c.queue <- ev:
		c.lastActive.Store(time.Now().UnixNano())
		c.metrics.SetQueueDepth(c.key.String(), len(c.queue))
		return true
	default:
		c.overflowCount.Add(1)
		c.metrics.RecordQueueOverflow(c.key.String())
		c.logger.Debug("queue full, dropping incoming event",
			zap.String("kind", string(ev.Type())),
			zap.Int64("overflow_count", c.overflowCount.Load()))
		return false
	}
}

// LastActiveAt 返回最近一次入队时间。
func (c *Consumer) LastActiveAt() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// workerLoop 串行消费队列。单个事件的处理异常绝不会终止循环。
func (c *Consumer) workerLoop() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.queue:
			c.handleOne(ev)
			c.metrics.SetQueueDepth(c.key.String(), len(c.queue))
			if len(c.queue) == 0 {
				// 队列刚排空，让出调度权
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) handleOne(ev types.Event) {
	start := time.Now()
	err := c.invokeHandler(ev)
	elapsed := time.Since(start)

	c.totalMessages.Add(1)
	c.totalHandleNS.Add(int64(elapsed))

	status := "success"
	if err != nil {
		status = "failure"
		c.logger.Error("event handler failed",
			zap.String("kind", string(ev.Type())),
			zap.Error(err))
	}
	c.metrics.RecordEventHandled(string(ev.Type()), status, elapsed)
}

// invokeHandler 调用外部 handler 并吸收 panic。
func (c *Consumer) invokeHandler(ev types.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ErrCodeInternal, fmt.Sprintf("handler panicked: %v", r)).
				WithStream(c.key.String())
		}
	}()
	return c.handler.HandleEvent(c.ctx, c.key, ev)
}

// Stats 返回统计快照。
func (c *Consumer) Stats() ConsumerStats {
	total := c.totalMessages.Load()
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(c.totalHandleNS.Load() / total)
	}
	return ConsumerStats{
		StreamID:          c.key.String(),
		QueueSize:         len(c.queue),
		TotalMessages:     total,
		AvgProcessingTime: avg,
		OverflowCount:     c.overflowCount.Load(),
		LastActiveAt:      c.LastActiveAt(),
	}
}
