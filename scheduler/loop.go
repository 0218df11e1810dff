package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/streamflow/config"
	"github.com/BaSui01/streamflow/internal/metrics"
	"github.com/BaSui01/streamflow/processor"
	"github.com/BaSui01/streamflow/types"
)

// =============================================================================
// 🔁 流调度循环
// =============================================================================

// Conversation 调度循环对会话上下文的完整视图：Processor 的消费面，
// 加上冲洗暂存区、读未读数和处理互斥闸门。
type Conversation interface {
	processor.Conversation
	FlushCached() []types.Message
	UnreadCount() int
	TryBeginProcessing() bool
	EndProcessing()
}

// ContextSource 按流 ID 取会话上下文。上下文暂不存在不是错误——
// 循环会短暂退避后重试。
type ContextSource interface {
	Lookup(streamID string) (Conversation, bool)
}

// ContextSourceFunc 将函数适配为 ContextSource。
type ContextSourceFunc func(streamID string) (Conversation, bool)

// Lookup implements ContextSource.
func (f ContextSourceFunc) Lookup(streamID string) (Conversation, bool) {
	return f(streamID)
}

// Counters 管理器级计数快照。
type Counters struct {
	ActiveStreams      int64 `json:"active_streams"`
	TotalLoopsStarted  int64 `json:"total_loops_started"`
	TotalProcessCycles int64 `json:"total_process_cycles"`
	TotalFailures      int64 `json:"total_failures"`
}

// Manager 管理所有流的调度循环，并持有全局处理信号量。
// 信号量容量与流数量无关：大量空闲流不会挤占少数活跃流的处理额度。
type Manager struct {
	cfg     config.SchedulerConfig
	source  ContextSource
	proc    processor.Processor
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	sem           *semaphore.Weighted
	policyFactory PolicyFactory
	onCycle       func(streamID string, res *processor.Result)

	mu    sync.Mutex
	loops map[string]context.CancelFunc

	loopWG  sync.WaitGroup
	cycleWG sync.WaitGroup
	running atomic.Bool

	activeStreams      atomic.Int64
	totalLoopsStarted  atomic.Int64
	totalProcessCycles atomic.Int64
	totalFailures      atomic.Int64
}

// NewManager 创建调度管理器。
func NewManager(cfg config.SchedulerConfig, source ContextSource, proc processor.Processor, logger *zap.Logger, collector *metrics.Collector) *Manager {
	m := &Manager{
		cfg:     cfg,
		source:  source,
		proc:    proc,
		logger:  logger.With(zap.String("component", "dispatch_scheduler")),
		metrics: collector,
		tracer:  otel.Tracer("streamflow/scheduler"),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		loops:   make(map[string]context.CancelFunc),
	}
	m.policyFactory = func() AdmissionPolicy {
		return NewFixedPolicy(cfg.ForceDispatchThreshold)
	}
	return m
}

// SetPolicyFactory 替换准入策略工厂。必须在 Start 之前调用。
func (m *Manager) SetPolicyFactory(f PolicyFactory) {
	if f != nil {
		m.policyFactory = f
	}
}

// OnCycle 注册处理周期完成后的回调（如写历史缓存）。必须在 Start 之前调用。
func (m *Manager) OnCycle(fn func(streamID string, res *processor.Result)) {
	m.onCycle = fn
}

// Start 打开调度开关。幂等。
func (m *Manager) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.logger.Info("dispatch scheduler started",
		zap.Int("max_concurrent", m.cfg.MaxConcurrent),
		zap.Int("force_dispatch_threshold", m.cfg.ForceDispatchThreshold),
		zap.Duration("poll_interval_busy", m.cfg.PollIntervalBusy),
		zap.Duration("poll_interval_idle", m.cfg.PollIntervalIdle))
}

// Stop 关闭调度开关，取消所有循环并等待在途处理结束。幂等。
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}

	m.mu.Lock()
	for _, cancel := range m.loops {
		cancel()
	}
	m.loops = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	m.loopWG.Wait()
	m.cycleWG.Wait()

	m.logger.Info("dispatch scheduler stopped",
		zap.Int64("total_process_cycles", m.totalProcessCycles.Load()),
		zap.Int64("total_failures", m.totalFailures.Load()))
}

// IsRunning 返回调度开关状态。
func (m *Manager) IsRunning() bool { return m.running.Load() }

// StartStream 为流启动调度循环。已存在时为空操作；管理器未启动时报错。
func (m *Manager) StartStream(streamID string) error {
	if !m.running.Load() {
		return fmt.Errorf("scheduler not running: %w", types.ErrClosed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.loops[streamID]; exists {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.loops[streamID] = cancel

	m.totalLoopsStarted.Add(1)
	m.activeStreams.Add(1)
	m.loopWG.Add(1)
	go m.runStream(ctx, streamID)

	m.logger.Info("stream loop started", zap.String("stream", streamID))
	return nil
}

// StopStream 停止某个流的调度循环。不存在时为空操作。
func (m *Manager) StopStream(streamID string) {
	m.mu.Lock()
	cancel, ok := m.loops[streamID]
	if ok {
		delete(m.loops, streamID)
	}
	m.mu.Unlock()

	if ok {
		cancel()
		m.logger.Info("stream loop stopped", zap.String("stream", streamID))
	}
}

// Counters 返回管理器级计数快照。
func (m *Manager) Counters() Counters {
	return Counters{
		ActiveStreams:      m.activeStreams.Load(),
		TotalLoopsStarted:  m.totalLoopsStarted.Load(),
		TotalProcessCycles: m.totalProcessCycles.Load(),
		TotalFailures:      m.totalFailures.Load(),
	}
}

// runStream 单个流的驱动循环：每次迭代冲洗暂存区、评估一次 tick，
// 需要时发起处理周期，然后按决策的间隔休眠。
func (m *Manager) runStream(ctx context.Context, streamID string) {
	defer m.loopWG.Done()
	defer m.activeStreams.Add(-1)

	decider := NewTickDecider(m.cfg, m.policyFactory())
	logger := m.logger.With(zap.String("stream", streamID))

	for m.running.Load() {
		if ctx.Err() != nil {
			return
		}

		conv, ok := m.source.Lookup(streamID)
		if !ok {
			// 上下文尚未就绪（或已被拆除）：退避重试，不算错误
			if !sleepCtx(ctx, m.cfg.ContextRetryBackoff) {
				return
			}
			continue
		}

		conv.FlushCached()
		dec := decider.Next(conv.UnreadCount())

		if dec.Dispatch {
			m.metrics.RecordDispatchTick(dec.Force)
			m.beginCycle(ctx, streamID, conv, dec, decider.Policy(), logger)
		}

		if !sleepCtx(ctx, dec.NextInterval) {
			return
		}
	}
}

// beginCycle 在处理互斥闸门和全局信号量之后发起一次处理周期。
// 同一流已有周期在途时本 tick 被跳过。
func (m *Manager) beginCycle(ctx context.Context, streamID string, conv Conversation, dec Decision, policy AdmissionPolicy, logger *zap.Logger) {
	if !conv.TryBeginProcessing() {
		m.metrics.RecordProcessCycle("skipped", 0)
		return
	}

	m.cycleWG.Add(1)
	go func() {
		defer m.cycleWG.Done()
		defer conv.EndProcessing()

		// 全局准入：与流数量无关的唯一并发闸门
		if err := m.sem.Acquire(ctx, 1); err != nil {
			// 停机期间的取消属于正常控制流
			return
		}
		defer m.sem.Release(1)

		cctx, span := m.tracer.Start(ctx, "processor.process",
			trace.WithAttributes(
				attribute.String("stream.id", streamID),
				attribute.Bool("dispatch.forced", dec.Force),
			))
		start := time.Now()
		res, err := m.invokeProcessor(cctx, streamID, conv)
		elapsed := time.Since(start)

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// 停机取消：不计入周期也不计入失败
			span.End()
			return
		}

		m.totalProcessCycles.Add(1)

		if err != nil || res == nil || !res.Success {
			m.totalFailures.Add(1)
			m.metrics.RecordProcessCycle("failure", elapsed)
			policy.Observe(OutcomeFailure)
			span.SetStatus(codes.Error, "process cycle failed")
			logger.Error("process cycle failed",
				zap.Bool("forced", dec.Force),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		} else {
			m.metrics.RecordProcessCycle("success", elapsed)
			policy.Observe(OutcomeSuccess)
			logger.Debug("process cycle completed",
				zap.Bool("forced", dec.Force),
				zap.Int("consumed", len(res.Consumed)),
				zap.Duration("elapsed", elapsed))
		}
		span.End()

		if m.onCycle != nil && res != nil {
			m.onCycle(streamID, res)
		}
	}()
}

// invokeProcessor 调用外部 Processor 并吸收 panic：单流的处理异常
// 不允许波及其它流的循环。
func (m *Manager) invokeProcessor(ctx context.Context, streamID string, conv Conversation) (res *processor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = types.NewError(types.ErrCodeProcessingFailure,
				fmt.Sprintf("processor panicked: %v", r)).WithStream(streamID)
		}
	}()
	return m.proc.Process(ctx, streamID, conv)
}

// sleepCtx 可取消休眠；被取消时返回 false。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
