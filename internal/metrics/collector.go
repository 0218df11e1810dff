// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有组件都接受 nil Collector（空实现），
// 便于单测时不注册全局指标。
type Collector struct {
	// 路由指标
	eventsRouted     *prometheus.CounterVec
	queueOverflow    *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	activeStreams    prometheus.Gauge
	streamsEvicted   prometheus.Counter
	capacityBreaches prometheus.Counter

	// 消费指标
	eventsHandled  *prometheus.CounterVec
	handleDuration *prometheus.HistogramVec

	// 调度指标
	dispatchTicks   *prometheus.CounterVec
	processCycles   *prometheus.CounterVec
	processDuration prometheus.Histogram

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 路由指标
	c.eventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Total number of inbound events routed to a stream",
		},
		[]string{"kind"},
	)

	c.queueOverflow = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_overflow_total",
			Help:      "Total number of events dropped on a full stream queue",
		},
		[]string{"stream"},
	)

	c.queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of queued events per stream",
		},
		[]string{"stream"},
	)

	c.activeStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of live stream consumers",
		},
	)

	c.streamsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_evicted_total",
			Help:      "Total number of idle stream consumers evicted",
		},
	)

	c.capacityBreaches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_breaches_total",
			Help:      "Times a new stream was admitted above max_streams",
		},
	)

	// 消费指标
	c.eventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Total number of events handled by stream workers",
		},
		[]string{"kind", "status"},
	)

	c.handleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handle_duration_seconds",
			Help:      "Per-event handler duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	// 调度指标
	c.dispatchTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_ticks_total",
			Help:      "Total number of ticks that requested a dispatch",
		},
		[]string{"forced"},
	)

	c.processCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_cycles_total",
			Help:      "Total number of processor invocations",
		},
		[]string{"status"}, // success, failure, skipped
	)

	c.processDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Processor invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🚏 路由指标记录
// =============================================================================

// RecordEventRouted 记录一次事件路由
func (c *Collector) RecordEventRouted(kind string) {
	if c == nil {
		return
	}
	c.eventsRouted.WithLabelValues(kind).Inc()
}

// RecordQueueOverflow 记录一次队列溢出丢弃
func (c *Collector) RecordQueueOverflow(stream string) {
	if c == nil {
		return
	}
	c.queueOverflow.WithLabelValues(stream).Inc()
}

// SetQueueDepth 更新单流队列深度
func (c *Collector) SetQueueDepth(stream string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(stream).Set(float64(depth))
}

// SetActiveStreams 更新活跃流数量
func (c *Collector) SetActiveStreams(n int) {
	if c == nil {
		return
	}
	c.activeStreams.Set(float64(n))
}

// RecordStreamEvicted 记录一次空闲流淘汰
func (c *Collector) RecordStreamEvicted(stream string) {
	if c == nil {
		return
	}
	c.streamsEvicted.Inc()
	c.queueDepth.DeleteLabelValues(stream)
	c.queueOverflow.DeleteLabelValues(stream)
}

// RecordCapacityBreach 记录一次软上限突破
func (c *Collector) RecordCapacityBreach() {
	if c == nil {
		return
	}
	c.capacityBreaches.Inc()
}

// =============================================================================
// ⚙️ 消费指标记录
// =============================================================================

// RecordEventHandled 记录 worker 处理完一个事件
func (c *Collector) RecordEventHandled(kind, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.eventsHandled.WithLabelValues(kind, status).Inc()
	c.handleDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// =============================================================================
// ⏱️ 调度指标记录
// =============================================================================

// RecordDispatchTick 记录一次分发 tick
func (c *Collector) RecordDispatchTick(forced bool) {
	if c == nil {
		return
	}
	label := "false"
	if forced {
		label = "true"
	}
	c.dispatchTicks.WithLabelValues(label).Inc()
}

// RecordProcessCycle 记录一次处理周期
func (c *Collector) RecordProcessCycle(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.processCycles.WithLabelValues(status).Inc()
	if status != "skipped" {
		c.processDuration.Observe(duration.Seconds())
	}
}
