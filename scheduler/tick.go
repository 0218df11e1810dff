package scheduler

import (
	"time"

	"github.com/BaSui01/streamflow/config"
)

// =============================================================================
// ⏱️ Tick 状态机
// =============================================================================

// Decision 单次 tick 评估的结果。
type Decision struct {
	// Dispatch 为 true 时本 tick 应请求一次处理。
	Dispatch bool
	// Force 表示未读积压超过阈值、无视常规条件强制分发。
	Force bool
	// NextInterval 下一次轮询前的休眠时长：有积压用短间隔压低延迟，
	// 空闲用长间隔省 CPU。
	NextInterval time.Duration
}

// TickDecider 单个流的 tick 决策状态机。外层驱动循环每次迭代调用一次
// Next；它自身不休眠、不起协程，给定配置后决策完全确定。
type TickDecider struct {
	busyInterval time.Duration
	idleInterval time.Duration
	policy       AdmissionPolicy
	tickCount    int64
	dispatches   int64
}

// NewTickDecider 创建决策器。
func NewTickDecider(cfg config.SchedulerConfig, policy AdmissionPolicy) *TickDecider {
	if policy == nil {
		policy = NewFixedPolicy(cfg.ForceDispatchThreshold)
	}
	return &TickDecider{
		busyInterval: cfg.PollIntervalBusy,
		idleInterval: cfg.PollIntervalIdle,
		policy:       policy,
	}
}

// Next 评估一次 tick。unreadCount 是冲洗暂存区之后的未读消息数。
func (d *TickDecider) Next(unreadCount int) Decision {
	d.tickCount++

	force := unreadCount > d.policy.ForceThreshold()
	dispatch := unreadCount > 0 || force

	interval := d.idleInterval
	if unreadCount > 0 {
		interval = d.busyInterval
	}

	if dispatch {
		d.dispatches++
	}

	return Decision{
		Dispatch:     dispatch,
		Force:        force,
		NextInterval: interval,
	}
}

// Policy 返回该决策器使用的准入策略。
func (d *TickDecider) Policy() AdmissionPolicy { return d.policy }

// TickCount 返回累计评估次数。
func (d *TickDecider) TickCount() int64 { return d.tickCount }

// DispatchCount 返回累计请求分发的次数。
func (d *TickDecider) DispatchCount() int64 { return d.dispatches }
