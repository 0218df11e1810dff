package scheduler

import "sync"

// =============================================================================
// 🎚️ 准入策略
// =============================================================================

// Outcome 反馈给准入策略的单次处理结局。
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeSkipped
)

// AdmissionPolicy 决定强制分发阈值，并可根据近期处理结局自适应调整。
// 业务相关的调参都收敛在策略实现里，调度循环本身保持无业务逻辑。
type AdmissionPolicy interface {
	// ForceThreshold 返回当前的强制分发未读阈值。
	ForceThreshold() int
	// Observe 上报一次处理结局。
	Observe(o Outcome)
}

// PolicyFactory 为每个流创建独立的策略实例。
type PolicyFactory func() AdmissionPolicy

// -----------------------------------------------------------------------------

// FixedPolicy 恒定阈值策略。
type FixedPolicy struct {
	threshold int
}

// NewFixedPolicy 创建恒定阈值策略。
func NewFixedPolicy(threshold int) *FixedPolicy {
	return &FixedPolicy{threshold: threshold}
}

// ForceThreshold implements AdmissionPolicy.
func (p *FixedPolicy) ForceThreshold() int { return p.threshold }

// Observe implements AdmissionPolicy.
func (p *FixedPolicy) Observe(Outcome) {}

// -----------------------------------------------------------------------------

// FeedbackPolicy 依据连续失败自适应抬高阈值：下游持续出错时放缓强制
// 分发，成功后逐步衰减回基准值。阈值始终被夹在 [base, maxThreshold]。
type FeedbackPolicy struct {
	mu sync.Mutex

	base         int
	maxThreshold int
	current      int

	consecutiveFailures int
}

// NewFeedbackPolicy 创建反馈策略。maxThreshold <= base 时退化为恒定阈值。
func NewFeedbackPolicy(base, maxThreshold int) *FeedbackPolicy {
	if maxThreshold < base {
		maxThreshold = base
	}
	return &FeedbackPolicy{
		base:         base,
		maxThreshold: maxThreshold,
		current:      base,
	}
}

// ForceThreshold implements AdmissionPolicy.
func (p *FeedbackPolicy) ForceThreshold() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Observe implements AdmissionPolicy.
func (p *FeedbackPolicy) Observe(o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch o {
	case OutcomeFailure:
		p.consecutiveFailures++
		// 连续两次失败后每次失败都翻倍退避
		if p.consecutiveFailures >= 2 {
			p.current *= 2
			if p.current > p.maxThreshold {
				p.current = p.maxThreshold
			}
		}
	case OutcomeSuccess:
		p.consecutiveFailures = 0
		// 线性衰减回基准
		if p.current > p.base {
			p.current--
		}
	case OutcomeSkipped:
		// 被跳过的 tick 不构成反馈
	}
}
