package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedPolicy(t *testing.T) {
	p := NewFixedPolicy(7)
	assert.Equal(t, 7, p.ForceThreshold())

	p.Observe(OutcomeFailure)
	p.Observe(OutcomeFailure)
	assert.Equal(t, 7, p.ForceThreshold()) // 恒定策略不受反馈影响
}

func TestFeedbackPolicy_BackoffOnConsecutiveFailures(t *testing.T) {
	p := NewFeedbackPolicy(10, 80)
	assert.Equal(t, 10, p.ForceThreshold())

	// 单次失败不退避
	p.Observe(OutcomeFailure)
	assert.Equal(t, 10, p.ForceThreshold())

	// 连续第二次失败开始翻倍
	p.Observe(OutcomeFailure)
	assert.Equal(t, 20, p.ForceThreshold())

	p.Observe(OutcomeFailure)
	assert.Equal(t, 40, p.ForceThreshold())

	// 夹在上限
	p.Observe(OutcomeFailure)
	p.Observe(OutcomeFailure)
	assert.Equal(t, 80, p.ForceThreshold())
}

func TestFeedbackPolicy_DecayOnSuccess(t *testing.T) {
	p := NewFeedbackPolicy(10, 80)
	p.Observe(OutcomeFailure)
	p.Observe(OutcomeFailure)
	p.Observe(OutcomeFailure)
	assert.Equal(t, 40, p.ForceThreshold())

	// 成功后线性衰减并清零失败计数
	p.Observe(OutcomeSuccess)
	assert.Equal(t, 39, p.ForceThreshold())

	// 衰减途中的单次失败不再立即退避
	p.Observe(OutcomeFailure)
	assert.Equal(t, 39, p.ForceThreshold())

	for i := 0; i < 100; i++ {
		p.Observe(OutcomeSuccess)
	}
	assert.Equal(t, 10, p.ForceThreshold()) // 不低于基准
}

func TestFeedbackPolicy_SkippedIsNeutral(t *testing.T) {
	p := NewFeedbackPolicy(10, 80)
	p.Observe(OutcomeFailure)
	p.Observe(OutcomeSkipped)
	p.Observe(OutcomeFailure)

	// skipped 不打断连续失败计数
	assert.Equal(t, 20, p.ForceThreshold())
}

func TestFeedbackPolicy_ClampedConstructor(t *testing.T) {
	p := NewFeedbackPolicy(10, 5) // max < base 退化为恒定
	p.Observe(OutcomeFailure)
	p.Observe(OutcomeFailure)
	assert.Equal(t, 10, p.ForceThreshold())
}
