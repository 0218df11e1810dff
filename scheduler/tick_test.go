package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/BaSui01/streamflow/config"
)

func tickConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		MaxConcurrent:          10,
		ForceDispatchThreshold: 10,
		PollIntervalBusy:       5 * time.Millisecond,
		PollIntervalIdle:       20 * time.Millisecond,
		ContextRetryBackoff:    100 * time.Millisecond,
	}
}

func TestTickDecider_IdleNoDispatch(t *testing.T) {
	d := NewTickDecider(tickConfig(), nil)

	dec := d.Next(0)
	assert.False(t, dec.Dispatch)
	assert.False(t, dec.Force)
	assert.Equal(t, 20*time.Millisecond, dec.NextInterval)
}

func TestTickDecider_BacklogDispatchesAtBusyInterval(t *testing.T) {
	d := NewTickDecider(tickConfig(), nil)

	dec := d.Next(3)
	assert.True(t, dec.Dispatch)
	assert.False(t, dec.Force)
	assert.Equal(t, 5*time.Millisecond, dec.NextInterval)
}

func TestTickDecider_ForceAboveThreshold(t *testing.T) {
	d := NewTickDecider(tickConfig(), nil)

	// 阈值 10：恰好 10 条不强制，11 条强制
	assert.False(t, d.Next(10).Force)
	assert.True(t, d.Next(11).Force)
}

func TestTickDecider_Counters(t *testing.T) {
	d := NewTickDecider(tickConfig(), nil)

	d.Next(0)
	d.Next(1)
	d.Next(2)

	assert.Equal(t, int64(3), d.TickCount())
	assert.Equal(t, int64(2), d.DispatchCount())
}

func TestTickDecider_CustomPolicy(t *testing.T) {
	d := NewTickDecider(tickConfig(), NewFixedPolicy(2))

	assert.False(t, d.Next(2).Force)
	assert.True(t, d.Next(3).Force)
}

// 自适应节奏是确定性的：有积压必然睡忙间隔，空闲必然睡闲间隔。
func TestProperty_AdaptiveCadenceDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := NewTickDecider(tickConfig(), nil)

		for i := 0; i < 100; i++ {
			unread := rapid.IntRange(0, 50).Draw(rt, "unread")
			dec := d.Next(unread)

			if unread > 0 && dec.NextInterval != 5*time.Millisecond {
				rt.Fatalf("backlog of %d slept idle interval", unread)
			}
			if unread == 0 && dec.NextInterval != 20*time.Millisecond {
				rt.Fatalf("idle tick slept busy interval")
			}
			if dec.Dispatch != (unread > 0 || dec.Force) {
				rt.Fatalf("dispatch decision inconsistent for unread=%d", unread)
			}
			if dec.Force && unread <= 10 {
				rt.Fatalf("forced with unread=%d at threshold 10", unread)
			}
		}
	})
}
