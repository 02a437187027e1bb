package services

import (
	"math/rand"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
)

// IntervalInputs are the facts the policy needs about one subject.
type IntervalInputs struct {
	CourseCount            int
	Priority               bool
	ReadOnly               bool
	ConsecutiveZeroChanges int
	AvgChangeRatio         float64
}

// IntervalPolicy computes the adaptive refresh interval for a subject
// after each completed run. Large subjects scale linearly (about one hour
// per hundred courses); small subjects are checked less often since they
// change rarely. Observed change rate feeds back into the result.
type IntervalPolicy struct {
	cfg *config.SchedulerConfig

	// randFloat returns a value in [0,1); injectable for tests.
	randFloat func() float64
}

func NewIntervalPolicy(cfg *config.SchedulerConfig) *IntervalPolicy {
	return &IntervalPolicy{
		cfg:       cfg,
		randFloat: rand.Float64,
	}
}

// Next returns the subject's next refresh interval.
func (p *IntervalPolicy) Next(in IntervalInputs) time.Duration {
	if in.CourseCount <= 0 {
		// Zero courses usually means a transient upstream hiccup, not a
		// genuinely empty subject. Retry on a short fixed interval.
		return time.Duration(p.cfg.ZeroCourseRetryHours) * time.Hour
	}

	base := p.baseHours(in.CourseCount)

	if in.Priority {
		base /= p.cfg.PriorityDivisor
	}
	if in.ReadOnly {
		base *= p.cfg.ReadOnlyMultiplier
	}

	// Feedback: quiet subjects drift longer, busy subjects snap shorter.
	if in.ConsecutiveZeroChanges > 0 {
		streak := float64(in.ConsecutiveZeroChanges)
		if streak > 8 {
			streak = 8
		}
		base *= 1 + p.cfg.ZeroChangeGrowth*streak
	} else if in.AvgChangeRatio > 0 {
		pressure := in.AvgChangeRatio * 10
		if pressure > 1 {
			pressure = 1
		}
		base *= 1 - p.cfg.ChangeShrink*pressure
	}

	// Symmetric jitter so subjects never synchronize into one herd.
	jitter := (2*p.randFloat() - 1) * p.cfg.JitterPct
	base *= 1 + jitter

	interval := time.Duration(base * float64(time.Hour))

	minInterval := time.Duration(p.cfg.MinIntervalMinutes) * time.Minute
	maxInterval := time.Duration(p.cfg.MaxIntervalHours) * time.Hour

	if interval < minInterval {
		// Floor plus a small random extension, again to spread load.
		extension := time.Duration(p.randFloat() * float64(15*time.Minute))
		interval = minInterval + extension
	}
	if interval > maxInterval {
		interval = maxInterval
	}
	return interval
}

// baseHours maps course count to the unadjusted interval in hours.
func (p *IntervalPolicy) baseHours(count int) float64 {
	if count >= 50 {
		return float64(count) / 100
	}
	// Inverse linear ramp: 1 course -> 12h down to 49 courses -> 1h.
	return 12 - 11*float64(count-1)/48
}
