package services

import (
	"context"
	"math"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"golang.org/x/time/rate"
)

// Lane separates interactive traffic from scheduled scraping at the
// rate limiter. Only the foreground lane may draw on the burst reserve.
type Lane int

const (
	LaneBackground Lane = iota
	LaneForeground
)

func (l Lane) String() string {
	if l == LaneForeground {
		return "foreground"
	}
	return "background"
}

// CostLimiter gates all outbound upstream calls through one shared token
// bucket, weighted by a per-call cost. It never rejects: callers wait for
// refill (or ctx cancellation). Interactive calls may additionally spend
// from a small, slowly-replenished burst reserve when the shared bucket
// is running low, so a user search is not stuck behind a catalog scrape.
type CostLimiter struct {
	bucket *rate.Limiter
	burst  *rate.Limiter
	costs  config.CostConfig
	max    int
}

func NewCostLimiter(cfg *config.LimiterConfig) *CostLimiter {
	// The reserve refills at a tenth of the main rate so bursts are paid
	// back over time instead of compounding.
	return &CostLimiter{
		bucket: rate.NewLimiter(rate.Limit(cfg.RefillPerSecond), cfg.BucketSize),
		burst:  rate.NewLimiter(rate.Limit(cfg.RefillPerSecond/10), cfg.ForegroundBurst),
		costs:  cfg.Costs,
		max:    cfg.BucketSize,
	}
}

// Admit blocks until the call is permitted or ctx is done.
func (l *CostLimiter) Admit(ctx context.Context, lane Lane, cost float64) error {
	n := int(math.Ceil(cost))
	if n < 1 {
		n = 1
	}
	// A cost above bucket capacity can never be satisfied in one wait.
	if n > l.max {
		n = l.max
	}

	if lane == LaneForeground && l.bucket.Tokens() < float64(n) {
		if l.burst.AllowN(time.Now(), n) {
			return nil
		}
	}
	return l.bucket.WaitN(ctx, n)
}

// --- Cost table helpers ---

func (l *CostLimiter) TermsCost() float64    { return l.costs.Terms }
func (l *CostLimiter) SubjectsCost() float64 { return l.costs.Subjects }
func (l *CostLimiter) MeetingsCost() float64 { return l.costs.MeetingTimes }

// SearchCost scales with the number of records the search is expected to
// return, so a 350-course catalog scrape weighs several times a small
// interactive lookup.
func (l *CostLimiter) SearchCost(expectedRecords int) float64 {
	if expectedRecords < 0 {
		expectedRecords = 0
	}
	return l.costs.SearchBase + l.costs.SearchPer100*float64(expectedRecords)/100
}
