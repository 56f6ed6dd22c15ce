package worker

import (
	"math"
	"time"
)

// RetryPolicy shapes the backoff between mail delivery attempts.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
}

// normalized fills unset fields from the default policy, so a zero-value
// RetryPolicy handed to NewMailWorker behaves sanely.
func (p RetryPolicy) normalized() RetryPolicy {
	def := defaultRetryPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = def.BackoffFactor
	}
	return p
}

// NextDelay returns the wait before the given 1-based attempt, growing
// geometrically from InitialDelay and capped at MaxDelay.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		d = p.InitialDelay
	}
	return d
}
