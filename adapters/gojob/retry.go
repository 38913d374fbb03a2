package gojob

import (
	"time"

	"github.com/goliatone/go-job/queue/worker"
)

const (
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = time.Minute
)

// RetryPolicy bounds webhook job retries: exponential backoff from BaseDelay
// capped at MaxDelay, then dead letter once MaxAttempts deliveries failed.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// WorkerPolicy maps the bounds onto the go-job worker retry policy.
func (p RetryPolicy) WorkerPolicy() worker.DefaultRetryPolicy {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if maxDelay < base {
		maxDelay = base
	}
	return worker.DefaultRetryPolicy{
		MaxAttempts: p.MaxAttempts,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    base,
			MaxInterval: maxDelay,
		},
	}
}
