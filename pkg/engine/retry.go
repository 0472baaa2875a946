package engine

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry behavior for generator calls.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultMultiplier      = 2.0
	DefaultAttemptTimeout  = 30 * time.Second
)

// RetryPolicy bounds the generation attempts for a single stage execution.
// MaxAttempts counts the initial attempt; AttemptTimeout caps each attempt
// independently of the backoff waits between them.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	AttemptTimeout  time.Duration
}

// DefaultRetryPolicy returns the policy used when the configuration does not
// override retry behavior.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		AttemptTimeout:  DefaultAttemptTimeout,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.Multiplier = p.Multiplier
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}
