package backoff

import (
	"context"
	"time"
)

// BackOff interface for managing retry delays and limits.
type BackOff interface {
	// NextBackOff returns the delay after the given failed attempt (1-based),
	// or a negative duration when no further attempt should be made.
	NextBackOff(attempt int) time.Duration
}

// Do executes fn until it succeeds, the backoff gives up or ctx ends.
func Do(ctx context.Context, backOff BackOff, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		next := backOff.NextBackOff(attempt)
		if next < 0 {
			return err
		}
		timer := time.NewTimer(next)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
}

// Constant waits the same interval between attempts.
type Constant struct {
	Interval    time.Duration
	MaxAttempts int
}

// NextBackOff implements BackOff.
func (b Constant) NextBackOff(attempt int) time.Duration {
	if attempt >= b.MaxAttempts {
		return -1
	}
	return b.Interval
}

// Exponential doubles the delay after each failure up to Max. MaxRetries
// bounds the number of retries that follow the first attempt.
type Exponential struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

// NextBackOff returns min(Max, Base*2^(attempt-1)).
func (b Exponential) NextBackOff(attempt int) time.Duration {
	if attempt < 1 || attempt > b.MaxRetries {
		return -1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
