package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

const defaultAttempts = 3

// RetryPolicy waits a random duration between Min and an exponentially
// growing ceiling capped at Max between attempts.
type RetryPolicy struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration
}

var (
	responseRetry  = RetryPolicy{Attempts: defaultAttempts, Min: 100 * time.Millisecond, Max: 500 * time.Millisecond}
	embeddingRetry = RetryPolicy{Attempts: defaultAttempts, Min: 200 * time.Millisecond, Max: time.Second}
)

// statusError is a non 2xx answer from a provider API.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

func withRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = defaultAttempts
	}
	ceiling := policy.Min
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var se *statusError
		if attempt >= policy.Attempts || (errors.As(err, &se) && !se.retryable()) {
			return err
		}

		wait := policy.Min
		if ceiling > policy.Min {
			wait += rand.N(ceiling - policy.Min)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		ceiling = min(max(ceiling*2, policy.Min), policy.Max)
	}
}
