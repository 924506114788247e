package bigquery

import (
	"context"
	"errors"
	"net/http"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy controls how many times a BigQuery call is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaximumBackoff: defaultMaximumBackoff,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = p.InitialBackoff
	}
	return p
}

// WithRetry calls fn until it succeeds, fails with a non retryable error or
// runs out of attempts. Backoff doubles up to the policy maximum.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	policy = policy.normalize()
	backoff := policy.InitialBackoff
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= policy.MaxAttempts || !IsRetryable(err) {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, policy.MaximumBackoff)
	}
}

// IsRetryable classifies BigQuery errors as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !IsRetryable(inner) {
				return false
			}
		}
		return true
	}

	var jobErr *cbigquery.Error
	if errors.As(err, &jobErr) && jobErr != nil {
		switch jobErr.Reason {
		case "backendError", "rateLimitExceeded", "internalError":
			return true
		default:
			return false
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
