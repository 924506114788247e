package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/symmetri/pkg/config"
)

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsWithFile(t *testing.T) {
	opts := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"})
	if len(opts) != 1 {
		t.Fatalf("expected 1 option when using credentials file, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	opts := clientOptions(config.GCPConfig{})
	if len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if err := c.LoadCSV(context.Background(), LoadRequest{Table: "t"}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("expected nil close, got %v", err)
	}
	if c.DatasetID() != "" || c.ProjectID() != "" {
		t.Fatal("expected empty identifiers on nil client")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":          {nil, false},
		"plain":        {errors.New("boom"), false},
		"http 503":     {&googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		"http 400":     {&googleapi.Error{Code: http.StatusBadRequest}, false},
		"grpc":         {status.Error(codes.Unavailable, "down"), true},
		"grpc invalid": {status.Error(codes.InvalidArgument, "bad"), false},
		"job backend":  {&cbigquery.Error{Reason: "backendError"}, true},
		"job invalid":  {&cbigquery.Error{Reason: "invalid"}, false},
		"multi all":    {&cbigquery.MultiError{&googleapi.Error{Code: 500}, &googleapi.Error{Code: 502}}, true},
		"multi mixed":  {&cbigquery.MultiError{&googleapi.Error{Code: 500}, errors.New("x")}, false},
		"multi empty":  {&cbigquery.MultiError{}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond}

	calls := 0
	err := WithRetry(context.Background(), policy, func(context.Context) error {
		calls++
		if calls < 3 {
			return &googleapi.Error{Code: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	permanent := &googleapi.Error{Code: http.StatusBadRequest}
	err = WithRetry(context.Background(), policy, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected single attempt for permanent error, got err=%v calls=%d", err, calls)
	}
}
