package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout      = 120 * time.Second
	errorBodyReadLimit  = 1024
	contentTypeJSON     = "application/json"
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 4096
	voyageInputDocument = "document"
)

type options struct {
	httpClient     *http.Client
	baseURL        string
	responseRetry  RetryPolicy
	embeddingRetry RetryPolicy
}

// Option configures optional provider behavior.
type Option func(*options)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithBaseURL overrides the provider API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			o.baseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithRetryPolicies overrides the completion and embedding retry policies.
func WithRetryPolicies(response, embedding RetryPolicy) Option {
	return func(o *options) {
		o.responseRetry = response
		o.embeddingRetry = embedding
	}
}

func buildOptions(baseURL string, timeout time.Duration, opts []Option) options {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	o := options{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		responseRetry:  responseRetry,
		embeddingRetry: embeddingRetry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func joinURL(base, path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(path, "/"))
}

// postJSON sends body as JSON and decodes a 2xx answer into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
