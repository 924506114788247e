package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (s *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if s.err != nil {
		return false, 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[scope]++
	return s.counts[scope] <= limit, s.counts[scope], nil
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("api", 2, time.Minute), store, nil)(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		switch {
		case i < 2 && rec.Code != http.StatusOK:
			t.Fatalf("expected success before limit, got %d", rec.Code)
		case i == 2:
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429 got %d", rec.Code)
			}
			if got := rec.Header().Get("Retry-After"); got != "60" {
				t.Fatalf("expected Retry-After 60, got %q", got)
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code %s", body.Error.Code)
			}
		}
	}

	if store.counts["api:ip:1.2.3.4"] != 3 {
		t.Fatalf("expected counter keyed by ip, got %v", store.counts)
	}
}

func TestRateLimitKeysBySubject(t *testing.T) {
	store := newFakeRateStore()
	token := mintTestToken(t, testJWT, "reader")
	handler := Auth(testJWT, nil)(RateLimit(NewRateLimitPolicy("api", 5, time.Minute), store, nil)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if store.counts["api:test-client"] != 1 {
		t.Fatalf("expected subject counter, got %v", store.counts)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("api", 1, time.Minute), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("api", 0, time.Minute), newFakeRateStore(), nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestRecovererReturnsInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

func TestRequestIDPropagatesHeader(t *testing.T) {
	handler := RequestID(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated id got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
