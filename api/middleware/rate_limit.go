package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/symmetri/api/responses"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy caps requests per client within a fixed window.
type RateLimitPolicy struct {
	name   string
	limit  int
	window time.Duration
}

func NewRateLimitPolicy(name string, limit int, window time.Duration) RateLimitPolicy {
	return RateLimitPolicy{
		name:   strings.ToLower(strings.TrimSpace(name)),
		limit:  limit,
		window: window,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.limit > 0 && p.window > 0
}

func (p RateLimitPolicy) scope(client string) string {
	name := p.name
	if name == "" {
		name = "api"
	}
	return name + ":" + client
}

// RateLimit counts requests per token subject, or per client IP when the
// request is anonymous. A nil store disables limiting.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			client := SubjectFromContext(ctx)
			if client == "" {
				client = "ip:" + clientIP(r)
			}

			allowed, count, err := store.FixedWindowAllow(ctx, policy.scope(client), int64(policy.limit), policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"client":         client,
						"attempts":       count,
						"limit":          policy.limit,
						"window_seconds": int(policy.window.Seconds()),
					})
					logg.Warn(logCtx, "api.rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(policy.window.Seconds()))))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
