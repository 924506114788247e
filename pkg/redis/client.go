package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

const namespace = "sym"

// Key families stored under the namespace.
const (
	familySchema    = "schema_analysis"
	familyRateLimit = "rate_limit"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = redis.Nil

var errNotConnected = pkgerrors.New(pkgerrors.CodeDependency, "redis client not initialized")

// store is the subset of go-redis commands the client issues.
type store interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Incr(context.Context, string) *redis.IntCmd
	ExpireNX(context.Context, string, time.Duration) *redis.BoolCmd
}

// Client holds the connection used for analysis caching and API rate limits.
type Client struct {
	store store
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// Cache is the read-through surface used by the schema analyzer.
type Cache interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SchemaAnalysisKey(parts ...string) string
}

// New dials Redis and verifies connectivity with a PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ping redis")
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis.connected")
	}
	return &Client{store: raw, raw: raw}, nil
}

// optionsFromConfig prefers the URL form; explicit settings fill whatever the
// URL leaves at zero.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if !cfg.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "redis url or address is required")
	}

	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, "parse redis url")
		}
		opts = parsed
	}

	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fillDur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDur(&opts.DialTimeout, cfg.DialTimeout)
	fillDur(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDur(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

// Set stores value at key. A zero ttl keeps the key until evicted.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errNotConnected
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns the value stored at key, or ErrMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errNotConnected
	}
	return c.store.Get(ctx, key).Result()
}

// FixedWindowAllow counts a hit against scope and reports whether it is
// within limit for the current window. The window starts at the first hit;
// EXPIRE NX is sent on every hit so a counter never outlives its window even
// if an earlier expire was lost.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.store == nil {
		return false, 0, errNotConnected
	}
	key := c.RateLimitKey(scope)

	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment rate limit counter")
	}
	if window > 0 {
		if err := c.store.ExpireNX(ctx, key, window).Err(); err != nil {
			return false, count, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire rate limit counter")
		}
	}
	return count <= limit, count, nil
}

// SchemaAnalysisKey namespaces a cached table analysis.
func (c *Client) SchemaAnalysisKey(parts ...string) string {
	return buildKey(familySchema, parts...)
}

// RateLimitKey namespaces a rate limit counter.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey(familyRateLimit, scope)
}

func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotConnected
	}
	return c.store.Ping(ctx).Err()
}

// Close is a no-op for clients built without a connection.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// buildKey joins non-empty parts under the namespace with ':'.
func buildKey(family string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(family)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
