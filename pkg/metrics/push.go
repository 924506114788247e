package metrics

import (
	"context"
	"strings"

	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends everything in gatherer to the configured Pushgateway.
// Batch commands exit before a scrape could happen, so they push instead.
// It is a no-op when no gateway URL is configured.
func Push(ctx context.Context, cfg config.MetricsConfig, gatherer prometheus.Gatherer) error {
	url := strings.TrimSpace(cfg.PushgatewayURL)
	if url == "" || gatherer == nil {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = "symmetri"
	}
	return push.New(url, job).Gatherer(gatherer).PushContext(ctx)
}
