package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestGeneratorMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewGeneratorMetrics(reg)
	stage := "crm"
	metrics.ObserveDuration(stage, 250*time.Millisecond)
	metrics.IncSuccess(stage)
	metrics.IncFailure(stage)
	metrics.AddRows("CRM_USERS", 120)
	metrics.AddRows("CRM_USERS", 30)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "datagen_stage_success", "stage", stage); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "datagen_stage_failure", "stage", stage); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "datagen_rows_total", "table", "CRM_USERS"); err != nil {
		t.Fatalf("fetch rows: %v", err)
	} else if got != 150 {
		t.Fatalf("expected rows=150, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "datagen_stage_duration_seconds", "stage", stage); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestGeneratorMetricsTrackCountsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewGeneratorMetrics(reg)

	if err := metrics.Track("load", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boom := errors.New("boom")
	if err := metrics.Track("load", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, _ := fetchCounterValue(mfs, "datagen_stage_success", "stage", "load"); got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, _ := fetchCounterValue(mfs, "datagen_stage_failure", "stage", "load"); got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
}

func TestGeneratorMetricsPoolSizes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewGeneratorMetrics(reg)
	metrics.SetPoolSize("crm", 400)
	metrics.SetPoolSize("crm", 100)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "datagen_pool_size")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("expected one datagen_pool_size series, got %v", mf)
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 100 {
		t.Fatalf("expected crm pool=100, got %f", got)
	}
}

func TestGeneratorMetricsNilSafe(t *testing.T) {
	var metrics *GeneratorMetrics
	metrics.ObserveDuration("x", time.Second)
	metrics.AddRows("x", 1)
	metrics.IncSuccess("x")
	metrics.IncFailure("x")
	metrics.SetPoolSize("x", 1)

	unregistered := NewGeneratorMetrics(nil)
	if err := unregistered.Track("x", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPushSendsToGateway(t *testing.T) {
	var (
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	NewGeneratorMetrics(reg).AddRows("WEBSITE_EVENTS", 5)

	err := Push(context.Background(), config.MetricsConfig{PushgatewayURL: srv.URL, Job: "datagen"}, reg)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotPath != "/metrics/job/datagen" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody == "" {
		t.Fatalf("expected metrics payload")
	}
}

func TestPushSkipsWithoutGateway(t *testing.T) {
	if err := Push(context.Background(), config.MetricsConfig{}, prometheus.NewRegistry()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && strings.EqualFold(label.GetValue(), value) {
			return true
		}
	}
	return false
}
