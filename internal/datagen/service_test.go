package datagen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/symmetri/internal/datagen/crm"
	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	"github.com/angelmondragon/symmetri/internal/datagen/providers"
	"github.com/angelmondragon/symmetri/internal/datagen/sales"
	"github.com/angelmondragon/symmetri/internal/datagen/web"
	"github.com/angelmondragon/symmetri/internal/warehouse"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
	"github.com/angelmondragon/symmetri/pkg/metrics"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const commonYAML = `
website:
  common_event_types: [page_view, click, scroll]
  additional_event_types: [add_to_cart, purchase]
  device_types: [desktop, mobile]
  browsers: [Chrome, Safari]
crm:
  genders:
    Female: 0.5
    Male: 0.5
sales:
  payment_methods: [card, paypal]
  currencies: [USD]
  channels: [online, store]
`

const mainYAML = `
imports:
  - common.yaml
user_counts:
  total_crm_users: 100
  crm_users_with_transactions_percentage: 0.8
  total_website_events_users: 200
  website_users_with_transactions_percentage: 0.3
  website_users_in_crm_percentage: 0.2
  total_data_provider_users: 150
  data_provider_users_in_website_percentage: 0.2
  data_provider_users_in_crm_percentage: 0.35
website:
  names: [shop.example.com]
  page_categories: [Product Pages, Checkout]
  page_urls:
    shop.example.com:
      - https://shop.example.com/products/a
      - https://shop.example.com/cart
  url_category_patterns:
    /products/: Product Pages
    /cart: Checkout
crm:
  loyalty_tiers:
    Bronze: 0.7
    Gold: 0.3
  loyalty_points_ranges:
    Bronze: {min: 0, max: 999}
    Gold: {min: 1000, max: 5000}
  countries:
    US: 1.0
  marketing_consent_weights:
    "true": 0.6
    "false": 0.4
products:
  structure:
    Apparel:
      Shoes: [Sneaker, Boot]
  brands:
    Acme: [Pro]
data_providers:
  providers:
    - {id: 10, name: Acme Data}
    - {name: Beta Data}
  segment_structure:
    Age:
      Band: ["18-24", "25-34", "35-44"]
    Interests:
      Hobby: [Running, Cooking, Travel]
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.yaml"), []byte(commonYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "generator.yaml"), []byte(mainYAML), 0o600))
	return dir
}

type fakeWarehouse struct {
	mu     sync.Mutex
	tables map[string]*dataset.Table
	order  []string
	failOn string
}

func (f *fakeWarehouse) Name() string { return "fake" }

func (f *fakeWarehouse) Load(_ context.Context, table *dataset.Table, export warehouse.Export) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if table.Name == f.failOn {
		return pkgerrors.New(pkgerrors.CodeDependency, "load rejected")
	}
	if _, err := os.Stat(export.Path); err != nil {
		return err
	}
	if f.tables == nil {
		f.tables = map[string]*dataset.Table{}
	}
	f.tables[table.Name] = table
	f.order = append(f.order, table.Name)
	return nil
}

type fakeNotifier struct {
	events []TableLoadedEvent
	err    error
}

func (f *fakeNotifier) PublishJSON(_ context.Context, eventType string, payload any) (string, error) {
	if eventType != EventTableLoaded {
		return "", errors.New("unexpected event type")
	}
	f.events = append(f.events, payload.(TableLoadedEvent))
	return "msg-1", f.err
}

type fakeUploader struct {
	objects []string
}

func (f *fakeUploader) UploadFile(_ context.Context, object, contentType, path string) (string, error) {
	if contentType != exportContentType {
		return "", errors.New("unexpected content type")
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	f.objects = append(f.objects, object)
	return "gs://bucket/" + object, nil
}

const crmOnlyYAML = `
user_counts:
  total_crm_users: 100
  crm_users_with_transactions_percentage: 0.8
  total_website_events_users: 0
  total_data_provider_users: 0
crm:
  genders:
    Female: 0.5
    Male: 0.5
  loyalty_tiers:
    Bronze: 1.0
  loyalty_points_ranges:
    Bronze: {min: 0, max: 999}
  countries:
    US: 1.0
  marketing_consent_weights:
    "true": 0.5
    "false": 0.5
sales:
  payment_methods: [card]
  currencies: [USD]
  channels: [online]
`

func newService(t *testing.T, params ServiceParams) *Service {
	t.Helper()
	return newServiceIn(t, writeConfig(t), params)
}

func newServiceIn(t *testing.T, dir string, params ServiceParams) *Service {
	t.Helper()
	params.Logger = logger.Nop()
	params.ConfigPath = "generator.yaml"
	params.ConfigDir = dir
	if params.OutputDir == "" {
		params.OutputDir = filepath.Join(t.TempDir(), "out")
	}
	params.Now = now
	if params.Seed == 0 {
		params.Seed = 7
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func TestRunLoadsEveryTableInOrder(t *testing.T) {
	wh := &fakeWarehouse{}
	notifier := &fakeNotifier{}
	reg := prometheus.NewRegistry()
	svc := newService(t, ServiceParams{Warehouse: wh, Notifier: notifier, Metrics: metrics.NewGeneratorMetrics(reg), Parallelism: 3})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		crm.TableName,
		sales.TransactionsTable,
		sales.LineItemsTable,
		web.TableName,
		providers.ProvidersTable,
		providers.SegmentsTable,
		providers.UserSegmentsMap,
	}
	assert.Equal(t, want, wh.order)
	require.Len(t, summary.Tables, len(want))
	require.Len(t, notifier.events, len(want))
	for i, res := range summary.Tables {
		assert.Equal(t, want[i], res.Name)
		assert.FileExists(t, res.Path)
		assert.Equal(t, want[i], notifier.events[i].Table)
		assert.Equal(t, res.Rows, notifier.events[i].Rows)
		assert.Equal(t, "fake", notifier.events[i].Warehouse)
	}

	assert.Equal(t, PoolSizes{CRM: 100, Website: 200, DataProvider: 150, CRMWithTransactions: 80, WebsiteWithTransactions: 60}, summary.Pools)
	assert.Equal(t, 40, summary.Overlaps.CRMWebsite)
	assert.Equal(t, 52, summary.Overlaps.CRMDataProvider)
	assert.Equal(t, 30, summary.Overlaps.WebsiteDataProvider)
	assert.Equal(t, 30, summary.Overlaps.DataProviderWebsiteOnly)

	assert.Equal(t, 100, wh.tables[crm.TableName].Len())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["datagen_pool_size"])
	assert.True(t, names["datagen_rows_total"])
}

func TestRunSalesUsersComeFromTransactionPools(t *testing.T) {
	wh := &fakeWarehouse{}
	svc := newService(t, ServiceParams{Warehouse: wh})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	crmUsers := map[any]struct{}{}
	for _, v := range wh.tables[crm.TableName].Values("user_email_sha256") {
		crmUsers[v] = struct{}{}
	}
	webUsers := map[any]struct{}{}
	for _, v := range wh.tables[web.TableName].Values("user_email_sha256") {
		webUsers[v] = struct{}{}
	}

	buyers := map[any]struct{}{}
	for _, v := range wh.tables[sales.TransactionsTable].Values("user_email_sha256") {
		_, inCRM := crmUsers[v]
		_, inWeb := webUsers[v]
		assert.True(t, inCRM || inWeb, "buyer %v outside crm and website pools", v)
		buyers[v] = struct{}{}
	}
	assert.GreaterOrEqual(t, len(buyers), 80)
	assert.LessOrEqual(t, len(buyers), 140)
}

func TestRunWithoutWebsiteGroup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "generator.yaml"), []byte(crmOnlyYAML), 0o600))
	wh := &fakeWarehouse{}

	summary, err := newServiceIn(t, dir, ServiceParams{Warehouse: wh}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Tables, 7)
	assert.Zero(t, wh.tables[web.TableName].Len())
	assert.Equal(t, 100, wh.tables[crm.TableName].Len())

	crmUsers := map[any]struct{}{}
	for _, v := range wh.tables[crm.TableName].Values("user_email_sha256") {
		crmUsers[v] = struct{}{}
	}
	buyers := map[any]struct{}{}
	for _, v := range wh.tables[sales.TransactionsTable].Values("user_email_sha256") {
		if _, ok := crmUsers[v]; ok {
			buyers[v] = struct{}{}
		}
	}
	assert.Len(t, buyers, 80)
}

func TestRunSingleSelectionCategories(t *testing.T) {
	wh := &fakeWarehouse{}
	svc := newService(t, ServiceParams{Warehouse: wh})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	segments := wh.tables[providers.SegmentsTable]
	category := map[any]any{}
	for _, row := range segments.Rows {
		category[row[0]] = row[2]
	}

	provIDs := wh.tables[providers.ProvidersTable].Values("id")
	assert.Equal(t, []any{10, 2}, provIDs)

	type key struct{ user, provider any }
	ageCounts := map[key]int{}
	mapping := wh.tables[providers.UserSegmentsMap]
	provIdx := mapping.ColumnIndex("data_provider_id")
	segIdx := mapping.ColumnIndex("data_provider_segment_id")
	userIdx := mapping.ColumnIndex("user_email_sha256")
	for _, row := range mapping.Rows {
		if category[row[segIdx]] == "Age" {
			ageCounts[key{row[userIdx], row[provIdx]}]++
		}
	}
	for k, n := range ageCounts {
		assert.LessOrEqual(t, n, 1, "identity %v has %d Age segments", k, n)
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	first := &fakeWarehouse{}
	second := &fakeWarehouse{}
	_, err := newService(t, ServiceParams{Warehouse: first, Seed: 11, Parallelism: 1}).Run(context.Background())
	require.NoError(t, err)
	_, err = newService(t, ServiceParams{Warehouse: second, Seed: 11, Parallelism: 4}).Run(context.Background())
	require.NoError(t, err)

	for name, table := range first.tables {
		assert.Equal(t, table.Rows, second.tables[name].Rows, name)
	}
}

func TestRunUploadsBeforeLoading(t *testing.T) {
	uploader := &fakeUploader{}
	notifier := &fakeNotifier{}
	svc := newService(t, ServiceParams{
		Warehouse:  &fakeWarehouse{},
		Uploader:   uploader,
		ObjectName: func(name string) string { return "exports/" + name },
		Notifier:   notifier,
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, uploader.objects, 7)
	assert.Equal(t, "exports/crm_users.csv.gz", uploader.objects[0])
	assert.Equal(t, "gs://bucket/exports/crm_users.csv.gz", summary.Tables[0].URI)
	assert.Equal(t, "gs://bucket/exports/crm_users.csv.gz", notifier.events[0].URI)
}

func TestRunAbortsOnLoadFailure(t *testing.T) {
	wh := &fakeWarehouse{failOn: sales.TransactionsTable}
	svc := newService(t, ServiceParams{Warehouse: wh})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, []string{crm.TableName}, wh.order)
}

func TestRunNotifyFailureDoesNotAbort(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("pubsub down")}
	svc := newService(t, ServiceParams{Warehouse: &fakeWarehouse{}, Notifier: notifier})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Tables, 7)
}

func TestRunMissingConfig(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		ConfigPath: "missing.yaml",
		ConfigDir:  t.TempDir(),
		OutputDir:  t.TempDir(),
	})
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfig))
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Logger: logger.Nop(), OutputDir: "out"})
	require.Error(t, err)
}
