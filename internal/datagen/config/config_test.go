package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

const baseConfig = `
user_counts:
  total_crm_users: 100
website:
  names: [shop.example.com]
  page_categories: [Home, Product Pages]
  common_event_types: [page_view, click]
crm:
  loyalty_tiers:
    Bronze: 0.7
    Gold: 0.3
  loyalty_points_ranges:
    Bronze: {min: 0, max: 100}
    Gold: {min: 500, max: 1000}
  countries:
    US: 1.0
sales:
  currencies: [USD]
data_providers:
  common_segments:
    Demographics:
      Age: ["18-24", "25-34"]
`

func TestLoad_ImportsAndDirectives(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common/base.yaml", baseConfig)
	writeFile(t, dir, "retail.yaml", `
imports: [common/base.yaml]
user_counts:
  total_website_events_users: 50
website:
  additional_event_types: [purchase, click]
  page_categories: [Checkout]
crm:
  countries_subset:
    CA: 1.0
sales:
  currencies_override: [CAD]
data_providers:
  segment_structure:
    Demographics:
      Income: ["<50k"]
    Interests:
      Sports: [Running]
`)

	doc, err := Load("retail.yaml", dir)
	require.NoError(t, err)

	assert.Equal(t, 100, doc.UserCounts.TotalCRMUsers)
	assert.Equal(t, 50, doc.UserCounts.TotalWebsiteEventsUsers)
	assert.Equal(t, 1_000_000, doc.UserCounts.TotalDataProviderUsers)
	assert.Equal(t, []string{"Home", "Product Pages", "Checkout"}, doc.Website.PageCategories)
	assert.Equal(t, []string{"page_view", "click", "purchase", "click"}, doc.Website.EventTypes)
	assert.Equal(t, []string{"CA"}, doc.CRM.Countries.Keys())
	assert.Equal(t, []string{"Bronze", "Gold"}, doc.CRM.LoyaltyTiers.Keys())
	assert.Equal(t, []string{"CAD"}, doc.Sales.Currencies)
	assert.Len(t, doc.Sales.StoreIDs, 50)
	assert.Equal(t, "ST001", doc.Sales.StoreIDs[0])

	assert.Equal(t, []string{"Demographics", "Interests"}, doc.DataProviders.SegmentStructure.Keys())
	demo, ok := doc.DataProviders.SegmentStructure.Get("Demographics")
	require.True(t, ok)
	assert.Equal(t, []string{"Age", "Income"}, demo.Keys())
}

func TestLoad_ReferrerDirective(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "web.yaml", `
website:
  common_referrers:
    search: ["https://google.com", "https://bing.com"]
    social: ["https://facebook.com"]
  additional_referrers: [""]
`)

	doc, err := Load("web.yaml", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://google.com", "https://bing.com", "https://facebook.com", ""}, doc.Website.ReferrerURLs)
}

func TestLoad_DirectivesNeedBothHalves(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "partial.yaml", `
website:
  event_types: [page_view]
  common_event_types: [click]
`)

	doc, err := Load("partial.yaml", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"page_view"}, doc.Website.EventTypes)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.yaml", "")

	doc, err := Load("empty.yaml", dir)
	require.NoError(t, err)
	assert.Equal(t, 500_000, doc.UserCounts.TotalCRMUsers)
	assert.Equal(t, []string{"Demographics", "Age", "Gender", "Income"}, doc.DataProviders.SingleSelectionCategories)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "list.yaml", "- a\n- b\n")
	writeFile(t, dir, "weights.yaml", "crm:\n  genders:\n    M: 0.5\n    F: 0.2\n")
	writeFile(t, dir, "range.yaml", "crm:\n  loyalty_tiers:\n    Gold: 1.0\n")
	writeFile(t, dir, "pct.yaml", "user_counts:\n  website_users_in_crm_percentage: 1.5\n")
	writeFile(t, dir, "badimport.yaml", "imports: [nope.yaml]\n")
	writeFile(t, dir, "dupprovider.yaml", "data_providers:\n  providers:\n    - {name: A}\n    - {id: 1, name: B}\n")

	for _, name := range []string{"missing.yaml", "list.yaml", "weights.yaml", "range.yaml", "pct.yaml", "badimport.yaml", "dupprovider.yaml"} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(name, dir)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfig))
		})
	}
}

func TestLoader_CachesResolvedDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "user_counts:\n  total_crm_users: 7\n")

	loader := NewLoader(dir)
	first, err := loader.Load("a.yaml")
	require.NoError(t, err)

	writeFile(t, dir, "a.yaml", "user_counts:\n  total_crm_users: 9\n")
	second, err := loader.Load("a.yaml")
	require.NoError(t, err)

	assert.Equal(t, 7, first.UserCounts.TotalCRMUsers)
	assert.Equal(t, 7, second.UserCounts.TotalCRMUsers)
	assert.NotSame(t, first, second)
}

func TestMergeNodes_ListsAppendMissingOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "sales:\n  channels: [online, store]\n")
	writeFile(t, dir, "child.yaml", "imports: [base.yaml]\nsales:\n  channels: [store, phone, phone]\n")

	doc, err := Load("child.yaml", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"online", "store", "phone", "phone"}, doc.Sales.Channels)
}

func TestOrdered_PreservesDocumentOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "o.yaml", "crm:\n  genders:\n    Z: 0.1\n    A: 0.4\n    M: 0.5\n")

	doc, err := Load("o.yaml", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z", "A", "M"}, doc.CRM.Genders.Keys())
	p, ok := doc.CRM.Genders.Get("A")
	require.True(t, ok)
	assert.InDelta(t, 0.4, p, 1e-9)
}

func TestShippedConfigLoads(t *testing.T) {
	doc, err := Load("config.yaml", filepath.Join("..", "..", "..", "config"))
	require.NoError(t, err)

	assert.Equal(t, 5000, doc.UserCounts.TotalCRMUsers)
	assert.Contains(t, doc.Website.EventTypes, "purchase")
	assert.Contains(t, doc.Website.ReferrerURLs, "https://www.google.com")
	assert.Equal(t, 4, doc.CRM.LoyaltyTiers.Len())
	assert.Len(t, doc.Sales.StoreIDs, 50)

	segments := doc.DataProviders.SegmentStructure.Keys()
	assert.Equal(t, "Demographics", segments[0])
}

func TestValidate_ProviderIDs(t *testing.T) {
	doc := Default()
	doc.DataProviders.Providers = []Provider{{Name: "A"}, {ID: 1, Name: "B"}}
	err := doc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id 1 already used by providers[0]")

	doc.DataProviders.Providers = []Provider{{Name: "A"}, {ID: 10, Name: "B"}, {Name: "C"}}
	require.NoError(t, doc.Validate())
	assert.Equal(t, 3, doc.DataProviders.Providers[2].ResolvedID(3))
}
