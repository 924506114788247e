package config

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const weightTolerance = 1e-6

var validate = validator.New()

// Document is the generator configuration after imports and directives
// have been resolved.
type Document struct {
	UserCounts    UserCounts    `yaml:"user_counts"`
	Website       Website       `yaml:"website"`
	CRM           CRM           `yaml:"crm"`
	Products      Products      `yaml:"products"`
	Sales         Sales         `yaml:"sales"`
	DataProviders DataProviders `yaml:"data_providers"`
}

type UserCounts struct {
	TotalCRMUsers                          int     `yaml:"total_crm_users" validate:"gte=0"`
	CRMUsersWithTransactionsPercentage     float64 `yaml:"crm_users_with_transactions_percentage" validate:"gte=0,lte=1"`
	TotalWebsiteEventsUsers                int     `yaml:"total_website_events_users" validate:"gte=0"`
	WebsiteUsersWithTransactionsPercentage float64 `yaml:"website_users_with_transactions_percentage" validate:"gte=0,lte=1"`
	WebsiteUsersInCRMPercentage            float64 `yaml:"website_users_in_crm_percentage" validate:"gte=0,lte=1"`
	TotalDataProviderUsers                 int     `yaml:"total_data_provider_users" validate:"gte=0"`
	DataProviderUsersInWebsitePercentage   float64 `yaml:"data_provider_users_in_website_percentage" validate:"gte=0,lte=1"`
	DataProviderUsersInCRMPercentage       float64 `yaml:"data_provider_users_in_crm_percentage" validate:"gte=0,lte=1"`
}

type Website struct {
	Names               []string          `yaml:"names"`
	PageCategories      []string          `yaml:"page_categories"`
	PageURLs            Ordered[[]string] `yaml:"page_urls"`
	EventTypes          []string          `yaml:"event_types"`
	DeviceTypes         []string          `yaml:"device_types"`
	Browsers            []string          `yaml:"browsers"`
	ReferrerURLs        []string          `yaml:"referrer_urls"`
	URLCategoryPatterns Ordered[string]   `yaml:"url_category_patterns"`
	EventWeights        Ordered[Weights]  `yaml:"event_weights"`
}

type PointsRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type CRM struct {
	LoyaltyTiers            Weights                `yaml:"loyalty_tiers"`
	LoyaltyPointsRanges     map[string]PointsRange `yaml:"loyalty_points_ranges"`
	Genders                 Weights                `yaml:"genders"`
	Countries               Weights                `yaml:"countries"`
	MarketingConsentWeights Weights                `yaml:"marketing_consent_weights"`
}

// Taxonomy is a two-level category -> type -> values tree.
type Taxonomy = Ordered[Ordered[[]string]]

type Products struct {
	Structure Taxonomy          `yaml:"structure"`
	Brands    Ordered[[]string] `yaml:"brands"`
}

type Sales struct {
	PaymentMethods []string `yaml:"payment_methods"`
	Currencies     []string `yaml:"currencies"`
	Channels       []string `yaml:"channels"`
	StoreIDs       []string `yaml:"store_ids"`
}

// Provider is a configured third-party data provider. A zero ID means the
// provider takes its 1-based position in the list.
type Provider struct {
	ID   int    `yaml:"id" validate:"gte=0"`
	Name string `yaml:"name"`
}

// ResolvedID is the provider id, or pos (1-based) when the id is unset.
func (p Provider) ResolvedID(pos int) int {
	if p.ID == 0 {
		return pos
	}
	return p.ID
}

type DataProviders struct {
	Providers                 []Provider `yaml:"providers" validate:"dive"`
	SegmentStructure          Taxonomy   `yaml:"segment_structure"`
	SingleSelectionCategories []string   `yaml:"single_selection_categories"`
}

// Default returns a document carrying the documented defaults.
func Default() *Document {
	return &Document{
		UserCounts: UserCounts{
			TotalCRMUsers:                          500_000,
			CRMUsersWithTransactionsPercentage:     0.80,
			TotalWebsiteEventsUsers:                800_000,
			WebsiteUsersWithTransactionsPercentage: 0.30,
			WebsiteUsersInCRMPercentage:            0.50,
			TotalDataProviderUsers:                 1_000_000,
			DataProviderUsersInWebsitePercentage:   0.20,
			DataProviderUsersInCRMPercentage:       0.35,
		},
		DataProviders: DataProviders{
			SingleSelectionCategories: []string{"Demographics", "Age", "Gender", "Income"},
		},
	}
}

// DefaultStoreIDs returns ST001 through ST050.
func DefaultStoreIDs() []string {
	ids := make([]string, 0, 50)
	for i := 1; i <= 50; i++ {
		ids = append(ids, fmt.Sprintf("ST%03d", i))
	}
	return ids
}

func (d *Document) applyDefaults() {
	if len(d.Sales.StoreIDs) == 0 {
		d.Sales.StoreIDs = DefaultStoreIDs()
	}
}

// Validate checks ranges and the internal consistency of weight tables.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConfig, err, "invalid generator config")
	}

	var errs error
	tables := []struct {
		name    string
		weights Weights
	}{
		{"crm.loyalty_tiers", d.CRM.LoyaltyTiers},
		{"crm.genders", d.CRM.Genders},
		{"crm.countries", d.CRM.Countries},
		{"crm.marketing_consent_weights", d.CRM.MarketingConsentWeights},
	}
	for _, table := range tables {
		errs = multierr.Append(errs, checkWeights(table.name, table.weights))
	}

	for _, tier := range d.CRM.LoyaltyTiers.Keys() {
		r, ok := d.CRM.LoyaltyPointsRanges[tier]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("crm.loyalty_points_ranges: missing range for tier %q", tier))
			continue
		}
		if r.Min > r.Max {
			errs = multierr.Append(errs, fmt.Errorf("crm.loyalty_points_ranges.%s: min %d exceeds max %d", tier, r.Min, r.Max))
		}
	}

	errs = multierr.Append(errs, checkTaxonomy("products.structure", d.Products.Structure))

	seen := make(map[int]int, len(d.DataProviders.Providers))
	for i, p := range d.DataProviders.Providers {
		id := p.ResolvedID(i + 1)
		if prev, ok := seen[id]; ok {
			errs = multierr.Append(errs, fmt.Errorf("data_providers.providers[%d]: id %d already used by providers[%d]", i, id, prev))
			continue
		}
		seen[id] = i
	}

	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConfig, errs, "invalid generator config")
	}
	return nil
}

func checkWeights(name string, w Weights) error {
	if w.Len() == 0 {
		return nil
	}
	sum := 0.0
	for _, label := range w.Keys() {
		p, _ := w.Get(label)
		if p < 0 {
			return fmt.Errorf("%s.%s: negative weight %v", name, label, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%s: weights sum to %v, expected 1", name, sum)
	}
	return nil
}

func checkTaxonomy(name string, t Taxonomy) error {
	var errs error
	for _, category := range t.Keys() {
		subs, _ := t.Get(category)
		if subs.Len() == 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s.%s: no sub categories", name, category))
			continue
		}
		for _, sub := range subs.Keys() {
			if types, _ := subs.Get(sub); len(types) == 0 {
				errs = multierr.Append(errs, fmt.Errorf("%s.%s.%s: no types", name, category, sub))
			}
		}
	}
	return errs
}
