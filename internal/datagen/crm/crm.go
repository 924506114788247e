// Package crm generates the CRM_USERS table.
package crm

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/angelmondragon/symmetri/internal/datagen/batch"
	"github.com/angelmondragon/symmetri/internal/datagen/config"
	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	"github.com/angelmondragon/symmetri/internal/datagen/sampling"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	TableName = "CRM_USERS"

	stream uint64 = 1 << 20

	loyaltyBetaAlpha = 2
	loyaltyBetaBeta  = 5
	maxEngagement    = 10
)

type Generator struct {
	cfg  config.CRM
	opts batch.Options

	tiers       *sampling.WeightedChoice[string]
	genders     *sampling.WeightedChoice[string]
	countries   *sampling.WeightedChoice[string]
	consent     *sampling.WeightedChoice[string]
	boolConsent bool
}

// New validates the categorical tables up front so a bad document fails
// before any rows are drawn.
func New(cfg config.CRM, opts batch.Options) (*Generator, error) {
	g := &Generator{cfg: cfg, opts: opts.Normalize()}

	tables := []struct {
		name    string
		weights config.Weights
		dst     **sampling.WeightedChoice[string]
	}{
		{"crm.loyalty_tiers", cfg.LoyaltyTiers, &g.tiers},
		{"crm.genders", cfg.Genders, &g.genders},
		{"crm.countries", cfg.Countries, &g.countries},
		{"crm.marketing_consent_weights", cfg.MarketingConsentWeights, &g.consent},
	}
	for _, table := range tables {
		choice, err := sampling.WeightedLabels(table.weights)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, table.name)
		}
		*table.dst = choice
	}

	for _, tier := range cfg.LoyaltyTiers.Keys() {
		if _, ok := cfg.LoyaltyPointsRanges[tier]; !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeConfig, "crm.loyalty_points_ranges: missing range for tier %q", tier)
		}
	}

	g.boolConsent = true
	for _, label := range cfg.MarketingConsentWeights.Keys() {
		if _, err := strconv.ParseBool(label); err != nil {
			g.boolConsent = false
			break
		}
	}
	return g, nil
}

func (g *Generator) columns() []dataset.Column {
	consentType := dataset.String
	if g.boolConsent {
		consentType = dataset.Boolean
	}
	return []dataset.Column{
		{Name: "user_email_sha256", Type: dataset.String},
		{Name: "registration_date", Type: dataset.Timestamp},
		{Name: "first_name", Type: dataset.String},
		{Name: "last_name", Type: dataset.String},
		{Name: "birth_date", Type: dataset.Date},
		{Name: "gender", Type: dataset.String},
		{Name: "country", Type: dataset.String},
		{Name: "city", Type: dataset.String},
		{Name: "postal_code", Type: dataset.String},
		{Name: "marketing_consent", Type: consentType},
		{Name: "loyalty_tier", Type: dataset.String},
		{Name: "loyalty_points", Type: dataset.Integer},
		{Name: "email_engagement_score", Type: dataset.Float},
		{Name: "last_login_date", Type: dataset.Timestamp},
	}
}

// Generate emits one row per CRM identity in pool order.
func (g *Generator) Generate(ctx context.Context, users []string) (*dataset.Table, error) {
	table := dataset.New(TableName, g.columns()...)

	spans := batch.Spans(len(users), g.opts.Size)
	chunks, err := batch.Run(ctx, spans, g.opts.Parallelism, func(_ context.Context, s batch.Span) ([][]any, error) {
		return g.rows(sampling.NewRand(g.opts.Seed, stream+uint64(s.Index)), users[s.Start:s.End]), nil
	})
	if err != nil {
		return nil, err
	}
	for _, rows := range chunks {
		table.Rows = append(table.Rows, rows...)
	}
	return table, nil
}

func (g *Generator) rows(r *rand.Rand, users []string) [][]any {
	faker := sampling.NewFaker(r)
	now := g.opts.Now
	out := make([][]any, 0, len(users))

	for _, user := range users {
		registered := sampling.RegistrationDate(r, now)
		tier := g.tiers.Pick(r)
		gender := g.genders.Pick(r)
		country := g.countries.Pick(r)
		consent := g.consent.Pick(r)
		// Loyalty points lean towards the bottom of the tier range.
		shape := sampling.Beta(r, loyaltyBetaAlpha, loyaltyBetaBeta)

		span := g.cfg.LoyaltyPointsRanges[tier]
		points := int(float64(span.Min) + float64(span.Max-span.Min)*shape)

		var consentValue any = consent
		if g.boolConsent {
			consentValue, _ = strconv.ParseBool(consent)
		}

		out = append(out, []any{
			user,
			registered,
			faker.FirstName(),
			faker.LastName(),
			sampling.BirthDate(r, now),
			gender,
			country,
			faker.City(),
			faker.Zip(),
			consentValue,
			tier,
			points,
			sampling.Round2(sampling.Uniform(r, 0, maxEngagement)),
			sampling.DateBetween(r, registered, now),
		})
	}
	return out
}
