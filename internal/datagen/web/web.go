// Package web generates the WEBSITE_EVENTS table.
package web

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/angelmondragon/symmetri/internal/datagen/batch"
	"github.com/angelmondragon/symmetri/internal/datagen/config"
	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	"github.com/angelmondragon/symmetri/internal/datagen/sampling"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

const (
	TableName = "WEBSITE_EVENTS"

	stream uint64 = 2 << 20

	meanEventsPerUser     = 10
	sessionChangeProb     = 0.2
	primaryWebsiteProb    = 0.8
	sameSiteReferrerProb  = 0.7
	eventWindowDays       = 90
	fallbackPagesPerSite  = 100
	longReadScaleSeconds  = 120
	shortReadScaleSeconds = 45
	checkoutMeanSeconds   = 60
	checkoutStdDevSeconds = 20
)

var columns = []dataset.Column{
	{Name: "event_id", Type: dataset.Integer},
	{Name: "user_email_sha256", Type: dataset.String},
	{Name: "event_timestamp", Type: dataset.Timestamp},
	{Name: "website_name", Type: dataset.String},
	{Name: "page_url", Type: dataset.String},
	{Name: "page_category", Type: dataset.String},
	{Name: "event_type", Type: dataset.String},
	{Name: "session_id", Type: dataset.String},
	{Name: "referrer_url", Type: dataset.String},
	{Name: "device_type", Type: dataset.String},
	{Name: "browser", Type: dataset.String},
	{Name: "time_on_page", Type: dataset.Integer},
}

type Generator struct {
	cfg  config.Website
	opts batch.Options
	logg *logger.Logger

	devices   []string
	browsers  []string
	referrers []string
	events    map[string]*sampling.WeightedChoice[string]
}

func New(cfg config.Website, opts batch.Options, logg *logger.Logger) (*Generator, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	g := &Generator{
		cfg:       cfg,
		opts:      opts.Normalize(),
		logg:      logg,
		devices:   orDefault(cfg.DeviceTypes, "desktop"),
		browsers:  orDefault(cfg.Browsers, "Chrome"),
		referrers: orDefault(cfg.ReferrerURLs, ""),
		events:    make(map[string]*sampling.WeightedChoice[string], len(cfg.PageCategories)),
	}
	if !g.hasSites() {
		return g, nil
	}
	if len(cfg.PageCategories) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "website.page_categories must not be empty")
	}

	for _, category := range cfg.PageCategories {
		choice, err := g.eventChoice(category)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("website.event_weights.%s", category))
		}
		g.events[category] = choice
	}
	return g, nil
}

// Generate emits the events of every website identity. It returns an empty
// table when no website names or page URLs are configured; page categories
// are only required when there are sites to generate for.
func (g *Generator) Generate(ctx context.Context, users []string) (*dataset.Table, error) {
	table := dataset.New(TableName, columns...)
	if !g.hasSites() {
		g.logg.Warn(ctx, "datagen.web.skipped: website names or page urls not configured")
		return table, nil
	}

	spans := batch.Spans(len(users), g.opts.Size)
	chunks, err := batch.Run(ctx, spans, g.opts.Parallelism, func(_ context.Context, s batch.Span) ([][]any, error) {
		r := sampling.NewRand(g.opts.Seed, stream+uint64(s.Index))
		return g.rows(r, users[s.Start:s.End], s.Index == 0), nil
	})
	if err != nil {
		return nil, err
	}

	eventID := 1
	for _, rows := range chunks {
		for _, row := range rows {
			row[0] = eventID
			eventID++
		}
		table.Rows = append(table.Rows, rows...)
	}
	return table, nil
}

func (g *Generator) rows(r *rand.Rand, users []string, firstBatch bool) [][]any {
	now := g.opts.Now
	windowStart := now.Add(-eventWindowDays * 24 * time.Hour)
	single := len(g.cfg.Names) == 1
	first := firstBatch

	var out [][]any
	for _, user := range users {
		events := max(1, sampling.Poisson(r, meanEventsPerUser))
		session := sampling.UUID(r)

		primary := g.cfg.Names[0]
		var alternates []string
		if !single {
			primary = sampling.Choice(r, g.cfg.Names)
			for _, name := range g.cfg.Names {
				if name != primary {
					alternates = append(alternates, name)
				}
			}
		}

		for range events {
			site := primary
			if !single && len(alternates) > 0 && r.Float64() >= primaryWebsiteProb {
				site = sampling.Choice(r, alternates)
			}

			siteURLs, _ := g.cfg.PageURLs.Get(site)
			var page string
			if len(siteURLs) > 0 {
				page = sampling.Choice(r, siteURLs)
			} else {
				page = fmt.Sprintf("https://%s/page-%d", site, sampling.IntBetween(r, 1, fallbackPagesPerSite))
			}

			category := g.categoryFor(r, page)
			choice, ok := g.events[category]
			if !ok {
				choice = g.events[g.cfg.PageCategories[0]]
			}
			eventType := choice.Pick(r)
			timestamp := sampling.DateBetween(r, windowStart, now)

			referrer := sampling.Choice(r, g.referrers)
			if referrer == "" && r.Float64() < sameSiteReferrerProb && !first && len(siteURLs) > 1 {
				var candidates []string
				for _, u := range siteURLs {
					if u != page {
						candidates = append(candidates, u)
					}
				}
				if len(candidates) > 0 {
					referrer = sampling.Choice(r, candidates)
				}
			}

			timeOnPage := g.timeOnPage(r, category)

			out = append(out, []any{
				0,
				user,
				timestamp,
				site,
				page,
				category,
				eventType,
				session,
				referrer,
				sampling.Choice(r, g.devices),
				sampling.Choice(r, g.browsers),
				timeOnPage,
			})

			first = false
			if r.Float64() < sessionChangeProb {
				session = sampling.UUID(r)
			}
		}
	}
	return out
}

func (g *Generator) hasSites() bool {
	return len(g.cfg.Names) > 0 && g.cfg.PageURLs.Len() > 0
}

// categoryFor matches url against the configured substring patterns in
// document order and falls back to a random page category.
func (g *Generator) categoryFor(r *rand.Rand, url string) string {
	for _, pattern := range g.cfg.URLCategoryPatterns.Keys() {
		if strings.Contains(url, pattern) {
			category, _ := g.cfg.URLCategoryPatterns.Get(pattern)
			return category
		}
	}
	return sampling.Choice(r, g.cfg.PageCategories)
}

func (g *Generator) timeOnPage(r *rand.Rand, category string) int {
	switch {
	case containsAny(category, "Tips", "Tutorial", "Product"):
		return int(sampling.Exponential(r, longReadScaleSeconds))
	case containsAny(category, "Checkout", "Cart"):
		return max(0, int(sampling.Normal(r, checkoutMeanSeconds, checkoutStdDevSeconds)))
	default:
		return int(sampling.Exponential(r, shortReadScaleSeconds))
	}
}

func (g *Generator) eventChoice(category string) (*sampling.WeightedChoice[string], error) {
	weights, ok := g.cfg.EventWeights.Get(category)
	if !ok || weights.Len() == 0 {
		weights = builtinWeights(category)
	}

	declared := make(map[string]struct{}, len(g.cfg.EventTypes))
	for _, et := range g.cfg.EventTypes {
		declared[et] = struct{}{}
	}

	var types []string
	var values []float64
	for _, et := range weights.Keys() {
		if _, ok := declared[et]; ok {
			w, _ := weights.Get(et)
			types = append(types, et)
			values = append(values, w)
		}
	}
	if len(types) == 0 {
		types, values = weights.Keys(), weights.Values()
	}

	total := 0.0
	for _, w := range values {
		total += w
	}
	if total <= 0 {
		for i := range values {
			values[i] = 1
		}
	}
	return sampling.NewWeightedChoice(types, values)
}

func builtinWeights(category string) config.Weights {
	var w config.Weights
	set := func(pairs ...any) config.Weights {
		for i := 0; i < len(pairs); i += 2 {
			w.Set(pairs[i].(string), pairs[i+1].(float64))
		}
		return w
	}

	switch {
	case category == "Product Pages":
		return set(
			"page_view", 0.3,
			"product_view", 0.25,
			"add_to_cart", 0.15,
			"click", 0.1,
			"wishlist_add", 0.1,
			"product_comparison", 0.05,
			"scroll", 0.05,
		)
	case containsAny(category, "Checkout", "Cart"):
		return set(
			"page_view", 0.25,
			"form_submit", 0.25,
			"purchase", 0.2,
			"click", 0.15,
			"remove_from_cart", 0.1,
			"scroll", 0.05,
		)
	default:
		return set(
			"page_view", 0.4,
			"click", 0.25,
			"scroll", 0.15,
			"search", 0.1,
			"form_submit", 0.05,
			"login", 0.05,
		)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orDefault(values []string, fallback string) []string {
	if len(values) == 0 {
		return []string{fallback}
	}
	return values
}
