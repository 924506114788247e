// Package providers generates the third-party data provider catalog, its
// segment taxonomy and the identity to segment membership map.
package providers

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/angelmondragon/symmetri/internal/datagen/batch"
	"github.com/angelmondragon/symmetri/internal/datagen/config"
	"github.com/angelmondragon/symmetri/internal/datagen/dataset"
	"github.com/angelmondragon/symmetri/internal/datagen/sampling"
)

const (
	ProvidersTable  = "DATA_PROVIDERS"
	SegmentsTable   = "DATA_PROVIDER_SEGMENTS"
	UserSegmentsMap = "DATA_PROVIDER_USER_SEGMENT_MAP"

	stream uint64 = 4 << 20

	fallbackProviders  = 3
	singleSelectionMax = 1
	multiSelectionMax  = 2
)

// DefaultSingleSelection caps these categories at one segment per identity
// and provider when the document does not name its own.
var DefaultSingleSelection = []string{"Demographics", "Age", "Gender", "Income"}

type Provider struct {
	ID   int
	Name string
}

type Segment struct {
	ID         int
	ProviderID int
	Category   string
	Type       string
	Name       string
}

type Generator struct {
	cfg  config.DataProviders
	opts batch.Options
}

func New(cfg config.DataProviders, opts batch.Options) *Generator {
	return &Generator{cfg: cfg, opts: opts.Normalize()}
}

// Providers returns the configured providers, or Provider 1..3 when none
// are configured. A provider without an id takes its 1-based position.
func (g *Generator) Providers() []Provider {
	if len(g.cfg.Providers) == 0 {
		out := make([]Provider, fallbackProviders)
		for i := range out {
			out[i] = Provider{ID: i + 1, Name: fmt.Sprintf("Provider %d", i+1)}
		}
		return out
	}

	out := make([]Provider, len(g.cfg.Providers))
	for i, p := range g.cfg.Providers {
		out[i] = Provider{ID: p.ResolvedID(i + 1), Name: p.Name}
	}
	return out
}

// Segments explodes the taxonomy once per provider with sequential ids
// starting at 1.
func (g *Generator) Segments(providers []Provider) []Segment {
	structure := g.cfg.SegmentStructure
	if structure.Len() == 0 {
		structure = fallbackStructure()
	}

	var out []Segment
	for _, p := range providers {
		for _, category := range structure.Keys() {
			types, _ := structure.Get(category)
			for _, segmentType := range types.Keys() {
				names, _ := types.Get(segmentType)
				for _, name := range names {
					out = append(out, Segment{
						ID:         len(out) + 1,
						ProviderID: p.ID,
						Category:   category,
						Type:       segmentType,
						Name:       name,
					})
				}
			}
		}
	}
	return out
}

func fallbackStructure() config.Taxonomy {
	var types config.Ordered[[]string]
	types.Set("Type1", []string{"Value1", "Value2", "Value3"})
	types.Set("Type2", []string{"ValueA", "ValueB", "ValueC"})

	var structure config.Taxonomy
	structure.Set("Generic", types)
	return structure
}

// catalog indexes segment ids by provider and category in first-seen order.
type catalog struct {
	providers  []int
	categories map[int][]categorySegments
}

type categorySegments struct {
	name string
	ids  []int
}

func newCatalog(segments []Segment) catalog {
	c := catalog{categories: make(map[int][]categorySegments)}
	for _, s := range segments {
		cats, ok := c.categories[s.ProviderID]
		if !ok {
			c.providers = append(c.providers, s.ProviderID)
		}
		found := false
		for i := range cats {
			if cats[i].name == s.Category {
				cats[i].ids = append(cats[i].ids, s.ID)
				found = true
				break
			}
		}
		if !found {
			cats = append(cats, categorySegments{name: s.Category, ids: []int{s.ID}})
		}
		c.categories[s.ProviderID] = cats
	}
	return c
}

// UserSegmentMap assigns every identity to a random non-empty subset of the
// providers that have segments, and for each of those to up to one segment
// per single-selection category and up to two per other category.
func (g *Generator) UserSegmentMap(ctx context.Context, users []string, segments []Segment) (*dataset.Table, error) {
	table := dataset.New(UserSegmentsMap,
		dataset.Column{Name: "data_provider_id", Type: dataset.Integer},
		dataset.Column{Name: "data_provider_segment_id", Type: dataset.Integer},
		dataset.Column{Name: "user_email_sha256", Type: dataset.String},
	)

	cat := newCatalog(segments)
	if len(cat.providers) == 0 {
		return table, nil
	}

	singles := g.cfg.SingleSelectionCategories
	if singles == nil {
		singles = DefaultSingleSelection
	}
	single := make(map[string]struct{}, len(singles))
	for _, name := range singles {
		single[name] = struct{}{}
	}

	spans := batch.Spans(len(users), g.opts.Size)
	chunks, err := batch.Run(ctx, spans, g.opts.Parallelism, func(_ context.Context, s batch.Span) ([][]any, error) {
		r := sampling.NewRand(g.opts.Seed, stream+uint64(s.Index))
		return assign(r, users[s.Start:s.End], cat, single)
	})
	if err != nil {
		return nil, err
	}
	for _, rows := range chunks {
		table.Rows = append(table.Rows, rows...)
	}
	return table, nil
}

func assign(r *rand.Rand, users []string, cat catalog, single map[string]struct{}) ([][]any, error) {
	var out [][]any
	for _, user := range users {
		chosen, err := sampling.Sample(r, cat.providers, sampling.IntBetween(r, 1, len(cat.providers)))
		if err != nil {
			return nil, err
		}
		for _, providerID := range chosen {
			for _, category := range cat.categories[providerID] {
				limit := multiSelectionMax
				if _, ok := single[category.name]; ok {
					limit = singleSelectionMax
				}
				picks := min(sampling.IntBetween(r, 0, limit), len(category.ids))
				if picks == 0 {
					continue
				}
				selected, err := sampling.Sample(r, category.ids, picks)
				if err != nil {
					return nil, err
				}
				for _, segmentID := range selected {
					out = append(out, []any{providerID, segmentID, user})
				}
			}
		}
	}
	return out, nil
}

// ProviderTable renders providers as the DATA_PROVIDERS table.
func ProviderTable(providers []Provider) *dataset.Table {
	table := dataset.New(ProvidersTable,
		dataset.Column{Name: "id", Type: dataset.Integer},
		dataset.Column{Name: "name", Type: dataset.String},
	)
	for _, p := range providers {
		table.Append(p.ID, p.Name)
	}
	return table
}

// SegmentTable renders segments as the DATA_PROVIDER_SEGMENTS table.
func SegmentTable(segments []Segment) *dataset.Table {
	table := dataset.New(SegmentsTable,
		dataset.Column{Name: "id", Type: dataset.Integer},
		dataset.Column{Name: "data_provider_id", Type: dataset.Integer},
		dataset.Column{Name: "segment_category", Type: dataset.String},
		dataset.Column{Name: "segment_type", Type: dataset.String},
		dataset.Column{Name: "segment_name", Type: dataset.String},
	)
	for _, s := range segments {
		table.Append(s.ID, s.ProviderID, s.Category, s.Type, s.Name)
	}
	return table
}
