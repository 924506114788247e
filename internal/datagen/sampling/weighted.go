package sampling

import (
	"math/rand/v2"
	"sort"

	"github.com/angelmondragon/symmetri/internal/datagen/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

// WeightedChoice draws items with probability proportional to their weight.
type WeightedChoice[T any] struct {
	items      []T
	cumulative []float64
}

// NewWeightedChoice normalizes weights so they need not sum to exactly 1.
func NewWeightedChoice[T any](items []T, weights []float64) (*WeightedChoice[T], error) {
	if len(items) == 0 || len(items) != len(weights) {
		return nil, pkgerrors.Newf(pkgerrors.CodeConfig, "weighted choice needs one weight per item: %d items, %d weights", len(items), len(weights))
	}

	total := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, "weighted choice: negative weight")
		}
		total += w
	}
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "weighted choice: weights sum to zero")
	}

	cumulative := make([]float64, len(weights))
	running := 0.0
	for i, w := range weights {
		running += w / total
		cumulative[i] = running
	}
	cumulative[len(cumulative)-1] = 1

	return &WeightedChoice[T]{items: append([]T(nil), items...), cumulative: cumulative}, nil
}

// WeightedLabels builds a choice over the labels of a configured table,
// preserving document order.
func WeightedLabels(w config.Weights) (*WeightedChoice[string], error) {
	return NewWeightedChoice(w.Keys(), w.Values())
}

func (c *WeightedChoice[T]) Pick(r *rand.Rand) T {
	u := r.Float64()
	i := sort.SearchFloat64s(c.cumulative, u)
	if i >= len(c.items) {
		i = len(c.items) - 1
	}
	// SearchFloat64s returns the first index with cumulative >= u; skip
	// zero-weight items sitting on the same boundary.
	for i < len(c.items)-1 && c.cumulative[i] <= u {
		i++
	}
	return c.items[i]
}

func (c *WeightedChoice[T]) Items() []T {
	return append([]T(nil), c.items...)
}
