// Package batch splits a population into fixed-size batches and runs a
// function over them, optionally in parallel, returning results in batch
// order.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultSize bounds the rows held per batch.
const DefaultSize = 10_000

// Options are shared by every generator run.
type Options struct {
	Seed        uint64
	Now         time.Time
	Parallelism int
	Size        int
}

// Normalize fills zero values: the current UTC time, one worker and
// DefaultSize rows per batch.
func (o Options) Normalize() Options {
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	return o
}

// Span is the half-open range [Start, End) of one batch.
type Span struct {
	Index int
	Start int
	End   int
}

// Spans cuts n items into batches of size.
func Spans(n, size int) []Span {
	if size <= 0 {
		size = DefaultSize
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for start, idx := 0, 0; start < n; start, idx = start+size, idx+1 {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Index: idx, Start: start, End: end})
	}
	return spans
}

// Run calls fn once per span with at most parallelism calls in flight. The
// first error cancels the remaining batches.
func Run[R any](ctx context.Context, spans []Span, parallelism int, fn func(ctx context.Context, s Span) (R, error)) ([]R, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	results := make([]R, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, span := range spans {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := fn(gctx, span)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
