package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpans(t *testing.T) {
	spans := Spans(25, 10)
	require.Len(t, spans, 3)
	assert.Equal(t, Span{Index: 2, Start: 20, End: 25}, spans[2])
	assert.Empty(t, Spans(0, 10))
	assert.Len(t, Spans(DefaultSize+1, 0), 2)
}

func TestRun_PreservesOrder(t *testing.T) {
	spans := Spans(1000, 7)
	out, err := Run(context.Background(), spans, 8, func(_ context.Context, s Span) (int, error) {
		return s.Start, nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*7, v)
	}
}

func TestRun_StopsOnError(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	_, err := Run(context.Background(), Spans(100, 1), 1, func(_ context.Context, s Span) (struct{}, error) {
		calls.Add(1)
		if s.Index == 3 {
			return struct{}{}, boom
		}
		return struct{}{}, nil
	})
	require.ErrorIs(t, err, boom)
	assert.Less(t, calls.Load(), int32(100))
}
