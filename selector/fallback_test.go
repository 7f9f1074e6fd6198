package selector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixedRangesForLongSource(t *testing.T) {
	require := require.New(t)

	// midpoint of [25, 45] is 35 seconds
	ranges := FixedRanges(600, defaultParams())
	require.Len(ranges, 3)
	require.Equal(60.0, ranges[0].Start)
	require.Equal(270.0, ranges[1].Start)
	require.Equal(480.0, ranges[2].Start)
	for _, r := range ranges {
		require.Equal(35.0, r.Duration())
		require.Equal(MethodFallback, r.Method)
	}
}

func TestFixedRangesClippedToShortSource(t *testing.T) {
	require := require.New(t)

	// A 50 second source cannot hold three non-overlapping 35s ranges; the
	// clipped duplicates are dropped.
	ranges := FixedRanges(50, defaultParams())
	require.NotEmpty(ranges)
	for i, r := range ranges {
		require.GreaterOrEqual(r.Start, 0.0)
		require.LessOrEqual(r.End, 50.0)
		if i > 0 {
			require.GreaterOrEqual(r.Start, ranges[i-1].End)
		}
	}
}

func TestFixedRangesZeroDuration(t *testing.T) {
	require.Empty(t, FixedRanges(0, defaultParams()))
}

func TestSelectEmptyTranscriptUsesFixedFallback(t *testing.T) {
	require := require.New(t)
	engine := &Engine{}

	ranges := engine.Select(context.Background(), "job-1", nil, 600, defaultParams())
	require.Len(ranges, 3)
	for _, r := range ranges {
		require.Equal(MethodFallback, r.Method)
	}
}
