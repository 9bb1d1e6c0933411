package demux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSegments(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		require.Empty(t, buildSegments(nil))
	})

	t.Run("groups start at sync samples", func(t *testing.T) {
		samples := []Sample{
			{Index: 0, IsSync: true, PresTime: 0},
			{Index: 1, PresTime: 100},
			{Index: 2, PresTime: 200},
			{Index: 3, IsSync: true, PresTime: 300},
			{Index: 4, PresTime: 400},
		}
		segs := buildSegments(samples)
		require.Len(t, segs, 2)
		require.Equal(t, int64(0), segs[0].Start)
		require.Len(t, segs[0].Samples, 3)
		require.Equal(t, int64(300), segs[1].Start)
		require.Len(t, segs[1].Samples, 2)
	})

	t.Run("truncated leading group tolerated", func(t *testing.T) {
		samples := []Sample{
			{Index: 0, PresTime: 0},
			{Index: 1, PresTime: 100},
			{Index: 2, IsSync: true, PresTime: 200},
		}
		segs := buildSegments(samples)
		require.Len(t, segs, 2)
		require.Len(t, segs[0].Samples, 2)
		require.Len(t, segs[1].Samples, 1)
	})

	t.Run("no sync samples at all", func(t *testing.T) {
		samples := []Sample{
			{Index: 0, PresTime: 0},
			{Index: 1, PresTime: 100},
		}
		segs := buildSegments(samples)
		require.Len(t, segs, 1)
		require.Len(t, segs[0].Samples, 2)
	})
}
