package demux

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("add and get", func(t *testing.T) {
		c := NewCache()
		pres := &Presentation{MovieTimescale: 1}

		_, exist := c.Get("a")
		require.False(t, exist)

		c.Add("a", pres)
		got, exist := c.Get("a")
		require.True(t, exist)
		require.Same(t, pres, got)
	})

	t.Run("duplicate keys ignored", func(t *testing.T) {
		c := NewCache()
		first := &Presentation{MovieTimescale: 1}
		c.Add("a", first)
		c.Add("a", &Presentation{MovieTimescale: 2})

		got, _ := c.Get("a")
		require.Same(t, first, got)
	})

	t.Run("oldest item evicted", func(t *testing.T) {
		c := NewCache()
		for i := 0; i < cacheSize; i++ {
			c.Add(fmt.Sprint(i), &Presentation{})
		}

		// Touch "0" so "1" becomes the oldest.
		_, exist := c.Get("0")
		require.True(t, exist)

		c.Add("new", &Presentation{})

		_, exist = c.Get("0")
		require.True(t, exist)
		_, exist = c.Get("1")
		require.False(t, exist)
		_, exist = c.Get("new")
		require.True(t, exist)
	})
}

func TestParseFileCached(t *testing.T) {
	buf, _ := classicTestFile()
	path := filepath.Join(t.TempDir(), "test.mp4")
	require.NoError(t, os.WriteFile(path, buf, 0o600))

	cache := NewCache()
	first, err := ParseFileCached(path, cache)
	require.NoError(t, err)

	// The second probe must hit the cache.
	second, err := ParseFileCached(path, cache)
	require.NoError(t, err)
	require.Same(t, first, second)

	// A nil cache parses every time.
	third, err := ParseFileCached(path, nil)
	require.NoError(t, err)
	require.NotSame(t, first, third)
}
