package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDepsNormalization(t *testing.T) {
	base := HashDeps([]string{"fastapi", "uvicorn"})

	tests := []struct {
		name string
		deps []string
		same bool
	}{
		{"reordered", []string{"uvicorn", "fastapi"}, true},
		{"case insensitive", []string{"FastAPI", "UVICORN"}, true},
		{"whitespace stripped", []string{" fastapi ", "uvicorn\t"}, true},
		{"blank entries dropped", []string{"fastapi", "", "uvicorn", "  "}, true},
		{"different set", []string{"fastapi", "uvicorn", "redis"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HashDeps(tt.deps)
			assert.Len(t, got, 16)
			if tt.same {
				assert.Equal(t, base, got)
			} else {
				assert.NotEqual(t, base, got)
			}
		})
	}
}

func TestGetOrCreateSharesEnvironments(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	first, err := c.GetOrCreate([]string{"x", "y"})
	require.NoError(t, err)
	second, err := c.GetOrCreate([]string{"y", "x"})
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Dir, second.Dir)
	assert.Equal(t, 2, second.RefCount)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)

	// The marker file records the original dependency list.
	data, err := os.ReadFile(filepath.Join(first.Dir, DepsFileName))
	require.NoError(t, err)
	assert.Equal(t, "x\ny\n", string(data))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	entry, err := c.GetOrCreate([]string{"a"})
	require.NoError(t, err)

	c.Release(entry.Hash)
	c.Release(entry.Hash)
	c.Release("unknown")

	stats := c.Stats()
	require.Len(t, stats.List, 1)
	assert.Equal(t, 0, stats.List[0].RefCount)
}

func TestEvictionByCount(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	c.maxEntries = 2

	e1, err := c.GetOrCreate([]string{"one"})
	require.NoError(t, err)
	c.Release(e1.Hash)

	e2, err := c.GetOrCreate([]string{"two"})
	require.NoError(t, err)
	c.Release(e2.Hash)

	// Third entry pushes the oldest unreferenced one out.
	_, err = c.GetOrCreate([]string{"three"})
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.Evictions)
	_, statErr := os.Stat(e1.Dir)
	assert.True(t, os.IsNotExist(statErr), "oldest entry directory should be gone")
}

func TestEvictionSkipsInUse(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	c.maxEntries = 1

	// Both entries stay referenced: the cache grows past its limit.
	e1, err := c.GetOrCreate([]string{"one"})
	require.NoError(t, err)
	_, err = c.GetOrCreate([]string{"two"})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Stats().Entries)
	_, statErr := os.Stat(e1.Dir)
	assert.NoError(t, statErr)
}

func TestEvictionByAge(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	entry, err := c.GetOrCreate([]string{"old"})
	require.NoError(t, err)
	c.Release(entry.Hash)

	// Jump the clock past the age limit.
	c.now = func() time.Time { return time.Now().Add(DefaultMaxAge + time.Hour) }

	removed := c.Prune()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestLinkSymlinksEnvironment(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	entry, err := c.GetOrCreate([]string{"dep"})
	require.NoError(t, err)

	sandbox := t.TempDir()
	require.NoError(t, c.Link(entry, sandbox))

	link := filepath.Join(sandbox, LinkName)
	resolved, err := os.Readlink(link)
	if err == nil {
		assert.Equal(t, entry.Dir, resolved)
	} else {
		// Copy fallback: the marker file must be present.
		_, err := os.Stat(filepath.Join(link, DepsFileName))
		assert.NoError(t, err)
	}
}

func TestScanAdoptsExistingEntries(t *testing.T) {
	root := t.TempDir()

	first, err := New(root)
	require.NoError(t, err)
	entry, err := first.GetOrCreate([]string{"persisted", "deps"})
	require.NoError(t, err)

	// A fresh cache over the same root sees the entry with no refs.
	second, err := New(root)
	require.NoError(t, err)
	stats := second.Stats()
	require.Equal(t, 1, stats.Entries)
	assert.Equal(t, entry.Hash, stats.List[0].Hash)
	assert.Equal(t, 0, stats.List[0].RefCount)
	assert.Equal(t, 2, stats.List[0].DepCount)
}

func TestClearKeepsReferenced(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	held, err := c.GetOrCreate([]string{"held"})
	require.NoError(t, err)
	idle, err := c.GetOrCreate([]string{"idle"})
	require.NoError(t, err)
	c.Release(idle.Hash)

	removed := c.Clear()
	assert.Equal(t, 1, removed)

	stats := c.Stats()
	require.Equal(t, 1, stats.Entries)
	assert.Equal(t, held.Hash, stats.List[0].Hash)
}
