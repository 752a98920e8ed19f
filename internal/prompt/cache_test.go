package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// counter returns a Loader that yields values in order, repeating the last.
func counter(values ...string) (Loader, *int) {
	n := 0
	return func(context.Context) (string, error) {
		i := min(n, len(values)-1)
		n++
		return values[i], nil
	}, &n
}

func TestCache_ReloadsAfterTTL(t *testing.T) {
	t.Parallel()

	load, calls := counter("v1", "v2")
	c := NewCache(load, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	now = now.Add(30 * time.Second)
	v, _ = c.Get(context.Background())
	assert.Equal(t, "v1", v)
	assert.Equal(t, 1, *calls)

	now = now.Add(31 * time.Second)
	v, _ = c.Get(context.Background())
	assert.Equal(t, "v2", v)
	assert.Equal(t, 2, *calls)
}

func TestCache_Invalidate(t *testing.T) {
	t.Parallel()

	load, calls := counter("old", "new")
	c := NewCache(load, time.Hour)

	v, _ := c.Get(context.Background())
	assert.Equal(t, "old", v)

	c.Invalidate()
	v, _ = c.Get(context.Background())
	assert.Equal(t, "new", v)
	assert.Equal(t, 2, *calls)
}

func TestCache_ReloadErrorKeepsPrevious(t *testing.T) {
	t.Parallel()

	fail := false
	c := NewCache(func(context.Context) (string, error) {
		if fail {
			return "", errors.New("db down")
		}
		return "good", nil
	}, time.Hour)

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "good", v)

	fail = true
	c.Invalidate()
	v, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "good", v)
}

func TestCache_FirstLoadErrorReturnsDefault(t *testing.T) {
	t.Parallel()

	c := NewCache(func(context.Context) (string, error) { return "", errors.New("db down") }, 0)
	v, err := c.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, Default, v)
}

func TestStoreLoader(t *testing.T) {
	t.Parallel()

	s, err := store.OpenSQLite(context.Background(), ":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	load := StoreLoader(s)
	v, err := load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default, v)

	require.NoError(t, s.SetConfig(context.Background(), store.KeySystemPrompt, "custom"))
	v, err = load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "custom", v)
}
