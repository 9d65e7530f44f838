package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/pkg/core"
)

type staticAttributes struct {
	attrs []core.Attribute
	err   error
}

func (s staticAttributes) Attributes(ctx context.Context) ([]core.Attribute, error) {
	return s.attrs, s.err
}

func TestAttributeCache_NewAttributeCache(t *testing.T) {
	cache := NewAttributeCache()

	require.NotNil(t, cache)
	assert.Equal(t, 0, cache.Len())
}

func TestAttributeCache_SetAndGet(t *testing.T) {
	cache := NewAttributeCache()

	cache.Set(core.Attribute{ID: 42, Name: "football_activity_1", DataType: core.DataText})

	a, ok := cache.Get("football_activity_1")
	require.True(t, ok, "expected to find attribute by name")
	assert.Equal(t, uint(42), a.ID)

	a, ok = cache.GetByID(42)
	require.True(t, ok, "expected to find attribute by id")
	assert.Equal(t, "football_activity_1", a.Name)

	_, ok = cache.Get("nonexistent")
	assert.False(t, ok)
}

func TestAttributeCache_Rename(t *testing.T) {
	cache := NewAttributeCache()

	cache.Set(core.Attribute{ID: 1, Name: "old"})
	cache.Set(core.Attribute{ID: 1, Name: "new"})

	_, ok := cache.Get("old")
	assert.False(t, ok, "renamed attribute must not be reachable by its old name")
	_, ok = cache.Get("new")
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestAttributeCache_Load(t *testing.T) {
	cache := NewAttributeCache()
	cache.Set(core.Attribute{ID: 999, Name: "stale"})

	require.NoError(t, cache.Load(context.Background(), staticAttributes{attrs: core.DefaultAttributes()}))
	assert.Equal(t, len(core.DefaultAttributes()), cache.Len())

	_, ok := cache.Get("stale")
	assert.False(t, ok)

	a, ok := cache.Get("shot_change")
	require.True(t, ok)
	assert.True(t, a.IsGlobal)

	err := cache.Load(context.Background(), staticAttributes{err: errors.New("db down")})
	assert.Error(t, err)
	assert.Equal(t, len(core.DefaultAttributes()), cache.Len(), "failed load keeps old contents")
}

func TestAttributeCache_Concurrent(t *testing.T) {
	cache := NewAttributeCache()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			cache.Set(core.Attribute{ID: uint(id), Name: fmt.Sprintf("attr%d", id)})
		}(i)
		go func(id int) {
			defer wg.Done()
			cache.Get(fmt.Sprintf("attr%d", id))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, cache.Len())
}
