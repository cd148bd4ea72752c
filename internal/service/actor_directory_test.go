package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/grievance-portal/internal/domain"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util/errorutil"
)

// memCache implements the string commands the directory uses. Any other
// command panics through the nil embedded interface.
type memCache struct {
	redis.Cmdable

	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	readErr error
}

func newMemCache() *memCache {
	return &memCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return redis.NewStringResult("", c.readErr)
	}
	v, ok := c.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(string)
	c.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestActorDirectoryWithoutCache(t *testing.T) {
	repo := newMemEmployeeRepo(domain.Employee{ID: 7, Name: "Asha"})
	dir := NewActorDirectory(repo, nil, 0, nil)
	ctx := context.Background()

	name, err := dir.ResolveActorName(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Asha", name)

	_, err = dir.ResolveActorName(ctx, 8)
	assert.True(t, apperrors.Is(err, apperrors.CodeLookupDegraded))
	assert.Equal(t, 2, repo.lookups)
}

func TestActorDirectoryCachesNames(t *testing.T) {
	repo := newMemEmployeeRepo(domain.Employee{ID: 7, Name: "Asha"})
	cache := newMemCache()
	dir := NewActorDirectory(repo, cache, time.Minute, nil)
	ctx := context.Background()

	name, err := dir.ResolveActorName(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Asha", name)
	assert.Equal(t, 1, repo.lookups)
	assert.Equal(t, "Asha", cache.values["actor:name:7"])
	assert.Equal(t, time.Minute, cache.ttls["actor:name:7"])

	name, err = dir.ResolveActorName(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Asha", name)
	assert.Equal(t, 1, repo.lookups)

	cache.values["actor:name:9"] = "Cached Only"
	name, err = dir.ResolveActorName(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Cached Only", name)
	assert.Equal(t, 1, repo.lookups)
}

func TestActorDirectoryFallsBackWhenCacheFails(t *testing.T) {
	repo := newMemEmployeeRepo(domain.Employee{ID: 7, Name: "Asha"})
	cache := newMemCache()
	cache.readErr = errors.New("connection refused")
	dir := NewActorDirectory(repo, cache, 0, nil)

	name, err := dir.ResolveActorName(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Asha", name)
	assert.Equal(t, 1, repo.lookups)
	assert.Equal(t, 15*time.Minute, cache.ttls["actor:name:7"])
}
