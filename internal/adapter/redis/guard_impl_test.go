package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enricher-service/internal/entity"
)

const testNamespace = "https://www.strava.com/segments/1"

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestGenerateKey(t *testing.T) {
	g := NewGuardRepo(nil, testNamespace, time.Minute)
	key := g.generateKey(entity.RegionPopup)

	assert.Contains(t, key, guardKeyPrefix)
	assert.Contains(t, key, ":popup")
	assert.Equal(t, key, NewGuardRepo(nil, testNamespace, time.Minute).generateKey(entity.RegionPopup))
	assert.NotEqual(t, key, NewGuardRepo(nil, "https://www.strava.com/segments/2", time.Minute).generateKey(entity.RegionPopup))
}

func TestGuard_AcquireRelease(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	a := NewGuardRepo(client, testNamespace, time.Minute)
	b := NewGuardRepo(client, testNamespace, time.Minute)

	ok, err := a.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	assert.False(t, ok, "a second holder is refused")

	ok, err = a.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	assert.False(t, ok, "the holder itself is refused too")

	require.NoError(t, b.Release(ctx, entity.RegionPopup))
	ok, err = b.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	assert.False(t, ok, "release by a non-holder is a no-op")

	require.NoError(t, a.Release(ctx, entity.RegionPopup))
	ok, err = b.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx, entity.RegionPopup))
}

func TestGuard_KindsAreIndependent(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	g := NewGuardRepo(client, testNamespace, time.Minute)

	ok, err := g.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.TryAcquire(ctx, entity.RegionTable)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuard_ExpiredReleaseKeepsNewerFlag(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	a := NewGuardRepo(client, testNamespace, time.Second)
	b := NewGuardRepo(client, testNamespace, time.Minute)
	key := a.generateKey(entity.RegionPopup)

	ok, err := a.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	require.True(t, ok)

	// The first holder stalls past its TTL and another enricher takes over.
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(key))

	ok, err = b.TryAcquire(ctx, entity.RegionPopup)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Release(ctx, entity.RegionPopup))
	assert.True(t, mr.Exists(key), "a late release leaves the newer flag alone")

	require.NoError(t, b.Release(ctx, entity.RegionPopup))
	assert.False(t, mr.Exists(key))
}

func TestGuard_Ping(t *testing.T) {
	mr, client := newTestClient(t)
	g := NewGuardRepo(client, testNamespace, time.Minute)

	require.NoError(t, g.Ping(context.Background()))
	mr.Close()
	assert.Error(t, g.Ping(context.Background()))
}
