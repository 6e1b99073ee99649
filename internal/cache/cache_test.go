package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tracely-io/tracely/internal/cache"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	return rc
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.CounterKey(uuid.New(), "requests", 123456)

	n, err := rc.IncrWithExpiry(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = rc.IncrWithExpiry(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := rc.TTL(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, ttl, 9*time.Minute)
}

func TestMGetInts_MissingKeysAreZero(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	projectID := uuid.New()

	k1 := cache.CounterKey(projectID, "errors", 100)
	k2 := cache.CounterKey(projectID, "errors", 101)
	_, err := rc.IncrWithExpiry(ctx, k1, time.Minute)
	require.NoError(t, err)
	_, err = rc.IncrWithExpiry(ctx, k1, time.Minute)
	require.NoError(t, err)

	vals, err := rc.MGetInts(ctx, []string{k1, k2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 0}, vals)
}

func TestSetNXWithTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.SchedulerLockKey("threshold")

	ok, err := rc.SetNXWithTTL(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.SetNXWithTTL(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCooldownRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.CooldownKey(uuid.New())

	exists, err := rc.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, rc.SetWithTTL(ctx, key, "1", 5*time.Minute))

	exists, err = rc.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, rc.Delete(ctx, key))

	exists, err = rc.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}
