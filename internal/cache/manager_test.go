package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	_, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))
	require.NoError(t, manager.Delete(ctx, "test-key"))

	_, err := manager.Get(ctx, "test-key")
	assert.True(t, IsCacheMiss(err))

	// Deleting nothing is a no-op.
	assert.NoError(t, manager.Delete(ctx))
}

func TestManager_JSONRoundTrip(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}
	in := payload{Name: "order-flow", Version: 3}

	require.NoError(t, manager.SetJSON(ctx, "test-json", in, time.Minute))

	var out payload
	require.NoError(t, manager.GetJSON(ctx, "test-json", &out))
	assert.Equal(t, in, out)
}

func TestManager_GetJSONInvalid(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "bad", "not json", time.Minute))

	var out map[string]any
	err := manager.GetJSON(ctx, "bad", &out)
	assert.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	// Zero TTL falls back to the configured default.
	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	mr.FastForward(30 * time.Second)
	_, err := manager.Get(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(time.Minute)
	_, err = manager.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Exists(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", time.Minute))
	count, err := manager.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestManager_ClosedOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())

	_, err := manager.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, manager.Set(context.Background(), "k", "v", 0))

	// Closing twice is a no-op.
	assert.NoError(t, manager.Close())
}

func TestKeyConventions(t *testing.T) {
	assert.Equal(t, "flowmigrate:scenario:acme:order-flow", ScenarioKey("acme", "order-flow"))
	assert.Equal(t, "flowmigrate:scenario:acme:order-flow:v2", ScenarioVersionKey("acme", "order-flow", 2))
	assert.Equal(t, "flowmigrate:plan:acme:p1", PlanKey("acme", "p1"))
}
