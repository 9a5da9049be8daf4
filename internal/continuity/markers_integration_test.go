package continuity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMarkerStore(t *testing.T) MarkerStore {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 11})
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})
	return NewMarkerStore(rdb)
}

func TestMarkerTTLExpiryKeepsDisconnectedRecord(t *testing.T) {
	markers := testMarkerStore(t)
	ctx := context.Background()

	require.NoError(t, markers.Mark(ctx, "k1", "alice", 50*time.Millisecond))

	active, err := markers.GraceActive(ctx, "k1", "alice")
	require.NoError(t, err)
	assert.True(t, active)

	down, err := markers.Disconnected(ctx, "k1", "alice")
	require.NoError(t, err)
	assert.True(t, down)

	time.Sleep(100 * time.Millisecond)

	// Grace lapsed, but the fact of the disconnect is still known.
	active, err = markers.GraceActive(ctx, "k1", "alice")
	require.NoError(t, err)
	assert.False(t, active)

	down, err = markers.Disconnected(ctx, "k1", "alice")
	require.NoError(t, err)
	assert.True(t, down)
}

func TestClearIsIdempotent(t *testing.T) {
	markers := testMarkerStore(t)
	ctx := context.Background()

	require.NoError(t, markers.Mark(ctx, "k1", "alice", time.Minute))
	require.NoError(t, markers.Clear(ctx, "k1", "alice"))

	down, err := markers.Disconnected(ctx, "k1", "alice")
	require.NoError(t, err)
	assert.False(t, down)

	// Clearing an absent marker is a no-op, not an error.
	require.NoError(t, markers.Clear(ctx, "k1", "alice"))
	require.NoError(t, markers.Clear(ctx, "k1", "nobody"))
}

func TestDropClearsAllCallState(t *testing.T) {
	markers := testMarkerStore(t)
	ctx := context.Background()

	require.NoError(t, markers.Mark(ctx, "k1", "alice", time.Minute))
	require.NoError(t, markers.Mark(ctx, "k1", "bob", time.Minute))

	require.NoError(t, markers.Drop(ctx, "k1", "alice", "bob"))

	for _, uid := range []string{"alice", "bob"} {
		active, err := markers.GraceActive(ctx, "k1", uid)
		require.NoError(t, err)
		assert.False(t, active)

		down, err := markers.Disconnected(ctx, "k1", uid)
		require.NoError(t, err)
		assert.False(t, down)
	}
}
