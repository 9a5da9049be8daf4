package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_CHECK", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.MatchInterval)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 10*time.Second, cfg.ContinuityInterval)
	assert.Equal(t, 600*time.Second, cfg.QueueTTL)
	assert.Equal(t, 30*time.Second, cfg.GraceTTL)
	assert.Equal(t, 30*time.Second, cfg.WaitPerUser)
	assert.Equal(t, 600*time.Second, cfg.WaitCap)
	assert.True(t, cfg.MatchingEnabled)
	assert.False(t, cfg.AutoStartCalls)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV_CHECK", "1")
	t.Setenv("MATCH_INTERVAL", "5s")
	t.Setenv("GRACE_TTL", "45s")
	t.Setenv("MATCHING_ENABLED", "false")
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.MatchInterval)
	assert.Equal(t, 45*time.Second, cfg.GraceTTL)
	assert.False(t, cfg.MatchingEnabled)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("ENV_CHECK", "1")
	t.Setenv("QUEUE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_TTL")
}
