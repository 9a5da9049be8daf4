package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"voicematch/internal/models"
)

// These tests need a real postgres; set TEST_DATABASE_DSN to run them.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Call{}, &models.Category{}))
	require.NoError(t, db.Exec("TRUNCATE TABLE calls, categories").Error)
	return db
}

func newReadyCall(a, b string) *models.Call {
	return &models.Call{
		ID:         uuid.New().String(),
		UserA:      a,
		UserB:      b,
		CategoryID: "music",
		Status:     models.CallStatusReady,
	}
}

func TestCallLifecycle(t *testing.T) {
	db := testDB(t)
	calls := NewCallStore(db)
	ctx := context.Background()

	call := newReadyCall("alice", "bob")
	require.NoError(t, calls.Create(ctx, call))

	got, err := calls.Get(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusReady, got.Status)

	require.NoError(t, calls.Start(ctx, call.ID))
	got, err = calls.Get(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)

	// Repeating a transition is rejected, not reapplied.
	assert.ErrorIs(t, calls.Start(ctx, call.ID), ErrInvalidTransition)

	require.NoError(t, calls.End(ctx, call.ID))
	got, err = calls.Get(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusCompleted, got.Status)
	assert.NotNil(t, got.EndedAt)

	// Terminal: no further transitions.
	assert.ErrorIs(t, calls.End(ctx, call.ID), ErrInvalidTransition)
	assert.ErrorIs(t, calls.MarkFailed(ctx, call.ID), ErrInvalidTransition)
}

func TestTransitionUnknownCall(t *testing.T) {
	db := testDB(t)
	calls := NewCallStore(db)

	assert.ErrorIs(t, calls.Start(context.Background(), uuid.New().String()), ErrCallNotFound)
}

func TestFindActiveByUser(t *testing.T) {
	db := testDB(t)
	calls := NewCallStore(db)
	ctx := context.Background()

	call := newReadyCall("alice", "bob")
	require.NoError(t, calls.Create(ctx, call))

	_, err := calls.FindActiveByUser(ctx, "alice")
	assert.ErrorIs(t, err, ErrCallNotFound)

	require.NoError(t, calls.Start(ctx, call.ID))

	for _, uid := range []string{"alice", "bob"} {
		got, err := calls.FindActiveByUser(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, call.ID, got.ID)
	}

	require.NoError(t, calls.End(ctx, call.ID))
	_, err = calls.FindActiveByUser(ctx, "alice")
	assert.ErrorIs(t, err, ErrCallNotFound)
}

func TestListStaleReady(t *testing.T) {
	db := testDB(t)
	calls := NewCallStore(db)
	ctx := context.Background()

	call := newReadyCall("alice", "bob")
	require.NoError(t, calls.Create(ctx, call))

	stale, err := calls.ListStaleReady(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = calls.ListStaleReady(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, call.ID, stale[0].ID)

	require.NoError(t, calls.MarkFailed(ctx, call.ID))
	got, err := calls.Get(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusFailed, got.Status)
}

func TestCategoryStore(t *testing.T) {
	db := testDB(t)
	categories := NewCategoryStore(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Category{ID: "music", Name: "Music", Active: true}).Error)
	require.NoError(t, db.Create(&models.Category{ID: "retired", Name: "Retired", Active: false}).Error)

	active, err := categories.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "music", active[0].ID)

	ok, err := categories.IsActive(ctx, "music")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = categories.IsActive(ctx, "retired")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown categories are simply not active, not an error.
	ok, err = categories.IsActive(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
