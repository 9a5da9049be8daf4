package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"voicematch/internal/models"
)

var (
	ErrCallNotFound = errors.New("call not found")
	// ErrInvalidTransition is returned when a status change is requested for a
	// call that is not in the expected source state. Callers racing on the
	// same transition get this instead of double-applying it.
	ErrInvalidTransition = errors.New("invalid call status transition")
)

// CallStore owns the durable call lifecycle. The queue layer only ever reads
// identifiers from it; status is written here and nowhere else.
type CallStore interface {
	Create(ctx context.Context, call *models.Call) error
	Get(ctx context.Context, id string) (*models.Call, error)
	// Start moves READY -> IN_PROGRESS and stamps StartedAt.
	Start(ctx context.Context, id string) error
	// End moves IN_PROGRESS -> COMPLETED and stamps EndedAt.
	End(ctx context.Context, id string) error
	// MarkFailed moves READY -> FAILED. Used by the cleanup sweep for calls
	// that were paired but never started.
	MarkFailed(ctx context.Context, id string) error
	ListInProgress(ctx context.Context) ([]models.Call, error)
	ListStaleReady(ctx context.Context, olderThan time.Time) ([]models.Call, error)
	// FindActiveByUser returns the IN_PROGRESS call the user participates in,
	// or ErrCallNotFound when there is none.
	FindActiveByUser(ctx context.Context, userID string) (*models.Call, error)
}

type gormCallStore struct {
	db *gorm.DB
}

func NewCallStore(db *gorm.DB) CallStore {
	return &gormCallStore{db: db}
}

func (s *gormCallStore) Create(ctx context.Context, call *models.Call) error {
	if err := s.db.WithContext(ctx).Create(call).Error; err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	return nil
}

func (s *gormCallStore) Get(ctx context.Context, id string) (*models.Call, error) {
	var call models.Call
	err := s.db.WithContext(ctx).First(&call, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call %s: %w", id, err)
	}
	return &call, nil
}

// transition applies a guarded status update. The WHERE clause on the source
// status makes concurrent callers race safely: exactly one UPDATE matches.
func (s *gormCallStore) transition(ctx context.Context, id string, from, to models.CallStatus, updates map[string]any) error {
	updates["status"] = to
	res := s.db.WithContext(ctx).
		Model(&models.Call{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition call %s to %s: %w", id, to, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Call{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("transition call %s to %s: %w", id, to, err)
		}
		if count == 0 {
			return ErrCallNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *gormCallStore) Start(ctx context.Context, id string) error {
	now := time.Now()
	return s.transition(ctx, id, models.CallStatusReady, models.CallStatusInProgress, map[string]any{
		"started_at": &now,
	})
}

func (s *gormCallStore) End(ctx context.Context, id string) error {
	now := time.Now()
	return s.transition(ctx, id, models.CallStatusInProgress, models.CallStatusCompleted, map[string]any{
		"ended_at": &now,
	})
}

func (s *gormCallStore) MarkFailed(ctx context.Context, id string) error {
	now := time.Now()
	return s.transition(ctx, id, models.CallStatusReady, models.CallStatusFailed, map[string]any{
		"ended_at": &now,
	})
}

func (s *gormCallStore) ListInProgress(ctx context.Context) ([]models.Call, error) {
	var calls []models.Call
	err := s.db.WithContext(ctx).
		Where("status = ?", models.CallStatusInProgress).
		Order("started_at").
		Find(&calls).Error
	if err != nil {
		return nil, fmt.Errorf("list in-progress calls: %w", err)
	}
	return calls, nil
}

func (s *gormCallStore) ListStaleReady(ctx context.Context, olderThan time.Time) ([]models.Call, error) {
	var calls []models.Call
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.CallStatusReady, olderThan).
		Find(&calls).Error
	if err != nil {
		return nil, fmt.Errorf("list stale ready calls: %w", err)
	}
	return calls, nil
}

func (s *gormCallStore) FindActiveByUser(ctx context.Context, userID string) (*models.Call, error) {
	var call models.Call
	err := s.db.WithContext(ctx).
		Where("status = ? AND (user_a = ? OR user_b = ?)", models.CallStatusInProgress, userID, userID).
		Order("started_at DESC").
		First(&call).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active call for user %s: %w", userID, err)
	}
	return &call, nil
}
