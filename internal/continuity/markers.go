package continuity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	graceKeyPrefix        = "call:grace:"
	disconnectedKeyPrefix = "call:disconnected:"

	// disconnectedSetTTL bounds how long the seen-a-disconnect record can
	// outlive a call that was never properly ended.
	disconnectedSetTTL = 24 * time.Hour
)

// MarkerStore holds the ephemeral disconnect state for in-progress calls.
//
// Two pieces per (call, user): a grace key with a short TTL whose presence
// means "disconnected, grace still running", and membership in a per-call
// disconnected set with no short TTL, which records that a disconnect was
// seen at all. The TTL key alone cannot drive termination: once it expires
// the evidence is gone, so the set is what lets the evaluator tell
// "grace elapsed" apart from "never disconnected".
type MarkerStore interface {
	// Mark records a disconnect: grace key set with TTL, user added to the
	// call's disconnected set.
	Mark(ctx context.Context, callID, userID string, grace time.Duration) error
	// Clear records a reconnect. Clearing an absent marker is a no-op.
	Clear(ctx context.Context, callID, userID string) error
	// GraceActive reports whether the user's grace window is still running.
	GraceActive(ctx context.Context, callID, userID string) (bool, error)
	// Disconnected reports whether a disconnect was seen and not yet
	// followed by a reconnect.
	Disconnected(ctx context.Context, callID, userID string) (bool, error)
	// Drop removes all marker state for a call. Called on call end.
	Drop(ctx context.Context, callID string, userIDs ...string) error
}

type redisMarkerStore struct {
	redis *redis.Client
}

func NewMarkerStore(rdb *redis.Client) MarkerStore {
	return &redisMarkerStore{redis: rdb}
}

func graceKey(callID, userID string) string {
	return graceKeyPrefix + callID + ":" + userID
}

func disconnectedKey(callID string) string {
	return disconnectedKeyPrefix + callID
}

func (s *redisMarkerStore) Mark(ctx context.Context, callID, userID string, grace time.Duration) error {
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, graceKey(callID, userID), time.Now().UnixMilli(), grace)
	pipe.SAdd(ctx, disconnectedKey(callID), userID)
	pipe.Expire(ctx, disconnectedKey(callID), disconnectedSetTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark disconnect call %s user %s: %w", callID, userID, err)
	}
	return nil
}

func (s *redisMarkerStore) Clear(ctx context.Context, callID, userID string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, graceKey(callID, userID))
	pipe.SRem(ctx, disconnectedKey(callID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear disconnect call %s user %s: %w", callID, userID, err)
	}
	return nil
}

func (s *redisMarkerStore) GraceActive(ctx context.Context, callID, userID string) (bool, error) {
	n, err := s.redis.Exists(ctx, graceKey(callID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check grace call %s user %s: %w", callID, userID, err)
	}
	return n > 0, nil
}

func (s *redisMarkerStore) Disconnected(ctx context.Context, callID, userID string) (bool, error) {
	member, err := s.redis.SIsMember(ctx, disconnectedKey(callID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("check disconnected call %s user %s: %w", callID, userID, err)
	}
	return member, nil
}

func (s *redisMarkerStore) Drop(ctx context.Context, callID string, userIDs ...string) error {
	keys := []string{disconnectedKey(callID)}
	for _, uid := range userIDs {
		keys = append(keys, graceKey(callID, uid))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drop markers call %s: %w", callID, err)
	}
	return nil
}
