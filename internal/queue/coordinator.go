package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	entryKeyPrefix = "queue:entry:"
	poolKeyPrefix  = "queue:pool:"
)

// joinScript admits a user atomically: the existence check, entry write and
// pool insert happen in one round trip so two concurrent joins for the same
// user cannot both succeed. Returns {-1} when already queued, otherwise
// {position, pool size before insert}.
var joinScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {-1, 0}
end
local size = redis.call("ZCARD", KEYS[2])
redis.call("HSET", KEYS[1], "queue_id", ARGV[1], "category_id", ARGV[2], "joined_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[5])
redis.call("PEXPIRE", KEYS[2], ARGV[4])
local rank = redis.call("ZRANK", KEYS[2], ARGV[5])
return {rank + 1, size}
`)

// cancelScript removes the entry and its pool membership only when the
// supplied token matches the stored one. The pool key is derived inside the
// script from the stored category so the whole check-and-remove is atomic.
// Returns 1 on success, -1 when absent, -2 on token mismatch.
var cancelScript = redis.NewScript(`
local qid = redis.call("HGET", KEYS[1], "queue_id")
if qid == false then
  return -1
end
if qid ~= ARGV[1] then
  return -2
end
local cat = redis.call("HGET", KEYS[1], "category_id")
redis.call("DEL", KEYS[1])
if cat ~= false then
  redis.call("ZREM", ARGV[3] .. cat, ARGV[2])
end
return 1
`)

// removeMatchedScript clears pool membership and entries for a set of users.
// Safe to call twice: already-gone members just do not count.
var removeMatchedScript = redis.NewScript(`
local removed = 0
for i = 2, #ARGV do
  if redis.call("ZREM", KEYS[1], ARGV[i]) == 1 then
    removed = removed + 1
  end
  redis.call("DEL", ARGV[1] .. ARGV[i])
end
return removed
`)

// Entry is the stored admission record a client's queueId token points at.
type Entry struct {
	QueueID    string
	CategoryID string
	JoinedAt   time.Time
}

// PoolMember is one element of a category pool snapshot, FIFO by JoinedAt.
type PoolMember struct {
	UserID   string
	JoinedAt time.Time
}

type JoinResult struct {
	QueueID              string `json:"queue_id"`
	Position             int    `json:"position"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds"`
}

type StatusView struct {
	Waiting              bool   `json:"waiting"`
	CategoryID           string `json:"category_id,omitempty"`
	QueueID              string `json:"queue_id,omitempty"`
	Position             int    `json:"position,omitempty"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds,omitempty"`
}

type RemoveResult struct {
	Success      bool
	RemovedCount int
}

// CategoryChecker is the slice of the durable store the coordinator consults
// before admission.
type CategoryChecker interface {
	IsActive(ctx context.Context, id string) (bool, error)
}

// Options are the queue tunables, fixed at construction.
type Options struct {
	TTL         time.Duration
	WaitPerUser time.Duration
	WaitCap     time.Duration
}

// Coordinator owns admission, cancellation and removal against the queue
// store. Every multi-key mutation is a single scripted call; no in-process
// lock is held across a round trip.
type Coordinator struct {
	redis      *redis.Client
	categories CategoryChecker
	opts       Options
}

func NewCoordinator(rdb *redis.Client, categories CategoryChecker, opts Options) *Coordinator {
	return &Coordinator{redis: rdb, categories: categories, opts: opts}
}

func entryKey(userID string) string {
	return entryKeyPrefix + userID
}

func poolKey(categoryID string) string {
	return poolKeyPrefix + categoryID
}

// Join admits a user into the category pool. Fails with ErrAlreadyQueued when
// the user holds a live entry anywhere, ErrCategoryInactive when the category
// is disabled or unknown.
func (c *Coordinator) Join(ctx context.Context, userID, categoryID string) (*JoinResult, error) {
	active, err := c.categories.IsActive(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("check category %s: %w", categoryID, err)
	}
	if !active {
		return nil, ErrCategoryInactive
	}

	queueID := uuid.New().String()
	joinedAt := time.Now().UnixMilli()

	res, err := joinScript.Run(ctx, c.redis,
		[]string{entryKey(userID), poolKey(categoryID)},
		queueID, categoryID, joinedAt, c.opts.TTL.Milliseconds(), userID,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("join script for user %s: %w", userID, err)
	}
	if len(res) < 2 || res[0] < 0 {
		if len(res) > 0 && res[0] == -1 {
			return nil, ErrAlreadyQueued
		}
		return nil, fmt.Errorf("join script for user %s: unexpected reply %v", userID, res)
	}

	return &JoinResult{
		QueueID:              queueID,
		Position:             int(res[0]),
		EstimatedWaitSeconds: c.estimateWait(int(res[1])),
	}, nil
}

// estimateWait converts the pool size observed at join time into a rough wait
// estimate in whole seconds, capped and floored.
func (c *Coordinator) estimateWait(poolSizeAtJoin int) int {
	if poolSizeAtJoin <= 0 {
		return 0
	}
	est := time.Duration(poolSizeAtJoin) * c.opts.WaitPerUser
	if est > c.opts.WaitCap {
		est = c.opts.WaitCap
	}
	return int(est.Seconds())
}

// Cancel removes the caller's entry. The queueId token must match the stored
// entry; a stale token from before a rejoin is rejected, not applied.
func (c *Coordinator) Cancel(ctx context.Context, userID, queueID string) error {
	res, err := cancelScript.Run(ctx, c.redis,
		[]string{entryKey(userID)},
		queueID, userID, poolKeyPrefix,
	).Int64()
	if err != nil {
		return fmt.Errorf("cancel script for user %s: %w", userID, err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrNotInQueue
	case -2:
		return ErrQueueIDMismatch
	default:
		return fmt.Errorf("cancel script for user %s: unexpected reply %d", userID, res)
	}
}

// Status reports the caller's queue state. A missing entry is the normal
// "not waiting" answer, never an error.
func (c *Coordinator) Status(ctx context.Context, userID string) (*StatusView, error) {
	entry, err := c.EntryFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &StatusView{Waiting: false}, nil
	}

	rank, err := c.redis.ZRank(ctx, poolKey(entry.CategoryID), userID).Result()
	if err == redis.Nil {
		// Entry outlived its pool membership; treat as not waiting.
		return &StatusView{Waiting: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pool rank for user %s: %w", userID, err)
	}

	ahead := int(rank)

	return &StatusView{
		Waiting:              true,
		CategoryID:           entry.CategoryID,
		QueueID:              entry.QueueID,
		Position:             ahead + 1,
		EstimatedWaitSeconds: c.estimateWait(ahead),
	}, nil
}

// EntryFor returns the live entry for a user, or nil when absent. Absence is
// an expected steady state: cancelled, paired, or expired entries all look
// the same from here.
func (c *Coordinator) EntryFor(ctx context.Context, userID string) (*Entry, error) {
	fields, err := c.redis.HGetAll(ctx, entryKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read entry for user %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	joinedMillis, err := strconv.ParseInt(fields["joined_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("entry for user %s has bad joined_at %q: %w", userID, fields["joined_at"], err)
	}

	return &Entry{
		QueueID:    fields["queue_id"],
		CategoryID: fields["category_id"],
		JoinedAt:   time.UnixMilli(joinedMillis),
	}, nil
}

// PoolSnapshot returns the category pool ordered FIFO by admission time.
func (c *Coordinator) PoolSnapshot(ctx context.Context, categoryID string) ([]PoolMember, error) {
	zs, err := c.redis.ZRangeWithScores(ctx, poolKey(categoryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot pool %s: %w", categoryID, err)
	}

	members := make([]PoolMember, 0, len(zs))
	for _, z := range zs {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, PoolMember{
			UserID:   userID,
			JoinedAt: time.UnixMilli(int64(z.Score)),
		})
	}
	return members, nil
}

// RemoveMatched clears queue state for users that were just paired. Idempotent:
// entries already gone count as removed-by-someone-else, not as failure. The
// durable call this removal follows is never rolled back on error here.
func (c *Coordinator) RemoveMatched(ctx context.Context, categoryID string, userIDs []string) (RemoveResult, error) {
	if len(userIDs) == 0 {
		return RemoveResult{Success: true}, nil
	}

	args := make([]any, 0, len(userIDs)+1)
	args = append(args, entryKeyPrefix)
	for _, id := range userIDs {
		args = append(args, id)
	}

	removed, err := removeMatchedScript.Run(ctx, c.redis, []string{poolKey(categoryID)}, args...).Int64()
	if err != nil {
		return RemoveResult{}, fmt.Errorf("remove matched from pool %s: %w", categoryID, err)
	}
	return RemoveResult{Success: true, RemovedCount: int(removed)}, nil
}

// ForceExpire drops pool members older than cutoff. Backstop for the store's
// own TTL: the cleanup tick calls this so a wedged TTL cannot strand users.
// Returns the user ids that were removed.
func (c *Coordinator) ForceExpire(ctx context.Context, categoryID string, cutoff time.Time) ([]string, error) {
	stale, err := c.redis.ZRangeByScore(ctx, poolKey(categoryID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan stale pool %s: %w", categoryID, err)
	}
	if len(stale) == 0 {
		return nil, nil
	}

	if _, err := c.RemoveMatched(ctx, categoryID, stale); err != nil {
		return nil, fmt.Errorf("expire stale pool %s: %w", categoryID, err)
	}
	return stale, nil
}

// PoolSize reports the current number of waiting users in a category.
func (c *Coordinator) PoolSize(ctx context.Context, categoryID string) (int, error) {
	n, err := c.redis.ZCard(ctx, poolKey(categoryID)).Result()
	if err != nil {
		return 0, fmt.Errorf("pool size %s: %w", categoryID, err)
	}
	return int(n), nil
}
