package match

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"voicematch/internal/models"
	"voicematch/internal/queue"
	"voicematch/internal/store"
)

// Signal is the in-process handoff emitted after a pair's durable call has
// been committed. Consumers (notification delivery, auto-start) run after the
// write, never before.
type Signal struct {
	CallID     string
	CategoryID string
	UserIDs    [2]string
}

// Pool is the slice of the queue coordinator the pairer needs.
type Pool interface {
	PoolSnapshot(ctx context.Context, categoryID string) ([]queue.PoolMember, error)
	EntryFor(ctx context.Context, userID string) (*queue.Entry, error)
	RemoveMatched(ctx context.Context, categoryID string, userIDs []string) (queue.RemoveResult, error)
}

// Pairer converts waiting users into durable calls, FIFO within each category.
type Pairer struct {
	pool       Pool
	calls      store.CallStore
	categories store.CategoryStore
	onMatch    func(ctx context.Context, sig Signal)
}

func NewPairer(pool Pool, calls store.CallStore, categories store.CategoryStore, onMatch func(ctx context.Context, sig Signal)) *Pairer {
	return &Pairer{pool: pool, calls: calls, categories: categories, onMatch: onMatch}
}

// RunOnce executes one match tick over every active category. A failure in
// one category is logged and skipped; the others still run.
func (p *Pairer) RunOnce(ctx context.Context) error {
	categories, err := p.categories.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active categories: %w", err)
	}

	for _, category := range categories {
		if err := p.pairCategory(ctx, category.ID); err != nil {
			slog.Error("pairing failed for category", "categoryID", category.ID, "error", err)
		}
	}
	return nil
}

// pairCategory pairs off the category pool two at a time, oldest first.
// Members whose entry vanished since the snapshot (cancelled or expired) are
// skipped; that is the normal churn of a live queue, not an error.
func (p *Pairer) pairCategory(ctx context.Context, categoryID string) error {
	snapshot, err := p.pool.PoolSnapshot(ctx, categoryID)
	if err != nil {
		return err
	}
	if len(snapshot) < 2 {
		return nil
	}

	var pending string
	for _, member := range snapshot {
		entry, err := p.pool.EntryFor(ctx, member.UserID)
		if err != nil {
			return err
		}
		if entry == nil || entry.CategoryID != categoryID {
			continue
		}

		if pending == "" {
			pending = member.UserID
			continue
		}

		if err := p.pair(ctx, categoryID, pending, member.UserID); err != nil {
			slog.Error("pair attempt failed", "categoryID", categoryID,
				"userA", pending, "userB", member.UserID, "error", err)
			// Leave both in the pool; the next tick retries them in order.
		}
		pending = ""
	}
	return nil
}

// pair commits the durable call for two users, then clears their queue state
// and emits the success signal. The call record is the source of truth: a
// removal failure is reported for the cleanup sweep, never rolled back.
func (p *Pairer) pair(ctx context.Context, categoryID, userA, userB string) error {
	if userA == userB {
		// Pool members are unique, so this can only be a defect upstream.
		slog.Error("refusing to pair user with themself", "categoryID", categoryID, "userID", userA)
		return fmt.Errorf("invariant violation: self-pair for user %s", userA)
	}

	call := &models.Call{
		ID:         uuid.New().String(),
		UserA:      userA,
		UserB:      userB,
		CategoryID: categoryID,
		Status:     models.CallStatusReady,
	}
	if err := p.calls.Create(ctx, call); err != nil {
		return fmt.Errorf("create call for pair (%s, %s): %w", userA, userB, err)
	}

	pairIDs := []string{userA, userB}
	if res, err := p.pool.RemoveMatched(ctx, categoryID, pairIDs); err != nil {
		slog.Warn("queue removal failed after pairing, cleanup tick will reconcile",
			"callID", call.ID, "categoryID", categoryID, "error", err)
	} else if res.RemovedCount < len(pairIDs) {
		slog.Info("some queue entries already gone at removal",
			"callID", call.ID, "removed", res.RemovedCount)
	}

	slog.Info("paired users into call", "callID", call.ID,
		"categoryID", categoryID, "userA", userA, "userB", userB)

	if p.onMatch != nil {
		p.onMatch(ctx, Signal{
			CallID:     call.ID,
			CategoryID: categoryID,
			UserIDs:    [2]string{userA, userB},
		})
	}
	return nil
}
