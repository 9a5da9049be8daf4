package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"voicematch/internal/continuity"
	"voicematch/internal/match"
	"voicematch/internal/notify"
	"voicematch/internal/queue"
	"voicematch/internal/store"
)

// Handlers run the periodic ticks and async deliveries on the worker pool.
// Each tick is independent: a failure inside one is logged by asynq and the
// next tick still fires on schedule.
type Handlers struct {
	pairer      *match.Pairer
	continuity  *continuity.Service
	coordinator *queue.Coordinator
	calls       store.CallStore
	categories  store.CategoryStore
	dispatcher  *notify.Dispatcher
	publisher   notify.Publisher
	queueTTL    time.Duration
}

func NewHandlers(
	pairer *match.Pairer,
	cont *continuity.Service,
	coordinator *queue.Coordinator,
	calls store.CallStore,
	categories store.CategoryStore,
	dispatcher *notify.Dispatcher,
	publisher notify.Publisher,
	queueTTL time.Duration,
) *Handlers {
	return &Handlers{
		pairer:      pairer,
		continuity:  cont,
		coordinator: coordinator,
		calls:       calls,
		categories:  categories,
		dispatcher:  dispatcher,
		publisher:   publisher,
		queueTTL:    queueTTL,
	}
}

// HandleMatchTick runs one pairing pass over all active categories.
func (h *Handlers) HandleMatchTick(ctx context.Context, t *asynq.Task) error {
	return h.pairer.RunOnce(ctx)
}

// HandleContinuityTick evaluates grace state for every in-progress call.
func (h *Handlers) HandleContinuityTick(ctx context.Context, t *asynq.Task) error {
	return h.continuity.EvaluateAll(ctx)
}

// HandleCleanupTick reconciles queue-store state against the durable store:
// pool members past the queue TTL are force-removed even if the store's own
// expiry has not fired, and READY calls past the TTL with no live queue
// entries are marked failed.
func (h *Handlers) HandleCleanupTick(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().Add(-h.queueTTL)

	categories, err := h.categories.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: list categories: %w", err)
	}
	for _, category := range categories {
		expired, err := h.coordinator.ForceExpire(ctx, category.ID, cutoff)
		if err != nil {
			slog.Error("cleanup: force-expire failed", "categoryID", category.ID, "error", err)
			continue
		}
		for _, userID := range expired {
			h.dispatcher.MatchCancelled(ctx, userID, "queue_expired")
		}
		if len(expired) > 0 {
			slog.Info("cleanup: expired stale queue entries",
				"categoryID", category.ID, "count", len(expired))
		}
	}

	stale, err := h.calls.ListStaleReady(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup: list stale ready calls: %w", err)
	}
	for i := range stale {
		call := &stale[i]
		if h.hasLiveEntries(ctx, call.UserA, call.UserB) {
			continue
		}
		if err := h.calls.MarkFailed(ctx, call.ID); err != nil {
			slog.Error("cleanup: mark call failed", "callID", call.ID, "error", err)
			continue
		}
		slog.Info("cleanup: marked stale ready call failed", "callID", call.ID)
	}
	return nil
}

func (h *Handlers) hasLiveEntries(ctx context.Context, userIDs ...string) bool {
	for _, uid := range userIDs {
		entry, err := h.coordinator.EntryFor(ctx, uid)
		if err != nil {
			slog.Error("cleanup: entry lookup failed", "userID", uid, "error", err)
			// Cannot prove the entry is gone; keep the call for next sweep.
			return true
		}
		if entry != nil {
			return true
		}
	}
	return false
}

// HandleNotifyUser delivers one enqueued push. Failures are logged and the
// task is not retried.
func (h *Handlers) HandleNotifyUser(ctx context.Context, t *asynq.Task) error {
	var payload NotifyUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal notify payload: %w", err)
	}

	if err := h.publisher.Publish(ctx, payload.UserID, payload.Envelope); err != nil {
		slog.Error("push delivery failed",
			"userID", payload.UserID, "type", payload.Envelope.Type, "error", err)
	}
	return nil
}
