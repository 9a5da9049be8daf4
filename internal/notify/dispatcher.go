package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voicematch/internal/models"
)

// Outbox hands an envelope to the asynchronous delivery path. Implemented by
// the task client so delivery happens off the originating request, after the
// triggering write has committed.
type Outbox interface {
	EnqueueNotify(userID string, env Envelope) error
}

// Dispatcher composes one-shot client events and hands them to the outbox.
// Every send is best-effort: failures are logged and never propagated to the
// operation that triggered them.
type Dispatcher struct {
	outbox Outbox
}

func NewDispatcher(outbox Outbox) *Dispatcher {
	return &Dispatcher{outbox: outbox}
}

func (d *Dispatcher) send(userID string, eventType EventType, data any) {
	env := Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := d.outbox.EnqueueNotify(userID, env); err != nil {
		slog.Error("failed to enqueue notification",
			"userID", userID, "type", eventType, "error", err)
	}
}

// MatchSuccess tells both participants who they were paired with and which
// channel to join.
func (d *Dispatcher) MatchSuccess(ctx context.Context, call *models.Call) {
	for _, uid := range []string{call.UserA, call.UserB} {
		d.send(uid, EventMatchSuccess, MatchSuccessData{
			CallID:     call.ID,
			CategoryID: call.CategoryID,
			PartnerID:  call.Partner(uid),
			Channel:    UserChannel(uid),
		})
	}
}

func (d *Dispatcher) MatchCancelled(ctx context.Context, userID, reason string) {
	d.send(userID, EventMatchCancelled, MatchCancelledData{Reason: reason})
}

func (d *Dispatcher) QueueUpdate(ctx context.Context, userID, queueID string, position, estimatedWaitSeconds int) {
	d.send(userID, EventQueueUpdate, QueueUpdateData{
		QueueID:              queueID,
		Position:             position,
		EstimatedWaitSeconds: estimatedWaitSeconds,
	})
}

func (d *Dispatcher) CallStarted(ctx context.Context, call *models.Call) {
	for _, uid := range []string{call.UserA, call.UserB} {
		d.send(uid, EventCallStart, CallStartData{
			CallID:    call.ID,
			PartnerID: call.Partner(uid),
		})
	}
}

func (d *Dispatcher) CallEnded(ctx context.Context, call *models.Call, reason string) {
	for _, uid := range []string{call.UserA, call.UserB} {
		d.send(uid, EventCallEnd, CallEndData{
			CallID: call.ID,
			Reason: reason,
		})
	}
}
