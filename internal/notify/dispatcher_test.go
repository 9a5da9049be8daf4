package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicematch/internal/models"
)

type fakeOutbox struct {
	sent []struct {
		UserID string
		Env    Envelope
	}
	err error
}

func (f *fakeOutbox) EnqueueNotify(userID string, env Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, struct {
		UserID string
		Env    Envelope
	}{userID, env})
	return nil
}

func TestMatchSuccessNotifiesBothWithPartner(t *testing.T) {
	outbox := &fakeOutbox{}
	d := NewDispatcher(outbox)

	call := &models.Call{ID: "k1", UserA: "alice", UserB: "bob", CategoryID: "music"}
	d.MatchSuccess(context.Background(), call)

	require.Len(t, outbox.sent, 2)

	first := outbox.sent[0]
	assert.Equal(t, "alice", first.UserID)
	assert.Equal(t, EventMatchSuccess, first.Env.Type)
	assert.NotEmpty(t, first.Env.ID)
	data := first.Env.Data.(MatchSuccessData)
	assert.Equal(t, "k1", data.CallID)
	assert.Equal(t, "bob", data.PartnerID)
	assert.Equal(t, UserChannel("alice"), data.Channel)

	second := outbox.sent[1]
	assert.Equal(t, "bob", second.UserID)
	assert.Equal(t, "alice", second.Env.Data.(MatchSuccessData).PartnerID)
}

func TestQueueUpdatePayload(t *testing.T) {
	outbox := &fakeOutbox{}
	d := NewDispatcher(outbox)

	d.QueueUpdate(context.Background(), "alice", "q-1", 3, 90)

	require.Len(t, outbox.sent, 1)
	assert.Equal(t, EventQueueUpdate, outbox.sent[0].Env.Type)
	data := outbox.sent[0].Env.Data.(QueueUpdateData)
	assert.Equal(t, "q-1", data.QueueID)
	assert.Equal(t, 3, data.Position)
	assert.Equal(t, 90, data.EstimatedWaitSeconds)
}

func TestMatchCancelledCarriesReason(t *testing.T) {
	outbox := &fakeOutbox{}
	d := NewDispatcher(outbox)

	d.MatchCancelled(context.Background(), "alice", "queue_expired")

	require.Len(t, outbox.sent, 1)
	assert.Equal(t, EventMatchCancelled, outbox.sent[0].Env.Type)
	assert.Equal(t, "queue_expired", outbox.sent[0].Env.Data.(MatchCancelledData).Reason)
}

func TestCallLifecycleEvents(t *testing.T) {
	outbox := &fakeOutbox{}
	d := NewDispatcher(outbox)
	call := &models.Call{ID: "k1", UserA: "alice", UserB: "bob"}

	d.CallStarted(context.Background(), call)
	d.CallEnded(context.Background(), call, "both_disconnected")

	require.Len(t, outbox.sent, 4)
	assert.Equal(t, EventCallStart, outbox.sent[0].Env.Type)
	assert.Equal(t, EventCallEnd, outbox.sent[2].Env.Type)
	assert.Equal(t, "both_disconnected", outbox.sent[2].Env.Data.(CallEndData).Reason)
}

func TestSendFailureIsSwallowed(t *testing.T) {
	outbox := &fakeOutbox{err: errors.New("broker down")}
	d := NewDispatcher(outbox)

	// Must not panic or propagate; delivery is best-effort.
	d.MatchCancelled(context.Background(), "alice", "queue_expired")
	assert.Empty(t, outbox.sent)
}
