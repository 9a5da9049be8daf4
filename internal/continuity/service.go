package continuity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicematch/internal/models"
	"voicematch/internal/store"
)

// Notifier is the slice of the notification layer the continuity service
// drives: best-effort, never fails the caller.
type Notifier interface {
	CallStarted(ctx context.Context, call *models.Call)
	CallEnded(ctx context.Context, call *models.Call, reason string)
}

// Service runs the per-call disconnect/reconnect state machine.
//
// A single disconnected participant is tolerated for as long as the other
// side stays connected. Only when both participants are disconnected and both
// grace windows have lapsed is the call torn down.
type Service struct {
	markers  MarkerStore
	calls    store.CallStore
	notifier Notifier
	grace    time.Duration
}

func NewService(markers MarkerStore, calls store.CallStore, notifier Notifier, grace time.Duration) *Service {
	return &Service{markers: markers, calls: calls, notifier: notifier, grace: grace}
}

// MarkDisconnected handles a disconnect signal for a user. A user without an
// in-progress call is the normal case for most disconnects (browsing, queued,
// already ended) and is silently ignored.
func (s *Service) MarkDisconnected(ctx context.Context, userID string) error {
	call, err := s.calls.FindActiveByUser(ctx, userID)
	if errors.Is(err, store.ErrCallNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup active call for %s: %w", userID, err)
	}
	if call.Status != models.CallStatusInProgress {
		slog.Error("grace marker requested for call not in progress",
			"callID", call.ID, "status", call.Status, "userID", userID)
		return nil
	}

	if err := s.markers.Mark(ctx, call.ID, userID, s.grace); err != nil {
		return err
	}
	slog.Info("participant disconnected, grace running",
		"callID", call.ID, "userID", userID, "grace", s.grace)
	return nil
}

// MarkReconnected handles a connect signal. Clearing state for a user with no
// marker, or no call, is a no-op.
func (s *Service) MarkReconnected(ctx context.Context, userID string) error {
	call, err := s.calls.FindActiveByUser(ctx, userID)
	if errors.Is(err, store.ErrCallNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup active call for %s: %w", userID, err)
	}

	if err := s.markers.Clear(ctx, call.ID, userID); err != nil {
		return err
	}
	slog.Info("participant reconnected", "callID", call.ID, "userID", userID)
	return nil
}

// StartCall moves a paired call into IN_PROGRESS.
func (s *Service) StartCall(ctx context.Context, callID string) error {
	if err := s.calls.Start(ctx, callID); err != nil {
		return err
	}
	call, err := s.calls.Get(ctx, callID)
	if err != nil {
		return err
	}
	slog.Info("call started", "callID", callID)
	s.notifier.CallStarted(ctx, call)
	return nil
}

// EndCall completes an in-progress call and drops its marker state. The
// guarded store transition makes this exactly-once under concurrent callers.
func (s *Service) EndCall(ctx context.Context, callID, reason string) error {
	call, err := s.calls.Get(ctx, callID)
	if err != nil {
		return err
	}

	if err := s.calls.End(ctx, callID); err != nil {
		return err
	}

	if err := s.markers.Drop(ctx, callID, call.UserA, call.UserB); err != nil {
		// The call is already ended; leftover markers expire on their own.
		slog.Warn("failed to drop markers after call end", "callID", callID, "error", err)
	}

	slog.Info("call ended", "callID", callID, "reason", reason)
	s.notifier.CallEnded(ctx, call, reason)
	return nil
}

// EvaluateAll is one continuity tick: every in-progress call gets an
// independent grace check. Re-entrant by construction; a second pass over an
// unchanged call decides the same thing, and termination itself is guarded.
func (s *Service) EvaluateAll(ctx context.Context) error {
	calls, err := s.calls.ListInProgress(ctx)
	if err != nil {
		return fmt.Errorf("list in-progress calls: %w", err)
	}

	for i := range calls {
		if err := s.evaluateCall(ctx, &calls[i]); err != nil {
			slog.Error("continuity evaluation failed", "callID", calls[i].ID, "error", err)
		}
	}
	return nil
}

// evaluateCall decides one call. Termination needs both participants to have
// been seen disconnecting AND both grace windows to have expired; any live
// marker means someone may still come back.
func (s *Service) evaluateCall(ctx context.Context, call *models.Call) error {
	for _, uid := range []string{call.UserA, call.UserB} {
		down, err := s.markers.Disconnected(ctx, call.ID, uid)
		if err != nil {
			return err
		}
		if !down {
			// At least one side is connected; tolerate the other
			// indefinitely.
			return nil
		}
	}

	for _, uid := range []string{call.UserA, call.UserB} {
		active, err := s.markers.GraceActive(ctx, call.ID, uid)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
	}

	err := s.EndCall(ctx, call.ID, "both_disconnected")
	if errors.Is(err, store.ErrInvalidTransition) {
		// Another evaluator got there first.
		return nil
	}
	return err
}
