package queue

import "errors"

var (
	// ErrAlreadyQueued rejects a second admission while an entry is live.
	ErrAlreadyQueued = errors.New("user already queued")
	// ErrNotInQueue rejects a cancel for a user with no live entry.
	ErrNotInQueue = errors.New("user not in queue")
	// ErrQueueIDMismatch rejects a cancel carrying a stale token, so a slow
	// client cannot cancel a newer entry created by a fast rejoin.
	ErrQueueIDMismatch = errors.New("queue id does not match current entry")
	// ErrCategoryInactive rejects admission into a disabled category.
	ErrCategoryInactive = errors.New("category is not active")
)
