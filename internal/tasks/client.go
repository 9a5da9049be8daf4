package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"voicematch/internal/notify"
)

// Client enqueues fire-and-forget work. It is the dispatcher's outbox: the
// notification leaves the originating request here and is delivered by the
// worker pool.
type Client struct {
	asynq *asynq.Client
}

func NewClient(c *asynq.Client) *Client {
	return &Client{asynq: c}
}

var _ notify.Outbox = (*Client)(nil)

// EnqueueNotify schedules a single push delivery attempt. MaxRetry is zero:
// delivery is at-most-once and a failure is only ever logged.
func (c *Client) EnqueueNotify(userID string, env notify.Envelope) error {
	payload, err := json.Marshal(NotifyUserPayload{UserID: userID, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}
	task := asynq.NewTask(TypeNotifyUser, payload)
	if _, err := c.asynq.Enqueue(task, asynq.MaxRetry(0), asynq.Queue("critical")); err != nil {
		return fmt.Errorf("enqueue notify for user %s: %w", userID, err)
	}
	return nil
}
