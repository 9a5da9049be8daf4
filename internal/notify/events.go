package notify

import "time"

type EventType string

const (
	EventMatchSuccess   EventType = "match_success"
	EventMatchCancelled EventType = "match_cancelled"
	EventQueueUpdate    EventType = "queue_update"
	EventCallStart      EventType = "call_start"
	EventCallEnd        EventType = "call_end"
)

// Envelope is the wire shape pushed to a client's channel.
type Envelope struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type MatchSuccessData struct {
	CallID     string `json:"call_id"`
	CategoryID string `json:"category_id"`
	PartnerID  string `json:"partner_id"`
	// Channel the client should join on the RTC provider.
	Channel string `json:"channel"`
}

type MatchCancelledData struct {
	Reason string `json:"reason"`
}

type QueueUpdateData struct {
	QueueID              string `json:"queue_id"`
	Position             int    `json:"position"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds"`
}

type CallStartData struct {
	CallID    string `json:"call_id"`
	PartnerID string `json:"partner_id"`
}

type CallEndData struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}
