package models

import "time"

type CallStatus string

const (
	CallStatusReady      CallStatus = "READY"
	CallStatusInProgress CallStatus = "IN_PROGRESS"
	CallStatusCompleted  CallStatus = "COMPLETED"
	CallStatusFailed     CallStatus = "FAILED"
)

// Terminal reports whether a call in this status can never change again.
func (s CallStatus) Terminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// Call is the durable record of a pairing. Created READY by the pairer,
// started and ended by the continuity layer, immutable once terminal.
type Call struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	UserA      string     `gorm:"index;not null;size:36" json:"user_a"`
	UserB      string     `gorm:"index;not null;size:36" json:"user_b"`
	CategoryID string     `gorm:"index;not null;size:36" json:"category_id"`
	Status     CallStatus `gorm:"index;not null;size:16" json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Involves reports whether userID is one of the two participants.
func (c *Call) Involves(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Partner returns the other participant, or "" when userID is not on the call.
func (c *Call) Partner(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

// Category is a matching topic users queue under.
type Category struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Active    bool      `gorm:"index;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
