package tasks

import "voicematch/internal/notify"

const (
	TypeMatchTick      = "match:tick"
	TypeCleanupTick    = "cleanup:tick"
	TypeContinuityTick = "continuity:tick"
	TypeNotifyUser     = "notify:user"
)

type NotifyUserPayload struct {
	UserID   string          `json:"user_id"`
	Envelope notify.Envelope `json:"envelope"`
}
