package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// presenceEvent is the shape PubNub posts to the presence webhook when a
// client joins or leaves its channel. These session events are the
// connectivity signal the continuity layer consumes.
type presenceEvent struct {
	Action  string `json:"action"` // join, leave, timeout
	UUID    string `json:"uuid"`
	Channel string `json:"channel"`
}

func (h *Handlers) Presence(c echo.Context) error {
	var ev presenceEvent
	if err := c.Bind(&ev); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid presence event")
	}

	userID := userFromChannel(ev.Channel)
	if userID == "" {
		userID = ev.UUID
	}
	if userID == "" {
		return errJSON(c, http.StatusBadRequest, "presence event has no user")
	}

	ctx := c.Request().Context()
	var err error
	switch ev.Action {
	case "join", "state-change":
		err = h.continuity.MarkReconnected(ctx, userID)
	case "leave", "timeout":
		err = h.continuity.MarkDisconnected(ctx, userID)
	default:
		// Other presence actions are not connectivity signals.
		return c.NoContent(http.StatusOK)
	}
	if err != nil {
		return unavailable(c, "presence "+ev.Action, err)
	}

	return c.NoContent(http.StatusOK)
}

// userFromChannel extracts the user id from a per-user channel name as built
// by notify.UserChannel.
func userFromChannel(channel string) string {
	id, ok := strings.CutPrefix(channel, "user-")
	if !ok {
		return ""
	}
	return id
}
