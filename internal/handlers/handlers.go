package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"voicematch/internal/notify"
	"voicematch/internal/queue"
	"voicematch/internal/store"
)

// QueueService is the queue surface the HTTP layer exposes.
type QueueService interface {
	Join(ctx context.Context, userID, categoryID string) (*queue.JoinResult, error)
	Cancel(ctx context.Context, userID, queueID string) error
	Status(ctx context.Context, userID string) (*queue.StatusView, error)
}

// ContinuityService is the call-lifecycle surface.
type ContinuityService interface {
	MarkDisconnected(ctx context.Context, userID string) error
	MarkReconnected(ctx context.Context, userID string) error
	StartCall(ctx context.Context, callID string) error
	EndCall(ctx context.Context, callID, reason string) error
}

type TokenGranter interface {
	GrantToken(ctx context.Context) (string, error)
}

type Handlers struct {
	queue      QueueService
	continuity ContinuityService
	dispatcher *notify.Dispatcher
	tokens     TokenGranter
}

func New(queueSvc QueueService, cont ContinuityService, dispatcher *notify.Dispatcher, tokens TokenGranter) *Handlers {
	return &Handlers{queue: queueSvc, continuity: cont, dispatcher: dispatcher, tokens: tokens}
}

func SetupRoutes(e *echo.Echo, h *Handlers) {
	api := e.Group("/api/v1")

	api.POST("/queue/join", h.JoinQueue)
	api.POST("/queue/cancel", h.CancelQueue)
	api.GET("/queue/status", h.GetQueueStatus)

	api.POST("/calls/:callId/start", h.StartCall)
	api.POST("/calls/:callId/end", h.EndCall)

	api.GET("/token", h.GrantToken)
	api.POST("/presence", h.Presence)
}

func errJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// unavailable hides store internals from the client; the operation is safe to
// retry.
func unavailable(c echo.Context, op string, err error) error {
	slog.Error(op, "error", err)
	return errJSON(c, http.StatusServiceUnavailable, "temporarily unavailable, try again")
}

func (h *Handlers) JoinQueue(c echo.Context) error {
	var req struct {
		UserID     string `json:"user_id"`
		CategoryID string `json:"category_id"`
	}
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request")
	}
	if req.UserID == "" || req.CategoryID == "" {
		return errJSON(c, http.StatusBadRequest, "user_id and category_id are required")
	}

	res, err := h.queue.Join(c.Request().Context(), req.UserID, req.CategoryID)
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		return errJSON(c, http.StatusConflict, "already queued")
	case errors.Is(err, queue.ErrCategoryInactive):
		return errJSON(c, http.StatusBadRequest, "category is not active")
	case err != nil:
		return unavailable(c, "join queue", err)
	}

	// Position push mirrors the response so clients that joined elsewhere
	// stay in sync.
	h.dispatcher.QueueUpdate(c.Request().Context(), req.UserID, res.QueueID, res.Position, res.EstimatedWaitSeconds)

	return c.JSON(http.StatusOK, res)
}

func (h *Handlers) CancelQueue(c echo.Context) error {
	var req struct {
		UserID  string `json:"user_id"`
		QueueID string `json:"queue_id"`
	}
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request")
	}
	if req.UserID == "" || req.QueueID == "" {
		return errJSON(c, http.StatusBadRequest, "user_id and queue_id are required")
	}

	err := h.queue.Cancel(c.Request().Context(), req.UserID, req.QueueID)
	switch {
	case errors.Is(err, queue.ErrNotInQueue):
		return errJSON(c, http.StatusNotFound, "not in queue")
	case errors.Is(err, queue.ErrQueueIDMismatch):
		return errJSON(c, http.StatusConflict, "queue id does not match current entry")
	case err != nil:
		return unavailable(c, "cancel queue", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handlers) GetQueueStatus(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return errJSON(c, http.StatusBadRequest, "user_id is required")
	}

	view, err := h.queue.Status(c.Request().Context(), userID)
	if err != nil {
		return unavailable(c, "queue status", err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handlers) StartCall(c echo.Context) error {
	callID := c.Param("callId")

	err := h.continuity.StartCall(c.Request().Context(), callID)
	switch {
	case errors.Is(err, store.ErrCallNotFound):
		return errJSON(c, http.StatusNotFound, "call not found")
	case errors.Is(err, store.ErrInvalidTransition):
		return errJSON(c, http.StatusConflict, "call is not ready")
	case err != nil:
		return unavailable(c, "start call", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handlers) EndCall(c echo.Context) error {
	callID := c.Param("callId")

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional; a bare hang-up carries no reason.
	_ = c.Bind(&req)
	if req.Reason == "" {
		req.Reason = "hangup"
	}

	err := h.continuity.EndCall(c.Request().Context(), callID, req.Reason)
	switch {
	case errors.Is(err, store.ErrCallNotFound):
		return errJSON(c, http.StatusNotFound, "call not found")
	case errors.Is(err, store.ErrInvalidTransition):
		return errJSON(c, http.StatusConflict, "call is not in progress")
	case err != nil:
		return unavailable(c, "end call", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ended"})
}

func (h *Handlers) GrantToken(c echo.Context) error {
	token, err := h.tokens.GrantToken(c.Request().Context())
	if err != nil {
		return unavailable(c, "grant token", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}
