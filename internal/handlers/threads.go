package handlers

import (
	"context"
	"net/http"
	"strings"

	"convoflow/internal/auth"
	"convoflow/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ThreadReader is the thread registry surface the read API uses
type ThreadReader interface {
	ThreadsForUser(ctx context.Context, userID string) ([]models.Thread, error)
	CheckAccess(ctx context.Context, userID, threadID string) error
	Messages(ctx context.Context, threadID string) ([]models.Message, error)
	AddParticipant(ctx context.Context, actingUserID, threadID, userID string) error
}

// ReadTracker counts and clears unread incoming messages
type ReadTracker interface {
	UnreadCountForThread(ctx context.Context, threadID string) (int, error)
	MarkRead(ctx context.Context, threadID string, ids []string) (int64, error)
}

// ThreadHandler serves the authenticated thread API
type ThreadHandler struct {
	threads ThreadReader
	reads   ReadTracker
	logger  zerolog.Logger
}

// NewThreadHandler creates the thread API handlers
func NewThreadHandler(threads ThreadReader, reads ReadTracker, logger zerolog.Logger) *ThreadHandler {
	return &ThreadHandler{
		threads: threads,
		reads:   reads,
		logger:  logger.With().Str("component", "thread_api").Logger(),
	}
}

// List returns the caller's owned and shared threads with unread counts
// @Summary List threads
// @Tags Threads
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ThreadsResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/threads [get]
func (h *ThreadHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserID(c)

	list, err := h.threads.ThreadsForUser(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list threads")
		return fail(c, err)
	}

	summaries := make([]models.ThreadSummary, 0, len(list))
	for _, t := range list {
		unread, err := h.reads.UnreadCountForThread(ctx, t.ThreadID)
		if err != nil {
			h.logger.Error().Err(err).Str("thread_id", t.ThreadID).Msg("Failed to count unread messages")
			return fail(c, err)
		}
		summaries = append(summaries, models.ThreadSummary{Thread: t, UnreadCount: unread})
	}

	return c.JSON(http.StatusOK, models.ThreadsResponse{Success: true, Threads: summaries})
}

// Messages returns a thread's messages in timestamp order
// @Summary Thread messages
// @Tags Threads
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread id"
// @Success 200 {object} models.MessagesResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /api/threads/{id}/messages [get]
func (h *ThreadHandler) Messages(c echo.Context) error {
	threadID, err := h.authorize(c)
	if err != nil {
		return fail(c, err)
	}

	msgs, err := h.threads.Messages(c.Request().Context(), threadID)
	if err != nil {
		h.logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to load messages")
		return fail(c, err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	return c.JSON(http.StatusOK, models.MessagesResponse{Success: true, ThreadID: threadID, Messages: msgs})
}

// Unread returns the thread's unread incoming count
// @Summary Unread count
// @Tags Threads
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread id"
// @Success 200 {object} models.UnreadResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /api/threads/{id}/unread [get]
func (h *ThreadHandler) Unread(c echo.Context) error {
	threadID, err := h.authorize(c)
	if err != nil {
		return fail(c, err)
	}

	n, err := h.reads.UnreadCountForThread(c.Request().Context(), threadID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, models.UnreadResponse{Success: true, ThreadID: threadID, Unread: n})
}

// MarkRead clears the unread flag for the listed messages, or all of them
// @Summary Mark messages read
// @Tags Threads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread id"
// @Param request body models.MarkReadRequest false "Provider message ids; empty marks all"
// @Success 200 {object} models.MarkReadResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /api/threads/{id}/read [post]
func (h *ThreadHandler) MarkRead(c echo.Context) error {
	threadID, err := h.authorize(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.MarkReadRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	n, err := h.reads.MarkRead(c.Request().Context(), threadID, req.MessageIDs)
	if err != nil {
		h.logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to mark messages read")
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, models.MarkReadResponse{Success: true, Updated: n})
}

// AddParticipant shares the thread with another user; owner only
// @Summary Share thread
// @Tags Threads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread id"
// @Param request body models.AddParticipantRequest true "User to add"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Router /api/threads/{id}/participants [post]
func (h *ThreadHandler) AddParticipant(c echo.Context) error {
	var req models.AddParticipantRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return badRequest(c, "user_id is required")
	}

	acting := auth.UserID(c)
	threadID := c.Param("id")
	if err := h.threads.AddParticipant(c.Request().Context(), acting, threadID, req.UserID); err != nil {
		return fail(c, err)
	}

	h.logger.Info().
		Str("thread_id", threadID).
		Str("by", acting).
		Str("participant", req.UserID).
		Msg("Shared thread")
	return c.NoContent(http.StatusNoContent)
}

func (h *ThreadHandler) authorize(c echo.Context) (string, error) {
	threadID := c.Param("id")
	if err := h.threads.CheckAccess(c.Request().Context(), auth.UserID(c), threadID); err != nil {
		return "", err
	}
	return threadID, nil
}
