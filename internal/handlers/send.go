package handlers

import (
	"context"
	"net/http"

	"convoflow/internal/auth"
	"convoflow/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// MessageSender is the outbound path of the conversation service
type MessageSender interface {
	Send(ctx context.Context, userID string, req models.SendRequest) (*models.Message, error)
}

// SendMessageHandler sends a message on behalf of the caller
// @Summary Send message
// @Description Replies in a thread (thread_id) or starts one (contact_identifier + channel)
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SendRequest true "Message"
// @Success 200 {object} models.SendResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /api/messages/send [post]
func SendMessageHandler(sender MessageSender, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "send_api").Logger()
	return func(c echo.Context) error {
		var req models.SendRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.ThreadID == "" && req.ContactIdentifier == "" {
			return badRequest(c, "thread_id or contact_identifier is required")
		}

		userID := auth.UserID(c)
		msg, err := sender.Send(c.Request().Context(), userID, req)
		if err != nil {
			logger.Error().
				Err(err).
				Str("user_id", userID).
				Str("thread_id", req.ThreadID).
				Msg("Send failed")
			return fail(c, err)
		}

		return c.JSON(http.StatusOK, models.SendResponse{Success: true, Message: msg})
	}
}
