// Package handlers holds the HTTP handlers: provider webhooks, the thread read API, the send
// path and health checks.
package handlers

import (
	"errors"
	"net/http"

	"convoflow/internal/channels"
	"convoflow/internal/conversation"
	"convoflow/internal/models"
	"convoflow/internal/threads"

	"github.com/labstack/echo/v4"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, threads.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, threads.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrInvalidMessage), errors.Is(err, channels.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrChannelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an ErrorResponse. Internal errors are not echoed back.
func fail(c echo.Context, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return c.JSON(status, models.ErrorResponse{Success: false, Error: msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{Success: false, Error: msg})
}
