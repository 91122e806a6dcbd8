package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"convoflow/internal/channels"
	"convoflow/internal/conversation"
	"convoflow/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 10 << 20

// Receiver ingests one canonical inbound message for a platform user
type Receiver interface {
	Receive(ctx context.Context, userID string, in channels.Inbound) (*conversation.Result, error)
}

// WebhookHandler serves the provider callbacks. The platform user is the :userId path segment.
type WebhookHandler struct {
	receiver    Receiver
	verifyToken string
	appSecret   string
	logger      zerolog.Logger
}

// NewWebhookHandler creates the webhook endpoints. verifyToken is the WhatsApp subscription
// secret; appSecret, when set, is required to sign every WhatsApp POST.
func NewWebhookHandler(receiver Receiver, verifyToken, appSecret string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		receiver:    receiver,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		logger:      logger.With().Str("component", "webhooks").Logger(),
	}
}

// WhatsAppVerify answers the subscription handshake
// @Summary WhatsApp webhook verification
// @Tags Webhooks
// @Param userId path string true "Platform user id"
// @Param hub.mode query string true "subscribe"
// @Param hub.verify_token query string true "Shared verification token"
// @Param hub.challenge query string true "Challenge to echo"
// @Success 200 {string} string
// @Failure 403 {object} models.ErrorResponse
// @Router /webhooks/whatsapp/{userId} [get]
func (h *WebhookHandler) WhatsAppVerify(c echo.Context) error {
	challenge, ok := channels.VerifyHandshake(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
		h.verifyToken,
	)
	if !ok {
		h.logger.Warn().Str("user_id", c.Param("userId")).Msg("WhatsApp verification rejected")
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Success: false, Error: "verification failed"})
	}
	return c.String(http.StatusOK, challenge)
}

// WhatsAppInbound accepts a Cloud API delivery
// @Summary WhatsApp inbound messages
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param userId path string true "Platform user id"
// @Success 200 {object} models.WebhookResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.WebhookResponse
// @Router /webhooks/whatsapp/{userId} [post]
func (h *WebhookHandler) WhatsAppInbound(c echo.Context) error {
	userID := c.Param("userId")

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}

	if h.appSecret != "" && !channels.VerifySignature(body, c.Request().Header.Get("X-Hub-Signature-256"), h.appSecret) {
		h.logger.Warn().Str("user_id", userID).Msg("Rejected unsigned WhatsApp webhook")
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Success: false, Error: "invalid signature"})
	}

	batch, err := channels.ParseWhatsAppWebhook(body)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("Rejected WhatsApp webhook")
		return badRequest(c, err.Error())
	}

	for _, perr := range batch.Errors {
		h.logger.Warn().Err(perr).Str("user_id", userID).Msg("Skipping malformed WhatsApp record")
	}

	response := models.WebhookResponse{Skipped: batch.Skipped + len(batch.Errors)}
	failed := h.receiveAll(c.Request().Context(), userID, batch.Messages, &response)
	return h.respond(c, response, failed)
}

// EmailInbound accepts a SendGrid Inbound Parse post
// @Summary Inbound email
// @Tags Webhooks
// @Accept mpfd
// @Produce json
// @Param userId path string true "Platform user id"
// @Success 200 {object} models.WebhookResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.WebhookResponse
// @Router /webhooks/email/{userId} [post]
func (h *WebhookHandler) EmailInbound(c echo.Context) error {
	userID := c.Param("userId")

	form, err := c.FormParams()
	if err != nil {
		return badRequest(c, "unreadable form")
	}

	in, err := channels.ParseInboundEmail(form)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("Rejected inbound email")
		return badRequest(c, err.Error())
	}

	var response models.WebhookResponse
	failed := h.receiveAll(c.Request().Context(), userID, []channels.Inbound{*in}, &response)
	return h.respond(c, response, failed)
}

// receiveAll handles every record on its own; one failure never stops the rest
func (h *WebhookHandler) receiveAll(ctx context.Context, userID string, msgs []channels.Inbound, response *models.WebhookResponse) int {
	failed := 0
	for _, in := range msgs {
		res, err := h.receiver.Receive(ctx, userID, in)
		switch {
		case errors.Is(err, conversation.ErrInvalidMessage):
			h.logger.Warn().Err(err).Str("user_id", userID).Str("provider_message_id", in.ProviderMessageID).Msg("Skipping invalid message")
			response.Skipped++
		case err != nil:
			h.logger.Error().Err(err).Str("user_id", userID).Str("provider_message_id", in.ProviderMessageID).Msg("Failed to receive message")
			failed++
		case res.Duplicate:
			response.Duplicates++
		default:
			response.Accepted++
		}
	}
	return failed
}

// respond asks the provider to redeliver when any record failed; stored records come back
// as duplicates
func (h *WebhookHandler) respond(c echo.Context, response models.WebhookResponse, failed int) error {
	if failed > 0 {
		return c.JSON(http.StatusInternalServerError, response)
	}
	response.Success = true
	return c.JSON(http.StatusOK, response)
}
