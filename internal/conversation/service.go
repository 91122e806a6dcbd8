// Package conversation is the ingestion and send path: it ties channel messages to threads,
// stores them and hands them to the event pipeline.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"convoflow/internal/channels"
	"convoflow/internal/messages"
	"convoflow/internal/models"
	"convoflow/internal/threads"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidMessage     = errors.New("invalid message")
	ErrChannelUnavailable = errors.New("channel not configured")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// ThreadRegistry is the part of threads.Registry the service needs
type ThreadRegistry interface {
	ResolveOrCreateThread(ctx context.Context, ownerUserID, contact string, channel models.Channel) (string, error)
	Thread(ctx context.Context, threadID string) (*models.Thread, error)
	CheckAccess(ctx context.Context, userID, threadID string) error
	RecordActivity(ctx context.Context, threadID string) error
}

// MessageStore appends to a thread's message log
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
}

// EventPublisher hands stored messages to the enrichment pipeline
type EventPublisher interface {
	Publish(ctx context.Context, msg models.Message, participants []string) (models.RawEvent, error)
}

// ReplyResolver picks the provider id an outbound message should answer
type ReplyResolver interface {
	FindReplyTarget(ctx context.Context, threadID string) (string, bool, error)
}

// Result describes what Receive did with one inbound message
type Result struct {
	ThreadID  string
	Duplicate bool
	Message   *models.Message
}

// Service receives and sends messages
type Service struct {
	threads   ThreadRegistry
	messages  MessageStore
	publisher EventPublisher
	replies   ReplyResolver
	senders   map[models.Channel]channels.Sender
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService wires the ingestion path. senders may omit channels that are not configured.
func NewService(registry ThreadRegistry, store MessageStore, publisher EventPublisher, replies ReplyResolver, senders map[models.Channel]channels.Sender, logger zerolog.Logger) *Service {
	return &Service{
		threads:   registry,
		messages:  store,
		publisher: publisher,
		replies:   replies,
		senders:   senders,
		now:       time.Now,
		logger:    logger.With().Str("component", "conversation_service").Logger(),
	}
}

// Receive stores one inbound message for userID. Redelivered messages are reported as
// duplicates, not errors, and are not republished.
func (s *Service) Receive(ctx context.Context, userID string, in channels.Inbound) (*Result, error) {
	if userID == "" {
		return nil, invalid("missing user id")
	}
	if !in.Channel.Valid() {
		return nil, invalid("unsupported channel %q", in.Channel)
	}
	if strings.TrimSpace(in.ProviderMessageID) == "" {
		return nil, invalid("missing provider message id")
	}

	contact, err := threads.NormalizeContact(in.Channel, in.From)
	if err != nil {
		return nil, invalid("sender: %v", err)
	}

	threadID, err := s.threads.ResolveOrCreateThread(ctx, userID, contact, in.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve thread: %w", err)
	}

	ts := in.Timestamp
	if ts == 0 {
		ts = s.now().UnixMilli()
	}
	msg := &models.Message{
		ThreadID:          threadID,
		Timestamp:         ts,
		ProviderMessageID: in.ProviderMessageID,
		Channel:           in.Channel,
		Direction:         models.DirectionIncoming,
		Body:              in.Body,
		Subject:           in.Subject,
		From:              contact,
		To:                in.To,
		Headers:           in.Headers,
		OwnerUserID:       userID,
		Unread:            true,
	}

	result := &Result{ThreadID: threadID, Message: msg}
	err = s.messages.Append(ctx, msg)
	switch {
	case errors.Is(err, messages.ErrDuplicate):
		s.logger.Info().
			Str("thread_id", threadID).
			Str("provider_message_id", in.ProviderMessageID).
			Msg("Duplicate inbound message, already stored")
		result.Duplicate = true
	case err != nil:
		return nil, err
	}

	s.recordActivity(ctx, threadID)
	if !result.Duplicate {
		s.publish(ctx, *msg)
	}
	return result, nil
}

// Send delivers a message in an existing thread (req.ThreadID, access-checked) or to a contact,
// answering the thread's latest usable inbound id when there is one.
func (s *Service) Send(ctx context.Context, userID string, req models.SendRequest) (*models.Message, error) {
	if userID == "" {
		return nil, invalid("missing user id")
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, invalid("body is required")
	}

	thread, err := s.sendThread(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	sender, ok := s.senders[thread.Channel]
	if !ok || sender == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelUnavailable, thread.Channel)
	}

	replyTo, _, err := s.replies.FindReplyTarget(ctx, thread.ThreadID)
	if err != nil {
		// still deliverable as a fresh message
		s.logger.Warn().Err(err).Str("thread_id", thread.ThreadID).Msg("Reply target lookup failed")
		replyTo = ""
	}

	sent, err := sender.Send(ctx, channels.Outbound{
		To:      thread.ContactIdentifier,
		Subject: req.Subject,
		Body:    req.Body,
		ReplyTo: replyTo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send %s message: %w", thread.Channel, err)
	}

	headers := models.Headers{}
	if sent.MessageID != "" {
		headers[models.HeaderMessageID] = sent.MessageID
	}
	if sent.ProviderResultID != "" {
		headers[models.HeaderProviderResultID] = sent.ProviderResultID
	}
	if replyTo != "" {
		headers[models.HeaderInReplyTo] = replyTo
	}

	providerID := sent.MessageID
	if providerID == "" {
		providerID = sent.ProviderResultID
	}

	msg := &models.Message{
		ThreadID:          thread.ThreadID,
		Timestamp:         s.now().UnixMilli(),
		ProviderMessageID: providerID,
		Channel:           thread.Channel,
		Direction:         models.DirectionOutgoing,
		Body:              req.Body,
		Subject:           req.Subject,
		To:                thread.ContactIdentifier,
		Headers:           headers,
		OwnerUserID:       thread.OwnerUserID,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		s.logger.Error().
			Err(err).
			Str("thread_id", thread.ThreadID).
			Str("provider_message_id", providerID).
			Msg("Message sent but not recorded")
		return nil, fmt.Errorf("message sent but not recorded: %w", err)
	}

	s.logger.Info().
		Str("thread_id", thread.ThreadID).
		Str("channel", string(thread.Channel)).
		Str("user_id", userID).
		Bool("reply", replyTo != "").
		Msg("Sent message")

	s.recordActivity(ctx, thread.ThreadID)
	s.publish(ctx, *msg)
	return msg, nil
}

func (s *Service) sendThread(ctx context.Context, userID string, req models.SendRequest) (*models.Thread, error) {
	if req.ThreadID != "" {
		if err := s.threads.CheckAccess(ctx, userID, req.ThreadID); err != nil {
			return nil, err
		}
		return s.threads.Thread(ctx, req.ThreadID)
	}

	if !req.Channel.Valid() {
		return nil, invalid("unsupported channel %q", req.Channel)
	}
	contact, err := threads.NormalizeContact(req.Channel, req.ContactIdentifier)
	if err != nil {
		return nil, invalid("recipient: %v", err)
	}
	threadID, err := s.threads.ResolveOrCreateThread(ctx, userID, contact, req.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve thread: %w", err)
	}
	return s.threads.Thread(ctx, threadID)
}

// recordActivity refreshes thread counters; they are recounted on every write so a failure
// here heals on the next one.
func (s *Service) recordActivity(ctx context.Context, threadID string) {
	if err := s.threads.RecordActivity(ctx, threadID); err != nil {
		s.logger.Warn().Err(err).Str("thread_id", threadID).Msg("Failed to refresh thread stats")
	}
}

func (s *Service) publish(ctx context.Context, msg models.Message) {
	var participants []string
	if t, err := s.threads.Thread(ctx, msg.ThreadID); err == nil {
		participants = append([]string{t.OwnerUserID}, t.Participants...)
	} else {
		s.logger.Warn().Err(err).Str("thread_id", msg.ThreadID).Msg("Publishing without participants")
		participants = []string{msg.OwnerUserID}
	}

	if _, err := s.publisher.Publish(ctx, msg, participants); err != nil {
		s.logger.Error().Err(err).Str("thread_id", msg.ThreadID).Msg("Failed to publish event")
	}
}
