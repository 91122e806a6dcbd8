package events

import (
	"context"
	"encoding/json"
	"fmt"

	"convoflow/internal/models"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MetadataEventType is the Watermill metadata key holding the event type
const MetadataEventType = "event_type"

// EventType names an event "{channel}.{received|sent}"
func EventType(channel models.Channel, direction models.Direction) string {
	verb := "received"
	if direction == models.DirectionOutgoing {
		verb = "sent"
	}
	return string(channel) + "." + verb
}

// ToRawEvent converts a persisted message into a raw event with a fresh event id
func ToRawEvent(msg models.Message, participants []string) models.RawEvent {
	return models.RawEvent{
		EventID:   uuid.NewString(),
		Timestamp: msg.Timestamp,
		UserID:    msg.OwnerUserID,
		EventType: EventType(msg.Channel, msg.Direction),
		Data: models.EventData{
			ThreadID:          msg.ThreadID,
			Channel:           msg.Channel,
			Direction:         msg.Direction,
			ProviderMessageID: msg.ProviderMessageID,
			BodyText:          msg.Body,
			Subject:           msg.Subject,
			From:              msg.From,
			To:                msg.To,
			Participants:      participants,
		},
	}
}

// NewMessage wraps any event as a Watermill message whose UUID is eventID
func NewMessage(eventID, eventType string, v interface{}) (*message.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", eventID, err)
	}
	msg := message.NewMessage(eventID, payload)
	msg.Metadata.Set(MetadataEventType, eventType)
	return msg, nil
}

// Publisher hands raw events to the transport. A publish that keeps failing is parked in
// the outbox; events are never dropped without a log line.
type Publisher struct {
	pub    message.Publisher
	topic  string
	retry  RetryPolicy
	outbox Outbox
	logger zerolog.Logger
}

// NewPublisher creates a raw event publisher
func NewPublisher(pub message.Publisher, topic string, retry RetryPolicy, outbox Outbox, logger zerolog.Logger) *Publisher {
	return &Publisher{
		pub:    pub,
		topic:  topic,
		retry:  retry,
		outbox: outbox,
		logger: logger.With().Str("component", "event_publisher").Str("topic", topic).Logger(),
	}
}

// Publish emits the raw event for msg. The returned error is only non-nil when the event
// could neither be published nor parked; callers log it and carry on.
func (p *Publisher) Publish(ctx context.Context, msg models.Message, participants []string) (models.RawEvent, error) {
	event := ToRawEvent(msg, participants)

	err := p.retry.Execute(ctx, func() error {
		return p.send(event)
	})
	if err == nil {
		p.logger.Debug().
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Str("thread_id", event.Data.ThreadID).
			Msg("Published raw event")
		return event, nil
	}

	p.logger.Warn().Err(err).Str("event_id", event.EventID).Msg("Publish failed, parking event in outbox")

	// the request context may be what failed the publish
	if saveErr := p.outbox.Save(context.WithoutCancel(ctx), event); saveErr != nil {
		p.logger.Error().
			Err(saveErr).
			Str("event_id", event.EventID).
			Str("thread_id", event.Data.ThreadID).
			Msg("Failed to park event, it will not reach enrichment")
		return event, fmt.Errorf("event %s lost: publish: %v; outbox: %w", event.EventID, err, saveErr)
	}
	return event, nil
}

func (p *Publisher) send(event models.RawEvent) error {
	msg, err := NewMessage(event.EventID, event.EventType, event)
	if err != nil {
		return err
	}
	return p.pub.Publish(p.topic, msg)
}

// Flush republishes up to limit parked events, returning how many made it out
func (p *Publisher) Flush(ctx context.Context, limit int) (int, error) {
	entries, err := p.outbox.Pending(ctx, limit)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, entry := range entries {
		var event models.RawEvent
		if err := json.Unmarshal([]byte(entry.Payload), &event); err != nil {
			p.logger.Error().Err(err).Str("event_id", entry.EventID).Msg("Dropping unreadable outbox entry")
			if err := p.outbox.Delete(ctx, entry.EventID); err != nil {
				return flushed, err
			}
			continue
		}

		if err := p.send(event); err != nil {
			p.logger.Warn().Err(err).Str("event_id", entry.EventID).Int("attempts", entry.Attempts+1).Msg("Outbox republish failed")
			if err := p.outbox.MarkAttempt(ctx, entry.EventID); err != nil {
				return flushed, err
			}
			continue
		}

		if err := p.outbox.Delete(ctx, entry.EventID); err != nil {
			return flushed, err
		}
		flushed++
	}

	if flushed > 0 {
		p.logger.Info().Int("flushed", flushed).Int("pending", len(entries)-flushed).Msg("Flushed outbox")
	}
	return flushed, nil
}
