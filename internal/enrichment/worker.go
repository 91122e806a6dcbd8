// Package enrichment turns raw events into enriched events: a natural-language description,
// a sentiment label and the text to index.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"convoflow/internal/events"
	"convoflow/internal/models"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker enriches raw events. Upstream failures fall back to deterministic defaults so an
// enriched event is always produced.
type Worker struct {
	describer Describer
	sentiment SentimentClassifier
	timeout   time.Duration
	maxBytes  int
	logger    zerolog.Logger
}

// NewWorker creates an enrichment worker. timeout bounds each upstream call; maxBytes is the
// sentiment text budget.
func NewWorker(describer Describer, sentiment SentimentClassifier, timeout time.Duration, maxBytes int, logger zerolog.Logger) *Worker {
	return &Worker{
		describer: describer,
		sentiment: sentiment,
		timeout:   timeout,
		maxBytes:  maxBytes,
		logger:    logger.With().Str("component", "enrichment_worker").Logger(),
	}
}

// FallbackDescription is used whenever the describer fails
func FallbackDescription(event models.RawEvent) string {
	ts := time.UnixMilli(event.Timestamp).UTC().Format("Jan 2, 2006 15:04 MST")
	return fmt.Sprintf("%s event occurred on %s.", event.EventType, ts)
}

// Enrich describes and classifies event concurrently and waits for both
func (w *Worker) Enrich(ctx context.Context, event models.RawEvent) models.EnrichedEvent {
	sentimentText := ExtractText(event.Data.Subject, event.Data.BodyText, w.maxBytes)

	var description string
	sentiment := models.NeutralSentiment()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		description = w.describe(gctx, event)
		return nil
	})
	g.Go(func() error {
		if sentimentText != "" {
			sentiment = w.classify(gctx, event.EventID, sentimentText)
		}
		return nil
	})
	_ = g.Wait()

	return models.EnrichedEvent{
		RawEvent:                   event,
		NaturalLanguageDescription: description,
		Sentiment:                  sentiment,
		ChunkableContent:           chunkableContent(description, event),
	}
}

func (w *Worker) describe(ctx context.Context, event models.RawEvent) string {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	description, err := w.describer.Describe(ctx, event)
	if err != nil {
		w.logger.Warn().Err(err).Str("event_id", event.EventID).Msg("Description failed, using fallback")
		return FallbackDescription(event)
	}
	return description
}

func (w *Worker) classify(ctx context.Context, eventID, text string) models.Sentiment {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	sentiment, err := w.sentiment.Classify(ctx, text)
	if err != nil {
		w.logger.Warn().Err(err).Str("event_id", eventID).Msg("Sentiment failed, using neutral")
		return models.NeutralSentiment()
	}
	return sentiment
}

func chunkableContent(description string, event models.RawEvent) string {
	parts := []string{description}
	if body := ExtractText(event.Data.Subject, event.Data.BodyText, 0); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n")
}

// Handle is the Watermill handler: one raw event in, one enriched event out. A payload that
// is not a raw event is logged and acked, since redelivery cannot fix it.
func (w *Worker) Handle(msg *message.Message) ([]*message.Message, error) {
	var event models.RawEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.EventID == "" {
		w.logger.Error().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Dropping malformed raw event")
		return nil, nil
	}

	enriched := w.Enrich(msg.Context(), event)

	out, err := events.NewMessage(event.EventID, event.EventType, enriched)
	if err != nil {
		return nil, err
	}

	w.logger.Info().
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("sentiment", enriched.Sentiment.Label).
		Msg("Enriched event")
	return []*message.Message{out}, nil
}
