// Package indexer splits enriched events into chunks, embeds them and upserts the vectors.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"convoflow/internal/models"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// Embedder returns one vector per input text, in input order
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex stores chunks. Upsert replaces points with the same id.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []models.VectorChunk) error
}

// Indexer turns enriched events into vector chunks
type Indexer struct {
	embedder  Embedder
	index     VectorIndex
	opts      ChunkOptions
	batchSize int
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewIndexer creates an indexer. timeout bounds each embedding call.
func NewIndexer(embedder Embedder, index VectorIndex, opts ChunkOptions, batchSize int, timeout time.Duration, logger zerolog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Indexer{
		embedder:  embedder,
		index:     index,
		opts:      opts,
		batchSize: batchSize,
		timeout:   timeout,
		logger:    logger.With().Str("component", "chunk_indexer").Logger(),
	}
}

// ChunkID is the deterministic id of the i-th chunk of an event
func ChunkID(eventID string, index int) string {
	return fmt.Sprintf("%s-%d", eventID, index)
}

// Index chunks, embeds and upserts one event, returning the number of chunks written.
// Any error means nothing is guaranteed to be stored and the event should be redelivered.
func (ix *Indexer) Index(ctx context.Context, event models.EnrichedEvent) (int, error) {
	chunks := Split(event.ChunkableContent, ix.opts)
	if len(chunks) == 0 {
		ix.logger.Debug().Str("event_id", event.EventID).Msg("Nothing to index")
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	points := make([]models.VectorChunk, len(chunks))
	for i, c := range chunks {
		id := ChunkID(event.EventID, c.Index)
		points[i] = models.VectorChunk{
			ID:        id,
			Embedding: vectors[i],
			Metadata:  chunkMetadata(event, id, c, len(chunks)),
		}
	}

	if err := ix.index.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("failed to upsert chunks for event %s: %w", event.EventID, err)
	}
	return len(points), nil
}

func (ix *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += ix.batchSize {
		end := min(start+ix.batchSize, len(texts))

		batch, err := ix.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if ix.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.timeout)
		defer cancel()
	}
	return ix.embedder.CreateEmbeddings(ctx, texts)
}

func chunkMetadata(event models.EnrichedEvent, id string, c Chunk, count int) models.ChunkMetadata {
	return models.ChunkMetadata{
		ChunkID:           id,
		EventID:           event.EventID,
		ThreadID:          event.Data.ThreadID,
		UserID:            event.UserID,
		EventType:         event.EventType,
		Timestamp:         event.Timestamp,
		ChunkIndex:        c.Index,
		ChunkCount:        count,
		CharStart:         c.CharStart,
		CharEnd:           c.CharEnd,
		Sentiment:         event.Sentiment.Label,
		SentimentPositive: event.Sentiment.Scores.Positive,
		SentimentNegative: event.Sentiment.Scores.Negative,
		SentimentNeutral:  event.Sentiment.Scores.Neutral,
		SentimentMixed:    event.Sentiment.Scores.Mixed,
		Participants:      event.Data.Participants,
		Subject:           event.Data.Subject,
		Text:              c.Text,
	}
}

// Handle is the Watermill consumer. Malformed payloads are acked; index failures nack the
// message so the transport redelivers the whole event.
func (ix *Indexer) Handle(msg *message.Message) error {
	var event models.EnrichedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.EventID == "" {
		ix.logger.Error().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Dropping malformed enriched event")
		return nil
	}

	n, err := ix.Index(msg.Context(), event)
	if err != nil {
		ix.logger.Error().
			Err(err).
			Str("event_id", event.EventID).
			Msg("Failed to index event")
		return err
	}

	ix.logger.Info().
		Str("event_id", event.EventID).
		Str("thread_id", event.Data.ThreadID).
		Int("chunks", n).
		Msg("Indexed event")
	return nil
}
