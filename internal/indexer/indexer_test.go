package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"convoflow/internal/models"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
	short   bool
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i)}
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type fakeIndex struct {
	calls  int
	points []models.VectorChunk
	err    error
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []models.VectorChunk) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, chunks...)
	return nil
}

func enrichedEvent(content string) models.EnrichedEvent {
	return models.EnrichedEvent{
		RawEvent: models.RawEvent{
			EventID:   "evt-1",
			Timestamp: 1700000000000,
			UserID:    "user-1",
			EventType: "email.received",
			Data: models.EventData{
				ThreadID:     "thread-1",
				Subject:      "Order 1234",
				Participants: []string{"user-1", "user-2"},
			},
		},
		NaturalLanguageDescription: "A customer asked about an order.",
		Sentiment: models.Sentiment{
			Label:  models.SentimentNegative,
			Scores: models.SentimentScores{Negative: 0.8, Neutral: 0.2},
		},
		ChunkableContent: content,
	}
}

func longContent() string {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "Parcel %d has not arrived and I would like an update please. ", i)
	}
	return b.String()
}

func newTestIndexer(e Embedder, idx VectorIndex, batch int) *Indexer {
	return NewIndexer(e, idx, ChunkOptions{MaxSize: 100, Overlap: 20, MinSize: 10}, batch, time.Second, zerolog.Nop())
}

func TestIndex_BatchesAndPreservesOrder(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}
	ix := newTestIndexer(embedder, index, 3)

	n, err := ix.Index(context.Background(), enrichedEvent(longContent()))
	require.NoError(t, err)

	chunks := Split(longContent(), ix.opts)
	require.Greater(t, len(chunks), 3)
	assert.Equal(t, len(chunks), n)
	assert.Equal(t, 1, index.calls)
	require.Len(t, index.points, len(chunks))

	var sent int
	for _, b := range embedder.batches {
		assert.LessOrEqual(t, len(b), 3)
		sent += len(b)
	}
	assert.Equal(t, len(chunks), sent)

	for i, p := range index.points {
		assert.Equal(t, ChunkID("evt-1", i), p.ID)
		assert.Equal(t, float32(len(chunks[i].Text)), p.Embedding[0])
		assert.Equal(t, chunks[i].Text, p.Metadata.Text)
		assert.Equal(t, i, p.Metadata.ChunkIndex)
		assert.Equal(t, len(chunks), p.Metadata.ChunkCount)
		assert.Equal(t, chunks[i].CharStart, p.Metadata.CharStart)
		assert.Equal(t, "thread-1", p.Metadata.ThreadID)
		assert.Equal(t, models.SentimentNegative, p.Metadata.Sentiment)
		assert.Equal(t, 0.8, p.Metadata.SentimentNegative)
		assert.Equal(t, []string{"user-1", "user-2"}, p.Metadata.Participants)
	}
}

func TestIndex_IsDeterministic(t *testing.T) {
	first, second := &fakeIndex{}, &fakeIndex{}

	_, err := newTestIndexer(&fakeEmbedder{}, first, 10).Index(context.Background(), enrichedEvent(longContent()))
	require.NoError(t, err)
	_, err = newTestIndexer(&fakeEmbedder{}, second, 4).Index(context.Background(), enrichedEvent(longContent()))
	require.NoError(t, err)

	require.Equal(t, len(first.points), len(second.points))
	for i := range first.points {
		assert.Equal(t, first.points[i].ID, second.points[i].ID)
	}
}

func TestIndex_EmptyContent(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}

	n, err := newTestIndexer(embedder, index, 10).Index(context.Background(), enrichedEvent("   "))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, embedder.batches)
	assert.Zero(t, index.calls)
}

func TestIndex_Failures(t *testing.T) {
	tests := []struct {
		name     string
		embedder *fakeEmbedder
		index    *fakeIndex
		errMsg   string
	}{
		{"embedding error", &fakeEmbedder{err: errors.New("rate limited")}, &fakeIndex{}, "failed to embed"},
		{"embedding count mismatch", &fakeEmbedder{short: true}, &fakeIndex{}, "embedding count mismatch"},
		{"upsert error", &fakeEmbedder{}, &fakeIndex{err: errors.New("unavailable")}, "failed to upsert"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := newTestIndexer(tt.embedder, tt.index, 10).Index(context.Background(), enrichedEvent(longContent()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Zero(t, n)
			assert.Empty(t, tt.index.points)
		})
	}
}

func TestHandle(t *testing.T) {
	payload, err := json.Marshal(enrichedEvent(longContent()))
	require.NoError(t, err)

	t.Run("indexes and acks", func(t *testing.T) {
		index := &fakeIndex{}
		err := newTestIndexer(&fakeEmbedder{}, index, 10).Handle(message.NewMessage("m1", payload))
		assert.NoError(t, err)
		assert.NotEmpty(t, index.points)
	})

	t.Run("failure nacks", func(t *testing.T) {
		index := &fakeIndex{err: errors.New("unavailable")}
		err := newTestIndexer(&fakeEmbedder{}, index, 10).Handle(message.NewMessage("m1", payload))
		assert.Error(t, err)
	})

	t.Run("malformed payload is acked", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		err := newTestIndexer(embedder, &fakeIndex{}, 10).Handle(message.NewMessage("m1", []byte("{not json")))
		assert.NoError(t, err)
		assert.Empty(t, embedder.batches)
	})
}
