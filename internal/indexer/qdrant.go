package indexer

import (
	"context"
	"fmt"

	"convoflow/internal/models"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace derives qdrant point ids from chunk ids, which are not UUIDs themselves
var pointNamespace = uuid.MustParse("6f2d7c1e-2b8a-4c55-9a3e-0d4b9e7f1a62")

// PointID is the qdrant point id for a chunk id
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// QdrantIndex is the VectorIndex backed by a qdrant collection
type QdrantIndex struct {
	client     qdrantAPI
	collection string
	dimensions uint64
}

// NewQdrantClient connects to qdrant over gRPC
func NewQdrantClient(host string, port int, apiKey string, useTLS bool) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}

// NewQdrantIndex wraps a collection of vectors with the given dimensions
func NewQdrantIndex(client *qdrant.Client, collection string, dimensions int) *QdrantIndex {
	return &QdrantIndex{client: client, collection: collection, dimensions: uint64(dimensions)}
}

// EnsureCollection creates the collection (cosine distance) and its thread_id index if missing
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "thread_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to index thread_id on %s: %w", q.collection, err)
	}
	return nil
}

// Upsert writes all chunks in one request and waits for it to be applied
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []models.VectorChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload(c.Metadata)),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Query returns the k nearest chunks, restricted to a thread when threadID is set
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int, threadID string) ([]models.SearchHit, error) {
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if threadID != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("thread_id", threadID)},
		}
	}

	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.collection, err)
	}

	hits := make([]models.SearchHit, 0, len(points))
	for _, p := range points {
		meta := metadataFromPayload(p.GetPayload())
		hits = append(hits, models.SearchHit{ChunkID: meta.ChunkID, Score: p.GetScore(), Meta: meta})
	}
	return hits, nil
}

func payload(m models.ChunkMetadata) map[string]any {
	participants := make([]any, len(m.Participants))
	for i, p := range m.Participants {
		participants[i] = p
	}
	return map[string]any{
		"chunk_id":           m.ChunkID,
		"event_id":           m.EventID,
		"thread_id":          m.ThreadID,
		"user_id":            m.UserID,
		"event_type":         m.EventType,
		"timestamp":          m.Timestamp,
		"chunk_index":        int64(m.ChunkIndex),
		"chunk_count":        int64(m.ChunkCount),
		"char_start":         int64(m.CharStart),
		"char_end":           int64(m.CharEnd),
		"sentiment":          m.Sentiment,
		"sentiment_positive": m.SentimentPositive,
		"sentiment_negative": m.SentimentNegative,
		"sentiment_neutral":  m.SentimentNeutral,
		"sentiment_mixed":    m.SentimentMixed,
		"participants":       participants,
		"subject":            m.Subject,
		"text":               m.Text,
	}
}

func metadataFromPayload(p map[string]*qdrant.Value) models.ChunkMetadata {
	str := func(k string) string { return p[k].GetStringValue() }
	num := func(k string) int64 { return p[k].GetIntegerValue() }
	dbl := func(k string) float64 { return p[k].GetDoubleValue() }

	var participants []string
	for _, v := range p["participants"].GetListValue().GetValues() {
		participants = append(participants, v.GetStringValue())
	}

	return models.ChunkMetadata{
		ChunkID:           str("chunk_id"),
		EventID:           str("event_id"),
		ThreadID:          str("thread_id"),
		UserID:            str("user_id"),
		EventType:         str("event_type"),
		Timestamp:         num("timestamp"),
		ChunkIndex:        int(num("chunk_index")),
		ChunkCount:        int(num("chunk_count")),
		CharStart:         int(num("char_start")),
		CharEnd:           int(num("char_end")),
		Sentiment:         str("sentiment"),
		SentimentPositive: dbl("sentiment_positive"),
		SentimentNegative: dbl("sentiment_negative"),
		SentimentNeutral:  dbl("sentiment_neutral"),
		SentimentMixed:    dbl("sentiment_mixed"),
		Participants:      participants,
		Subject:           str("subject"),
		Text:              str("text"),
	}
}
