package indexer

import (
	"context"
	"errors"
	"testing"

	"convoflow/internal/models"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQdrant struct {
	exists      bool
	created     *qdrant.CreateCollection
	fieldIndex  *qdrant.CreateFieldIndexCollection
	upserted    *qdrant.UpsertPoints
	query       *qdrant.QueryPoints
	queryResult []*qdrant.ScoredPoint
	err         error
}

func (f *fakeQdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.exists, f.err
}

func (f *fakeQdrant) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	f.created = req
	return f.err
}

func (f *fakeQdrant) CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	f.fieldIndex = req
	return &qdrant.UpdateResult{}, f.err
}

func (f *fakeQdrant) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserted = req
	return &qdrant.UpdateResult{}, f.err
}

func (f *fakeQdrant) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.query = req
	return f.queryResult, f.err
}

func TestPointID_IsStableUUID(t *testing.T) {
	id := PointID("evt-1-0")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, PointID("evt-1-0"))
	assert.NotEqual(t, id, PointID("evt-1-1"))
}

func TestEnsureCollection(t *testing.T) {
	t.Run("creates missing collection", func(t *testing.T) {
		api := &fakeQdrant{}
		q := &QdrantIndex{client: api, collection: "chunks", dimensions: 1536}

		require.NoError(t, q.EnsureCollection(context.Background()))
		require.NotNil(t, api.created)
		assert.Equal(t, "chunks", api.created.CollectionName)
		params := api.created.GetVectorsConfig().GetParams()
		assert.Equal(t, uint64(1536), params.GetSize())
		assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())
		require.NotNil(t, api.fieldIndex)
		assert.Equal(t, "thread_id", api.fieldIndex.FieldName)
	})

	t.Run("existing collection untouched", func(t *testing.T) {
		api := &fakeQdrant{exists: true}
		q := &QdrantIndex{client: api, collection: "chunks", dimensions: 1536}

		require.NoError(t, q.EnsureCollection(context.Background()))
		assert.Nil(t, api.created)
	})

	t.Run("error", func(t *testing.T) {
		api := &fakeQdrant{err: errors.New("connection refused")}
		q := &QdrantIndex{client: api, collection: "chunks", dimensions: 1536}

		err := q.EnsureCollection(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to check collection")
	})
}

func TestQdrantUpsert(t *testing.T) {
	api := &fakeQdrant{}
	q := &QdrantIndex{client: api, collection: "chunks"}

	err := q.Upsert(context.Background(), []models.VectorChunk{{
		ID:        "evt-1-0",
		Embedding: []float32{0.1, 0.2},
		Metadata: models.ChunkMetadata{
			ChunkID:      "evt-1-0",
			ThreadID:     "thread-1",
			ChunkCount:   1,
			Participants: []string{"user-1"},
			Text:         "hello",
		},
	}})
	require.NoError(t, err)

	require.NotNil(t, api.upserted)
	assert.True(t, api.upserted.GetWait())
	require.Len(t, api.upserted.Points, 1)
	p := api.upserted.Points[0]
	assert.Equal(t, PointID("evt-1-0"), p.GetId().GetUuid())
	assert.Equal(t, "evt-1-0", p.Payload["chunk_id"].GetStringValue())
	assert.Equal(t, "hello", p.Payload["text"].GetStringValue())
	assert.Equal(t, int64(1), p.Payload["chunk_count"].GetIntegerValue())

	assert.NoError(t, q.Upsert(context.Background(), nil))
}

func TestQdrantQuery(t *testing.T) {
	api := &fakeQdrant{queryResult: []*qdrant.ScoredPoint{{
		Score: 0.92,
		Payload: qdrant.NewValueMap(payload(models.ChunkMetadata{
			ChunkID:      "evt-1-2",
			ThreadID:     "thread-1",
			ChunkIndex:   2,
			Sentiment:    models.SentimentPositive,
			Participants: []string{"user-1", "user-2"},
			Text:         "the parcel arrived",
		})),
	}}}
	q := &QdrantIndex{client: api, collection: "chunks"}

	hits, err := q.Query(context.Background(), []float32{0.1, 0.2}, 5, "thread-1")
	require.NoError(t, err)

	assert.Equal(t, uint64(5), api.query.GetLimit())
	require.Len(t, api.query.GetFilter().GetMust(), 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "evt-1-2", hits[0].ChunkID)
	assert.InDelta(t, 0.92, hits[0].Score, 0.0001)
	assert.Equal(t, 2, hits[0].Meta.ChunkIndex)
	assert.Equal(t, []string{"user-1", "user-2"}, hits[0].Meta.Participants)
	assert.Equal(t, "the parcel arrived", hits[0].Meta.Text)

	_, err = q.Query(context.Background(), []float32{0.1}, 3, "")
	require.NoError(t, err)
	assert.Nil(t, api.query.Filter)
}
