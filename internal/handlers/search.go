package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"convoflow/internal/models"

	"github.com/labstack/echo/v4"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Embedder embeds search queries
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkSearcher runs a filtered nearest-neighbour query
type ChunkSearcher interface {
	Query(ctx context.Context, vector []float32, k int, threadID string) ([]models.SearchHit, error)
}

// Search finds the chunks of a thread closest to ?q=
// @Summary Semantic search within a thread
// @Tags Threads
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread id"
// @Param q query string true "Query text"
// @Param k query int false "Number of hits (default 5, max 50)"
// @Success 200 {object} models.SearchResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /api/threads/{id}/search [get]
func (h *ThreadHandler) Search(embedder Embedder, searcher ChunkSearcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		threadID, err := h.authorize(c)
		if err != nil {
			return fail(c, err)
		}

		q := strings.TrimSpace(c.QueryParam("q"))
		if q == "" {
			return badRequest(c, "q is required")
		}
		k := defaultSearchLimit
		if raw := c.QueryParam("k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return badRequest(c, "k must be a positive integer")
			}
			k = min(n, maxSearchLimit)
		}

		ctx := c.Request().Context()
		vectors, err := embedder.CreateEmbeddings(ctx, []string{q})
		if err != nil || len(vectors) != 1 {
			h.logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to embed search query")
			return c.JSON(http.StatusBadGateway, models.ErrorResponse{Success: false, Error: "embedding service unavailable"})
		}

		hits, err := searcher.Query(ctx, vectors[0], k, threadID)
		if err != nil {
			h.logger.Error().Err(err).Str("thread_id", threadID).Msg("Vector query failed")
			return c.JSON(http.StatusBadGateway, models.ErrorResponse{Success: false, Error: "vector index unavailable"})
		}
		if hits == nil {
			hits = []models.SearchHit{}
		}

		return c.JSON(http.StatusOK, models.SearchResponse{Success: true, Hits: hits})
	}
}
