package main

import (
	"convoflow/internal/events"
	"convoflow/internal/indexer"
	"convoflow/internal/openai"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk, embed and upsert enriched events into the vector index",
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateIndexer(); err != nil {
		return err
	}
	ctx := cmd.Context()

	client, _, cleanup, err := redisPublisher(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := events.EnsureGroup(ctx, client, cfg.EnrichedEventsTopic, cfg.IndexerConsumerGroup); err != nil {
		return err
	}
	sub, err := events.NewRedisSubscriber(client, cfg.IndexerConsumerGroup, cfg.ConsumerName, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	qc, err := indexer.NewQdrantClient(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, cfg.QdrantUseTLS)
	if err != nil {
		return err
	}
	defer func() { _ = qc.Close() }()

	index := indexer.NewQdrantIndex(qc, cfg.QdrantCollection, cfg.EmbeddingDimensions)
	if err := index.EnsureCollection(ctx); err != nil {
		return err
	}

	llm, err := openai.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	ix := indexer.NewIndexer(llm, index, indexer.ChunkOptions{
		MaxSize: cfg.ChunkMaxSize,
		Overlap: cfg.ChunkOverlap,
		MinSize: cfg.ChunkMinSize,
	}, cfg.EmbeddingBatchSize, cfg.UpstreamTimeout(), logger)

	router, err := events.NewRouter(logger)
	if err != nil {
		return err
	}
	router.AddNoPublisherHandler("index", cfg.EnrichedEventsTopic, sub, ix.Handle)

	logger.Info().
		Str("from", cfg.EnrichedEventsTopic).
		Str("collection", cfg.QdrantCollection).
		Msg("Indexer starting")
	return router.Run(ctx)
}
