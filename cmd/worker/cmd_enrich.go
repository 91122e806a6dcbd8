package main

import (
	"convoflow/internal/enrichment"
	"convoflow/internal/events"
	"convoflow/internal/openai"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(enrichCmd)
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Consume raw events and publish enriched events",
	RunE:  runEnrich,
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateEnrichment(); err != nil {
		return err
	}
	ctx := cmd.Context()

	client, pub, cleanup, err := redisPublisher(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := events.EnsureGroup(ctx, client, cfg.RawEventsTopic, cfg.EnrichmentConsumerGroup); err != nil {
		return err
	}
	sub, err := events.NewRedisSubscriber(client, cfg.EnrichmentConsumerGroup, cfg.ConsumerName, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	llm, err := openai.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	worker := enrichment.NewWorker(
		enrichment.NewLLMDescriber(llm),
		enrichment.NewLLMSentiment(llm),
		cfg.UpstreamTimeout(),
		cfg.SentimentMaxBytes,
		logger,
	)

	router, err := events.NewRouter(logger)
	if err != nil {
		return err
	}
	router.AddHandler("enrich", cfg.RawEventsTopic, sub, cfg.EnrichedEventsTopic, pub, worker.Handle)

	logger.Info().
		Str("from", cfg.RawEventsTopic).
		Str("to", cfg.EnrichedEventsTopic).
		Str("provider", llm.GetProviderName()).
		Msg("Enrichment worker starting")
	return router.Run(ctx)
}
