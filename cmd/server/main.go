package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"convoflow/internal/auth"
	"convoflow/internal/cache"
	"convoflow/internal/channels"
	"convoflow/internal/config"
	"convoflow/internal/conversation"
	"convoflow/internal/database"
	"convoflow/internal/events"
	"convoflow/internal/indexer"
	"convoflow/internal/messages"
	"convoflow/internal/models"
	"convoflow/internal/openai"
	"convoflow/internal/replies"
	"convoflow/internal/server"
	"convoflow/internal/threads"

	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	logger.Info().Str("dialect", string(db.Dialect)).Msg("Database connection established successfully")

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	redisClient, err := events.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	pub, err := events.NewRedisPublisher(redisClient, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pub.Close() }()

	publisher := events.NewPublisher(pub, cfg.RawEventsTopic, events.DefaultRetryPolicy(), events.NewSQLOutbox(db), logger)

	msgStore := messages.NewStore(db, logger)
	registry := threads.NewRegistry(
		threads.NewSQLStore(db),
		msgStore,
		cache.New[string, string](time.Hour),
		threads.LegacyFallback{Until: cfg.LegacyThreadFallbackUntil},
		logger,
	)
	resolver := replies.NewResolver(msgStore, replies.DefaultStrategies(), logger)

	svc := conversation.NewService(registry, msgStore, publisher, resolver, senders(cfg, logger), logger)

	deps := server.Deps{
		DB:       db.DB,
		Receiver: svc,
		Threads:  registry,
		Reads:    msgStore,
		Sender:   svc,
		Auth:     auth.NewManager(cfg.APITokens),
	}

	if cfg.ValidateIndexer() == nil {
		llm, err := openai.NewClient(cfg, logger)
		if err != nil {
			return err
		}
		qc, err := indexer.NewQdrantClient(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, cfg.QdrantUseTLS)
		if err != nil {
			return err
		}
		defer func() { _ = qc.Close() }()

		deps.Embedder = llm
		deps.Searcher = indexer.NewQdrantIndex(qc, cfg.QdrantCollection, cfg.EmbeddingDimensions)
	} else {
		logger.Info().Msg("Vector index not configured, thread search disabled")
	}

	if len(cfg.APITokens) == 0 {
		logger.Warn().Msg("API_TOKENS is empty, every /api/threads request will be rejected")
	}

	srv := server.New(cfg, deps, logger)
	srv.Initialize()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info().Msg("Server stopped")
	return nil
}

// senders builds one sender per configured channel; unconfigured channels reject sends
func senders(cfg *config.Config, logger zerolog.Logger) map[models.Channel]channels.Sender {
	out := map[models.Channel]channels.Sender{}
	if cfg.SendGridAPIKey != "" && cfg.SendGridFromEmail != "" {
		out[models.ChannelEmail] = channels.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName, logger)
	} else {
		logger.Warn().Msg("SendGrid not configured, email sends disabled")
	}
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		out[models.ChannelWhatsApp] = channels.NewWhatsAppSender(nil, cfg.WhatsAppAPIBase, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppToken, logger)
	} else {
		logger.Warn().Msg("WhatsApp not configured, WhatsApp sends disabled")
	}
	return out
}
