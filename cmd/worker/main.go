package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"convoflow/internal/config"
	"convoflow/internal/database"
	"convoflow/internal/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Pipeline workers for the conversation service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger = cfg.SetupLogger().With().Str("command", cmd.Name()).Logger()
	},
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// redisPublisher connects to Redis and returns a stream publisher plus a cleanup func
func redisPublisher(ctx context.Context) (*redis.Client, message.Publisher, func(), error) {
	client, err := events.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	pub, err := events.NewRedisPublisher(client, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	return client, pub, func() {
		_ = pub.Close()
		_ = client.Close()
	}, nil
}

// rawPublisher builds the raw-event publisher with its SQL outbox
func rawPublisher(ctx context.Context, db *database.DB) (*events.Publisher, func(), error) {
	_, pub, cleanup, err := redisPublisher(ctx)
	if err != nil {
		return nil, nil, err
	}
	return events.NewPublisher(pub, cfg.RawEventsTopic, events.DefaultRetryPolicy(), events.NewSQLOutbox(db), logger), cleanup, nil
}

func openDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
