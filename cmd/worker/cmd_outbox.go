package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	outboxInterval time.Duration
	outboxBatch    int
	outboxOnce     bool
)

func init() {
	outboxCmd.Flags().DurationVar(&outboxInterval, "interval", 30*time.Second, "time between flushes")
	outboxCmd.Flags().IntVar(&outboxBatch, "batch", 100, "events republished per flush")
	outboxCmd.Flags().BoolVar(&outboxOnce, "once", false, "flush once and exit")
	rootCmd.AddCommand(outboxCmd)
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Republish raw events parked after failed publishes",
	RunE:  runOutbox,
}

func runOutbox(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	publisher, cleanup, err := rawPublisher(ctx, db)
	if err != nil {
		return err
	}
	defer cleanup()

	return flushLoop(ctx, publisher, outboxInterval, outboxBatch, outboxOnce)
}

type flusher interface {
	Flush(ctx context.Context, limit int) (int, error)
}

// flushLoop drains the outbox every interval. A full batch is followed immediately by another.
func flushLoop(ctx context.Context, f flusher, interval time.Duration, batch int, once bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			n, err := f.Flush(ctx, batch)
			if err != nil {
				logger.Error().Err(err).Msg("Outbox flush failed")
				break
			}
			if n > 0 {
				logger.Info().Int("republished", n).Msg("Flushed outbox")
			}
			if n < batch {
				break
			}
		}
		if once {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
