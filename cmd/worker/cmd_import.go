package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"convoflow/internal/cache"
	"convoflow/internal/channels"
	"convoflow/internal/conversation"
	"convoflow/internal/messages"
	"convoflow/internal/replies"
	"convoflow/internal/threads"

	"github.com/spf13/cobra"
)

var importUser string

func init() {
	importCmd.Flags().StringVar(&importUser, "user", "", "platform user the imported mail belongs to (required)")
	_ = importCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import PATH...",
	Short: "Relay .eml files, directories of them or .mbox archives through ingestion",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

type receiver interface {
	Receive(ctx context.Context, userID string, in channels.Inbound) (*conversation.Result, error)
}

type importStats struct {
	Accepted   int
	Duplicates int
	Failed     int
}

func runImport(cmd *cobra.Command, args []string) error {
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

	msgStore := messages.NewStore(db, logger)
	registry := threads.NewRegistry(
		threads.NewSQLStore(db),
		msgStore,
		cache.New[string, string](time.Hour),
		threads.LegacyFallback{Until: cfg.LegacyThreadFallbackUntil},
		logger,
	)
	// import never sends, so no senders are configured
	svc := conversation.NewService(registry, msgStore, publisher, replies.NewResolver(msgStore, replies.DefaultStrategies(), logger), nil, logger)

	stats, err := importPaths(ctx, svc, importUser, args)
	logger.Info().
		Int("accepted", stats.Accepted).
		Int("duplicates", stats.Duplicates).
		Int("failed", stats.Failed).
		Msg("Import finished")
	return err
}

func importPaths(ctx context.Context, recv receiver, userID string, paths []string) (importStats, error) {
	var stats importStats

	relay := func(in *channels.Inbound, parseErr error, source string) error {
		if parseErr != nil {
			logger.Warn().Err(parseErr).Str("source", source).Msg("Skipping unparseable message")
			stats.Failed++
			return nil
		}
		res, err := recv.Receive(ctx, userID, *in)
		switch {
		case err != nil:
			logger.Error().Err(err).Str("source", source).Str("message_id", in.ProviderMessageID).Msg("Failed to import message")
			stats.Failed++
		case res.Duplicate:
			stats.Duplicates++
		default:
			stats.Accepted++
		}
		// stop early on shutdown
		return ctx.Err()
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return stats, fmt.Errorf("failed to access %s: %w", path, err)
		}

		switch {
		case info.IsDir():
			err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".eml") {
					return err
				}
				in, perr := channels.ParseEMLFile(p)
				return relay(in, perr, p)
			})
		case strings.EqualFold(filepath.Ext(path), ".mbox"):
			err = importMBOX(path, relay)
		case strings.EqualFold(filepath.Ext(path), ".eml"):
			in, perr := channels.ParseEMLFile(path)
			err = relay(in, perr, path)
		default:
			err = fmt.Errorf("unsupported file %s: expected .eml, .mbox or a directory", path)
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return stats, nil
			}
			return stats, err
		}
	}
	return stats, nil
}

func importMBOX(path string, relay func(*channels.Inbound, error, string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	_, err = channels.ParseMBOX(f, func(in *channels.Inbound, parseErr error) error {
		return relay(in, parseErr, path)
	})
	return err
}
