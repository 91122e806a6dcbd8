// Package messages is the durable, append-only per-thread message log.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"convoflow/internal/database"
	"convoflow/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// ErrDuplicate is returned when an inbound message with the same provider id is already stored.
// Callers treat it as "already processed".
var ErrDuplicate = errors.New("message already stored")

// maxTimestampAttempts bounds how often Append bumps a colliding timestamp
const maxTimestampAttempts = 5

const messageColumns = `thread_id, ts, provider_message_id, channel, direction, body, subject,
	from_addr, to_addr, headers, owner_user_id, unread`

// Store persists messages in SQL
type Store struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewStore creates a message store
func NewStore(db *database.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "message_store").Logger(),
	}
}

// Append writes msg. Inbound messages are conditional on their provider id being new in the
// thread; a timestamp already taken in the thread is bumped by a millisecond and retried.
func (s *Store) Append(ctx context.Context, msg *models.Message) error {
	if msg.ThreadID == "" {
		return fmt.Errorf("message has no thread id")
	}

	var dedupKey sql.NullString
	if msg.Direction == models.DirectionIncoming {
		if msg.ProviderMessageID == "" {
			return fmt.Errorf("inbound message requires a provider message id")
		}
		dedupKey = sql.NullString{String: msg.ProviderMessageID, Valid: true}
		msg.Unread = true
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	if msg.Headers == nil {
		msg.Headers = models.Headers{}
	}

	query := s.db.Rebind(`INSERT INTO messages (` + messageColumns + `, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for attempt := 1; attempt <= maxTimestampAttempts; attempt++ {
		_, err := s.db.ExecContext(ctx, query,
			msg.ThreadID, msg.Timestamp, msg.ProviderMessageID, msg.Channel, msg.Direction,
			msg.Body, msg.Subject, msg.From, msg.To, msg.Headers, msg.OwnerUserID, msg.Unread,
			dedupKey,
		)
		if err == nil {
			return nil
		}

		constraint, ok := database.UniqueViolation(err)
		if !ok {
			return fmt.Errorf("failed to append message: %w", err)
		}
		if constraint == database.ConstraintMessageDedup {
			return ErrDuplicate
		}
		// The primary key can be checked before the dedup key, so a redelivery whose
		// timestamp is taken must be recognized here rather than bumped.
		if dedupKey.Valid {
			exists, err := s.hasDedupKey(ctx, msg.ThreadID, dedupKey.String)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicate
			}
		}

		s.logger.Debug().
			Str("thread_id", msg.ThreadID).
			Int64("ts", msg.Timestamp).
			Int("attempt", attempt).
			Msg("Timestamp collision, bumping")
		msg.Timestamp++
	}

	return fmt.Errorf("failed to append message: timestamp still colliding after %d attempts", maxTimestampAttempts)
}

func (s *Store) hasDedupKey(ctx context.Context, threadID, key string) (bool, error) {
	query := s.db.Rebind(`SELECT COUNT(*) FROM messages WHERE thread_id = ? AND dedup_key = ?`)

	var count int
	if err := s.db.GetContext(ctx, &count, query, threadID, key); err != nil {
		return false, fmt.Errorf("failed to check for stored message: %w", err)
	}
	return count > 0, nil
}

// ListByThread returns a thread's messages ascending by timestamp
func (s *Store) ListByThread(ctx context.Context, threadID string) ([]models.Message, error) {
	query := s.db.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE thread_id = ? ORDER BY ts ASC`)

	var msgs []models.Message
	if err := s.db.SelectContext(ctx, &msgs, query, threadID); err != nil {
		return nil, fmt.Errorf("failed to list messages for thread %s: %w", threadID, err)
	}
	return msgs, nil
}

// ListThreadsForUser returns the ids of threads holding messages owned by userID
func (s *Store) ListThreadsForUser(ctx context.Context, userID string) ([]string, error) {
	query := s.db.Rebind(`SELECT DISTINCT thread_id FROM messages WHERE owner_user_id = ? ORDER BY thread_id`)

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list threads for user %s: %w", userID, err)
	}
	return ids, nil
}

// UnreadCountForThread counts unread incoming messages
func (s *Store) UnreadCountForThread(ctx context.Context, threadID string) (int, error) {
	query := s.db.Rebind(`SELECT COUNT(*) FROM messages
		WHERE thread_id = ? AND direction = ? AND unread = ?`)

	var count int
	if err := s.db.GetContext(ctx, &count, query, threadID, models.DirectionIncoming, true); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// MarkRead clears the unread flag on the given provider message ids, or on every unread
// incoming message in the thread when ids is empty. Returns the number of rows changed.
func (s *Store) MarkRead(ctx context.Context, threadID string, ids []string) (int64, error) {
	query := `UPDATE messages SET unread = ? WHERE thread_id = ? AND direction = ? AND unread = ?`
	args := []interface{}{false, threadID, models.DirectionIncoming, true}

	if len(ids) > 0 {
		inQuery, inArgs, err := sqlx.In(query+` AND provider_message_id IN (?)`, append(args, ids)...)
		if err != nil {
			return 0, fmt.Errorf("failed to build mark-read query: %w", err)
		}
		query, args = inQuery, inArgs
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
