package threads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"convoflow/internal/database"
	"convoflow/internal/models"

	"github.com/jmoiron/sqlx"
)

// Store is the persistence the registry needs for thread records
type Store interface {
	FindByContact(ctx context.Context, ownerUserID, contact string) (*models.Thread, error)
	Get(ctx context.Context, threadID string) (*models.Thread, error)
	GetMany(ctx context.Context, threadIDs []string) ([]models.Thread, error)
	// Create fails with ErrThreadExists when (owner, contact) is already taken
	Create(ctx context.Context, t *models.Thread) error
	AddParticipant(ctx context.Context, threadID, userID string) error
	IsParticipant(ctx context.Context, threadID, userID string) (bool, error)
	Participants(ctx context.Context, threadID string) ([]string, error)
	ListShared(ctx context.Context, userID string) ([]string, error)
	RefreshStats(ctx context.Context, threadID string) error
}

const threadColumns = `thread_id, owner_user_id, contact_identifier, channel, message_count, last_message_at, created_at`

// SQLStore keeps threads in the threads and thread_participants tables
type SQLStore struct {
	db *database.DB
}

// NewSQLStore creates a SQL-backed thread store
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) getOne(ctx context.Context, query string, args ...interface{}) (*models.Thread, error) {
	var t models.Thread
	if err := s.db.GetContext(ctx, &t, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	return &t, nil
}

// FindByContact looks a thread up by its natural key
func (s *SQLStore) FindByContact(ctx context.Context, ownerUserID, contact string) (*models.Thread, error) {
	return s.getOne(ctx, `SELECT `+threadColumns+` FROM threads WHERE owner_user_id = ? AND contact_identifier = ?`,
		ownerUserID, contact)
}

// Get loads a thread by id
func (s *SQLStore) Get(ctx context.Context, threadID string) (*models.Thread, error) {
	return s.getOne(ctx, `SELECT `+threadColumns+` FROM threads WHERE thread_id = ?`, threadID)
}

// GetMany loads the threads that exist among threadIDs, most recently active first
func (s *SQLStore) GetMany(ctx context.Context, threadIDs []string) ([]models.Thread, error) {
	if len(threadIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+threadColumns+` FROM threads WHERE thread_id IN (?) ORDER BY last_message_at DESC`, threadIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build thread query: %w", err)
	}

	var out []models.Thread
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}
	return out, nil
}

// Create inserts a new thread; the unique (owner, contact) constraint makes it a conditional write
func (s *SQLStore) Create(ctx context.Context, t *models.Thread) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO threads (`+threadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		t.ThreadID, t.OwnerUserID, t.ContactIdentifier, t.Channel, t.MessageCount, t.LastMessageAt, t.CreatedAt)
	if err == nil {
		return nil
	}
	if constraint, ok := database.UniqueViolation(err); ok && constraint == database.ConstraintThreadOwnerContact {
		return ErrThreadExists
	}
	return fmt.Errorf("failed to create thread: %w", err)
}

// AddParticipant adds userID to the thread's participant set; adding twice is a no-op
func (s *SQLStore) AddParticipant(ctx context.Context, threadID, userID string) error {
	query := s.db.Dialect.InsertIgnore(`thread_participants (thread_id, user_id, added_at) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, threadID, userID, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// IsParticipant reports whether userID was added to the thread
func (s *SQLStore) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.db.Rebind(`SELECT COUNT(*) FROM thread_participants WHERE thread_id = ? AND user_id = ?`), threadID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}

// Participants lists the users a thread is shared with
func (s *SQLStore) Participants(ctx context.Context, threadID string) ([]string, error) {
	var users []string
	err := s.db.SelectContext(ctx, &users,
		s.db.Rebind(`SELECT user_id FROM thread_participants WHERE thread_id = ? ORDER BY added_at, user_id`), threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return users, nil
}

// ListShared returns ids of threads shared with userID
func (s *SQLStore) ListShared(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		s.db.Rebind(`SELECT thread_id FROM thread_participants WHERE user_id = ? ORDER BY thread_id`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared threads: %w", err)
	}
	return ids, nil
}

// RefreshStats recomputes message_count and last_message_at from the message log.
// Safe to run any number of times, so duplicate deliveries never inflate the count.
func (s *SQLStore) RefreshStats(ctx context.Context, threadID string) error {
	query := s.db.Rebind(`UPDATE threads SET
		message_count = (SELECT COUNT(*) FROM messages WHERE messages.thread_id = ?),
		last_message_at = COALESCE((SELECT MAX(ts) FROM messages WHERE messages.thread_id = ?), last_message_at)
		WHERE thread_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, threadID, threadID, threadID); err != nil {
		return fmt.Errorf("failed to refresh thread stats: %w", err)
	}
	return nil
}
