package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"convoflow/internal/database"
	"convoflow/internal/models"
)

// OutboxEntry is an event that could not be published
type OutboxEntry struct {
	EventID   string `db:"event_id"`
	Payload   string `db:"payload"`
	Attempts  int    `db:"attempts"`
	CreatedAt int64  `db:"created_at"`
}

// Outbox parks events the transport refused so they can be republished later
type Outbox interface {
	Save(ctx context.Context, event models.RawEvent) error
	Pending(ctx context.Context, limit int) ([]OutboxEntry, error)
	Delete(ctx context.Context, eventID string) error
	MarkAttempt(ctx context.Context, eventID string) error
}

// SQLOutbox stores parked events in the event_outbox table
type SQLOutbox struct {
	db *database.DB
}

// NewSQLOutbox creates an outbox on db
func NewSQLOutbox(db *database.DB) *SQLOutbox {
	return &SQLOutbox{db: db}
}

// Save parks an event
func (o *SQLOutbox) Save(ctx context.Context, event models.RawEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = o.db.ExecContext(ctx,
		o.db.Rebind(`INSERT INTO event_outbox (event_id, payload, attempts, created_at) VALUES (?, ?, 0, ?)`),
		event.EventID, string(payload), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write outbox entry: %w", err)
	}
	return nil
}

// Pending returns the oldest parked events
func (o *SQLOutbox) Pending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	var entries []OutboxEntry
	err := o.db.SelectContext(ctx, &entries,
		o.db.Rebind(`SELECT event_id, payload, attempts, created_at FROM event_outbox ORDER BY created_at LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	return entries, nil
}

// Delete removes a republished event
func (o *SQLOutbox) Delete(ctx context.Context, eventID string) error {
	if _, err := o.db.ExecContext(ctx, o.db.Rebind(`DELETE FROM event_outbox WHERE event_id = ?`), eventID); err != nil {
		return fmt.Errorf("failed to delete outbox entry: %w", err)
	}
	return nil
}

// MarkAttempt counts a failed republish
func (o *SQLOutbox) MarkAttempt(ctx context.Context, eventID string) error {
	_, err := o.db.ExecContext(ctx, o.db.Rebind(`UPDATE event_outbox SET attempts = attempts + 1 WHERE event_id = ?`), eventID)
	if err != nil {
		return fmt.Errorf("failed to update outbox entry: %w", err)
	}
	return nil
}
