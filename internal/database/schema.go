package database

import (
	"context"
	"fmt"
)

// Constraint names the stores rely on to classify conflicts
const (
	ConstraintThreadOwnerContact = "threads_owner_contact"
	ConstraintMessageDedup       = "messages_dedup_key"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		thread_id VARCHAR(64) PRIMARY KEY,
		owner_user_id VARCHAR(128) NOT NULL,
		contact_identifier VARCHAR(255) NOT NULL,
		channel VARCHAR(16) NOT NULL DEFAULT '',
		message_count INT NOT NULL DEFAULT 0,
		last_message_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		CONSTRAINT threads_owner_contact UNIQUE (owner_user_id, contact_identifier)
	)`,
	`CREATE TABLE IF NOT EXISTS thread_participants (
		thread_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(128) NOT NULL,
		added_at BIGINT NOT NULL,
		PRIMARY KEY (thread_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_thread_participants_user ON thread_participants(user_id)`,
	// thread_id is wide enough for legacy raw-address ids
	`CREATE TABLE IF NOT EXISTS messages (
		thread_id VARCHAR(255) NOT NULL,
		ts BIGINT NOT NULL,
		provider_message_id VARCHAR(255) NOT NULL DEFAULT '',
		dedup_key VARCHAR(255),
		channel VARCHAR(16) NOT NULL,
		direction VARCHAR(16) NOT NULL,
		body TEXT NOT NULL,
		subject TEXT NOT NULL,
		from_addr VARCHAR(255) NOT NULL DEFAULT '',
		to_addr VARCHAR(255) NOT NULL DEFAULT '',
		headers TEXT NOT NULL,
		owner_user_id VARCHAR(128) NOT NULL,
		unread BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (thread_id, ts),
		CONSTRAINT messages_dedup_key UNIQUE (thread_id, dedup_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_user_id, thread_id)`,
	`CREATE TABLE IF NOT EXISTS event_outbox (
		event_id VARCHAR(64) PRIMARY KEY,
		payload TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		thread_id VARCHAR(64) PRIMARY KEY,
		owner_user_id VARCHAR(128) NOT NULL,
		contact_identifier VARCHAR(255) NOT NULL,
		channel VARCHAR(16) NOT NULL DEFAULT '',
		message_count INT NOT NULL DEFAULT 0,
		last_message_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		UNIQUE KEY threads_owner_contact (owner_user_id, contact_identifier)
	)`,
	`CREATE TABLE IF NOT EXISTS thread_participants (
		thread_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(128) NOT NULL,
		added_at BIGINT NOT NULL,
		PRIMARY KEY (thread_id, user_id),
		KEY idx_thread_participants_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		thread_id VARCHAR(255) NOT NULL,
		ts BIGINT NOT NULL,
		provider_message_id VARCHAR(255) NOT NULL DEFAULT '',
		dedup_key VARCHAR(255) NULL,
		channel VARCHAR(16) NOT NULL,
		direction VARCHAR(16) NOT NULL,
		body MEDIUMTEXT NOT NULL,
		subject TEXT NOT NULL,
		from_addr VARCHAR(255) NOT NULL DEFAULT '',
		to_addr VARCHAR(255) NOT NULL DEFAULT '',
		headers TEXT NOT NULL,
		owner_user_id VARCHAR(128) NOT NULL,
		unread BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (thread_id, ts),
		UNIQUE KEY messages_dedup_key (thread_id, dedup_key),
		KEY idx_messages_owner (owner_user_id, thread_id)
	)`,
	`CREATE TABLE IF NOT EXISTS event_outbox (
		event_id VARCHAR(64) PRIMARY KEY,
		payload MEDIUMTEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
}

// Migrate creates the tables if they don't exist
func (db *DB) Migrate(ctx context.Context) error {
	statements := postgresSchema
	if db.Dialect == DialectMySQL {
		statements = mysqlSchema
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
