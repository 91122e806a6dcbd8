package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Dialect selects SQL syntax differences between the supported drivers
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// DetectDialect picks the driver from the URL, like the rest of the repo always has:
// postgres:// and postgresql:// go to lib/pq, anything else to go-sql-driver/mysql.
func DetectDialect(databaseURL string) Dialect {
	if strings.HasPrefix(databaseURL, "postgres") {
		return DialectPostgres
	}
	return DialectMySQL
}

// Rebind converts ? placeholders to the dialect's bind style
func (d Dialect) Rebind(query string) string {
	if d == DialectPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// InsertIgnore builds an insert that silently skips rows violating a unique constraint.
// body is everything after "INSERT INTO ", e.g. "t (a, b) VALUES (?, ?)".
func (d Dialect) InsertIgnore(body string) string {
	if d == DialectPostgres {
		return d.Rebind("INSERT INTO " + body + " ON CONFLICT DO NOTHING")
	}
	return "INSERT IGNORE INTO " + body
}

// DB is a sqlx connection that knows its dialect
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// NewWithDB wraps an existing connection (tests use sqlmock here)
func NewWithDB(db *sqlx.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

// Rebind shadows sqlx's driver-based rebind with the configured dialect
func (db *DB) Rebind(query string) string {
	return db.Dialect.Rebind(query)
}

// New creates a new database connection (supports both MySQL and PostgreSQL)
func New(databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	dialect := DetectDialect(databaseURL)
	dsn := databaseURL
	if dialect == DialectMySQL {
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}

	db, err := sqlx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewWithDB(db, dialect), nil
}

// UniqueViolation reports whether err is a unique/primary key violation and, if so,
// which constraint was hit. MySQL reports the key name ("PRIMARY" for primary keys).
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return mysqlKeyName(myErr.Message), true
	}

	return "", false
}

// mysqlKeyName extracts the key from "Duplicate entry 'x' for key 'table.key_name'"
func mysqlKeyName(msg string) string {
	const marker = "for key '"
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	key := strings.TrimSuffix(msg[i+len(marker):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key
}

// ExecuteReadOnlyPing executes a ping within a read-only transaction
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}() // Always rollback, we never commit read-only transactions

	var result int
	if err := tx.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to execute read-only ping query: %w", err)
	}

	return nil
}
