package threads

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"convoflow/internal/database"
	"convoflow/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSQLStore(t *testing.T, dialect database.Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return NewSQLStore(database.NewWithDB(sqlx.NewDb(mockDB, "sqlmock"), dialect)), mock
}

var threadCols = []string{"thread_id", "owner_user_id", "contact_identifier", "channel", "message_count", "last_message_at", "created_at"}

func TestSQLStore_FindByContact(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantID    string
		wantErr   error
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM threads WHERE owner_user_id = \$1 AND contact_identifier = \$2`).
					WithArgs("U", "a@x.com").
					WillReturnRows(sqlmock.NewRows(threadCols).AddRow("t1", "U", "a@x.com", "email", 3, 100, 50))
			},
			wantID: "t1",
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM threads`).WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockSQLStore(t, database.DialectPostgres)
			tt.setupMock(mock)

			thread, err := store.FindByContact(context.Background(), "U", "a@x.com")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, thread.ThreadID)
			assert.Equal(t, 3, thread.MessageCount)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_Create(t *testing.T) {
	thread := &models.Thread{ThreadID: "t1", OwnerUserID: "U", ContactIdentifier: "a@x.com", Channel: models.ChannelEmail, CreatedAt: 10}

	tests := []struct {
		name    string
		dialect database.Dialect
		err     error
		wantErr error
	}{
		{name: "created", dialect: database.DialectPostgres},
		{
			name:    "postgres conflict",
			dialect: database.DialectPostgres,
			err:     &pq.Error{Code: "23505", Constraint: database.ConstraintThreadOwnerContact},
			wantErr: ErrThreadExists,
		},
		{
			name:    "mysql conflict",
			dialect: database.DialectMySQL,
			err:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'U-a@x.com' for key 'threads.threads_owner_contact'"},
			wantErr: ErrThreadExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockSQLStore(t, tt.dialect)

			exp := mock.ExpectExec(`INSERT INTO threads`).
				WithArgs("t1", "U", "a@x.com", "email", 0, int64(0), int64(10))
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := store.Create(context.Background(), thread)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_AddParticipant(t *testing.T) {
	tests := []struct {
		name    string
		dialect database.Dialect
		pattern string
	}{
		{"postgres", database.DialectPostgres, `INSERT INTO thread_participants .* ON CONFLICT DO NOTHING`},
		{"mysql", database.DialectMySQL, `INSERT IGNORE INTO thread_participants`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockSQLStore(t, tt.dialect)
			mock.ExpectExec(tt.pattern).
				WithArgs("t1", "u2", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, store.AddParticipant(context.Background(), "t1", "u2"))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_IsParticipant(t *testing.T) {
	store, mock := newMockSQLStore(t, database.DialectPostgres)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM thread_participants`).
		WithArgs("t1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := store.IsParticipant(context.Background(), "t1", "u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLStore_GetMany(t *testing.T) {
	store, mock := newMockSQLStore(t, database.DialectPostgres)
	mock.ExpectQuery(`FROM threads WHERE thread_id IN \(\$1, \$2\)`).
		WithArgs("t1", "t2").
		WillReturnRows(sqlmock.NewRows(threadCols).
			AddRow("t2", "U", "b@x.com", "email", 1, 200, 20).
			AddRow("t1", "U", "a@x.com", "email", 2, 100, 10))

	threads, err := store.GetMany(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "t2", threads[0].ThreadID)

	none, err := store.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RefreshStats(t *testing.T) {
	store, mock := newMockSQLStore(t, database.DialectPostgres)
	mock.ExpectExec(`UPDATE threads SET\s+message_count = \(SELECT COUNT\(\*\) FROM messages`).
		WithArgs("t1", "t1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RefreshStats(context.Background(), "t1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
