package chathistory

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockSQLStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock
}

func TestSQLStoreInitSchema(t *testing.T) {
	s, mock := newMockSQLStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS chat_history")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_chat_history_app_created")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_chat_history_only_id")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreAppendMessage(t *testing.T) {
	s, mock := newMockSQLStore(t)
	fixed := s.now()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chat_history")).
		WithArgs(
			sqlmock.AnyArg(),
			int64(42),
			int64(7),
			"ai",
			"partial html",
			int64(StatusUserInterrupted),
			onlyID(42, "partial html", RoleAI, 7, StatusUserInterrupted),
			false,
			fixed,
			fixed,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.AppendMessage(context.Background(), 42, "partial html", RoleAI, 7, StatusUserInterrupted); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreAppendMessageValidatesBeforeQuery(t *testing.T) {
	s, mock := newMockSQLStore(t)
	if err := s.AppendMessage(context.Background(), 42, "", RoleAI, 7, StatusNormal); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("AppendMessage() error = %v, want ErrInvalidMessage", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreMarkStatus(t *testing.T) {
	s, mock := newMockSQLStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_history SET status = $1")).
		WithArgs(int64(StatusUserInterrupted), s.now(), int64(42), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_history SET status = $1")).
		WithArgs(int64(StatusUserInterrupted), s.now(), int64(43), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.MarkStatus(context.Background(), 42, 7, StatusUserInterrupted); err != nil {
		t.Fatalf("MarkStatus() error = %v", err)
	}
	if err := s.MarkStatus(context.Background(), 43, 7, StatusUserInterrupted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkStatus(empty) error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreListByApp(t *testing.T) {
	s, mock := newMockSQLStore(t)
	created := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	cols := []string{"id", "app_id", "user_id", "role", "content", "status", "only_id", "pii_redacted", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM chat_history WHERE app_id = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs(int64(42), int64(DefaultPageSize)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m2", int64(42), int64(7), "ai", "<html>", int64(1), "o2", false, created, created).
			AddRow("m1", int64(42), int64(7), "user", "todo page", int64(0), "o1", false, created.Add(-time.Second), created))

	cursor := created.Add(-time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE app_id = $1 AND created_at < $2")).
		WithArgs(int64(42), cursor, int64(5)).
		WillReturnRows(sqlmock.NewRows(cols))

	got, err := s.ListByApp(context.Background(), 42, 0, time.Time{})
	if err != nil {
		t.Fatalf("ListByApp() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(ListByApp()) = %d, want 2", len(got))
	}
	if got[0].Role != RoleAI || got[0].Status != StatusUserInterrupted {
		t.Fatalf("ListByApp()[0] = %+v, want ai/user_interrupted", got[0])
	}

	older, err := s.ListByApp(context.Background(), 42, 5, cursor)
	if err != nil {
		t.Fatalf("ListByApp(cursor) error = %v", err)
	}
	if len(older) != 0 {
		t.Fatalf("len(ListByApp(cursor)) = %d, want 0", len(older))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNewStoreWithoutURLIsInMemory(t *testing.T) {
	st, mode, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if mode != "in-memory" {
		t.Fatalf("mode = %q, want in-memory", mode)
	}
	if _, ok := st.(*InMemoryStore); !ok {
		t.Fatalf("store type = %T, want *InMemoryStore", st)
	}
}
