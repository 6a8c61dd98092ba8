package chathistory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLStore persists history in PostgreSQL through database/sql and the pgx driver.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLStore(ctx context.Context, databaseURL string) (*SQLStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewSQLStore(db)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_history (
			id TEXT PRIMARY KEY,
			app_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			status SMALLINT NOT NULL DEFAULT 0,
			only_id TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_app_created ON chat_history (app_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_only_id ON chat_history (only_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, appID int64, content string, role Role, userID int64, status Status) error {
	msg, err := newMessage(appID, content, role, userID, status, s.now())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_history (id, app_id, user_id, role, content, status, only_id, pii_redacted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID,
		msg.AppID,
		msg.UserID,
		string(msg.Role),
		msg.Content,
		int(msg.Status),
		msg.OnlyID,
		msg.PIIRedacted,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *SQLStore) MarkStatus(ctx context.Context, appID, userID int64, status Status) error {
	if !status.valid() {
		return ErrInvalidMessage
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_history SET status = $1, updated_at = $2
		 WHERE id = (
			SELECT id FROM chat_history
			WHERE app_id = $3 AND user_id = $4
			ORDER BY created_at DESC, id DESC LIMIT 1
		 )`,
		int(status),
		s.now(),
		appID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("mark status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark status rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectMessageColumns = `SELECT id, app_id, user_id, role, content, status, only_id, pii_redacted, created_at, updated_at FROM chat_history`

func (s *SQLStore) ListByApp(ctx context.Context, appID int64, limit int, before time.Time) ([]Message, error) {
	limit, err := PageSize(limit)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if before.IsZero() {
		rows, err = s.db.QueryContext(ctx,
			selectMessageColumns+` WHERE app_id = $1 ORDER BY created_at DESC LIMIT $2`,
			appID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			selectMessageColumns+` WHERE app_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`,
			appID, before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m      Message
			role   string
			status int
		)
		if err := rows.Scan(&m.ID, &m.AppID, &m.UserID, &role, &m.Content, &status, &m.OnlyID, &m.PIIRedacted, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		m.Role = Role(role)
		m.Status = Status(status)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return items, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
