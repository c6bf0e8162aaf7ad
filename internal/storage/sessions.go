package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one row of shim_session.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one row of shim_message.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Text      string
	ExitCode  *int
	Truncated bool
	CreatedAt time.Time
}

// SessionStore reads and writes shim sessions.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Create inserts a new session.
func (s *SessionStore) Create(ctx context.Context, id, title string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is empty")
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO shim_session(id, title, created_at, updated_at) VALUES(?, ?, ?, ?);",
		id, title, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &Session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// Get returns the session with id, or ErrNotFound.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM shim_session WHERE id = ?;", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return sess, nil
}

// List returns all sessions, most recently updated first.
func (s *SessionStore) List(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM shim_session ORDER BY updated_at DESC, id;")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// Delete removes a session and its transcript.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM shim_session WHERE id = ?;", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage stores m and bumps the session's updated_at.
func (s *SessionStore) AppendMessage(ctx context.Context, m Message) (*Message, error) {
	if m.ID == "" || m.SessionID == "" {
		return nil, fmt.Errorf("message id and session id are required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "UPDATE shim_session SET updated_at = ? WHERE id = ?;",
		formatTime(m.CreatedAt), m.SessionID)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	var exitCode sql.NullInt64
	if m.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*m.ExitCode), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO shim_message(id, session_id, role, text, exit_code, truncated, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, m.ID, m.SessionID, m.Role, m.Text, exitCode, m.Truncated, formatTime(m.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &m, nil
}

// Messages returns the transcript of a session in insertion order.
func (s *SessionStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, text, exit_code, truncated, created_at
FROM shim_message WHERE session_id = ? ORDER BY created_at, rowid;
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m         Message
			exitCode  sql.NullInt64
			truncated bool
			created   string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Text, &exitCode, &truncated, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			m.ExitCode = &code
		}
		m.Truncated = truncated
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse message time: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess             Session
		created, updated string
	)
	if err := row.Scan(&sess.ID, &sess.Title, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &sess, nil
}
