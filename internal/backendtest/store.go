package backendtest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const defaultSessionTitle = "New Chat"

type SessionRecord struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

type MessageRecord struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

type DocumentRecord struct {
	ID          int64
	Filename    string
	ContentType string
	Size        int
	CreatedAt   time.Time
}

// SQLiteStore keeps the backend double's sessions, messages and indexed
// documents in a private in-memory database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a fresh in-memory database. Each store gets its own
// database, so parallel tests do not share state.
func NewSQLiteStore() (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:backendtest-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The in-memory database lives as long as one connection stays open.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS chat_sessions (
        id TEXT PRIMARY KEY, -- UUID
        title TEXT NOT NULL DEFAULT 'New Chat',
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS documents (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        filename TEXT NOT NULL,
        content_type TEXT NOT NULL,
        size INTEGER NOT NULL,
        created_at DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Session methods
func (s *SQLiteStore) CreateSession(title string) (*SessionRecord, error) {
	if title == "" {
		title = defaultSessionTitle
	}
	row := &SessionRecord{ID: uuid.NewString(), Title: title, CreatedAt: time.Now().UTC()}
	_, err := s.db.Exec("INSERT INTO chat_sessions (id, title, created_at) VALUES (?, ?, ?)", row.ID, row.Title, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute session insert: %w", err)
	}
	return row, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionRecord, error) {
	rows, err := s.db.Query("SELECT id, title, created_at FROM chat_sessions ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionRecord{}
	for rows.Next() {
		var row SessionRecord
		if err := rows.Scan(&row.ID, &row.Title, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, row)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and its messages. It reports false when the
// session does not exist.
func (s *SQLiteStore) DeleteSession(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("DELETE FROM chat_sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return false, nil
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete session messages: %w", err)
	}
	return true, tx.Commit()
}

// Message methods
func (s *SQLiteStore) GetMessages(sessionID string) ([]MessageRecord, error) {
	rows, err := s.db.Query("SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []MessageRecord{}
	for rows.Next() {
		var row MessageRecord
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Role, &row.Content, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, row)
	}
	return messages, rows.Err()
}

// AppendExchange stores a user message and the reply to it in one transaction,
// so history never shows one without the other.
func (s *SQLiteStore) AppendExchange(sessionID, userContent, assistantContent string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin exchange insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	stmt, err := tx.Prepare("INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(sessionID, "user", userContent, now); err != nil {
		return fmt.Errorf("failed to insert user message: %w", err)
	}
	if _, err := stmt.Exec(sessionID, "assistant", assistantContent, now); err != nil {
		return fmt.Errorf("failed to insert assistant message: %w", err)
	}
	return tx.Commit()
}

// Document methods
func (s *SQLiteStore) CreateDocument(filename, contentType string, size int) error {
	_, err := s.db.Exec("INSERT INTO documents (filename, content_type, size, created_at) VALUES (?, ?, ?, ?)",
		filename, contentType, size, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to execute document insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDocuments() ([]DocumentRecord, error) {
	rows, err := s.db.Query("SELECT id, filename, content_type, size, created_at FROM documents ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentRecord{}
	for rows.Next() {
		var row DocumentRecord
		if err := rows.Scan(&row.ID, &row.Filename, &row.ContentType, &row.Size, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, row)
	}
	return docs, rows.Err()
}
