package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/chatpipe/core"
)

// SQLiteStore implements core.PersistenceStore on a SQLite database.
// Messages are stored as a JSON array column of the session row; settings
// live in a single-row table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration. Use ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chat db: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate chat db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			preview     TEXT NOT NULL DEFAULT '',
			is_archived INTEGER NOT NULL DEFAULT 0,
			messages    TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS settings (
			id   INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession inserts or replaces the session row.
func (s *SQLiteStore) SaveSession(session *core.ChatSession) error {
	msgs, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, title, preview, is_archived, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			preview = excluded.preview,
			is_archived = excluded.is_archived,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		session.ID, session.Title, session.Preview, session.IsArchived, string(msgs),
		session.CreatedAt.UTC().Format(timeLayout), session.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

// timeLayout is fixed width so that ORDER BY on the text column sorts
// chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const sessionColumns = "id, title, preview, is_archived, messages, created_at, updated_at"

// LoadSession returns the session or core.ErrNotFound.
func (s *SQLiteStore) LoadSession(id string) (*core.ChatSession, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return session, err
}

// LoadAllSessions returns every session, most recently updated first.
func (s *SQLiteStore) LoadAllSessions() ([]*core.ChatSession, error) {
	rows, err := s.db.Query("SELECT " + sessionColumns + " FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*core.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes the session or returns core.ErrNotFound.
func (s *SQLiteStore) DeleteSession(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// SaveSettings replaces the stored settings.
func (s *SQLiteStore) SaveSettings(settings core.AppSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO settings (id, data) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data",
		string(data),
	)
	return err
}

// LoadSettings returns the stored settings or core.ErrNotFound.
func (s *SQLiteStore) LoadSettings() (core.AppSettings, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM settings WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AppSettings{}, fmt.Errorf("settings: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.AppSettings{}, err
	}
	var settings core.AppSettings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return core.AppSettings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return settings, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.ChatSession, error) {
	var (
		session              core.ChatSession
		msgs                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&session.ID, &session.Title, &session.Preview, &session.IsArchived, &msgs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(msgs), &session.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages of %s: %w", session.ID, err)
	}
	if session.Messages == nil {
		session.Messages = []core.Message{}
	}
	var err error
	if session.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &session, nil
}
