// Package audit provides a best-effort operation log stored in SQLite in
// the lockbox home directory. Logging never blocks or fails a vault
// operation; call sites discard the returned error after deciding it is
// non-fatal.
package audit

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Operation types.
const (
	OpVaultInit     = "vault.init"
	OpVaultOpen     = "vault.open"
	OpVaultOpenFail = "vault.open_failed"
	OpVaultCommit   = "vault.commit"
	OpVaultEdit     = "vault.edit"

	OpRecordAdd    = "record.add"
	OpRecordDelete = "record.delete"
	OpNoteAdd      = "note.add"
	OpNoteDelete   = "note.delete"

	OpMasterChange  = "master.change"
	OpMasterRecover = "master.recover"

	OpSessionLogin     = "session.login"
	OpSessionLoginFail = "session.login_failed"
	OpSessionLogout    = "session.logout"
	OpSessionExpired   = "session.expired"
)

// Source identifies where the operation originated.
const (
	SourceCLI = "cli"
	SourceWeb = "web"
)

// Result indicates the outcome of an operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Event is a single audit record.
type Event struct {
	ID        string
	Timestamp time.Time
	Operation string
	Source    string
	Target    string
	Result    string
	Detail    string
}

// Logger appends events to an SQLite database. A nil *Logger is valid and
// drops every event, so callers can log unconditionally.
type Logger struct {
	path string
	mu   sync.Mutex
	db   *sql.DB
}

// NewLogger returns a logger writing to the database at path. The database
// is opened lazily on first use.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// open establishes the database connection and schema on first use.
// Callers must hold l.mu.
func (l *Logger) open() error {
	if l.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", l.path+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("audit: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			op TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT,
			result TEXT NOT NULL,
			detail TEXT
		)
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("audit: failed to create schema: %w", err)
	}

	l.db = db
	return nil
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, source, target string) error {
	return l.log(op, source, target, ResultSuccess, "")
}

// LogError records a failed operation with a short detail string.
func (l *Logger) LogError(op, source, target, detail string) error {
	return l.log(op, source, target, ResultError, detail)
}

func (l *Logger) log(op, source, target, result, detail string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.open(); err != nil {
		return err
	}

	_, err := l.db.Exec(
		`INSERT INTO events (id, ts, op, source, target, result, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), time.Now().UTC(), op, source, target, result, detail,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// List returns up to limit events, newest first.
func (l *Logger) List(limit int) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.open(); err != nil {
		return nil, err
	}

	rows, err := l.db.Query(
		`SELECT id, ts, op, source, target, result, detail FROM events ORDER BY ts DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Operation, &e.Source, &e.Target, &e.Result, &e.Detail); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: error iterating events: %w", err)
	}
	return events, nil
}

// Check verifies the event table is readable. Used by doctor.
func (l *Logger) Check() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.open(); err != nil {
		return err
	}
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return fmt.Errorf("audit: integrity check failed: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
