// Package storage persists upload records and their analysis lifecycle.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ecosnap/ecosnap/internal/analysis"
	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of an upload's analysis.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound is returned when no upload exists with the given id.
	ErrNotFound = errors.New("storage: upload not found")
	// ErrTerminal is returned when a status write targets an upload that
	// already reached a terminal state. Transitions only move forward.
	ErrTerminal = errors.New("storage: upload already in terminal state")
)

// Upload is the record representing one submitted image and its analysis
// lifecycle.
type Upload struct {
	ID           string
	Filename     string
	OriginalName string
	ImagePath    string
	MimeType     string
	SizeBytes    int64
	Status       Status
	Result       *analysis.Result // set only when Status is completed
	Error        string           // set only when Status is failed
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UploadStore defines upload record persistence. Status transitions are
// monotonic: pending -> processing -> completed|failed, and a terminal state
// is written at most once.
type UploadStore interface {
	Create(upload *Upload) error
	Get(id string) (*Upload, error)
	List(limit int) ([]Upload, error)
	SetProcessing(id string) error
	Complete(id string, result *analysis.Result) error
	Fail(id string, message string) error
	Delete(id string) error
	Close() error
}

// SQLiteStore implements UploadStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and if needed initializes) the upload database at
// dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL,
		image_path TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create uploads table: %w", err)
	}

	indexQuery := `CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at DESC);`
	if _, err := s.db.Exec(indexQuery); err != nil {
		return fmt.Errorf("failed to create uploads index: %w", err)
	}

	return nil
}

// Create inserts a new upload record in pending state.
func (s *SQLiteStore) Create(upload *Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	upload.Status = StatusPending
	upload.CreatedAt = now
	upload.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO uploads (id, filename, original_name, image_path, mime_type, size_bytes, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		upload.ID, upload.Filename, upload.OriginalName, upload.ImagePath,
		upload.MimeType, upload.SizeBytes, upload.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

// Get retrieves an upload by id.
func (s *SQLiteStore) Get(id string) (*Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, filename, original_name, image_path, mime_type, size_bytes, status, result, error, created_at, updated_at
		 FROM uploads WHERE id = ?`, id,
	)
	return scanUpload(row)
}

// List returns the most recent uploads, newest first.
func (s *SQLiteStore) List(limit int) ([]Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, filename, original_name, image_path, mime_type, size_bytes, status, result, error, created_at, updated_at
		 FROM uploads ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *upload)
	}
	return uploads, rows.Err()
}

// SetProcessing transitions an upload to processing. Re-delivery is
// tolerated (processing -> processing is a no-op write) but terminal states
// are never left.
func (s *SQLiteStore) SetProcessing(id string) error {
	return s.transition(id,
		`UPDATE uploads SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		StatusProcessing, time.Now().UTC(), id, StatusPending, StatusProcessing,
	)
}

// Complete writes the terminal completed state together with the analysis
// result in one atomic update.
func (s *SQLiteStore) Complete(id string, result *analysis.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	return s.transition(id,
		`UPDATE uploads SET status = ?, result = ?, error = '', updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		StatusCompleted, string(resultJSON), time.Now().UTC(), id, StatusCompleted, StatusFailed,
	)
}

// Fail writes the terminal failed state with a human-readable error. No
// analysis result is attached.
func (s *SQLiteStore) Fail(id string, message string) error {
	return s.transition(id,
		`UPDATE uploads SET status = ?, error = ?, result = NULL, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed, message, time.Now().UTC(), id, StatusCompleted, StatusFailed,
	)
}

// Delete removes an upload record.
func (s *SQLiteStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM uploads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// transition runs a guarded status update. When the guard matches no rows it
// distinguishes a missing upload from one that already reached a terminal
// state.
func (s *SQLiteStore) transition(id, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status Status
	err = s.db.QueryRow("SELECT status FROM uploads WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query upload status: %w", err)
	}
	if status.Terminal() {
		return ErrTerminal
	}
	return fmt.Errorf("storage: invalid transition from %q", status)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*Upload, error) {
	var upload Upload
	var resultJSON sql.NullString

	err := row.Scan(
		&upload.ID, &upload.Filename, &upload.OriginalName, &upload.ImagePath,
		&upload.MimeType, &upload.SizeBytes, &upload.Status, &resultJSON,
		&upload.Error, &upload.CreatedAt, &upload.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}

	if resultJSON.Valid && resultJSON.String != "" {
		var result analysis.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
		}
		upload.Result = &result
	}

	return &upload, nil
}
