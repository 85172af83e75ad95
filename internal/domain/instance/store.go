package instance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

const schema = `CREATE TABLE IF NOT EXISTS widget_instance (
	widget_id TEXT,
	viewer_id TEXT,
	content_info TEXT,
	instance_id TEXT PRIMARY KEY
);`

// Record is one persisted instance row
type Record struct {
	WidgetID   string
	ViewerID   string
	InstanceID string
	Content    types.Content

	// DecodeErr is set when the stored content could not be decoded; the
	// row is returned with nil Content
	DecodeErr error
}

// Store persists instance rows in SQLite. The database is opened on first
// use; an open failure is returned to the caller and retried on the next call.
type Store struct {
	mu   sync.Mutex
	path string
	db   *sql.DB
}

// NewStore creates a store backed by the database at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the database location
func (s *Store) Path() string {
	return s.path
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	if s.path == "" {
		return nil, fmt.Errorf("%w: no database path", ErrIO)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, s.path, err)
	}
	// A single connection keeps every statement on the same database handle
	db.SetMaxOpenConns(1)
	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	s.db = db
	return db, nil
}

func configure(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=5000;`); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Load returns every row stored for viewerID. A row with undecodable
// content does not fail the load; see Record.DecodeErr.
func (s *Store) Load(ctx context.Context, viewerID string) ([]Record, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT widget_id, content_info, instance_id FROM widget_instance WHERE viewer_id = ?`,
		viewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrIO, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var widgetID, instanceID string
		var raw sql.NullString
		if err := rows.Scan(&widgetID, &raw, &instanceID); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrIO, err)
		}
		rec := Record{
			WidgetID:   widgetID,
			ViewerID:   viewerID,
			InstanceID: instanceID,
		}
		rec.Content, rec.DecodeErr = types.DecodeContent(raw.String)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return records, nil
}

// Upsert inserts the instance row when it has not been stored yet and
// otherwise updates its content. On success the instance is marked stored.
func (s *Store) Upsert(ctx context.Context, viewerID string, inst *Instance) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	raw, err := inst.content.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	if inst.stored {
		res, err := db.ExecContext(ctx,
			`UPDATE widget_instance SET content_info = ? WHERE instance_id = ?`,
			raw, inst.id)
		if err != nil {
			return fmt.Errorf("%w: update %s: %v", ErrIO, inst.id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
		// Row vanished underneath us; write it again
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO widget_instance (widget_id, viewer_id, content_info, instance_id) VALUES (?, ?, ?, ?)`,
		inst.widgetID, viewerID, raw, inst.id)
	if err != nil {
		return fmt.Errorf("%w: insert %s: %v", ErrIO, inst.id, err)
	}
	inst.stored = true
	return nil
}

// Delete removes the instance row. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, inst *Instance) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM widget_instance WHERE instance_id = ?`, inst.id); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrIO, inst.id, err)
	}
	inst.stored = false
	return nil
}

// Close releases the database handle
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return nil
}
