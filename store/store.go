// Package store persists capture session history to SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Schema for the captures table. Applied by Init.
const Schema = `
CREATE TABLE IF NOT EXISTS captures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	content_height INTEGER NOT NULL DEFAULT 0,
	tile_count INTEGER NOT NULL DEFAULT 0,
	format TEXT NOT NULL,
	output_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_captures_started ON captures(started_at);
CREATE INDEX IF NOT EXISTS idx_captures_url ON captures(url);
`

// Capture is one recorded capture session.
type Capture struct {
	ID            int64  `json:"id"`
	URL           string `json:"url"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ContentHeight int    `json:"content_height"`
	TileCount     int    `json:"tile_count"`
	Format        string `json:"format"`
	OutputPath    string `json:"output_path,omitempty"`
	Status        string `json:"status"` // "ok" or "failed"
	Error         string `json:"error,omitempty"`
	StartedAt     int64  `json:"started_at"`
	DurationMs    int64  `json:"duration_ms"`
}

// Store persists capture records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := New(db)
	if err := s.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the captures table if it doesn't exist.
func (s *Store) Init() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// Record inserts a capture record and returns its ID.
func (s *Store) Record(ctx context.Context, c *Capture) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO captures
			(url, width, height, content_height, tile_count, format,
			 output_path, status, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.URL, c.Width, c.Height, c.ContentHeight, c.TileCount, c.Format,
		c.OutputPath, c.Status, c.Error, c.StartedAt, c.DurationMs)
	if err != nil {
		return 0, fmt.Errorf("store: record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: record id: %w", err)
	}
	c.ID = id
	return id, nil
}

// List returns the most recent captures, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, width, height, content_height, tile_count, format,
		       output_path, status, error, started_at, duration_ms
		FROM captures ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ID, &c.URL, &c.Width, &c.Height, &c.ContentHeight,
			&c.TileCount, &c.Format, &c.OutputPath, &c.Status, &c.Error,
			&c.StartedAt, &c.DurationMs); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns one capture by ID, or sql.ErrNoRows wrapped.
func (s *Store) Get(ctx context.Context, id int64) (*Capture, error) {
	var c Capture
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, width, height, content_height, tile_count, format,
		       output_path, status, error, started_at, duration_ms
		FROM captures WHERE id = ?`, id).
		Scan(&c.ID, &c.URL, &c.Width, &c.Height, &c.ContentHeight,
			&c.TileCount, &c.Format, &c.OutputPath, &c.Status, &c.Error,
			&c.StartedAt, &c.DurationMs)
	if err != nil {
		return nil, fmt.Errorf("store: get %d: %w", id, err)
	}
	return &c, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
