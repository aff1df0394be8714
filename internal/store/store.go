package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Stream is one live channel in a catalog generation. The external ID is an
// opaque string and is only unique within a generation: the previous
// generation keeps its rows, flagged archived, until the next replace cycle.
type Stream struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	UserName     string    `json:"user_name" db:"user_name"`
	GameID       string    `json:"game_id" db:"game_id"`
	GameName     string    `json:"game_name" db:"game_name"`
	Title        string    `json:"title" db:"title"`
	ViewerCount  int       `json:"viewer_count" db:"viewer_count"`
	ThumbnailURL string    `json:"thumbnail_url" db:"thumbnail_url"`
	TagIDs       []string  `json:"tag_ids" db:"-"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	Archived     bool      `json:"-" db:"is_archived"`
	TagIDsJSON   string    `json:"-" db:"tag_ids"`
}

// Tag is a taxonomy entry. IDs are opaque strings and are never coerced to a
// numeric type; some upstream tag IDs are not numeric and coercion would
// truncate them. Auto marks tags ingested as a side effect of stream sync
// rather than by an explicit full taxonomy pull.
type Tag struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Auto        bool   `json:"auto" db:"auto"`
}

// Store is the persistence interface.
type Store interface {
	// ReplaceStreams swaps in a new generation atomically: previously archived
	// rows are dropped, the current generation is flagged archived, and the
	// new one is inserted non-archived, all in one transaction. Readers see
	// either the old generation or the new one, never a mix.
	ReplaceStreams(ctx context.Context, streams []Stream) error
	ListCurrentStreams(ctx context.Context) ([]Stream, error)
	GameStreamCounts(ctx context.Context) (map[string]int, error)
	GameViewerCounts(ctx context.Context) (map[string]int64, error)

	ExistingTagIDs(ctx context.Context, ids []string) ([]string, error)
	UpsertTags(ctx context.Context, tags []Tag) error
	ListTags(ctx context.Context) ([]Tag, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceStreams(ctx context.Context, streams []Stream) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace streams: begin: %w", err)
	}
	defer tx.Rollback()

	// The generation archived in the previous cycle is no longer reachable.
	if _, err := tx.ExecContext(ctx, "DELETE FROM streams WHERE is_archived = 1"); err != nil {
		return fmt.Errorf("replace streams: drop old generation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE streams SET is_archived = 1"); err != nil {
		return fmt.Errorf("replace streams: archive current: %w", err)
	}

	for i := range streams {
		tagsJSON, _ := json.Marshal(streams[i].TagIDs)
		streams[i].TagIDsJSON = string(tagsJSON)
		streams[i].Archived = false
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO streams (id, user_id, user_name, game_id, game_name, title, viewer_count, thumbnail_url, tag_ids, started_at, is_archived)
		VALUES (:id, :user_id, :user_name, :game_id, :game_name, :title, :viewer_count, :thumbnail_url, :tag_ids, :started_at, :is_archived)
	`, streams); err != nil {
		return fmt.Errorf("replace streams: insert generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace streams: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCurrentStreams(ctx context.Context) ([]Stream, error) {
	var streams []Stream
	err := s.db.SelectContext(ctx, &streams, `
		SELECT id, user_id, user_name, game_id, game_name, title, viewer_count, thumbnail_url, tag_ids, started_at, is_archived
		FROM streams WHERE is_archived = 0
		ORDER BY viewer_count DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list current streams: %w", err)
	}

	for i := range streams {
		json.Unmarshal([]byte(streams[i].TagIDsJSON), &streams[i].TagIDs)
	}
	return streams, nil
}

func (s *SQLiteStore) GameStreamCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT game_id, COUNT(id) AS cnt FROM streams WHERE is_archived = 0 GROUP BY game_id")
	if err != nil {
		return nil, fmt.Errorf("game stream counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var gameID string
		var cnt int
		if err := rows.Scan(&gameID, &cnt); err != nil {
			return nil, err
		}
		counts[gameID] = cnt
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) GameViewerCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT game_id, SUM(viewer_count) AS total FROM streams WHERE is_archived = 0 GROUP BY game_id")
	if err != nil {
		return nil, fmt.Errorf("game viewer counts: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var gameID string
		var total int64
		if err := rows.Scan(&gameID, &total); err != nil {
			return nil, err
		}
		totals[gameID] = total
	}
	return totals, rows.Err()
}

func (s *SQLiteStore) ExistingTagIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT id FROM stream_tags WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("existing tag ids: %w", err)
	}

	var existing []string
	if err := s.db.SelectContext(ctx, &existing, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("existing tag ids: %w", err)
	}
	return existing, nil
}

func (s *SQLiteStore) UpsertTags(ctx context.Context, tags []Tag) error {
	for i := range tags {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO stream_tags (id, name, description, auto)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description
		`, tags[i].ID, tags[i].Name, tags[i].Description, tags[i].Auto)
		if err != nil {
			return fmt.Errorf("upsert tag %s: %w", tags[i].ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	err := s.db.SelectContext(ctx, &tags,
		"SELECT id, name, description, auto FROM stream_tags ORDER BY id")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}
