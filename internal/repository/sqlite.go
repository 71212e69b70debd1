package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"story-offline/internal/models"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

var sqliteMigrations = []string{
	`
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		lat REAL,
		lon REAL,
		created_at INTEGER NOT NULL,
		saved_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pending_stories (
		local_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		photo_ref TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		lat REAL,
		lon REAL,
		created_at INTEGER NOT NULL,
		queued_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_queued_at ON pending_stories(queued_at);
	`,
	// seq keeps insertion order for submissions queued within one clock tick
	`
	CREATE TABLE pending_stories_v2 (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		local_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		photo_ref TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		lat REAL,
		lon REAL,
		created_at INTEGER NOT NULL,
		queued_at INTEGER NOT NULL
	);
	INSERT INTO pending_stories_v2
		(local_id, name, description, photo_ref, content_type, lat, lon, created_at, queued_at)
	SELECT local_id, name, description, photo_ref, content_type, lat, lon, created_at, queued_at
	FROM pending_stories
	ORDER BY queued_at, local_id;
	DROP TABLE pending_stories;
	ALTER TABLE pending_stories_v2 RENAME TO pending_stories;
	`,
}

// SQLiteEngine stores both partitions in a single SQLite database file
type SQLiteEngine struct {
	db   *sql.DB
	path string
}

// NewSQLiteEngine creates an engine for the database at path. The file is
// created on EnsureSchema; ":memory:" keeps everything in memory.
func NewSQLiteEngine(path string) (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer: a single connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	return &SQLiteEngine{db: db, path: path}, nil
}

// Path returns the database file path
func (e *SQLiteEngine) Path() string {
	return e.path
}

// EnsureSchema creates the database file and applies pending migrations
func (e *SQLiteEngine) EnsureSchema(ctx context.Context) error {
	if e.path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := e.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	var version int
	if err := e.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(sqliteMigrations); i++ {
		if err := e.migrate(ctx, i+1, sqliteMigrations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *SQLiteEngine) migrate(ctx context.Context, version int, stmt string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to apply migration %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, version)); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}
	return tx.Commit()
}

// UpsertStories inserts or overwrites stories by id in one transaction
func (e *SQLiteEngine) UpsertStories(ctx context.Context, stories []*models.Story) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO stories (id, name, description, photo_url, lat, lon, created_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			photo_url = excluded.photo_url,
			lat = excluded.lat,
			lon = excluded.lon,
			created_at = excluded.created_at,
			saved_at = excluded.saved_at
	`
	for _, s := range stories {
		lat, lon := nullLocation(s.Location)
		_, err := tx.ExecContext(ctx, query,
			s.ID, s.Name, s.Description, s.PhotoURL, lat, lon,
			s.CreatedAt.UnixNano(), s.SavedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert story %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// GetStory retrieves a story by id
func (e *SQLiteEngine) GetStory(ctx context.Context, id string) (*models.Story, error) {
	query := `
		SELECT id, name, description, photo_url, lat, lon, created_at, saved_at
		FROM stories
		WHERE id = ?
	`
	story, err := scanStory(e.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return story, nil
}

// StoryExists checks if a story id is present
func (e *SQLiteEngine) StoryExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := e.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stories WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check story existence: %w", err)
	}
	return exists, nil
}

// ListStories returns the whole confirmed partition
func (e *SQLiteEngine) ListStories(ctx context.Context) ([]*models.Story, error) {
	query := `
		SELECT id, name, description, photo_url, lat, lon, created_at, saved_at
		FROM stories
		ORDER BY id
	`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := []*models.Story{}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stories: %w", err)
	}
	return stories, nil
}

// DeleteStory deletes a story by id; a missing id is not an error
func (e *SQLiteEngine) DeleteStory(ctx context.Context, id string) error {
	if _, err := e.db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

// InsertPending adds a pending submission unless its local id is taken
func (e *SQLiteEngine) InsertPending(ctx context.Context, p *models.PendingSubmission) (bool, error) {
	query := `
		INSERT INTO pending_stories
			(local_id, name, description, photo_ref, content_type, lat, lon, created_at, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (local_id) DO NOTHING
	`
	lat, lon := nullLocation(p.Location)
	result, err := e.db.ExecContext(ctx, query,
		p.LocalID, p.Name, p.Description, p.PhotoRef, p.ContentType, lat, lon,
		p.CreatedAt.UnixNano(), p.QueuedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert pending story: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// ListPending returns pending submissions oldest first
func (e *SQLiteEngine) ListPending(ctx context.Context) ([]*models.PendingSubmission, error) {
	query := `
		SELECT local_id, name, description, photo_ref, content_type, lat, lon, created_at, queued_at
		FROM pending_stories
		ORDER BY seq
	`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending stories: %w", err)
	}
	defer rows.Close()

	pending := []*models.PendingSubmission{}
	for rows.Next() {
		var (
			p                   models.PendingSubmission
			lat, lon            sql.NullFloat64
			createdAt, queuedAt int64
		)
		err := rows.Scan(&p.LocalID, &p.Name, &p.Description, &p.PhotoRef, &p.ContentType,
			&lat, &lon, &createdAt, &queuedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending story: %w", err)
		}
		p.Location = locationFrom(lat, lon)
		p.CreatedAt = fromUnixNano(createdAt)
		p.QueuedAt = fromUnixNano(queuedAt)
		pending = append(pending, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending stories: %w", err)
	}
	return pending, nil
}

// DeletePending removes a pending submission by local id
func (e *SQLiteEngine) DeletePending(ctx context.Context, localID string) error {
	if _, err := e.db.ExecContext(ctx, `DELETE FROM pending_stories WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to delete pending story: %w", err)
	}
	return nil
}

// Close closes the database connection
func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*models.Story, error) {
	var (
		s                  models.Story
		lat, lon           sql.NullFloat64
		createdAt, savedAt int64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.PhotoURL, &lat, &lon, &createdAt, &savedAt); err != nil {
		return nil, err
	}
	s.Location = locationFrom(lat, lon)
	s.CreatedAt = fromUnixNano(createdAt)
	s.SavedAt = fromUnixNano(savedAt)
	return &s, nil
}

func nullLocation(loc *models.Location) (sql.NullFloat64, sql.NullFloat64) {
	if loc == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: loc.Lat, Valid: true}, sql.NullFloat64{Float64: loc.Lon, Valid: true}
}

func locationFrom(lat, lon sql.NullFloat64) *models.Location {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &models.Location{Lat: lat.Float64, Lon: lon.Float64}
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
