package repository

import (
	"context"
	"fmt"
	"time"

	"story-offline/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrations = []string{
	`
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pending_stories (
		local_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		photo_ref TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL,
		queued_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_queued_at ON pending_stories(queued_at);
	`,
	// seq keeps insertion order for submissions queued within one clock tick
	`
	CREATE SEQUENCE IF NOT EXISTS pending_stories_seq_seq;
	ALTER TABLE pending_stories ADD COLUMN IF NOT EXISTS seq BIGINT;
	UPDATE pending_stories p
	SET seq = o.rn
	FROM (
		SELECT local_id, row_number() OVER (ORDER BY queued_at, local_id) AS rn
		FROM pending_stories
	) o
	WHERE p.local_id = o.local_id;
	SELECT setval('pending_stories_seq_seq', COALESCE((SELECT MAX(seq) FROM pending_stories), 0) + 1, false);
	ALTER TABLE pending_stories
		ALTER COLUMN seq SET DEFAULT nextval('pending_stories_seq_seq'),
		ALTER COLUMN seq SET NOT NULL;
	ALTER SEQUENCE pending_stories_seq_seq OWNED BY pending_stories.seq;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_seq ON pending_stories(seq);
	`,
}

// PostgresEngine stores both partitions in PostgreSQL
type PostgresEngine struct {
	db *pgxpool.Pool
}

// NewPostgresEngine creates a pool for dsn; connections are made lazily
func NewPostgresEngine(ctx context.Context, dsn string) (*PostgresEngine, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &PostgresEngine{db: db}, nil
}

// EnsureSchema applies pending migrations tracked in schema_version
func (e *PostgresEngine) EnsureSchema(ctx context.Context) error {
	if err := e.db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	_, err := e.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var version int
	err = e.db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(postgresMigrations); i++ {
		next := i + 1
		stmt := postgresMigrations[i]
		err := pgx.BeginFunc(ctx, e.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, next)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", next, err)
		}
	}
	return nil
}

// UpsertStories inserts or overwrites stories by id in one transaction
func (e *PostgresEngine) UpsertStories(ctx context.Context, stories []*models.Story) error {
	query := `
		INSERT INTO stories (id, name, description, photo_url, lat, lon, created_at, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			photo_url = EXCLUDED.photo_url,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			created_at = EXCLUDED.created_at,
			saved_at = EXCLUDED.saved_at
	`
	return pgx.BeginFunc(ctx, e.db, func(tx pgx.Tx) error {
		for _, s := range stories {
			lat, lon := locationPtrs(s.Location)
			_, err := tx.Exec(ctx, query,
				s.ID, s.Name, s.Description, s.PhotoURL, lat, lon, s.CreatedAt, s.SavedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert story %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

// GetStory retrieves a story by id
func (e *PostgresEngine) GetStory(ctx context.Context, id string) (*models.Story, error) {
	query := `
		SELECT id, name, description, photo_url, lat, lon, created_at, saved_at
		FROM stories
		WHERE id = $1
	`
	story, err := scanPgStory(e.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return story, nil
}

// StoryExists checks if a story id is present
func (e *PostgresEngine) StoryExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := e.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stories WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check story existence: %w", err)
	}
	return exists, nil
}

// ListStories returns the whole confirmed partition
func (e *PostgresEngine) ListStories(ctx context.Context) ([]*models.Story, error) {
	query := `
		SELECT id, name, description, photo_url, lat, lon, created_at, saved_at
		FROM stories
		ORDER BY id
	`
	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := []*models.Story{}
	for rows.Next() {
		story, err := scanPgStory(rows)
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
func (e *PostgresEngine) DeleteStory(ctx context.Context, id string) error {
	if _, err := e.db.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

// InsertPending adds a pending submission unless its local id is taken
func (e *PostgresEngine) InsertPending(ctx context.Context, p *models.PendingSubmission) (bool, error) {
	query := `
		INSERT INTO pending_stories
			(local_id, name, description, photo_ref, content_type, lat, lon, created_at, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (local_id) DO NOTHING
	`
	lat, lon := locationPtrs(p.Location)
	result, err := e.db.Exec(ctx, query,
		p.LocalID, p.Name, p.Description, p.PhotoRef, p.ContentType, lat, lon, p.CreatedAt, p.QueuedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert pending story: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListPending returns pending submissions oldest first
func (e *PostgresEngine) ListPending(ctx context.Context) ([]*models.PendingSubmission, error) {
	query := `
		SELECT local_id, name, description, photo_ref, content_type, lat, lon, created_at, queued_at
		FROM pending_stories
		ORDER BY seq
	`
	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending stories: %w", err)
	}
	defer rows.Close()

	pending := []*models.PendingSubmission{}
	for rows.Next() {
		var (
			p        models.PendingSubmission
			lat, lon *float64
		)
		err := rows.Scan(&p.LocalID, &p.Name, &p.Description, &p.PhotoRef, &p.ContentType,
			&lat, &lon, &p.CreatedAt, &p.QueuedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending story: %w", err)
		}
		p.Location = locationFromPtrs(lat, lon)
		p.CreatedAt = p.CreatedAt.UTC()
		p.QueuedAt = p.QueuedAt.UTC()
		pending = append(pending, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending stories: %w", err)
	}
	return pending, nil
}

// DeletePending removes a pending submission by local id
func (e *PostgresEngine) DeletePending(ctx context.Context, localID string) error {
	if _, err := e.db.Exec(ctx, `DELETE FROM pending_stories WHERE local_id = $1`, localID); err != nil {
		return fmt.Errorf("failed to delete pending story: %w", err)
	}
	return nil
}

// Close releases the pool
func (e *PostgresEngine) Close() error {
	e.db.Close()
	return nil
}

func scanPgStory(row pgx.Row) (*models.Story, error) {
	var (
		s                  models.Story
		lat, lon           *float64
		createdAt, savedAt time.Time
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.PhotoURL, &lat, &lon, &createdAt, &savedAt); err != nil {
		return nil, err
	}
	s.Location = locationFromPtrs(lat, lon)
	s.CreatedAt = createdAt.UTC()
	s.SavedAt = savedAt.UTC()
	return &s, nil
}

func locationPtrs(loc *models.Location) (*float64, *float64) {
	if loc == nil {
		return nil, nil
	}
	lat, lon := loc.Lat, loc.Lon
	return &lat, &lon
}

func locationFromPtrs(lat, lon *float64) *models.Location {
	if lat == nil || lon == nil {
		return nil
	}
	return &models.Location{Lat: *lat, Lon: *lon}
}
