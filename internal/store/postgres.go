package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// Postgres implements Queue on two tables. Workers share one pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("connect", err)
	}

	// Auto-migration
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pending_streams (
			name TEXT PRIMARY KEY,
			queued_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS stream_scores (
			name TEXT PRIMARY KEY,
			score DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS stream_scores_score_idx ON stream_scores (score);
	`)
	return err
}

// Pop takes the oldest pending row. SKIP LOCKED lets concurrent workers pop different rows.
func (p *Postgres) Pop(ctx context.Context) (string, bool, error) {
	var name string
	err := p.pool.QueryRow(ctx, `
		DELETE FROM pending_streams
		WHERE name = (
			SELECT name FROM pending_streams
			ORDER BY queued_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING name
	`).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("pop", err)
	}
	return name, true, nil
}

func (p *Postgres) Upsert(ctx context.Context, name string, score float64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO stream_scores (name, score, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET score = EXCLUDED.score, updated_at = NOW()
	`, name, score)
	if err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

func (p *Postgres) Push(ctx context.Context, names ...string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO pending_streams (name)
		SELECT DISTINCT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING
	`, names)
	if err != nil {
		return 0, unavailable("push", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) Ranked(ctx context.Context) ([]types.RankedStream, error) {
	rows, err := p.pool.Query(ctx, "SELECT name, score FROM stream_scores ORDER BY score ASC, name ASC")
	if err != nil {
		return nil, unavailable("ranked", err)
	}
	defer rows.Close()

	var out []types.RankedStream
	for rows.Next() {
		var name string
		var score float64
		if err := rows.Scan(&name, &score); err != nil {
			return nil, err
		}
		out = append(out, ranked(name, score))
	}
	return out, rows.Err()
}

// Reset truncates both tables. The schema is kept.
func (p *Postgres) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "TRUNCATE pending_streams, stream_scores"); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
