package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS formwizard_drafts (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage persists draft documents in Postgres so several hosts can
// share drafts. A single connection is used; calls are serialised.
type PostgresStorage struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

var _ Storage = (*PostgresStorage)(nil)

// ConnectPostgresStorage connects with dsn, pings the server and ensures the
// drafts table exists.
func ConnectPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("draft: parse postgres config: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("draft: connect postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("draft: ping postgres: %w", err)
	}
	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("draft: create drafts table: %w", err)
	}
	return &PostgresStorage{conn: conn}, nil
}

func (p *PostgresStorage) Get(ctx context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var value string
	err := p.conn.QueryRow(ctx, `SELECT value FROM formwizard_drafts WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("draft: select %q: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresStorage) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.conn.Exec(ctx,
		`INSERT INTO formwizard_drafts (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("draft: upsert %q: %w", key, err)
	}
	return nil
}

func (p *PostgresStorage) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.conn.Exec(ctx, `DELETE FROM formwizard_drafts WHERE key = $1`, key); err != nil {
		return fmt.Errorf("draft: delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection.
func (p *PostgresStorage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close(ctx)
}
