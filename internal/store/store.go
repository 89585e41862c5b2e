package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Store provides access to the PostgreSQL database for prompt versions.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS prompt_versions (
	id           BIGSERIAL PRIMARY KEY,
	agent_type   TEXT        NOT NULL,
	version      INTEGER     NOT NULL,
	prompt       TEXT        NOT NULL,
	notes        TEXT        NOT NULL DEFAULT '',
	is_active    BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	activated_at TIMESTAMPTZ,
	UNIQUE (agent_type, version)
);
CREATE UNIQUE INDEX IF NOT EXISTS prompt_versions_one_active
	ON prompt_versions (agent_type) WHERE is_active;
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
