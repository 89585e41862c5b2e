package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PromptVersion represents a row in the prompt_versions table.
// At most one version per agent type is active.
type PromptVersion struct {
	ID          int64
	AgentType   string
	Version     int
	Prompt      string
	Notes       string
	IsActive    bool
	CreatedAt   time.Time
	ActivatedAt *time.Time
}

const promptColumns = `id, agent_type, version, prompt, notes, is_active, created_at, activated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPromptVersion(row rowScanner) (*PromptVersion, error) {
	var pv PromptVersion
	var activatedAt sql.NullTime
	if err := row.Scan(&pv.ID, &pv.AgentType, &pv.Version, &pv.Prompt, &pv.Notes,
		&pv.IsActive, &pv.CreatedAt, &activatedAt); err != nil {
		return nil, err
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		pv.ActivatedAt = &t
	}
	return &pv, nil
}

// GetActiveVersion returns the active prompt for agentType, or nil if none is active.
func (s *Store) GetActiveVersion(ctx context.Context, agentType string) (*PromptVersion, error) {
	pv, err := scanPromptVersion(s.db.QueryRowContext(ctx, `
		SELECT `+promptColumns+`
		FROM prompt_versions
		WHERE agent_type = $1 AND is_active`, agentType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetActiveVersion: %w", err)
	}
	return pv, nil
}

// ListVersions returns every version for agentType, newest first.
func (s *Store) ListVersions(ctx context.Context, agentType string) ([]*PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+promptColumns+`
		FROM prompt_versions
		WHERE agent_type = $1
		ORDER BY version DESC`, agentType)
	if err != nil {
		return nil, fmt.Errorf("ListVersions: %w", err)
	}
	defer rows.Close()

	var versions []*PromptVersion
	for rows.Next() {
		pv, err := scanPromptVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("ListVersions: %w", err)
		}
		versions = append(versions, pv)
	}
	return versions, rows.Err()
}

// CreateVersion stores prompt as the next version for agentType, optionally
// making it the active one. Versions are numbered from 1 per agent type.
func (s *Store) CreateVersion(ctx context.Context, agentType, prompt, notes string, activate bool) (*PromptVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateVersion: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Serialise version numbering per agent type.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, agentType); err != nil {
		return nil, fmt.Errorf("CreateVersion: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM prompt_versions WHERE agent_type = $1`,
		agentType,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("CreateVersion: %w", err)
	}

	if activate {
		if _, err := tx.ExecContext(ctx, `
			UPDATE prompt_versions SET is_active = FALSE
			WHERE agent_type = $1 AND is_active`, agentType); err != nil {
			return nil, fmt.Errorf("CreateVersion: %w", err)
		}
	}

	pv, err := scanPromptVersion(tx.QueryRowContext(ctx, `
		INSERT INTO prompt_versions (agent_type, version, prompt, notes, is_active, activated_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $5 THEN now() END)
		RETURNING `+promptColumns,
		agentType, next, prompt, notes, activate,
	))
	if err != nil {
		return nil, fmt.Errorf("CreateVersion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateVersion: %w", err)
	}
	return pv, nil
}

// ActivateVersion makes version the single active prompt for agentType.
// Returns nil if the version does not exist.
func (s *Store) ActivateVersion(ctx context.Context, agentType string, version int) (*PromptVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ActivateVersion: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		UPDATE prompt_versions SET is_active = FALSE
		WHERE agent_type = $1 AND is_active AND version <> $2`, agentType, version); err != nil {
		return nil, fmt.Errorf("ActivateVersion: %w", err)
	}

	pv, err := scanPromptVersion(tx.QueryRowContext(ctx, `
		UPDATE prompt_versions SET
			is_active    = TRUE,
			activated_at = now()
		WHERE agent_type = $1 AND version = $2
		RETURNING `+promptColumns,
		agentType, version,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ActivateVersion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ActivateVersion: %w", err)
	}
	return pv, nil
}
