// Package status records the outcome of every indexed artifact in
// PostgreSQL so operators can find abandoned modules and skip counts.
package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/postgres"
)

const (
	StatusIndexed   = "INDEXED"
	StatusAbandoned = "ABANDONED"
)

// Schema creates the artifacts table.
const Schema = `CREATE TABLE IF NOT EXISTS artifacts (
    artifact    TEXT PRIMARY KEY,
    artifact_id TEXT NOT NULL DEFAULT '',
    module      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    skipped     JSONB NOT NULL DEFAULT '{}',
    error       TEXT NOT NULL DEFAULT '',
    attempts    INTEGER NOT NULL DEFAULT 1,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type Record struct {
	Artifact   string         `json:"artifact"`
	ArtifactID string         `json:"artifact_id"`
	Module     string         `json:"module"`
	Status     string         `json:"status"`
	Skipped    map[string]int `json:"skipped"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "artifact-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating artifacts table: %w", err)
	}
	return nil
}

// Record upserts the latest outcome for rec.Artifact and bumps its attempt
// count.
func (s *Store) Record(ctx context.Context, rec Record) error {
	skipped := rec.Skipped
	if skipped == nil {
		skipped = map[string]int{}
	}
	data, err := json.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("marshaling skip counts: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO artifacts (artifact, artifact_id, module, status, skipped, error, attempts, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, NOW())
		ON CONFLICT (artifact) DO UPDATE SET
			artifact_id = EXCLUDED.artifact_id,
			module = EXCLUDED.module,
			status = EXCLUDED.status,
			skipped = EXCLUDED.skipped,
			error = EXCLUDED.error,
			attempts = artifacts.attempts + 1,
			updated_at = NOW()`,
		rec.Artifact, rec.ArtifactID, rec.Module, rec.Status, data, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("recording artifact %s: %w", rec.Artifact, err)
	}
	s.logger.Debug("artifact status recorded", "artifact", rec.Artifact, "status", rec.Status)
	return nil
}

// Get returns the record for artifact or an error wrapping ErrEntryNotFound.
func (s *Store) Get(ctx context.Context, artifact string) (*Record, error) {
	var rec Record
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT artifact, artifact_id, module, status, skipped, error, attempts, updated_at
		FROM artifacts WHERE artifact = $1`, artifact,
	).Scan(&rec.Artifact, &rec.ArtifactID, &rec.Module, &rec.Status, &data, &rec.Error, &rec.Attempts, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: artifact %s", apperrors.ErrEntryNotFound, artifact)
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact %s: %w", artifact, err)
	}
	if err := json.Unmarshal(data, &rec.Skipped); err != nil {
		return nil, fmt.Errorf("unmarshaling skip counts for %s: %w", artifact, err)
	}
	return &rec, nil
}

// ListByStatus returns up to limit records with status, most recent first.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]Record, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT artifact, artifact_id, module, status, skipped, error, attempts, updated_at
		FROM artifacts WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s artifacts: %w", status, err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var data []byte
		if err := rows.Scan(&rec.Artifact, &rec.ArtifactID, &rec.Module, &rec.Status, &data, &rec.Error, &rec.Attempts, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning artifact row: %w", err)
		}
		if err := json.Unmarshal(data, &rec.Skipped); err != nil {
			s.logger.Warn("skipping artifact with corrupt skip counts", "artifact", rec.Artifact, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
