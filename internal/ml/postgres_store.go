package ml

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNoArtifact is returned when the registry holds no trained artifact.
var ErrNoArtifact = errors.New("no artifact in registry")

// PostgresStore is a versioned artifact registry. Every save inserts a new
// row; loads return the most recently trained artifact. Rows are never
// updated in place.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a Postgres-backed artifact registry.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type artifactRow struct {
	ID        uuid.UUID `db:"id"`
	Version   string    `db:"version"`
	Threshold float64   `db:"threshold"`
	TrainedAt time.Time `db:"trained_at"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// EnsureSchema creates the registry table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS model_artifacts (
			id         UUID PRIMARY KEY,
			version    TEXT NOT NULL,
			threshold  DOUBLE PRECISION NOT NULL,
			trained_at TIMESTAMPTZ NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create model_artifacts table: %w", err)
	}
	return nil
}

// Save registers a new artifact version.
func (s *PostgresStore) Save(ctx context.Context, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid artifact: %w", err)
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	query := `
		INSERT INTO model_artifacts (id, version, threshold, trained_at, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		a.Version,
		a.Threshold,
		a.TrainedAt,
		payload,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// LoadLatest returns the most recently trained artifact.
func (s *PostgresStore) LoadLatest(ctx context.Context) (*Artifact, error) {
	var row artifactRow
	query := `
		SELECT id, version, threshold, trained_at, payload, created_at
		FROM model_artifacts
		ORDER BY trained_at DESC
		LIMIT 1
	`
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoArtifact
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(row.Payload, &a); err != nil {
		return nil, fmt.Errorf("malformed artifact %s: %w", row.ID, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("malformed artifact %s: %w", row.ID, err)
	}
	return &a, nil
}
