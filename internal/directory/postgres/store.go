// Package postgres implements the directory interfaces on PostgreSQL, for
// self-hosted portal deployments that keep provisioning tokens and profiles
// out of the hosted document store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mollebakken/artconnect/internal/directory"
)

// Store is a PostgreSQL-backed directory.Directory and directory.Provisioner.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL and optionally migrates the schema.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	log.Debug().Msg("postgres directory initialized")

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ProvisioningRecord(ctx context.Context, subjectID string) (*directory.ProvisioningRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT token FROM parent_auth_tokens WHERE parent_id = $1 LIMIT 1`, subjectID)

	rec := directory.ProvisioningRecord{SubjectID: subjectID}
	if err := row.Scan(&rec.Token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", directory.ErrUnknownSubject, subjectID)
		}
		return nil, mapPostgresError(err)
	}

	return &rec, nil
}

func (s *Store) CreateProfile(ctx context.Context, accountID string, profile directory.Profile) error {
	// ON CONFLICT DO NOTHING keeps repeated scans of one QR code idempotent.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (account_id, email, role, parent_id, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID, profile.Email, profile.Role, profile.ParentID)
	if err != nil {
		return mapPostgresError(err)
	}
	return nil
}

func (s *Store) PutProvisioningRecord(ctx context.Context, rec directory.ProvisioningRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO parent_auth_tokens (parent_id, token, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (parent_id) DO UPDATE SET token = EXCLUDED.token, created_at = now()`,
		rec.SubjectID, rec.Token)
	if err != nil {
		return mapPostgresError(err)
	}
	return nil
}
