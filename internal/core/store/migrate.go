package store

import (
	"context"
	"errors"
	"fmt"
)

// migrations are applied in order; the index plus one is the schema version
// recorded in PRAGMA user_version. Append only.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS local_storage (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_local_storage_updated ON local_storage(updated_at)`,
	},
}

// LatestSchemaVersion is the version Migrate brings a store to.
var LatestSchemaVersion = len(migrations)

// Migrate applies pending migrations. A store written by a newer binary is
// rejected rather than downgraded.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > LatestSchemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", current, LatestSchemaVersion)
	}

	for version := current + 1; version <= LatestSchemaVersion; version++ {
		if err := s.applyMigration(ctx, version); err != nil {
			return fmt.Errorf("store migration %d failed: %w", version, err)
		}
	}
	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(ctx context.Context, version int) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrations[version-1] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
