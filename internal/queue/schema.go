package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

var (
	//go:embed schema.sql
	schemaSQL string
	//go:embed schema_002_webhooks.sql
	webhooksSQL string
)

// migrations[i] moves a database from version i to i+1; the first entry is
// the full initial schema. Append new steps, never edit shipped ones.
var migrations = []string{
	schemaSQL,
	webhooksSQL,
}

// ErrSchemaTooNew means the database was written by a newer postflow build.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// SchemaVersion is the version a fully migrated database reports.
func SchemaVersion() int {
	return len(migrations)
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("%w: database has version %d, this build knows %d", ErrSchemaTooNew, version, len(migrations))
	}
	for next := version; next < len(migrations); next++ {
		if err := s.migrate(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

// migrate applies step and records the new version in the same transaction.
func (s *Store) migrate(ctx context.Context, step int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", step+1, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migrations[step]); err != nil {
		return fmt.Errorf("apply migration %d: %w", step+1, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step+1)); err != nil {
		return fmt.Errorf("record schema version %d: %w", step+1, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", step+1, err)
	}
	return nil
}
