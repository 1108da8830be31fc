package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseHealth describes diagnostic information about the workflow database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	Error            string
}

// Stats returns a count of workflow records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM workflow_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("workflow stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates workflow state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{ByStatus: stats}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		default:
			health.Active += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the workflow database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("workflow database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat workflow database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("workflow database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping workflow database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := s.schemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	var result string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA quick_check").Scan(&result); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(result, "ok")
	if !health.IntegrityCheck {
		health.Error = result
	}
	return health, nil
}

// AcquireLease takes or renews the named lease for holder until now+ttl. It
// succeeds when the lease is free, expired, or already held by holder.
func (s *Store) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(holder) == "" {
		return false, errors.New("acquire lease: name and holder are required")
	}
	now := s.Now()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO leases (name, holder, expires_at) VALUES (?, ?, ?)
         ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
         WHERE leases.expires_at <= ? OR leases.holder = excluded.holder`,
		name,
		holder,
		formatTime(now.Add(ttl)),
		formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReleaseLease drops the named lease if holder still owns it.
func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM leases WHERE name = ? AND holder = ?`, name, holder); err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}

// PruneLeases removes expired leases.
func (s *Store) PruneLeases(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM leases WHERE expires_at <= ?`, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("prune leases: %w", err)
	}
	return res.RowsAffected()
}

// NextRotation advances the brand's rotation cursor and returns the position
// before the increment, starting at zero.
func (s *Store) NextRotation(ctx context.Context, brand string) (int, error) {
	brand = strings.ToLower(strings.TrimSpace(brand))
	ctx = ensureContext(ctx)
	var position int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(
			ctx,
			`INSERT INTO rotation_cursors (brand, position) VALUES (?, 1)
             ON CONFLICT (brand) DO UPDATE SET position = position + 1
             RETURNING position`,
			brand,
		).Scan(&position)
	})
	if err != nil {
		return 0, fmt.Errorf("advance rotation for %s: %w", brand, err)
	}
	return position - 1, nil
}

// PruneSlotClaims removes slot claims for days strictly before day (YYYY-MM-DD).
func (s *Store) PruneSlotClaims(ctx context.Context, day string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM slot_claims WHERE day < ?`, day)
	if err != nil {
		return 0, fmt.Errorf("prune slot claims: %w", err)
	}
	return res.RowsAffected()
}

// Ping verifies the connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return sql.ErrConnDone
	}
	return s.db.PingContext(ensureContext(ctx))
}
