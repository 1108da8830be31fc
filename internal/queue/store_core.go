package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	_ "modernc.org/sqlite"

	"postflow/internal/config"
)

// Store manages workflow persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const sqliteBusyCode = 5

// busyRetry re-runs a statement that lost a lock race with another
// connection. busy_timeout covers most contention; this covers the rest.
var busyRetry = failsafe.With(retrypolicy.NewBuilder[any]().
	HandleIf(func(_ any, err error) bool { return isSQLiteBusy(err) }).
	WithBackoff(10*time.Millisecond, 200*time.Millisecond).
	WithMaxAttempts(5).
	ReturnLastFailure().
	Build())

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	return busyRetry.WithContext(ctx).Run(op)
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// queryItemWithRetry runs a single-row statement (typically UPDATE ... RETURNING)
// and scans the workflow record it yields.
func (s *Store) queryItemWithRetry(ctx context.Context, query string, args ...any) (*Item, error) {
	ctx = ensureContext(ctx)
	var item *Item
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		item, scanErr = scanItem(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Open initializes or connects to the workflow database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	// Pragmas go in the DSN so every pooled connection gets them, not just the
	// first one. Concurrent claimers rely on busy_timeout.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// SetClock overrides the time source used for timestamps. Tests use it to age records.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Now returns the store's current time in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func (s *Store) timestamp() string {
	return formatTime(s.Now())
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
