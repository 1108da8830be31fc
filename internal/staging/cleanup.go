package staging

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"postflow/internal/logging"
)

// CleanStaleResult lists the spool files removed and those that could not be.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

func (r *CleanStaleResult) fail(path string, err error) {
	r.Errors = append(r.Errors, CleanupError{Path: path, Error: err})
}

// CleanStale removes spool files in dir last modified before now-maxAge.
// Directories and files Spool did not create are left alone. A missing dir is
// not an error.
func CleanStale(dir string, maxAge time.Duration, now time.Time, logger *slog.Logger) CleanStaleResult {
	var result CleanStaleResult
	if dir = strings.TrimSpace(dir); dir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return result
	}
	if err != nil {
		result.fail(dir, err)
		return result
	}

	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), spoolPrefix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.fail(path, err)
			continue
		}
		age := now.Sub(info.ModTime())
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.fail(path, err)
			logging.WarnWithContext(logger, "stale spool file not removed", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check data_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Debug("stale spool file removed",
			logging.String("path", path),
			logging.Duration("age", age),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}
