package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// spoolPrefix marks files Spool creates; CleanStale leaves everything else
// in the staging directory alone.
const spoolPrefix = "workflow-"

// SpoolPattern is the CreateTemp pattern for a workflow record's asset.
func SpoolPattern(id int64, ext string) string {
	return fmt.Sprintf("%s%d-*%s", spoolPrefix, id, ext)
}

// Spool writes r into a new file under dir and returns its path and size.
// The file is removed when the copy fails.
func Spool(ctx context.Context, dir, pattern string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create staging dir: %w", err)
	}
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}
	path := file.Name()
	size, copyErr := io.Copy(file, contextReader{ctx: ctx, r: r})
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return "", 0, fmt.Errorf("spool %s: %w", filepath.Base(path), copyErr)
		}
		return "", 0, fmt.Errorf("close %s: %w", filepath.Base(path), closeErr)
	}
	return path, size, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
