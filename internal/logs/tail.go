package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"
)

const (
	followPoll   = 250 * time.Millisecond
	maxLineBytes = 1 << 20
)

// TailOptions selects where reading starts. A negative Offset means the last
// Limit lines; otherwise reading resumes at the byte Offset from a previous
// result. With Follow set, Tail waits up to Wait for new lines when none are
// available yet.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log file at path. A missing file yields no lines
// and offset zero so callers can poll until the daemon creates it.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return TailResult{}, nil
	case err != nil:
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	case info.IsDir():
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		keep := opts.Limit
		if keep <= 0 {
			keep = -1
		}
		result, err = scanLog(path, 0, opts.Filter, keep)
	} else {
		// A shrunken file was rotated or truncated; resume from its end.
		result, err = scanLog(path, min(opts.Offset, info.Size()), opts.Filter, 0)
	}
	if err != nil || len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, err
	}
	return follow(ctx, path, result.Offset, opts.Wait, opts.Filter)
}

// scanLog reads matching lines from offset to the end of the file. A
// positive keep retains only the newest keep lines, zero keeps every line, and
// a negative keep returns no lines with the end offset.
func scanLog(path string, offset int64, filter Filter, keep int) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if keep < 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: end}, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{}, fmt.Errorf("seek log file: %w", err)
	}

	var lines lineWindow
	lines.size = keep
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if line := scanner.Text(); filter.Match(line) {
			lines.push(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return TailResult{}, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return TailResult{}, fmt.Errorf("determine log offset: %w", err)
	}
	return TailResult{Lines: lines.ordered(), Offset: end}, nil
}

func follow(ctx context.Context, path string, offset int64, wait time.Duration, filter Filter) (TailResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(followPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-timer.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
		}
		result, err := scanLog(path, offset, filter, 0)
		if err != nil || len(result.Lines) > 0 {
			return result, err
		}
		offset = result.Offset
	}
}

// lineWindow collects lines, keeping only the newest size lines when size is
// positive.
type lineWindow struct {
	size  int
	buf   []string
	start int
}

func (w *lineWindow) push(line string) {
	if w.size <= 0 || len(w.buf) < w.size {
		w.buf = append(w.buf, line)
		return
	}
	w.buf[w.start] = line
	w.start = (w.start + 1) % w.size
}

func (w *lineWindow) ordered() []string {
	if w.start == 0 {
		return w.buf
	}
	return slices.Concat(w.buf[w.start:], w.buf[:w.start])
}
