package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"
)

// Options describes logger construction parameters.
type Options struct {
	// Level is debug, info, warn, or error. Anything else logs at info.
	Level string
	// Format is "console" (the default) or "json".
	Format string
	// OutputPaths lists "stdout", "stderr", or file paths. Empty means stdout.
	OutputPaths []string
	Development bool
	// Color forces ANSI level colors in console output. When unset, colors are
	// enabled only if every output is a terminal.
	Color *bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	if err := levelVar.UnmarshalText([]byte(strings.TrimSpace(opts.Level))); err != nil {
		levelVar.Set(slog.LevelInfo)
	}
	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "" && format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out, err := openSinks(opts.OutputPaths)
	if err != nil {
		return nil, err
	}

	if format == "json" {
		return slog.New(newJSONHandler(out.writer(), levelVar, addSource)), nil
	}
	color := out.terminal
	if opts.Color != nil {
		color = *opts.Color
	}
	return slog.New(newConsoleHandler(out.writer(), levelVar, addSource, color)), nil
}

// sinks is the resolved set of log destinations.
type sinks struct {
	writers  []io.Writer
	terminal bool
}

func (s sinks) writer() io.Writer {
	if len(s.writers) == 1 {
		return s.writers[0]
	}
	return io.MultiWriter(s.writers...)
}

func openSinks(paths []string) (sinks, error) {
	out := sinks{terminal: true}
	var seen []string
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || slices.Contains(seen, path) {
			continue
		}
		seen = append(seen, path)

		var w io.Writer
		switch path {
		case "stdout":
			w = os.Stdout
			out.terminal = out.terminal && isTerminal(os.Stdout)
		case "stderr":
			w = os.Stderr
			out.terminal = out.terminal && isTerminal(os.Stderr)
		default:
			file, err := openLogFile(path)
			if err != nil {
				return sinks{}, err
			}
			w = file
			out.terminal = false
		}
		out.writers = append(out.writers, w)
	}
	if len(out.writers) == 0 {
		return sinks{writers: []io.Writer{os.Stdout}, terminal: isTerminal(os.Stdout)}, nil
	}
	return out, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
