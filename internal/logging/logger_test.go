package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
)

func noColor() *bool {
	v := false
	return &v
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, Color: noColor()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}, Color: noColor()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerFormatsSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, Color: noColor()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithStage(services.WithItemID(context.Background(), 7), "captions")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow")).
		Warn("caption job pending", logging.String("job_id", "abc 123"), logging.Error(errors.New("slow")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"WARN", "[workflow]", "Workflow #7 (captions)", "caption job pending", `job_id="abc 123"`, "error=slow"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", OutputPaths: []string{logPath}, Color: noColor()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible")
	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "hidden") || !strings.Contains(string(content), "visible") {
		t.Fatalf("expected info level filtering, got %q", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 123)
	ctx = services.WithStage(ctx, "synthesis")
	ctx = services.WithBrand(ctx, "carz")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry[logging.FieldItemID] != float64(123) {
		t.Fatalf("unexpected %s: %v", logging.FieldItemID, entry[logging.FieldItemID])
	}
	if entry[logging.FieldStage] != "synthesis" {
		t.Fatalf("unexpected stage: %v", entry[logging.FieldStage])
	}
	if entry[logging.FieldBrand] != "carz" {
		t.Fatalf("unexpected brand: %v", entry[logging.FieldBrand])
	}
	if entry[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("unexpected correlation id: %v", entry[logging.FieldCorrelationID])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "upload slow", "relocation_slow")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected %s in entry %v", key, entry)
		}
	}
}

func TestConsoleSubjectIncludesBrand(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-brand.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, Color: noColor()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("scheduled", logging.WorkflowID(9), logging.Brand("carz"), logging.String(logging.FieldStage, "scheduling"))
	logger.Info("no content", logging.Brand("carz"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", content)
	}
	if !strings.Contains(lines[0], "Workflow #9 (carz, scheduling) - scheduled") {
		t.Fatalf("unexpected subject in %q", lines[0])
	}
	if !strings.Contains(lines[1], "INFO carz - no content") || strings.Contains(lines[1], "brand=") {
		t.Fatalf("expected brand-only subject in %q", lines[1])
	}
}

func TestJSONLoggerRendersDurationsAsMilliseconds(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("uploaded", logging.Duration("elapsed", 1500*time.Millisecond), logging.Status(queue.StatusRelocating))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry["elapsed_ms"] != float64(1500) {
		t.Fatalf("expected elapsed_ms=1500, got %v", entry)
	}
	if entry["level"] != "info" || entry["ts"] == nil {
		t.Fatalf("expected lowercase level and ts, got %v", entry)
	}
	if entry[logging.FieldStatus] != "relocating" {
		t.Fatalf("unexpected status %v", entry[logging.FieldStatus])
	}
}
