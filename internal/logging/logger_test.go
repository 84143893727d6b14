package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lorekeeper/internal/config"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, "lorekeeper.log"))
	if !strings.Contains(content, "hello file") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "compression").Info("pass finished", logging.Float64("size_mb", 12.5))

	content := readLog(t, logPath)
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no source information in info logs, got %q", content)
	}
	if !strings.Contains(content, "[compression] pass finished") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if !strings.Contains(content, "size_mb=12.5") {
		t.Fatalf("expected float field, got %q", content)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with source")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected source information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerQuotesValues(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "quotes.log")
	logger, err := logging.New(logging.Options{OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("failed", logging.Error(errors.New("two words")))

	if content := readLog(t, logPath); !strings.Contains(content, `error="two words"`) {
		t.Fatalf("expected quoted error, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestJSONLoggerWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "abc-123")
	ctx = services.WithStage(ctx, "analysis")
	ctx = services.WithRequestID(ctx, "req-xyz")
	logging.WithContext(ctx, logger).Info("contextual log")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	want := map[string]string{
		logging.FieldSessionID:     "abc-123",
		logging.FieldStage:         "analysis",
		logging.FieldCorrelationID: "req-xyz",
		"level":                    "info",
		"msg":                      "contextual log",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Fatalf("field %s = %v, want %q", key, entry[key], value)
		}
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "short transcript", "transcript_short", logging.String(logging.FieldImpact, "summary may be thin"))

	content := readLog(t, logPath)
	for _, fragment := range []string{`"event_type":"transcript_short"`, `"error_hint":"check logs for details"`, `"impact":"summary may be thin"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %s in %q", fragment, content)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected nop logger to be disabled")
	}
	logging.WithContext(context.Background(), nil).Info("ignored")
}

func TestErrorWithContextDerivesHintFromKind(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "error.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	failure := services.Wrap(services.ErrSchemaViolation, "analysis", "parse", "missing summary", nil)
	logging.ErrorWithContext(logger, "analysis failed", "analysis_failed", logging.Error(failure))

	content := readLog(t, logPath)
	for _, fragment := range []string{`"error_kind":"schema_violation"`, `"error_hint":"retry the session; the transcript is kept"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %s in %q", fragment, content)
		}
	}
}

func TestDecisionAttrsKeys(t *testing.T) {
	attrs := logging.DecisionAttrs("compression", "skipped", "under limit")
	keys := []string{logging.FieldDecisionType, logging.FieldDecisionResult, logging.FieldDecisionReason}
	for i, attr := range attrs {
		if attr.Key != keys[i] {
			t.Fatalf("attr %d key = %q, want %q", i, attr.Key, keys[i])
		}
	}
}

func TestJSONLoggerFormatsDurations(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "duration.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("pass finished", logging.Duration("elapsed", 90*time.Second+250*time.Microsecond))

	if content := readLog(t, logPath); !strings.Contains(content, `"elapsed":"1m30s"`) {
		t.Fatalf("expected rounded duration, got %q", content)
	}
}

func TestConsoleLoggerShortensSessionPrefix(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "session.log")
	logger, err := logging.New(logging.Options{OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithSessionID(context.Background(), "3f2a1b9c-0d4e-4f00-8a1b-5c6d7e8f9a0b")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline")).Info("analysis stored")

	content := readLog(t, logPath)
	if !strings.Contains(content, "[pipeline 3f2a1b9c] analysis stored") {
		t.Fatalf("expected session prefix, got %q", content)
	}
	if strings.Contains(content, "session_id=") {
		t.Fatalf("session id should only appear in the prefix, got %q", content)
	}
}

func TestRotateKeepsOneGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), logging.LogFileName)
	if err := logging.Rotate(path, 8); err != nil {
		t.Fatalf("rotate missing file: %v", err)
	}
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := logging.Rotate(path, 8); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("small log should stay in place: %v", err)
	}

	if err := os.WriteFile(path, []byte("well past the limit"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := logging.Rotate(path, 8); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected log to move aside, stat err = %v", err)
	}
	if got := readLog(t, path+".1"); got != "well past the limit" {
		t.Fatalf("unexpected rotated content %q", got)
	}
}
