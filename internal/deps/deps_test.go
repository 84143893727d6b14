package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestLocate(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present", "exit 0")
	tools := []Tool{
		{Name: "Present", Binary: present},
		{Name: "Missing", Binary: "clearly-not-present-binary", Purpose: "does something"},
		{Name: "Blank", Binary: "  ", Optional: true},
	}

	results := Locate(tools)
	if len(results) != len(tools) {
		t.Fatalf("expected %d results, got %d", len(tools), len(results))
	}
	if !results[0].Available || results[0].Detail != "" || results[0].Path != present {
		t.Fatalf("expected first tool to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail != `binary "clearly-not-present-binary" not found; it does something` {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" || !results[2].Optional {
		t.Fatalf("unexpected status for blank command: %#v", results[2])
	}
}

func TestCheckProbesLocatedTools(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeStub(t, dir, "ffmpeg", `echo "ffmpeg version 7.1"`)
	broken := writeStub(t, dir, "ffprobe", "exit 1")

	results := Check(context.Background(), Encoders(ffmpeg, broken), time.Second)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Version != "ffmpeg version 7.1" || results[0].Optional {
		t.Fatalf("unexpected ffmpeg status %#v", results[0])
	}
	if results[1].Available || !results[1].Optional || !strings.Contains(results[1].Detail, "-version failed") {
		t.Fatalf("unexpected ffprobe status %#v", results[1])
	}
}

func TestProbeVersionReportsFirstLine(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "ffmpeg", `echo "ffmpeg version 7.1 Copyright"; echo "built with gcc"`)

	status := ProbeVersion(context.Background(), "FFmpeg", stub, time.Second)
	if !status.Available {
		t.Fatalf("expected ffmpeg to be available, got %q", status.Detail)
	}
	if status.Version != "ffmpeg version 7.1 Copyright" {
		t.Fatalf("unexpected version %q", status.Version)
	}
}

func TestProbeVersionMissingBinary(t *testing.T) {
	status := ProbeVersion(context.Background(), "FFmpeg", "clearly-not-present-ffmpeg", time.Second)
	if status.Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if !strings.Contains(status.Detail, "not found") {
		t.Fatalf("unexpected detail %q", status.Detail)
	}
}

func TestProbeVersionNonZeroExit(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "ffmpeg", "exit 3")
	status := ProbeVersion(context.Background(), "FFmpeg", stub, time.Second)
	if status.Available {
		t.Fatal("expected failing binary to be unavailable")
	}
	if !strings.Contains(status.Detail, "-version failed") {
		t.Fatalf("unexpected detail %q", status.Detail)
	}
}

func TestProbeVersionTimeout(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "ffmpeg", "exec sleep 5")
	status := ProbeVersion(context.Background(), "FFmpeg", stub, 100*time.Millisecond)
	if status.Available {
		t.Fatal("expected hung binary to be unavailable")
	}
	if !strings.Contains(status.Detail, "did not answer") {
		t.Fatalf("unexpected detail %q", status.Detail)
	}
}
