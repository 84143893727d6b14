package compression

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
)

// fakeEncoder writes a placeholder file per pass and reports the configured
// logical size for it.
type fakeEncoder struct {
	sizesMB map[string]float64
	errs    map[string]error
	calls   []Request
}

func passFromOutput(output string) string {
	parts := strings.Split(filepath.Base(output), ".")
	return parts[len(parts)-2]
}

func (f *fakeEncoder) Compress(_ context.Context, req Request) Outcome {
	f.calls = append(f.calls, req)
	name := passFromOutput(req.Output)
	if err, ok := f.errs[name]; ok {
		return failed(err, req.Settings, 0)
	}
	if err := os.WriteFile(req.Output, []byte("candidate"), 0o644); err != nil {
		return failed(err, req.Settings, 0)
	}
	asset := audio.Asset{Path: req.Output, SizeBytes: int64(f.sizesMB[name] * audio.BytesPerMB), Format: req.Settings.Target}
	return succeeded(asset, req.Settings, 0, 0)
}

func (f *fakeEncoder) passNames() []string {
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, passFromOutput(c.Output))
	}
	return names
}

func oversizedSource(t *testing.T, name string, sizeMB float64) audio.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	format, err := audio.FormatFromPath(path)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return audio.Asset{Path: path, SizeBytes: int64(sizeMB * audio.BytesPerMB), Format: format}
}

func candidates(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestChainNormalPassSucceeds(t *testing.T) {
	workDir := t.TempDir()
	enc := &fakeEncoder{sizesMB: map[string]float64{"normal": 15.6}}
	source := oversizedSource(t, "session.m4a", 52)

	result := NewChain(enc, workDir, logging.NewNop()).Run(context.Background(), source)
	if !result.Succeeded() {
		t.Fatalf("expected success, got state %s (%v)", result.State, result.Outcome.Err)
	}
	if len(enc.calls) != 1 {
		t.Fatalf("expected one pass, got %v", enc.passNames())
	}
	if got := enc.calls[0].Settings; got.BitrateKbps != 64 || !got.Escalated {
		t.Fatalf("normal pass should use the escalated plan, got %+v", got)
	}
	if result.Outcome.Asset == nil || result.Outcome.Asset.Path != filepath.Join(workDir, "session.normal.mp3") {
		t.Fatalf("unexpected asset %+v", result.Outcome.Asset)
	}
	if _, err := os.Stat(source.Path); err != nil {
		t.Fatalf("source must be left intact: %v", err)
	}
}

func TestChainEscalatesThroughPasses(t *testing.T) {
	workDir := t.TempDir()
	enc := &fakeEncoder{sizesMB: map[string]float64{"normal": 40, "aggressive": 27, "extreme": 12}}
	source := oversizedSource(t, "session.mp3", 90)

	result := NewChain(enc, workDir, logging.NewNop()).Run(context.Background(), source)
	if !result.Succeeded() {
		t.Fatalf("expected success, got %s", result.State)
	}
	if got := strings.Join(enc.passNames(), ","); got != "normal,aggressive,extreme" {
		t.Fatalf("unexpected pass order %s", got)
	}
	if len(result.Attempts) != 3 || result.Attempts[2].Pass.State != StateExtremeAttempted {
		t.Fatalf("unexpected attempts %+v", result.Attempts)
	}
	if got := candidates(t, workDir); len(got) != 1 || got[0] != "session.extreme.mp3" {
		t.Fatalf("expected only the extreme candidate to remain, got %v", got)
	}
}

func TestChainSkipsAggressiveWhenConversionRequired(t *testing.T) {
	workDir := t.TempDir()
	enc := &fakeEncoder{sizesMB: map[string]float64{"normal": 30, "extreme": 9}}
	source := oversizedSource(t, "session.wav", 400)

	result := NewChain(enc, workDir, logging.NewNop()).Run(context.Background(), source)
	if !result.Succeeded() {
		t.Fatalf("expected success, got %s", result.State)
	}
	if got := strings.Join(enc.passNames(), ","); got != "normal,extreme" {
		t.Fatalf("unexpected pass order %s", got)
	}
	if ext := enc.calls[1].Settings; ext.BitrateKbps != 16 || ext.SampleRateHz != 11025 || ext.Channels != 1 {
		t.Fatalf("unexpected extreme settings %+v", ext)
	}
}

func TestChainExhaustedDeletesCandidates(t *testing.T) {
	workDir := t.TempDir()
	enc := &fakeEncoder{sizesMB: map[string]float64{"normal": 60, "aggressive": 40, "extreme": 26.5}}
	source := oversizedSource(t, "marathon.ogg", 600)

	result := NewChain(enc, workDir, logging.NewNop()).Run(context.Background(), source)
	if result.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", result.State)
	}
	if !errors.Is(result.Outcome.Err, services.ErrStillTooLarge) {
		t.Fatalf("expected still too large, got %v", result.Outcome.Err)
	}
	if result.Outcome.Succeeded || result.Outcome.Asset != nil {
		t.Fatal("exhausted chain must not report an asset")
	}
	if !strings.Contains(result.Remediation, "26.5 MB") || !strings.Contains(result.Remediation, "Split") {
		t.Fatalf("unexpected remediation %q", result.Remediation)
	}
	if got := candidates(t, workDir); len(got) != 0 {
		t.Fatalf("expected no candidates after exhaustion, got %v", got)
	}
}

func TestChainKeepsSmallerCandidate(t *testing.T) {
	workDir := t.TempDir()
	enc := &fakeEncoder{sizesMB: map[string]float64{"normal": 30, "aggressive": 35, "extreme": 28}}
	source := oversizedSource(t, "session.mp3", 80)

	result := NewChain(enc, workDir, logging.NewNop()).Run(context.Background(), source)
	if result.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", result.State)
	}
	if !strings.Contains(result.Remediation, "28.0 MB") {
		t.Fatalf("expected smallest realized size in remediation, got %q", result.Remediation)
	}
}

func TestChainExhaustedReportsSurvivingCandidateAndLastFailure(t *testing.T) {
	workDir := t.TempDir()
	enc := &fakeEncoder{
		sizesMB: map[string]float64{"normal": 60, "aggressive": 40},
		errs:    map[string]error{"extreme": services.Wrap(services.ErrEncodingFailed, "compression", "ffmpeg", "libmp3lame rejected 11025Hz", nil)},
	}
	source := oversizedSource(t, "session.mp3", 90)

	result := NewChain(enc, workDir, logging.NewNop()).Run(context.Background(), source)
	if result.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", result.State)
	}
	if !strings.Contains(result.Remediation, "40.0 MB with mp3 32k mono 16000Hz") {
		t.Fatalf("size line must name the settings that produced it, got %q", result.Remediation)
	}
	if strings.Contains(result.Remediation, "40.0 MB with mp3 16k") {
		t.Fatalf("size paired with the failed pass settings: %q", result.Remediation)
	}
	if !strings.Contains(result.Remediation, "libmp3lame rejected 11025Hz") || !strings.Contains(result.Outcome.Message, "libmp3lame rejected 11025Hz") {
		t.Fatalf("encoder diagnostics lost: remediation %q, message %q", result.Remediation, result.Outcome.Message)
	}
	if result.Outcome.Settings.BitrateKbps != 32 {
		t.Fatalf("expected outcome settings of the surviving candidate, got %s", result.Outcome.Settings)
	}
	if got := candidates(t, workDir); len(got) != 0 {
		t.Fatalf("expected no candidates after exhaustion, got %v", got)
	}
}

func TestChainDependencyUnavailableStopsImmediately(t *testing.T) {
	unavailable := services.Wrap(services.ErrDependencyUnavailable, "compression", "probe encoder", "ffmpeg missing", nil)
	enc := &fakeEncoder{errs: map[string]error{"normal": unavailable}}
	source := oversizedSource(t, "session.m4a", 52)

	result := NewChain(enc, t.TempDir(), logging.NewNop()).Run(context.Background(), source)
	if result.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", result.State)
	}
	if len(enc.calls) != 1 {
		t.Fatalf("expected a single attempt, got %v", enc.passNames())
	}
	if !errors.Is(result.Outcome.Err, services.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", result.Outcome.Err)
	}
}

func TestChainWithMissingEncoderBinary(t *testing.T) {
	source := oversizedSource(t, "session.m4a", 52)
	executor := NewExecutor(WithBinary("definitely-not-installed-ffmpeg"))

	result := NewChain(executor, t.TempDir(), nil).Run(context.Background(), source)
	if result.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", result.State)
	}
	if !errors.Is(result.Outcome.Err, services.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", result.Outcome.Err)
	}
}

func TestChainEncodeFailureFallsThrough(t *testing.T) {
	boom := services.Wrap(services.ErrEncodingFailed, "compression", "encode", "exit 1", nil)
	enc := &fakeEncoder{errs: map[string]error{"normal": boom}, sizesMB: map[string]float64{"aggressive": 20}}
	source := oversizedSource(t, "session.mp3", 70)

	result := NewChain(enc, t.TempDir(), logging.NewNop()).Run(context.Background(), source)
	if !result.Succeeded() {
		t.Fatalf("expected success after failed normal pass, got %s", result.State)
	}
	if result.Attempts[0].Outcome.Succeeded {
		t.Fatal("first attempt should be recorded as failed")
	}
}

func TestChainAllPassesFailReportsEncoderError(t *testing.T) {
	boom := services.Wrap(services.ErrEncodingTimedOut, "compression", "encode", "too slow", nil)
	enc := &fakeEncoder{errs: map[string]error{"normal": boom, "aggressive": boom, "extreme": boom}}
	source := oversizedSource(t, "session.mp3", 70)

	result := NewChain(enc, t.TempDir(), logging.NewNop()).Run(context.Background(), source)
	if result.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", result.State)
	}
	if !errors.Is(result.Outcome.Err, services.ErrEncodingTimedOut) {
		t.Fatalf("expected last encoder error, got %v", result.Outcome.Err)
	}
	if len(enc.calls) != 3 {
		t.Fatalf("expected three attempts, got %d", len(enc.calls))
	}
}

func TestChainEscalateOnlyFromExhausted(t *testing.T) {
	enc := &fakeEncoder{sizesMB: map[string]float64{"last-resort": 9}}
	source := oversizedSource(t, "session.mp3", 300)
	chain := NewChain(enc, t.TempDir(), logging.NewNop())

	for _, from := range []State{StatePlanned, StateSucceeded, StateEscalationExhausted} {
		result := chain.Escalate(context.Background(), source, from)
		if !errors.Is(result.Outcome.Err, services.ErrValidation) || result.State != from {
			t.Fatalf("escalate from %s: expected validation error, got %v (%s)", from, result.Outcome.Err, result.State)
		}
	}
	if len(enc.calls) != 0 {
		t.Fatal("illegal escalation must not invoke the encoder")
	}

	result := chain.Escalate(context.Background(), source, StateExhausted)
	if !result.Succeeded() {
		t.Fatalf("expected escalation to succeed, got %s", result.State)
	}
	if s := enc.calls[0].Settings; s.BitrateKbps != 8 || s.SampleRateHz != 8000 || s.Channels != 1 {
		t.Fatalf("unexpected last-resort settings %+v", s)
	}
}

func TestChainEscalateFailureIsTerminal(t *testing.T) {
	workDir := t.TempDir()
	enc := &fakeEncoder{sizesMB: map[string]float64{"last-resort": 31}}
	source := oversizedSource(t, "session.mp3", 900)

	result := NewChain(enc, workDir, logging.NewNop()).Escalate(context.Background(), source, StateExhausted)
	if result.State != StateEscalationExhausted {
		t.Fatalf("expected escalation_exhausted, got %s", result.State)
	}
	if result.State.CanEscalate() {
		t.Fatal("terminal escalation state must not allow another escalation")
	}
	if got := candidates(t, workDir); len(got) != 0 {
		t.Fatalf("expected candidate removal, got %v", got)
	}
}

func TestPassesPerFormat(t *testing.T) {
	mp3 := Passes(audio.Asset{SizeBytes: 60 * audio.BytesPerMB, Format: audio.FormatMP3})
	if len(mp3) != 3 {
		t.Fatalf("mp3 passes = %d, want 3", len(mp3))
	}
	aac := Passes(audio.Asset{SizeBytes: 5 * audio.BytesPerMB, Format: audio.FormatAAC})
	if len(aac) != 2 || aac[1].Name != "extreme" {
		t.Fatalf("aac passes = %+v", aac)
	}
}
