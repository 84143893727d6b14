package compression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/deps"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/media/ffprobe"
	"lorekeeper/internal/services"
)

const (
	defaultEncodeTimeout  = 5 * time.Minute
	defaultMinOutputBytes = 1024
	// largeSourceMB doubles the encode timeout for long recordings.
	largeSourceMB = 100.0
)

// Request describes one encoder invocation. A zero Timeout selects the
// executor's size-based default.
type Request struct {
	Source   audio.Asset
	Settings Settings
	Output   string
	Timeout  time.Duration
}

// Outcome is the result of one encoder invocation. Asset is set only when
// Succeeded is true; Err is set only when it is false.
type Outcome struct {
	Succeeded        bool
	Message          string
	Asset            *audio.Asset
	Err              error
	Settings         Settings
	ReductionPercent float64
	Elapsed          time.Duration
}

// SizeMB returns the realized output size, or 0 for a failed outcome.
func (o Outcome) SizeMB() float64 {
	if o.Asset == nil {
		return 0
	}
	return o.Asset.SizeMB()
}

func succeeded(asset audio.Asset, settings Settings, reduction float64, elapsed time.Duration) Outcome {
	return Outcome{
		Succeeded:        true,
		Asset:            &asset,
		Settings:         settings,
		ReductionPercent: reduction,
		Elapsed:          elapsed,
		Message:          fmt.Sprintf("compressed to %.1f MB with %s (%.0f%% smaller)", asset.SizeMB(), settings, reduction),
	}
}

func failed(err error, settings Settings, elapsed time.Duration) Outcome {
	return Outcome{Err: err, Settings: settings, Elapsed: elapsed, Message: err.Error()}
}

// Executor runs ffmpeg to produce a compressed copy of an audio asset.
type Executor struct {
	binary         string
	ffprobeBinary  string
	baseTimeout    time.Duration
	probeTimeout   time.Duration
	minOutputBytes int64
	logger         *slog.Logger

	probeMu sync.Mutex
	probed  bool
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) ExecutorOption {
	return func(e *Executor) {
		if b := strings.TrimSpace(binary); b != "" {
			e.binary = b
		}
	}
}

// WithFFprobe sets the ffprobe executable used to read the duration of
// compressed outputs. An empty value disables probing.
func WithFFprobe(binary string) ExecutorOption {
	return func(e *Executor) { e.ffprobeBinary = strings.TrimSpace(binary) }
}

// WithTimeout sets the base encode timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.baseTimeout = d
		}
	}
}

// WithProbeTimeout bounds the `-version` availability check.
func WithProbeTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.probeTimeout = d
		}
	}
}

// WithMinOutputBytes sets the size below which an output is treated as broken.
func WithMinOutputBytes(n int64) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.minOutputBytes = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor constructs an executor with defaults for anything not overridden.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		binary:         "ffmpeg",
		baseTimeout:    defaultEncodeTimeout,
		probeTimeout:   deps.DefaultProbeTimeout,
		minOutputBytes: defaultMinOutputBytes,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "compression")
	return e
}

// Available probes the encoder with a version query.
func (e *Executor) Available(ctx context.Context) deps.Status {
	return deps.ProbeVersion(ctx, "FFmpeg", e.binary, e.probeTimeout)
}

// ensureEncoder runs ffmpeg -version until it succeeds once; later calls
// reuse that answer. Failures are not cached.
func (e *Executor) ensureEncoder(ctx context.Context) deps.Status {
	e.probeMu.Lock()
	defer e.probeMu.Unlock()
	if e.probed {
		return deps.Status{Name: "FFmpeg", Command: e.binary, Available: true}
	}
	status := e.Available(ctx)
	e.probed = status.Available
	return status
}

// TimeoutFor returns the encode timeout for source: the base timeout, doubled
// for recordings over 100 MB.
func (e *Executor) TimeoutFor(source audio.Asset) time.Duration {
	if source.SizeMB() > largeSourceMB {
		return 2 * e.baseTimeout
	}
	return e.baseTimeout
}

// Compress encodes req.Source into req.Output. It never returns a partial
// file: every failure path removes whatever the encoder left behind.
func (e *Executor) Compress(ctx context.Context, req Request) Outcome {
	start := time.Now()
	settings := req.Settings
	logger := logging.WithContext(ctx, e.logger)

	if err := validateRequest(req); err != nil {
		return failed(services.Wrap(services.ErrValidation, "compression", "request", err.Error(), nil), settings, 0)
	}

	if status := e.ensureEncoder(ctx); !status.Available {
		err := services.Wrap(services.ErrDependencyUnavailable, "compression", "probe encoder",
			status.Detail+"; install ffmpeg and make sure it is on PATH", nil)
		return failed(err, settings, time.Since(start))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.TimeoutFor(req.Source)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return failed(services.Wrap(services.ErrEncodingFailed, "compression", "prepare output", "", err), settings, time.Since(start))
	}

	encodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildArgs(req.Source.Path, req.Output, settings)
	logger.Info("encoding pass started",
		logging.String("source", req.Source.Path),
		logging.Float64("source_mb", round1(req.Source.SizeMB())),
		logging.String("settings", settings.String()),
		logging.Duration("timeout", timeout),
	)

	cmd := exec.CommandContext(encodeCtx, e.binary, args...)
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		removeQuietly(req.Output)
		diagnostics := strings.TrimSpace(stderr.String())
		switch {
		case errors.Is(encodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			err := services.Wrap(services.ErrEncodingTimedOut, "compression", "encode",
				fmt.Sprintf("ffmpeg did not finish within %s", timeout), nil)
			return failed(err, settings, elapsed)
		case ctx.Err() != nil:
			return failed(services.Wrap(services.ErrEncodingFailed, "compression", "encode", "cancelled", ctx.Err()), settings, elapsed)
		default:
			msg := "ffmpeg exited with an error"
			if diagnostics != "" {
				msg += ": " + diagnostics
			}
			return failed(services.Wrap(services.ErrEncodingFailed, "compression", "encode", msg, runErr), settings, elapsed)
		}
	}

	info, err := os.Stat(req.Output)
	if err != nil {
		return failed(services.Wrap(services.ErrEncodingFailed, "compression", "validate output",
			"ffmpeg reported success but produced no file", err), settings, elapsed)
	}
	if info.Size() < e.minOutputBytes {
		removeQuietly(req.Output)
		return failed(services.Wrap(services.ErrEncodingFailed, "compression", "validate output",
			fmt.Sprintf("output is only %d bytes (minimum %d)", info.Size(), e.minOutputBytes), nil), settings, elapsed)
	}

	result := audio.Asset{Path: req.Output, SizeBytes: info.Size(), Format: settings.Target, Duration: req.Source.Duration}
	if e.ffprobeBinary != "" {
		if d, err := ffprobe.Duration(ctx, e.ffprobeBinary, req.Output); err == nil {
			result.Duration = d
		} else {
			logger.Debug("duration probe skipped", logging.Error(err))
		}
	}

	reduction := 0.0
	if req.Source.SizeBytes > 0 {
		reduction = (1 - float64(result.SizeBytes)/float64(req.Source.SizeBytes)) * 100
	}
	outcome := succeeded(result, settings, reduction, elapsed)
	logger.Info("encoding pass finished",
		logging.String("output", req.Output),
		logging.Float64("output_mb", round1(result.SizeMB())),
		logging.Float64("reduction_percent", round1(reduction)),
		logging.Duration("elapsed", elapsed),
	)
	return outcome
}

func validateRequest(req Request) error {
	switch {
	case strings.TrimSpace(req.Source.Path) == "":
		return errors.New("source path is empty")
	case strings.TrimSpace(req.Output) == "":
		return errors.New("output path is empty")
	case filepath.Clean(req.Source.Path) == filepath.Clean(req.Output):
		return errors.New("output path must differ from source path")
	case req.Settings.BitrateKbps <= 0:
		return errors.New("bitrate must be positive")
	case req.Settings.Channels < 0 || req.Settings.Channels > 2:
		return fmt.Errorf("unsupported channel count %d", req.Settings.Channels)
	}
	return nil
}

var audioCodecs = map[audio.Format]string{
	audio.FormatMP3: "libmp3lame",
	audio.FormatM4A: "aac",
	audio.FormatOGG: "libvorbis",
}

// buildArgs assembles the ffmpeg argument list for one pass.
func buildArgs(input, output string, s Settings) []string {
	target := s.Target
	if target == "" {
		target = audio.FormatMP3
	}
	codec, ok := audioCodecs[target]
	if !ok {
		codec = audioCodecs[audio.FormatMP3]
	}
	args := []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-i", input, "-vn", "-map", "0:a:0", "-c:a", codec, "-b:a", strconv.Itoa(s.BitrateKbps) + "k"}
	if s.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(s.Channels))
	}
	if s.SampleRateHz > 0 {
		args = append(args, "-ar", strconv.Itoa(s.SampleRateHz))
	}
	return append(args, output)
}

func removeQuietly(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
