// Package transcription sends session recordings to an OpenAI-compatible
// speech-to-text endpoint.
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
	"lorekeeper/internal/services/llm"
)

const (
	stage          = "transcription"
	defaultTimeout = 300 * time.Second
	largeSourceMB  = 100.0
)

// Config selects the endpoint, model and language hint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	TimeoutSeconds int
}

// Segment is one timed span of the transcript.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Result is a completed transcription.
type Result struct {
	Text     string
	Language string
	Duration time.Duration
	Segments []Segment
}

// Client issues transcription requests.
type Client struct {
	cfg     Config
	api     *openai.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient builds a transcription client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = openai.Whisper1
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	// per-request deadlines come from the context
	apiCfg.HTTPClient = &http.Client{}

	return &Client{
		cfg:     cfg,
		api:     openai.NewClientWithConfig(apiCfg),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, stage),
	}
}

// TimeoutFor returns the request deadline: the base timeout, doubled when the
// original upload exceeded 100 MB.
func (c *Client) TimeoutFor(originalSizeMB float64) time.Duration {
	if originalSizeMB > largeSourceMB {
		return 2 * c.timeout
	}
	return c.timeout
}

// Transcribe uploads asset once. Assets over the 25 MB ceiling are refused
// locally with services.ErrPayloadTooLarge; remote size refusals map to the
// same marker.
func (c *Client) Transcribe(ctx context.Context, asset audio.Asset, timeout time.Duration) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, stage, "transcribe", "openai api key is not set", nil)
	}
	info, err := os.Stat(asset.Path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, stage, "transcribe", "audio file is not readable", err)
	}
	if info.Size() > int64(audio.CeilingMB*audio.BytesPerMB) {
		return Result{}, services.Wrap(services.ErrPayloadTooLarge, stage, "transcribe",
			fmt.Sprintf("%.1f MB exceeds the %.0f MB upload limit", audio.BytesToMB(info.Size()), audio.CeilingMB), nil)
	}
	if !asset.Format.TranscriptionReady() {
		return Result{}, services.Wrap(services.ErrValidation, stage, "transcribe",
			fmt.Sprintf("format %s is not accepted for transcription", asset.Format), nil)
	}

	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := logging.WithContext(ctx, c.logger)
	logger.Info("transcription request started",
		logging.String("file", asset.Path),
		logging.Float64("size_mb", audio.BytesToMB(info.Size())),
		logging.String("model", c.cfg.Model),
		logging.String("language", c.cfg.Language),
		logging.Duration("timeout", timeout),
	)

	start := time.Now()
	resp, err := c.api.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    c.cfg.Model,
		FilePath: asset.Path,
		Language: c.cfg.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Result{}, llm.ClassifyError(stage, "transcribe", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, services.Wrap(services.ErrExternalService, stage, "transcribe", "service returned an empty transcript", nil)
	}
	result := Result{
		Text:     text,
		Language: strings.TrimSpace(resp.Language),
		Duration: seconds(resp.Duration),
	}
	if result.Language == "" {
		result.Language = c.cfg.Language
	}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
			Text:  strings.TrimSpace(seg.Text),
		})
	}

	logger.Info("transcription request finished",
		logging.Int("characters", len(result.Text)),
		logging.Int("segments", len(result.Segments)),
		logging.Duration("audio_duration", result.Duration),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
