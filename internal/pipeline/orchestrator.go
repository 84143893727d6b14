package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/compression"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
	"lorekeeper/internal/services/transcription"
	"lorekeeper/internal/session"
)

// Compressor runs the fallback chain; *compression.Chain satisfies it.
type Compressor interface {
	Run(ctx context.Context, source audio.Asset) compression.Result
	Escalate(ctx context.Context, source audio.Asset, from compression.State) compression.Result
}

// Transcriber converts an asset to text.
type Transcriber interface {
	Transcribe(ctx context.Context, asset audio.Asset, timeout time.Duration) (transcription.Result, error)
}

// Analyst extracts structured notes from a transcript.
type Analyst interface {
	Analyze(ctx context.Context, transcript string) (session.AnalysisResult, error)
}

// Orchestrator sequences compression, transcription and analysis for one session.
type Orchestrator struct {
	store       *session.Store
	compressor  Compressor
	transcriber Transcriber
	analyst     Analyst
	timeoutFor  func(originalSizeMB float64) time.Duration
	logger      *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTranscriptionTimeout sets how the transcription deadline is derived from
// the original upload size.
func WithTranscriptionTimeout(fn func(originalSizeMB float64) time.Duration) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.timeoutFor = fn
		}
	}
}

// New builds an orchestrator.
func New(store *session.Store, compressor Compressor, transcriber Transcriber, analyst Analyst, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		compressor:  compressor,
		transcriber: transcriber,
		analyst:     analyst,
		timeoutFor:  func(float64) time.Duration { return 0 },
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o
}

// NeedsCompression reports whether sess must pass through the fallback chain
// before transcription.
func NeedsCompression(sess *session.Session) bool {
	if w := sess.Working; w != nil && !w.ExceedsCeiling() && w.Format.TranscriptionReady() {
		if _, err := os.Stat(w.Path); err == nil {
			return false
		}
	}
	return sess.Source.ExceedsCeiling() || !sess.Source.Format.TranscriptionReady()
}

// Process runs the session as far as it can go. The returned session reflects
// the persisted state even when an error is returned.
func (o *Orchestrator) Process(ctx context.Context, id string) (*session.Session, error) {
	ctx = services.WithSessionID(ctx, id)
	logger := logging.WithContext(ctx, o.logger)

	sess, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case session.StatusCompleted:
		logger.Info("session already completed", logging.Args(logging.DecisionAttrs("process", "skip", "completed")...)...)
		return sess, nil
	case session.StatusError:
		return sess, services.Wrap(services.ErrValidation, "pipeline", "process",
			"session is in error; retry it before processing again", nil)
	case session.StatusTranscribing:
		return sess, services.Wrap(services.ErrValidation, "pipeline", "process",
			"session is stuck in transcribing; recover it, then retry", nil)
	case session.StatusAnalyzing:
		if !sess.HasTranscript() {
			return sess, services.Wrap(services.ErrValidation, "pipeline", "process",
				"session is analyzing without a transcript; recover it, then retry", nil)
		}
		logger.Info("resuming at analysis", logging.Args(logging.DecisionAttrs("process", "resume", "transcript already stored")...)...)
		return o.analyze(ctx, sess)
	case session.StatusUploaded:
	default:
		return sess, services.Wrap(services.ErrValidation, "pipeline", "process",
			fmt.Sprintf("unknown status %q", sess.Status), nil)
	}

	if NeedsCompression(sess) {
		if sess, err = o.compress(ctx, sess); err != nil {
			return sess, err
		}
	}
	return o.transcribe(ctx, sess)
}

// Escalate grants an exhausted session its single manual last-resort pass and,
// when the result fits, processes it.
func (o *Orchestrator) Escalate(ctx context.Context, id string) (*session.Session, error) {
	ctx = services.WithStage(services.WithSessionID(ctx, id), "compression")
	logger := logging.WithContext(ctx, o.logger)

	sess, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusError {
		return sess, services.Wrap(services.ErrValidation, "pipeline", "escalate",
			fmt.Sprintf("session is %s; only sessions whose compression was exhausted can escalate", sess.Status), nil)
	}

	result := o.compressor.Escalate(ctx, sess.Source, compression.State(sess.CompressionState))
	if errors.Is(result.Outcome.Err, services.ErrValidation) {
		return sess, result.Outcome.Err
	}
	if !result.Succeeded() {
		persist := context.WithoutCancel(ctx)
		if err := o.store.SaveCompression(persist, id, nil, string(result.State)); err != nil {
			return sess, err
		}
		if err := o.store.AmendError(persist, id, services.Kind(result.Outcome.Err), failureMessage(result)); err != nil {
			return sess, err
		}
		logger.Info("manual escalation exhausted", logging.Args(logging.DecisionAttrs("compression_escalation", "give_up", "last resort pass over the limit")...)...)
		return o.reload(ctx, id, result.Outcome.Err)
	}

	if err := o.store.SaveCompression(ctx, id, result.Outcome.Asset, string(compression.StateSucceeded)); err != nil {
		return sess, err
	}
	if err := o.store.Retry(ctx, id); err != nil {
		return sess, err
	}
	logger.Info("manual escalation succeeded",
		logging.Float64("size_mb", result.Outcome.SizeMB()),
		logging.String("settings", result.Outcome.Settings.String()),
	)
	return o.Process(ctx, id)
}

func (o *Orchestrator) compress(ctx context.Context, sess *session.Session) (*session.Session, error) {
	ctx = services.WithStage(ctx, "compression")
	logger := logging.WithContext(ctx, o.logger)
	reason := "source exceeds the upload limit"
	if !sess.Source.Format.TranscriptionReady() {
		reason = "source format needs conversion"
	}
	attrs := append([]logging.Attr{
		logging.Float64("source_mb", sess.Source.SizeMB()),
		logging.String("format", string(sess.Source.Format)),
	}, logging.DecisionAttrs("compression", "run_chain", reason)...)
	logger.Info("compression required", logging.Args(attrs...)...)

	result := o.compressor.Run(ctx, sess.Source)
	if result.Succeeded() {
		if err := o.store.SaveCompression(ctx, sess.ID, result.Outcome.Asset, string(result.State)); err != nil {
			return sess, err
		}
		return o.store.Get(ctx, sess.ID)
	}

	persist := context.WithoutCancel(ctx)
	if err := o.store.SaveCompression(persist, sess.ID, nil, string(result.State)); err != nil {
		return sess, err
	}
	if err := o.store.Fail(persist, sess.ID, session.StatusUploaded, services.Kind(result.Outcome.Err), failureMessage(result)); err != nil {
		return sess, err
	}
	return o.reload(ctx, sess.ID, result.Outcome.Err)
}

func (o *Orchestrator) transcribe(ctx context.Context, sess *session.Session) (*session.Session, error) {
	ctx = services.WithStage(ctx, "transcription")
	logger := logging.WithContext(ctx, o.logger)

	if err := o.store.Transition(ctx, sess.ID, session.StatusUploaded, session.StatusTranscribing); err != nil {
		return sess, err
	}

	text, language := sess.Transcript, sess.TranscriptLanguage
	if sess.HasTranscript() {
		logger.Info("reusing stored transcript", logging.Args(logging.DecisionAttrs("transcription", "reuse", "transcript committed by an earlier run")...)...)
	} else {
		asset := sess.TranscriptionAsset()
		result, err := o.transcriber.Transcribe(ctx, asset, o.timeoutFor(sess.Source.SizeMB()))
		if err != nil {
			return o.fail(ctx, sess.ID, session.StatusTranscribing, err)
		}
		text, language = result.Text, result.Language
	}

	if err := o.store.CommitTranscript(ctx, sess.ID, text, language); err != nil {
		return sess, err
	}
	updated, err := o.store.Get(ctx, sess.ID)
	if err != nil {
		return sess, err
	}
	return o.analyze(ctx, updated)
}

func (o *Orchestrator) analyze(ctx context.Context, sess *session.Session) (*session.Session, error) {
	ctx = services.WithStage(ctx, "analysis")
	logger := logging.WithContext(ctx, o.logger)

	result, err := o.analyst.Analyze(ctx, sess.Transcript)
	if err != nil {
		return o.fail(ctx, sess.ID, session.StatusAnalyzing, err)
	}
	if err := o.store.CompleteAnalysis(ctx, sess.ID, result); err != nil {
		return sess, err
	}
	logger.Info("session completed", logging.String("title", result.SessionTitle))
	return o.store.Get(ctx, sess.ID)
}

func (o *Orchestrator) fail(ctx context.Context, id string, from session.Status, cause error) (*session.Session, error) {
	logger := logging.WithContext(ctx, o.logger)
	kind := services.Kind(cause)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			kind = services.KindInterrupted
		}
	}
	logging.ErrorWithContext(logger, "session failed", "session_failed",
		logging.String("from_status", string(from)),
		logging.String("error_kind", kind),
		logging.Error(cause),
	)
	if err := o.store.Fail(context.WithoutCancel(ctx), id, from, kind, cause.Error()); err != nil {
		return nil, fmt.Errorf("%w (while recording failure: %v)", cause, err)
	}
	return o.reload(ctx, id, cause)
}

func (o *Orchestrator) reload(ctx context.Context, id string, cause error) (*session.Session, error) {
	sess, err := o.store.Get(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, cause
	}
	return sess, cause
}

func failureMessage(result compression.Result) string {
	msg := ""
	if result.Outcome.Err != nil {
		msg = result.Outcome.Err.Error()
	}
	if result.Remediation != "" && !strings.Contains(msg, result.Remediation) {
		if msg != "" {
			msg += "\n"
		}
		msg += result.Remediation
	}
	return msg
}
