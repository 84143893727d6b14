package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lorekeeper/internal/services"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// SessionID tags a line with the session it concerns.
func SessionID(id string) Attr { return slog.String(FieldSessionID, id) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger prefixes every line with component. A nil logger yields a
// no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// kindHints maps error kinds to the next thing an operator should try.
var kindHints = map[string]string{
	services.KindDependencyUnavailable: "install ffmpeg or set compression.ffmpeg_binary",
	services.KindEncodingFailed:        "run `lorekeeper plan` for manual compression options",
	services.KindEncodingTimedOut:      "raise compression.timeout_seconds or compress manually",
	services.KindStillTooLarge:         "split the recording or compress it manually",
	services.KindPayloadTooLarge:       "escalate the session to a smaller preset",
	services.KindExternalService:       "check the OpenAI key and network, then retry",
	services.KindSchemaViolation:       "retry the session; the transcript is kept",
	services.KindConfiguration:         "run `lorekeeper config validate`",
}

const defaultHint = "check logs for details"

// hintFor derives a hint from the first error attribute in attrs.
func hintFor(attrs []Attr) (kind, hint string) {
	for _, a := range attrs {
		if a.Key != "error" || a.Value.Kind() != slog.KindAny {
			continue
		}
		err, ok := a.Value.Any().(error)
		if !ok {
			continue
		}
		kind = services.Kind(err)
		if errors.Is(err, context.Canceled) {
			kind = services.KindInterrupted
		}
		if h, ok := kindHints[kind]; ok {
			return kind, h
		}
		return kind, defaultHint
	}
	return "", defaultHint
}

// withEventFields fills in event_type, error_kind and error_hint unless the
// caller already set them.
func withEventFields(attrs []Attr, eventType string) []Attr {
	present := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		present[a.Key] = true
	}
	if !present[FieldEventType] {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	kind, hint := hintFor(attrs)
	if kind != "" && kind != services.KindUnknown && !present[FieldErrorKind] {
		attrs = append(attrs, String(FieldErrorKind, kind))
	}
	if !present[FieldErrorHint] {
		attrs = append(attrs, String(FieldErrorHint, hint))
	}
	return attrs
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withEventFields(attrs, eventType)
	if !hasKey(attrs, FieldImpact) {
		attrs = append(attrs, String(FieldImpact, "processing continued with warnings"))
	}
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error that always carries event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, Args(withEventFields(attrs, eventType)...)...)
}

func hasKey(attrs []Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

// DecisionAttrs describes a choice the pipeline made, such as skipping
// compression or picking a fallback preset.
func DecisionAttrs(decisionType, result, reason string) []Attr {
	return []Attr{
		String(FieldDecisionType, decisionType),
		String(FieldDecisionResult, result),
		String(FieldDecisionReason, reason),
	}
}

type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
