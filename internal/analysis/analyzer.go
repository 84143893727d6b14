package analysis

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
	"lorekeeper/internal/services/llm"
	"lorekeeper/internal/session"
)

// ShortTranscriptRunes is the length under which a transcript is analysed with
// a warning; such transcripts usually come from silent or corrupted audio.
const ShortTranscriptRunes = 100

// Completer issues one JSON chat completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Analyzer extracts structured notes from transcripts.
type Analyzer struct {
	client         Completer
	outputLanguage string
	logger         *slog.Logger
}

// NewAnalyzer wires a completion client. outputLanguage names the language the
// notes are written in.
func NewAnalyzer(client Completer, outputLanguage string, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		client:         client,
		outputLanguage: outputLanguage,
		logger:         logging.NewComponentLogger(logger, "analysis"),
	}
}

// Analyze sends transcript once and validates the reply.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (session.AnalysisResult, error) {
	logger := logging.WithContext(ctx, a.logger)
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return session.AnalysisResult{}, services.Wrap(services.ErrValidation, "analysis", "analyze", "transcript is empty", nil)
	}
	if n := utf8.RuneCountInString(transcript); n < ShortTranscriptRunes {
		logging.WarnWithContext(logger, "transcript is very short", "short_transcript",
			logging.Int("characters", n),
			logging.String(logging.FieldErrorHint, "check the recording for silence or a wrong input device"),
			logging.String(logging.FieldImpact, "analysis may be sparse"),
		)
	}

	content, err := a.client.CompleteJSON(ctx, SystemPrompt(), BuildPrompt(transcript, a.outputLanguage))
	if err != nil {
		return session.AnalysisResult{}, err
	}
	result, err := Validate(content)
	if err != nil {
		logging.WarnWithContext(logger, "analysis reply rejected", "analysis_schema",
			logging.Error(err),
			logging.String("reply", llm.SummarizePayload(content)),
			logging.String(logging.FieldImpact, "session marked as error; transcript kept"),
		)
		return session.AnalysisResult{}, err
	}
	logger.Info("analysis completed",
		logging.String("title", result.SessionTitle),
		logging.Int("npcs", len(result.NPCs)),
		logging.Int("locations", len(result.Locations)),
		logging.Int("key_events", len(result.KeyEvents)),
	)
	return result, nil
}
