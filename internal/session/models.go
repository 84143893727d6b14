package session

import (
	"fmt"
	"time"

	"lorekeeper/internal/audio"
)

// Status is the processing state of a session.
type Status string

const (
	StatusUploaded     Status = "uploaded"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

var allStatuses = []Status{
	StatusUploaded,
	StatusTranscribing,
	StatusAnalyzing,
	StatusCompleted,
	StatusError,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

// InFlight reports whether an external call may be outstanding for the status.
func (s Status) InFlight() bool {
	return s == StatusTranscribing || s == StatusAnalyzing
}

// AnalysisResult is the structured summary extracted from a transcript.
type AnalysisResult struct {
	NarrativeSummary string   `json:"narrative_summary"`
	TLDRSummary      string   `json:"tldr_summary"`
	NPCs             []string `json:"npcs"`
	Items            []string `json:"items"`
	Locations        []string `json:"locations"`
	KeyEvents        []string `json:"key_events"`
	SessionTitle     string   `json:"session_title"`
}

// Session is one recorded tabletop session and everything derived from it.
type Session struct {
	ID           string
	Number       int
	Title        string
	RecordedAt   time.Time
	OriginalName string

	// Source is the uploaded file; it is never modified.
	Source audio.Asset
	// Working is the asset sent to transcription when it differs from Source.
	Working *audio.Asset

	Status             Status
	Transcript         string
	TranscriptLanguage string
	Analysis           *AnalysisResult
	Notes              string

	ErrorKind        string
	ErrorMessage     string
	CompressionState string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayTitle returns the title or a numbered placeholder.
func (s *Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return fmt.Sprintf("Session %d", s.Number)
}

// TranscriptionAsset is the asset the transcription service should receive.
func (s *Session) TranscriptionAsset() audio.Asset {
	if s.Working != nil {
		return *s.Working
	}
	return s.Source
}

// HasTranscript reports whether a transcript was committed earlier.
func (s *Session) HasTranscript() bool { return s.Transcript != "" }
