package httpapi

import (
	"time"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/session"
)

const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Asset describes an audio file in API payloads.
type Asset struct {
	Path            string  `json:"path"`
	SizeMB          float64 `json:"size_mb"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Session is the transport form of a session record.
type Session struct {
	ID                 string                  `json:"id"`
	Number             int                     `json:"number"`
	Title              string                  `json:"title"`
	RecordedAt         string                  `json:"recorded_at,omitempty"`
	OriginalName       string                  `json:"original_name"`
	Status             string                  `json:"status"`
	Source             Asset                   `json:"source"`
	Working            *Asset                  `json:"working,omitempty"`
	CompressionState   string                  `json:"compression_state,omitempty"`
	ErrorKind          string                  `json:"error_kind,omitempty"`
	ErrorMessage       string                  `json:"error_message,omitempty"`
	HasTranscript      bool                    `json:"has_transcript"`
	Transcript         string                  `json:"transcript,omitempty"`
	TranscriptLanguage string                  `json:"transcript_language,omitempty"`
	Analysis           *session.AnalysisResult `json:"analysis,omitempty"`
	Notes              string                  `json:"notes,omitempty"`
	CreatedAt          string                  `json:"created_at,omitempty"`
	UpdatedAt          string                  `json:"updated_at,omitempty"`
}

// ListResponse wraps a collection of sessions.
type ListResponse struct {
	Sessions []Session      `json:"sessions"`
	Counts   map[string]int `json:"counts"`
}

// ErrorResponse is returned for every non-2xx answer. Session is set when the
// failure left a persisted state worth showing.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// NotesRequest replaces the notes of a session.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// FromSession converts a session record. The transcript is only included
// when withTranscript is set.
func FromSession(sess *session.Session, withTranscript bool) Session {
	if sess == nil {
		return Session{}
	}
	dto := Session{
		ID:                 sess.ID,
		Number:             sess.Number,
		Title:              sess.DisplayTitle(),
		OriginalName:       sess.OriginalName,
		Status:             string(sess.Status),
		Source:             fromAsset(sess.Source),
		CompressionState:   sess.CompressionState,
		ErrorKind:          sess.ErrorKind,
		ErrorMessage:       sess.ErrorMessage,
		HasTranscript:      sess.HasTranscript(),
		TranscriptLanguage: sess.TranscriptLanguage,
		Analysis:           sess.Analysis,
		Notes:              sess.Notes,
	}
	if sess.Working != nil {
		working := fromAsset(*sess.Working)
		dto.Working = &working
	}
	if withTranscript {
		dto.Transcript = sess.Transcript
	}
	if !sess.RecordedAt.IsZero() {
		dto.RecordedAt = sess.RecordedAt.Format(time.DateOnly)
	}
	if !sess.CreatedAt.IsZero() {
		dto.CreatedAt = sess.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !sess.UpdatedAt.IsZero() {
		dto.UpdatedAt = sess.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

func fromAsset(a audio.Asset) Asset {
	return Asset{
		Path:            a.Path,
		SizeMB:          float64(int64(a.SizeMB()*10+0.5)) / 10,
		Format:          string(a.Format),
		DurationSeconds: a.Duration.Seconds(),
	}
}
