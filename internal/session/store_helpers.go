package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lorekeeper/internal/audio"
)

const sessionColumns = "id, session_number, title, recorded_at, original_name, source_path, source_size, source_format, source_duration_ms, working_path, working_size, working_format, working_duration_ms, status, transcript, transcript_language, analysis_json, notes, error_kind, error_message, compression_state, created_at, updated_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id                 string
		number             int64
		title              sql.NullString
		recordedRaw        sql.NullString
		originalName       string
		sourcePath         string
		sourceSize         int64
		sourceFormat       string
		sourceDurationMS   sql.NullInt64
		workingPath        sql.NullString
		workingSize        sql.NullInt64
		workingFormat      sql.NullString
		workingDurationMS  sql.NullInt64
		statusStr          string
		transcript         sql.NullString
		transcriptLanguage sql.NullString
		analysisJSON       sql.NullString
		notes              sql.NullString
		errorKind          sql.NullString
		errorMessage       sql.NullString
		compressionState   sql.NullString
		createdRaw         string
		updatedRaw         string
	)
	if err := scanner.Scan(
		&id,
		&number,
		&title,
		&recordedRaw,
		&originalName,
		&sourcePath,
		&sourceSize,
		&sourceFormat,
		&sourceDurationMS,
		&workingPath,
		&workingSize,
		&workingFormat,
		&workingDurationMS,
		&statusStr,
		&transcript,
		&transcriptLanguage,
		&analysisJSON,
		&notes,
		&errorKind,
		&errorMessage,
		&compressionState,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:           id,
		Number:       int(number),
		Title:        title.String,
		RecordedAt:   parseTime(recordedRaw.String),
		OriginalName: originalName,
		Source: audio.Asset{
			Path:      sourcePath,
			SizeBytes: sourceSize,
			Format:    audio.Format(sourceFormat),
			Duration:  time.Duration(sourceDurationMS.Int64) * time.Millisecond,
		},
		Status:             Status(statusStr),
		Transcript:         transcript.String,
		TranscriptLanguage: transcriptLanguage.String,
		Notes:              notes.String,
		ErrorKind:          errorKind.String,
		ErrorMessage:       errorMessage.String,
		CompressionState:   compressionState.String,
		CreatedAt:          parseTime(createdRaw),
		UpdatedAt:          parseTime(updatedRaw),
	}
	if workingPath.Valid && workingPath.String != "" {
		sess.Working = &audio.Asset{
			Path:      workingPath.String,
			SizeBytes: workingSize.Int64,
			Format:    audio.Format(workingFormat.String),
			Duration:  time.Duration(workingDurationMS.Int64) * time.Millisecond,
		}
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		var result AnalysisResult
		if err := json.Unmarshal([]byte(analysisJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode analysis for session %s: %w", id, err)
		}
		sess.Analysis = &result
	}
	return sess, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableDuration(d time.Duration) any {
	if d <= 0 {
		return nil
	}
	return d.Milliseconds()
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
