package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/services"
)

// ErrStatusConflict reports a compare-and-set status write that lost: the row
// no longer holds the status the caller expected.
var ErrStatusConflict = errors.New("session status changed concurrently")

// NewSession describes an uploaded recording about to be registered.
type NewSession struct {
	Title        string
	RecordedAt   time.Time
	OriginalName string
	Source       audio.Asset
}

// Create inserts a session in StatusUploaded with the next session number.
func (s *Store) Create(ctx context.Context, in NewSession) (*Session, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(in.Source.Path) == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "create", "source path is required", nil)
	}
	if in.OriginalName == "" {
		in.OriginalName = in.Source.Path
	}

	id := uuid.NewString()
	stamp := now()
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var next int64
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(session_number), 0) + 1 FROM sessions").Scan(&next); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO sessions (
            id, session_number, title, recorded_at, original_name,
            source_path, source_size, source_format, source_duration_ms,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id,
			next,
			nullableString(strings.TrimSpace(in.Title)),
			nullableTime(in.RecordedAt),
			in.OriginalName,
			in.Source.Path,
			in.Source.SizeBytes,
			string(in.Source.Format),
			nullableDuration(in.Source.Duration),
			StatusUploaded,
			stamp,
			stamp,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.Get(ctx, id)
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.queryRow(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetByNumber loads a session by its human-facing number.
func (s *Store) GetByNumber(ctx context.Context, number int) (*Session, error) {
	row := s.queryRow(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE session_number = ?", number)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("#" + strconv.Itoa(number))
	}
	if err != nil {
		return nil, fmt.Errorf("get session by number: %w", err)
	}
	return sess, nil
}

// Resolve accepts a session number, a full id, or an unambiguous id prefix.
func (s *Store) Resolve(ctx context.Context, ref string) (*Session, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "resolve", "session reference is empty", nil)
	}
	if n, err := strconv.Atoi(ref); err == nil {
		return s.GetByNumber(ctx, n)
	}
	if _, err := uuid.Parse(ref); err == nil {
		return s.Get(ctx, ref)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), s.rebind("SELECT id FROM sessions WHERE id LIKE ? LIMIT 2"), ref+"%")
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("resolve session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	switch len(ids) {
	case 0:
		return nil, notFound(ref)
	case 1:
		return s.Get(ctx, ids[0])
	default:
		return nil, services.Wrap(services.ErrValidation, "session", "resolve",
			fmt.Sprintf("id prefix %q matches more than one session", ref), nil)
	}
}

// List returns sessions ordered by session number, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY session_number"

	rows, err := s.db.QueryContext(ensureContext(ctx), s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of sessions in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM sessions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// Transition moves a session from one status to the next legal status.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return services.Wrap(services.ErrValidation, "session", "transition",
			fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	}
	if to == StatusError {
		return s.Fail(ctx, id, from, services.KindUnknown, "")
	}
	return s.casUpdate(ctx, id, from, "status = ?", string(to))
}

// Fail moves an in-flight or uploaded session to StatusError with a taxonomy
// kind and an operator-facing message. Transcript and analysis are retained.
func (s *Store) Fail(ctx context.Context, id string, from Status, kind, message string) error {
	if !CanTransition(from, StatusError) {
		return services.Wrap(services.ErrValidation, "session", "fail",
			fmt.Sprintf("cannot fail a session in status %s", from), nil)
	}
	return s.casUpdate(ctx, id, from, "status = ?, error_kind = ?, error_message = ?",
		string(StatusError), nullableString(kind), nullableString(message))
}

// Retry is the operator re-trigger: error -> uploaded, clearing the failure.
func (s *Store) Retry(ctx context.Context, id string) error {
	return s.casUpdate(ctx, id, StatusError, "status = ?, error_kind = NULL, error_message = NULL",
		string(StatusUploaded))
}

// Recover marks a session stuck in transcribing or analyzing as failed with
// kind interrupted. It never resumes the external call.
func (s *Store) Recover(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.InFlight() {
		return nil, services.Wrap(services.ErrValidation, "session", "recover",
			fmt.Sprintf("session is %s, only transcribing or analyzing sessions can be recovered", sess.Status), nil)
	}
	msg := fmt.Sprintf("processing was interrupted while %s; retry to run it again", sess.Status)
	if err := s.Fail(ctx, id, sess.Status, services.KindInterrupted, msg); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// AmendError replaces the failure details of a session already in error.
func (s *Store) AmendError(ctx context.Context, id, kind, message string) error {
	return s.casUpdate(ctx, id, StatusError, "error_kind = ?, error_message = ?",
		nullableString(kind), nullableString(message))
}

// SaveCompression records the compression chain outcome and, when working is
// non-nil, the asset that replaces the source for transcription.
func (s *Store) SaveCompression(ctx context.Context, id string, working *audio.Asset, state string) error {
	var (
		path, format any
		size, dur    any
	)
	if working != nil {
		path = working.Path
		size = working.SizeBytes
		format = string(working.Format)
		dur = nullableDuration(working.Duration)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE sessions SET working_path = ?, working_size = ?, working_format = ?, working_duration_ms = ?,
            compression_state = ?, updated_at = ? WHERE id = ?`,
		path, size, format, dur, nullableString(state), now(), id)
	if err != nil {
		return fmt.Errorf("save compression: %w", err)
	}
	return requireRow(res, id)
}

// CommitTranscript stores the transcript and advances transcribing -> analyzing
// in one write.
func (s *Store) CommitTranscript(ctx context.Context, id, transcript, language string) error {
	return s.casUpdate(ctx, id, StatusTranscribing, "status = ?, transcript = ?, transcript_language = ?",
		string(StatusAnalyzing), transcript, nullableString(language))
}

// CompleteAnalysis stores the analysis and advances analyzing -> completed.
// The suggested title is adopted only when the session has none.
func (s *Store) CompleteAnalysis(ctx context.Context, id string, result AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return s.casUpdate(ctx, id, StatusAnalyzing,
		"status = ?, analysis_json = ?, title = CASE WHEN title IS NULL OR title = '' THEN ? ELSE title END",
		string(StatusCompleted), string(data), nullableString(strings.TrimSpace(result.SessionTitle)))
}

// UpdateNotes replaces the free-form notes on a session.
func (s *Store) UpdateNotes(ctx context.Context, id, notes string) error {
	res, err := s.execWithRetry(ctx, "UPDATE sessions SET notes = ?, updated_at = ? WHERE id = ?",
		nullableString(notes), now(), id)
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}
	return requireRow(res, id)
}

// UpdateTitle renames a session.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.execWithRetry(ctx, "UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?",
		nullableString(strings.TrimSpace(title)), now(), id)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return requireRow(res, id)
}

// Remove deletes a session row. Files on disk are the caller's concern.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return requireRow(res, id)
}

// casUpdate applies set to the row only while it still holds expected.
func (s *Store) casUpdate(ctx context.Context, id string, expected Status, set string, args ...any) error {
	query := "UPDATE sessions SET " + set + ", updated_at = ? WHERE id = ? AND status = ?"
	args = append(args, now(), id, string(expected))
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is %s, expected %s", ErrStatusConflict, id, current.Status, expected)
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound(id)
	}
	return nil
}

func notFound(ref string) error {
	return services.Wrap(services.ErrSessionNotFound, "session", "lookup", fmt.Sprintf("no session %s", ref), nil)
}
