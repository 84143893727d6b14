// Package export renders sessions as Markdown documents.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lorekeeper/internal/fileutil"
	"lorekeeper/internal/services"
	"lorekeeper/internal/session"
	"lorekeeper/internal/textutil"
)

// Options selects optional sections.
type Options struct {
	IncludeTranscript bool
}

// Markdown renders sess. Sessions without an analysis still render their
// metadata, notes and, when requested, the transcript.
func Markdown(sess *session.Session, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sess.DisplayTitle())

	fmt.Fprintf(&b, "- **Session:** #%d\n", sess.Number)
	if !sess.RecordedAt.IsZero() {
		fmt.Fprintf(&b, "- **Recorded:** %s\n", sess.RecordedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", sess.Status)
	if sess.OriginalName != "" {
		fmt.Fprintf(&b, "- **Recording:** %s\n", sess.OriginalName)
	}
	if sess.Source.Duration > 0 {
		fmt.Fprintf(&b, "- **Duration:** %s\n", sess.Source.Duration.Round(time.Second))
	}
	if sess.Status == session.StatusError && sess.ErrorMessage != "" {
		fmt.Fprintf(&b, "- **Error:** %s (%s)\n", firstLine(sess.ErrorMessage), sess.ErrorKind)
	}

	if a := sess.Analysis; a != nil {
		section(&b, "TL;DR", a.TLDRSummary)
		section(&b, "Summary", a.NarrativeSummary)
		list(&b, "Key events", a.KeyEvents)
		list(&b, "Characters", a.NPCs)
		list(&b, "Locations", a.Locations)
		list(&b, "Items", a.Items)
	}
	section(&b, "Notes", sess.Notes)
	if opts.IncludeTranscript {
		section(&b, "Transcript", sess.Transcript)
	}
	return b.String()
}

// FileName is the export file name for sess, e.g. "session_007_la_crypte.md".
func FileName(sess *session.Session) string {
	name := fmt.Sprintf("session_%03d", sess.Number)
	if sess.Title != "" {
		name += "_" + textutil.Slug(sess.Title, 60)
	}
	return name + ".md"
}

// WriteFile renders sess into dir and returns the written path. An existing
// export for the same session is replaced.
func WriteFile(dir string, sess *session.Session, opts Options) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", services.Wrap(services.ErrConfiguration, "export", "write", "export directory is not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName(sess))
	if err := fileutil.WriteFileAtomic(path, []byte(Markdown(sess, opts)), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func section(b *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n%s\n", heading, body)
}

func list(b *strings.Builder, heading string, entries []string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, e := range entries {
		fmt.Fprintf(b, "- %s\n", e)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
