package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/session"
)

func formatSizeMB(bytes int64) string {
	return fmt.Sprintf("%.1f MB", audio.BytesToMB(bytes))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func describeAsset(a audio.Asset) string {
	parts := []string{formatSizeMB(a.SizeBytes), string(a.Format)}
	if a.Duration > 0 {
		parts = append(parts, formatDuration(a.Duration))
	}
	return strings.Join(parts, ", ")
}

func sessionRow(sess *session.Session, colorize bool) []string {
	return []string{
		strconv.Itoa(sess.Number),
		sess.DisplayTitle(),
		colorStatus(sess.Status, colorize),
		formatDate(sess.RecordedAt),
		formatSizeMB(sess.Source.SizeBytes),
		string(sess.Source.Format),
		formatDuration(sess.Source.Duration),
	}
}

var sessionColumns = []column{
	{title: "#", numeric: true},
	{title: "Title"},
	{title: "Status"},
	{title: "Recorded"},
	{title: "Size", numeric: true},
	{title: "Format"},
	{title: "Length", numeric: true},
}

// printSession writes the detailed view used by `show` and after processing.
func printSession(out io.Writer, sess *session.Session, colorize, withTranscript bool) {
	for _, line := range renderSectionHeader(fmt.Sprintf("Session %d: %s", sess.Number, sess.DisplayTitle()), colorize) {
		fmt.Fprintln(out, line)
	}
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "%-13s %s\n", label+":", value)
		}
	}
	field("ID", sess.ID)
	field("Status", colorStatus(sess.Status, colorize))
	if !sess.RecordedAt.IsZero() {
		field("Recorded", formatDate(sess.RecordedAt))
	}
	field("Recording", sess.OriginalName)
	field("Source", describeAsset(sess.Source))
	if sess.Working != nil {
		field("Compressed", describeAsset(*sess.Working))
	}
	field("Compression", sess.CompressionState)
	if sess.TranscriptLanguage != "" || sess.HasTranscript() {
		field("Transcript", fmt.Sprintf("%d characters (%s)", len([]rune(sess.Transcript)), valueOr(sess.TranscriptLanguage, "unknown language")))
	}
	if sess.Status == session.StatusError {
		field("Error", sess.ErrorKind)
		if sess.ErrorMessage != "" {
			fmt.Fprintln(out)
			fmt.Fprintln(out, sess.ErrorMessage)
		}
	}

	if a := sess.Analysis; a != nil {
		block(out, "TL;DR", a.TLDRSummary)
		block(out, "Summary", a.NarrativeSummary)
		bullets(out, "Key events", a.KeyEvents)
		bullets(out, "Characters", a.NPCs)
		bullets(out, "Locations", a.Locations)
		bullets(out, "Items", a.Items)
	}
	block(out, "Notes", sess.Notes)
	if withTranscript {
		block(out, "Transcript", sess.Transcript)
	}
}

func block(out io.Writer, heading, body string) {
	if body = strings.TrimSpace(body); body == "" {
		return
	}
	fmt.Fprintf(out, "\n%s\n%s\n", heading, body)
}

func bullets(out io.Writer, heading string, entries []string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", heading)
	for _, e := range entries {
		fmt.Fprintf(out, "  - %s\n", e)
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
