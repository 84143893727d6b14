package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"lorekeeper/internal/session"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

type statusStyle struct {
	label  string
	colors text.Colors
}

var statusStyles = map[statusKind]statusStyle{
	statusInfo:  {label: "INFO", colors: text.Colors{text.FgBlue}},
	statusOK:    {label: "OK", colors: text.Colors{text.FgGreen}},
	statusWarn:  {label: "WARN", colors: text.Colors{text.FgYellow}},
	statusError: {label: "ERROR", colors: text.Colors{text.FgRed, text.Bold}},
}

// statusLabelWidth fits "Transcription API:" plus padding.
const statusLabelWidth = 20

// paint colours s for kind when colorize is set.
func paint(kind statusKind, s string, colorize bool) string {
	if !colorize {
		return s
	}
	return statusStyles[kind].colors.Sprint(s)
}

// renderStatusLine formats a check or plan line such as
//
//	Compression:         [WARN] source exceeds the upload limit
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusStyles[kind].label + "]"
	if message != "" {
		tag += " " + message
	}
	return paint(kind, fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", tag), colorize)
}

// sessionStatusKind maps a lifecycle status onto a display colour.
func sessionStatusKind(status session.Status) statusKind {
	switch status {
	case session.StatusCompleted:
		return statusOK
	case session.StatusError:
		return statusError
	case session.StatusTranscribing, session.StatusAnalyzing:
		return statusWarn
	default:
		return statusInfo
	}
}

func colorStatus(status session.Status, colorize bool) string {
	return paint(sessionStatusKind(status), string(status), colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", text.RuneWidthWithoutEscSequences(line))
	return []string{paint(statusInfo, line, colorize), paint(statusInfo, rule, colorize)}
}

// shouldColorize reports whether w is a terminal and NO_COLOR is unset.
func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
