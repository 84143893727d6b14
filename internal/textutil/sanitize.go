package textutil

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxFileNameBytes keeps upload names well under common filesystem limits.
const maxFileNameBytes = 180

// SanitizeFileName cleans a client-supplied upload name. Path separators,
// colons and asterisks become dashes; quotes, angle brackets, pipes, question
// marks and control characters are dropped; whitespace runs collapse to one
// space. Overlong names are shortened before the extension.
func SanitizeFileName(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case strings.ContainsRune(`/\:*`, r):
			r = '-'
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case strings.ContainsRune(`?"<>|`, r), unicode.IsControl(r):
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) <= maxFileNameBytes {
		return out
	}
	ext := filepath.Ext(out)
	if len(ext) > 10 {
		ext = ""
	}
	stem := out[:maxFileNameBytes-len(ext)]
	for !utf8.ValidString(stem) {
		stem = stem[:len(stem)-1]
	}
	return strings.TrimSpace(stem) + ext
}

// FoldAccents strips combining marks so "Phandélver" becomes "Phandelver".
func FoldAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return folded
}

// Slug converts value to a lowercase ASCII token. Accents are folded, runs of
// anything other than letters and digits collapse to a single underscore, and
// the result is capped at maxLen bytes. Returns "session" for empty input.
func Slug(value string, maxLen int) string {
	folded := FoldAccents(strings.TrimSpace(value))
	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		default:
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if maxLen > 0 && len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "_")
	}
	if out == "" {
		return "session"
	}
	return out
}
