package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies an audio container by its conventional file extension.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatM4A  Format = "m4a"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
	// FormatAAC is accepted on upload but is always converted before
	// transcription.
	FormatAAC Format = "aac"
)

var allFormats = []Format{FormatMP3, FormatWAV, FormatM4A, FormatFLAC, FormatOGG, FormatAAC}

// Formats returns every accepted input format.
func Formats() []Format {
	out := make([]Format, len(allFormats))
	copy(out, allFormats)
	return out
}

// ParseFormat resolves a format name or extension (with or without the dot).
func ParseFormat(value string) (Format, error) {
	norm := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))
	for _, f := range allFormats {
		if string(f) == norm {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported audio format %q", value)
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("audio file %q has no extension", filepath.Base(path))
	}
	return ParseFormat(ext)
}

// Lossless reports whether the format stores uncompressed or losslessly
// compressed audio.
func (f Format) Lossless() bool {
	return f == FormatWAV || f == FormatFLAC
}

// TranscriptionReady reports whether the transcription service accepts the
// container as-is.
func (f Format) TranscriptionReady() bool {
	switch f {
	case FormatMP3, FormatWAV, FormatM4A, FormatFLAC, FormatOGG:
		return true
	default:
		return false
	}
}

// RequiresConversion reports whether a compression pass must change the codec
// family rather than only lowering the bitrate.
func (f Format) RequiresConversion() bool {
	return f.Lossless() || !f.TranscriptionReady()
}

func (f Format) String() string { return string(f) }
