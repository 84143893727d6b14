package compression

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"lorekeeper/internal/audio"
)

// DefaultSegmentMB is the target size for each piece when a recording has to
// be split by hand.
const DefaultSegmentMB = 20.0

// Advice collects manual options for an oversized recording.
type Advice struct {
	CurrentSizeMB      float64  `json:"current_size_mb"`
	TargetSizeMB       float64  `json:"target_size_mb"`
	Methods            []string `json:"methods"`
	EstimatedReduction string   `json:"estimated_reduction"`
	Commands           []string `json:"commands"`
}

// Recommend returns format-specific manual compression advice together with
// ready-to-run ffmpeg command lines for input.
func Recommend(sizeMB float64, format audio.Format, input string) Advice {
	advice := Advice{CurrentSizeMB: sizeMB, TargetSizeMB: audio.CeilingMB}
	switch format {
	case audio.FormatWAV:
		advice.Methods = []string{
			"convert to MP3 (about 90% smaller)",
			"lower the sample rate from 44.1 kHz to 22 kHz",
			"downmix stereo to mono (about 50% smaller)",
		}
		advice.EstimatedReduction = "80-90%"
	case audio.FormatFLAC:
		advice.Methods = []string{
			"convert to MP3 (about 70% smaller)",
			"lower the bitrate to 128 kbps",
			"downmix stereo to mono",
		}
		advice.EstimatedReduction = "60-80%"
	case audio.FormatM4A, audio.FormatAAC:
		advice.Methods = []string{
			"lower the bitrate to 128 kbps",
			"convert to MP3",
			"lower the sample rate",
		}
		advice.EstimatedReduction = "40-60%"
	default:
		advice.Methods = []string{
			"lower the bitrate to 128 kbps or 96 kbps",
			"downmix stereo to mono",
			"trim silence at the start and end",
		}
		advice.EstimatedReduction = "30-50%"
	}

	output := strings.TrimSuffix(input, filepath.Ext(input)) + ".small.mp3"
	for _, s := range []Settings{
		{Target: audio.FormatMP3, BitrateKbps: 96},
		{Target: audio.FormatMP3, BitrateKbps: 64, Channels: 1},
		{Target: audio.FormatMP3, BitrateKbps: 32, Channels: 1, SampleRateHz: 16000},
	} {
		advice.Commands = append(advice.Commands, "ffmpeg "+quoteArgs(buildArgs(input, output, s)))
	}
	return advice
}

// ShouldSplit reports whether a recording of sizeMB needs splitting into
// pieces of at most segmentMB, and into how many.
func ShouldSplit(sizeMB, segmentMB float64) (bool, int) {
	if segmentMB <= 0 {
		segmentMB = DefaultSegmentMB
	}
	if sizeMB <= segmentMB {
		return false, 1
	}
	return true, int(sizeMB/segmentMB) + 1
}

// SplitCommands returns one stream-copy ffmpeg command per segment. Duration
// must be known; without it the caller should fall back to generic advice.
func SplitCommands(input string, duration time.Duration, segments int) []string {
	if segments < 2 || duration <= 0 {
		return nil
	}
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)
	length := duration.Seconds() / float64(segments)
	commands := make([]string, 0, segments)
	for i := range segments {
		start := float64(i) * length
		out := fmt.Sprintf("%s.part%d%s", stem, i+1, ext)
		commands = append(commands, fmt.Sprintf("ffmpeg -i %q -ss %.0f -t %.0f -c copy %q", input, start, math.Ceil(length), out))
	}
	return commands
}

// Remediation is the operator-facing text attached to an exhausted chain.
func Remediation(source audio.Asset, lastSizeMB float64, last Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "compressed output is still %.1f MB with %s (limit %.0f MB).", lastSizeMB, last, audio.CeilingMB)
	b.WriteString(" Split the recording into shorter parts or compress it manually, then upload again.")

	if split, n := ShouldSplit(source.SizeMB(), DefaultSegmentMB); split {
		fmt.Fprintf(&b, "\nSplit into %d parts of about %.0f MB each", n, DefaultSegmentMB)
		if cmds := SplitCommands(source.Path, source.Duration, n); len(cmds) > 0 {
			b.WriteString(":")
			for _, cmd := range cmds {
				b.WriteString("\n  ")
				b.WriteString(cmd)
			}
		} else {
			b.WriteString(".")
		}
	}
	return b.String()
}

// EstimateProcessingTime gives a rough wall-clock range for transcription and
// analysis of a recording of sizeMB.
func EstimateProcessingTime(sizeMB float64) string {
	switch {
	case sizeMB < 10:
		return "1-2 minutes"
	case sizeMB < 25:
		return "2-5 minutes"
	case sizeMB < 50:
		return "5-10 minutes"
	default:
		return "10+ minutes"
	}
}

func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"'") {
			quoted[i] = fmt.Sprintf("%q", a)
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}
