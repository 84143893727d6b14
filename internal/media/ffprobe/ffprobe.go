// Package ffprobe reads stream and container metadata from recordings.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Number decodes ffprobe's numeric fields, which arrive as JSON strings,
// bare numbers or "N/A". Anything unparseable decodes to zero.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(bytes.Trim(data, `"`)))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		v = 0
	}
	*n = Number(v)
	return nil
}

type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   Number `json:"duration"`
	BitRate    Number `json:"bit_rate"`
	SampleRate Number `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format is the container section of the probe output.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	NBStreams  int    `json:"nb_streams"`
	Duration   Number `json:"duration"`
	Size       Number `json:"size"`
	BitRate    Number `json:"bit_rate"`
}

func probeArgs(path string) []string {
	return []string{"-v", "error", "-hide_banner", "-print_format", "json", "-show_format", "-show_streams", "--", path}
}

// Inspect runs ffprobe on path. An empty binary means "ffprobe" on PATH.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	if path = strings.TrimSpace(path); path == "" {
		return Result{}, errors.New("ffprobe: empty path")
	}
	if binary = strings.TrimSpace(binary); binary == "" {
		binary = "ffprobe"
	}

	var stderr bytes.Buffer
	cmd := commandContext(ctx, binary, probeArgs(path)...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Result{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, msg)
		}
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: decode output: %w", path, err)
	}
	return result, nil
}

// Duration returns the length of the recording at path. Files without an
// audio stream or without a positive duration are errors.
func Duration(ctx context.Context, binary, path string) (time.Duration, error) {
	result, err := Inspect(ctx, binary, path)
	if err != nil {
		return 0, err
	}
	primary, ok := result.PrimaryAudio()
	if !ok {
		return 0, fmt.Errorf("ffprobe: %s has no audio stream", path)
	}
	seconds := float64(result.Format.Duration)
	if seconds <= 0 {
		seconds = float64(primary.Duration)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("ffprobe: %s reports no duration", path)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Audio returns the audio streams in file order.
func (r Result) Audio() []Stream {
	var streams []Stream
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			streams = append(streams, s)
		}
	}
	return streams
}

func (r Result) AudioStreamCount() int { return len(r.Audio()) }

// PrimaryAudio returns the stream ffmpeg maps by default.
func (r Result) PrimaryAudio() (Stream, bool) {
	audio := r.Audio()
	if len(audio) == 0 {
		return Stream{}, false
	}
	return audio[0], true
}

// BitRate prefers the container rate and falls back to the primary stream's.
func (r Result) BitRate() int64 {
	if r.Format.BitRate > 0 {
		return int64(r.Format.BitRate)
	}
	if s, ok := r.PrimaryAudio(); ok {
		return int64(s.BitRate)
	}
	return 0
}

func (s Stream) SampleRateHz() int { return int(s.SampleRate) }
