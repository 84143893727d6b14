package compression

import (
	"fmt"
	"strings"

	"lorekeeper/internal/audio"
)

// Settings are the encoder parameters for one compression pass.
// Channels and SampleRateHz of zero preserve the source values.
type Settings struct {
	Target          audio.Format `json:"target"`
	BitrateKbps     int          `json:"bitrate_kbps"`
	Channels        int          `json:"channels,omitempty"`
	SampleRateHz    int          `json:"sample_rate_hz,omitempty"`
	EstimatedSizeMB float64      `json:"estimated_size_mb"`
	Escalated       bool         `json:"escalated,omitempty"`
}

// Mono reports whether the settings downmix to a single channel.
func (s Settings) Mono() bool { return s.Channels == 1 }

// String renders the settings the way operators read them, e.g. "mp3 64k mono 22050Hz".
func (s Settings) String() string {
	parts := []string{string(s.Target), fmt.Sprintf("%dk", s.BitrateKbps)}
	switch s.Channels {
	case 1:
		parts = append(parts, "mono")
	case 2:
		parts = append(parts, "stereo")
	}
	if s.SampleRateHz > 0 {
		parts = append(parts, fmt.Sprintf("%dHz", s.SampleRateHz))
	}
	return strings.Join(parts, " ")
}

const (
	tierHugeMB   = 100.0
	tierLargeMB  = 50.0
	tierMediumMB = audio.CeilingMB
)

var (
	escalatedSettings  = Settings{Target: audio.FormatMP3, BitrateKbps: 64, Channels: 1, SampleRateHz: 22050}
	aggressiveSettings = Settings{Target: audio.FormatMP3, BitrateKbps: 32, Channels: 1, SampleRateHz: 16000}
	extremeSettings    = Settings{Target: audio.FormatMP3, BitrateKbps: 16, Channels: 1, SampleRateHz: 11025}
	lastResortSettings = Settings{Target: audio.FormatMP3, BitrateKbps: 8, Channels: 1, SampleRateHz: 8000}
)

// Plan selects encoder settings for a recording of originalSizeMB in the
// source format. Tiers are evaluated once; if the estimate for the chosen tier
// still exceeds audio.PlanningLimitMB the plan escalates exactly once to
// 64 kbps mono 22050 Hz.
func Plan(originalSizeMB float64, source audio.Format) Settings {
	var s Settings
	switch {
	case originalSizeMB > tierHugeMB:
		s = Settings{BitrateKbps: 96, Channels: 1, SampleRateHz: 22050}
	case originalSizeMB > tierLargeMB:
		s = Settings{BitrateKbps: 128, Channels: 1}
	case originalSizeMB > tierMediumMB:
		s = Settings{BitrateKbps: 128, Channels: 2}
	default:
		s = Settings{BitrateKbps: 128}
	}
	s.Target = audio.FormatMP3
	s.EstimatedSizeMB = Estimate(originalSizeMB, source, s.Target, s.BitrateKbps)

	if s.EstimatedSizeMB > audio.PlanningLimitMB {
		s = escalatedSettings
		s.Escalated = true
		s.EstimatedSizeMB = Estimate(originalSizeMB, source, s.Target, s.BitrateKbps)
	}
	return s
}

// AggressiveSettings is the second chain pass.
func AggressiveSettings(originalSizeMB float64, source audio.Format) Settings {
	return withEstimate(aggressiveSettings, originalSizeMB, source)
}

// ExtremeSettings is the last automatic chain pass.
func ExtremeSettings(originalSizeMB float64, source audio.Format) Settings {
	return withEstimate(extremeSettings, originalSizeMB, source)
}

// LastResortSettings is the manual escalation preset applied from Exhausted.
func LastResortSettings(originalSizeMB float64, source audio.Format) Settings {
	return withEstimate(lastResortSettings, originalSizeMB, source)
}

func withEstimate(s Settings, originalSizeMB float64, source audio.Format) Settings {
	s.EstimatedSizeMB = Estimate(originalSizeMB, source, s.Target, s.BitrateKbps)
	return s
}
