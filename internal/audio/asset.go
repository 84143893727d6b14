package audio

import (
	"fmt"
	"os"
	"time"
)

const (
	// BytesPerMB is the unit every size comparison in the pipeline uses.
	BytesPerMB = 1024 * 1024
	// CeilingMB is the largest payload the transcription service accepts.
	CeilingMB = 25.0
	// PlanningLimitMB leaves a safety margin under CeilingMB when planning.
	PlanningLimitMB = 24.0
)

// Asset is an audio file on disk. Duration is zero until the file has been
// probed.
type Asset struct {
	Path      string
	SizeBytes int64
	Format    Format
	Duration  time.Duration
}

// NewAsset stats path and derives its format from the extension.
func NewAsset(path string) (Asset, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Asset{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("stat audio file: %w", err)
	}
	if info.IsDir() {
		return Asset{}, fmt.Errorf("audio path %q is a directory", path)
	}
	return Asset{Path: path, SizeBytes: info.Size(), Format: format}, nil
}

// SizeMB returns the asset size in mebibytes.
func (a Asset) SizeMB() float64 {
	return BytesToMB(a.SizeBytes)
}

// DurationKnown reports whether the asset has been probed.
func (a Asset) DurationKnown() bool {
	return a.Duration > 0
}

// ExceedsCeiling reports whether the asset is too large to send for transcription.
func (a Asset) ExceedsCeiling() bool {
	return a.SizeMB() > CeilingMB
}

// BytesToMB converts a byte count to mebibytes.
func BytesToMB(n int64) float64 {
	return float64(n) / BytesPerMB
}
