package compression

import "lorekeeper/internal/audio"

// referenceBitrateKbps is the bitrate the ratio table was measured at.
const referenceBitrateKbps = 128

// minEstimateMB is the floor for every estimate; container overhead never
// shrinks to nothing.
const minEstimateMB = 1.0

const defaultRatio = 0.5

type formatPair struct {
	source audio.Format
	target audio.Format
}

var compressionRatios = map[formatPair]float64{
	{audio.FormatWAV, audio.FormatMP3}:  0.1,
	{audio.FormatFLAC, audio.FormatMP3}: 0.3,
	{audio.FormatM4A, audio.FormatMP3}:  0.6,
	{audio.FormatMP3, audio.FormatMP3}:  0.7,
}

// Ratio returns the expected output/input size ratio at 128 kbps for a
// conversion from source to target.
func Ratio(source, target audio.Format) float64 {
	if r, ok := compressionRatios[formatPair{source, target}]; ok {
		return r
	}
	return defaultRatio
}

// Estimate predicts the size in MB of originalSizeMB of source audio encoded to
// target at bitrateKbps. The result is monotonic in bitrate and never below 1 MB.
func Estimate(originalSizeMB float64, source, target audio.Format, bitrateKbps int) float64 {
	if originalSizeMB < 0 {
		originalSizeMB = 0
	}
	if bitrateKbps < 0 {
		bitrateKbps = 0
	}
	estimated := originalSizeMB * Ratio(source, target) * float64(bitrateKbps) / referenceBitrateKbps
	return max(estimated, minEstimateMB)
}
