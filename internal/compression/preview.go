package compression

import "lorekeeper/internal/audio"

// PassPreview is one planned rung as shown to operators.
type PassPreview struct {
	Name     string   `json:"name"`
	Settings Settings `json:"settings"`
}

// Preview summarizes what processing would do to source without running
// anything.
type Preview struct {
	SizeMB           float64       `json:"size_mb"`
	Format           audio.Format  `json:"format"`
	NeedsCompression bool          `json:"needs_compression"`
	Reason           string        `json:"reason,omitempty"`
	Passes           []PassPreview `json:"passes,omitempty"`
	Split            bool          `json:"split"`
	Segments         int           `json:"segments"`
	EstimatedTime    string        `json:"estimated_time"`
	Advice           *Advice       `json:"advice,omitempty"`
}

// PreviewFor builds the processing preview for source. Advice is attached
// only when the source needs compression.
func PreviewFor(source audio.Asset) Preview {
	size := source.SizeMB()
	p := Preview{
		SizeMB:        round1(size),
		Format:        source.Format,
		EstimatedTime: EstimateProcessingTime(min(size, audio.CeilingMB)),
	}
	p.Split, p.Segments = ShouldSplit(size, DefaultSegmentMB)

	switch {
	case source.ExceedsCeiling():
		p.NeedsCompression = true
		p.Reason = "source exceeds the upload limit"
	case !source.Format.TranscriptionReady():
		p.NeedsCompression = true
		p.Reason = "source format needs conversion"
	default:
		return p
	}
	for _, pass := range Passes(source) {
		p.Passes = append(p.Passes, PassPreview{Name: pass.Name, Settings: pass.Settings})
	}
	advice := Recommend(size, source.Format, source.Path)
	p.Advice = &advice
	return p
}
