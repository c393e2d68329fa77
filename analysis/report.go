package analysis

import (
	"github.com/RyanBlaney/pitchperfect/algorithms/stats"
	"github.com/RyanBlaney/pitchperfect/algorithms/tonal"
)

// Report is the result of comparing two recordings
type Report struct {
	OriginalKey tonal.Key            `json:"original_key"`
	UserKey     tonal.Key            `json:"user_key"`
	Points      []stats.AlignedPoint `json:"points"`
	Original    RecordingSummary     `json:"original"`
	User        RecordingSummary     `json:"user"`
}

// RecordingSummary describes how one recording was windowed
type RecordingSummary struct {
	Duration float64 `json:"duration"` // seconds
	Windows  int     `json:"windows"`  // pitch samples kept
	Skipped  int     `json:"skipped"`  // malformed windows dropped
}

// recordingAnalysis is the per-recording output joined before alignment
type recordingAnalysis struct {
	pitches []float64
	key     tonal.Key
	summary RecordingSummary
}
