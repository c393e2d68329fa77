package stats

import (
	"fmt"
	"math"
)

// AlignedPoint pairs the two pitch samples recorded at the same window index
type AlignedPoint struct {
	Time     string  `json:"time"`     // "{m} min {s} sec"
	Original float64 `json:"original"` // pitch sample of the reference recording
	User     float64 `json:"user"`     // pitch sample of the user's recording
}

// SequenceAligner lines up two independently windowed pitch sequences.
//
// Both sequences are truncated to the shorter length; nothing is resampled
// or interpolated, so the pairing assumes both windowing passes advanced at
// the same rate. Time labels are approximate: the rate used to turn an index
// into seconds is back-computed from the truncated length and the longer
// recording's duration, not taken from the decoder.
type SequenceAligner struct {
	windowSize int
}

// NewSequenceAligner creates an aligner for sequences windowed with windowSize samples
func NewSequenceAligner(windowSize int) *SequenceAligner {
	if windowSize <= 0 {
		windowSize = 512
	}
	return &SequenceAligner{windowSize: windowSize}
}

// WindowSize returns the window size used for time labels
func (sa *SequenceAligner) WindowSize() int {
	return sa.windowSize
}

// Align pairs original[i] with user[i] for i < min(len(original), len(user)).
// Durations are the true lengths of the two recordings in seconds. An empty
// sequence on either side yields an empty result.
func (sa *SequenceAligner) Align(original, user []float64, originalDuration, userDuration float64) []AlignedPoint {
	n := min(len(original), len(user))
	points := make([]AlignedPoint, n)
	if n == 0 {
		return points
	}

	rate := sa.EffectiveRate(n, max(originalDuration, userDuration))

	for i := range n {
		seconds := 0.0
		if rate > 0 {
			seconds = float64(i) * float64(sa.windowSize) / rate
		}
		points[i] = AlignedPoint{
			Time:     FormatTime(seconds),
			Original: original[i],
			User:     user[i],
		}
	}

	return points
}

// EffectiveRate is the sample rate implied by spreading n windows over
// maxDuration seconds. It is 0 when either is not positive.
func (sa *SequenceAligner) EffectiveRate(n int, maxDuration float64) float64 {
	if n <= 0 || maxDuration <= 0 || math.IsNaN(maxDuration) || math.IsInf(maxDuration, 0) {
		return 0
	}
	return float64(n) * float64(sa.windowSize) / maxDuration
}

// FormatTime renders seconds as "{minutes} min {seconds} sec". Minutes are
// floored and the remaining seconds rounded, so 59.6s renders as "0 min 60 sec".
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	minutes := math.Floor(seconds / 60)
	remainder := math.Round(math.Mod(seconds, 60))
	return fmt.Sprintf("%d min %d sec", int64(minutes), int64(remainder))
}
