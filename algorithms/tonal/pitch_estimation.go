package tonal

import (
	"math"

	"github.com/RyanBlaney/pitchperfect/algorithms/chroma"
	"gonum.org/v1/gonum/stat"
)

// PitchMode selects how a chroma vector is collapsed into one value
type PitchMode int

const (
	// PitchModeDominant maps the strongest pitch class to its frequency in
	// the octave starting at middle C (C4..B4).
	PitchModeDominant PitchMode = iota

	// PitchModeEnergyAverage returns the mean bin energy. The result is a
	// loudness-like proxy, not a frequency.
	PitchModeEnergyAverage
)

func (m PitchMode) String() string {
	switch m {
	case PitchModeDominant:
		return "dominant"
	case PitchModeEnergyAverage:
		return "average"
	default:
		return "unknown"
	}
}

// ParsePitchMode accepts "dominant" or "average"
func ParsePitchMode(name string) (PitchMode, bool) {
	switch name {
	case "dominant", "":
		return PitchModeDominant, true
	case "average", "energy-average":
		return PitchModeEnergyAverage, true
	default:
		return PitchModeDominant, false
	}
}

// PitchEstimator turns one chroma vector into one pitch sample.
//
// A 12-bin chroma vector carries no octave and the dominant bin says nothing
// about how strong the pitch is, so the estimate is a coarse pitch-class
// proxy and not a fundamental-frequency measurement.
type PitchEstimator struct {
	mode       PitchMode
	tuningFreq float64 // A4 reference in Hz
}

// NewPitchEstimator creates an estimator with the given mode and A4 tuning
func NewPitchEstimator(mode PitchMode, tuningFreq float64) *PitchEstimator {
	if tuningFreq <= 0 {
		tuningFreq = 440.0
	}
	return &PitchEstimator{mode: mode, tuningFreq: tuningFreq}
}

// NewPitchEstimatorDefault creates a dominant-bin estimator tuned to A4=440Hz
func NewPitchEstimatorDefault() *PitchEstimator {
	return NewPitchEstimator(PitchModeDominant, 440.0)
}

// Mode returns the configured estimation mode
func (pe *PitchEstimator) Mode() PitchMode {
	return pe.mode
}

// Estimate validates values as a chroma vector and returns its pitch sample.
// Malformed input yields chroma.ErrInvalidFeatureVector; callers should drop
// that window.
func (pe *PitchEstimator) Estimate(values []float64) (float64, error) {
	v, err := chroma.FromSlice(values)
	if err != nil {
		return 0, err
	}
	return pe.EstimateVector(v), nil
}

// EstimateVector returns the pitch sample for an already validated vector
func (pe *PitchEstimator) EstimateVector(v chroma.Vector) float64 {
	if pe.mode == PitchModeEnergyAverage {
		return stat.Mean(v[:], nil)
	}
	return PitchClassFrequency(v.Dominant(), pe.tuningFreq)
}

// PitchClassFrequency returns the equal-tempered frequency of pitch class pc
// (0 = C) in the octave holding A4 = tuningFreq: tuningFreq * 2^((pc-9)/12).
func PitchClassFrequency(pc int, tuningFreq float64) float64 {
	return tuningFreq * math.Pow(2, float64(pc-9)/12.0)
}
