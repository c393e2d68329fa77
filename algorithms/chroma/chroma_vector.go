package chroma

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NumPitchClasses is the number of bins in a chroma vector
const NumPitchClasses = 12

// ErrInvalidFeatureVector is returned for chroma input that is empty, has the
// wrong length, or carries negative or non-finite energies.
var ErrInvalidFeatureVector = errors.New("invalid feature vector")

// PitchClassNames labels chroma bins, index 0 = C
var PitchClassNames = [NumPitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Vector is a validated chroma vector. Index i holds the relative energy of
// the pitch class i semitones above C. Values need not sum to 1.
type Vector [NumPitchClasses]float64

// FromSlice validates raw extractor output and copies it into a Vector.
func FromSlice(values []float64) (Vector, error) {
	var v Vector

	if len(values) != NumPitchClasses {
		return v, fmt.Errorf("%w: expected %d bins, got %d", ErrInvalidFeatureVector, NumPitchClasses, len(values))
	}

	for i, val := range values {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return v, fmt.Errorf("%w: bin %d is not finite", ErrInvalidFeatureVector, i)
		}
		if val < 0 {
			return v, fmt.Errorf("%w: bin %d is negative (%g)", ErrInvalidFeatureVector, i, val)
		}
	}

	copy(v[:], values)
	return v, nil
}

// Slice returns a copy of the vector as a slice
func (v Vector) Slice() []float64 {
	s := make([]float64, NumPitchClasses)
	copy(s, v[:])
	return s
}

// RotateLeft returns the vector cyclically shifted left by n positions, so
// pitch class n becomes index 0: rotated[k] = v[(k+n) mod 12].
func (v Vector) RotateLeft(n int) Vector {
	var rotated Vector
	shift := ((n % NumPitchClasses) + NumPitchClasses) % NumPitchClasses
	for k := range NumPitchClasses {
		rotated[k] = v[(k+shift)%NumPitchClasses]
	}
	return rotated
}

// Dominant returns the index of the strongest bin. Ties go to the lowest index.
func (v Vector) Dominant() int {
	return floats.MaxIdx(v[:])
}

// Energy returns the sum of all bins
func (v Vector) Energy() float64 {
	return floats.Sum(v[:])
}

// Normalized returns the vector scaled to unit sum. A silent vector is
// returned unchanged.
func (v Vector) Normalized() Vector {
	total := v.Energy()
	if total < 1e-10 {
		return v
	}
	out := v
	floats.Scale(1/total, out[:])
	return out
}

// Accumulator sums chroma evidence over many windows. The zero value is ready
// to use.
type Accumulator struct {
	sum   Vector
	last  Vector
	count int
}

// Add folds one window into the running sum
func (a *Accumulator) Add(v Vector) {
	floats.Add(a.sum[:], v[:])
	a.last = v
	a.count++
}

// Count returns the number of windows added
func (a *Accumulator) Count() int {
	return a.count
}

// Sum returns the accumulated vector, or nil if nothing was added
func (a *Accumulator) Sum() *Vector {
	if a.count == 0 {
		return nil
	}
	sum := a.sum
	return &sum
}

// Last returns the most recently added vector, or nil if nothing was added
func (a *Accumulator) Last() *Vector {
	if a.count == 0 {
		return nil
	}
	last := a.last
	return &last
}
