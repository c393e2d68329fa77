package chroma

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// ErrUnknownWindow is returned for analysis window names ParseWindow does not know
var ErrUnknownWindow = errors.New("unknown analysis window")

// WindowFunc returns the coefficients of an analysis window of length L
type WindowFunc func(L int) []float64

var windowFuncs = map[string]WindowFunc{
	"hann":     window.Hann,
	"hamming":  window.Hamming,
	"blackman": window.Blackman,
	"bartlett": window.Bartlett,
}

// ParseWindow accepts "hann", "hamming", "blackman" or "bartlett"
func ParseWindow(name string) (WindowFunc, error) {
	if name == "" {
		return window.Hann, nil
	}
	if fn, ok := windowFuncs[strings.ToLower(name)]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownWindow, name)
}

// ChromaSTFT folds the magnitude spectrum of consecutive, non-overlapping
// windows into 12 pitch-class bins.
//
// Each window of windowSize samples is tapered (Hann unless SetWindow says
// otherwise), transformed with a real
// FFT, and every bin between minFreq and maxFreq adds its squared magnitude to
// the pitch class nearest its frequency (equal temperament, A4 = tuningFreq).
// A trailing partial window is not analyzed.
type ChromaSTFT struct {
	sampleRate int
	tuningFreq float64 // A4 frequency (default 440 Hz)
	minFreq    float64
	maxFreq    float64
	windowFunc WindowFunc
}

// NewChromaSTFT creates a chroma windower for the given sample rate and tuning
func NewChromaSTFT(sampleRate int, tuningFreq float64) *ChromaSTFT {
	if tuningFreq <= 0 {
		tuningFreq = 440.0
	}
	return &ChromaSTFT{
		sampleRate: sampleRate,
		tuningFreq: tuningFreq,
		minFreq:    80.0,   // Approximate E2
		maxFreq:    8000.0, // High enough for harmonics
		windowFunc: window.Hann,
	}
}

// NewChromaSTFTDefault creates a chroma windower with standard A4=440Hz tuning
func NewChromaSTFTDefault(sampleRate int) *ChromaSTFT {
	return NewChromaSTFT(sampleRate, 440.0)
}

// SetWindow selects the analysis window by name
func (cs *ChromaSTFT) SetWindow(name string) error {
	fn, err := ParseWindow(name)
	if err != nil {
		return err
	}
	cs.windowFunc = fn
	return nil
}

// Windows returns a lazy sequence of raw 12-bin chroma vectors, one per
// window of windowSize samples, in time order. The signal is read but never
// modified. The sequence ends when the signal is exhausted or the consumer
// stops ranging.
func (cs *ChromaSTFT) Windows(signal []float64, windowSize int) iter.Seq[[]float64] {
	return func(yield func([]float64) bool) {
		if windowSize <= 0 || cs.sampleRate <= 0 || len(signal) < windowSize {
			return
		}

		mapping := cs.calculateChromaMapping(windowSize/2+1, float64(cs.sampleRate)/float64(windowSize))
		frame := make([]float64, windowSize)

		for start := 0; start+windowSize <= len(signal); start += windowSize {
			copy(frame, signal[start:start+windowSize])
			window.Apply(frame, cs.windowFunc)

			if !yield(cs.frameChroma(frame, mapping)) {
				return
			}
		}
	}
}

// frameChroma returns the unit-sum chroma of one windowed frame; silent
// frames stay zero
func (cs *ChromaSTFT) frameChroma(frame []float64, mapping []int) []float64 {
	spectrum := fft.FFTReal(frame)

	var v Vector
	for f, chromaBin := range mapping {
		if chromaBin < 0 {
			continue
		}
		magnitude := cmplx.Abs(spectrum[f])
		v[chromaBin] += magnitude * magnitude
	}

	return v.Normalized().Slice()
}

// calculateChromaMapping maps FFT bins to chroma bins, -1 for bins outside
// the analyzed frequency range
func (cs *ChromaSTFT) calculateChromaMapping(freqBins int, freqResolution float64) []int {
	mapping := make([]int, freqBins)

	for f := range freqBins {
		frequency := float64(f) * freqResolution

		if frequency < cs.minFreq || frequency > cs.maxFreq {
			mapping[f] = -1
			continue
		}

		midiNote := int(math.Round(cs.frequencyToMIDI(frequency)))
		mapping[f] = ((midiNote % NumPitchClasses) + NumPitchClasses) % NumPitchClasses
	}

	return mapping
}

// frequencyToMIDI converts frequency to MIDI note number (A4 = 69)
func (cs *ChromaSTFT) frequencyToMIDI(frequency float64) float64 {
	if frequency <= 0 {
		return 0
	}
	return 69.0 + 12.0*math.Log2(frequency/cs.tuningFreq)
}
