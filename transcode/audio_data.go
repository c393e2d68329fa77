package transcode

import (
	"iter"
	"time"

	"github.com/RyanBlaney/pitchperfect/algorithms/chroma"
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64     `json:"-"` // interleaved when Channels > 1
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Codec      string        `json:"codec,omitempty"`
}

func newAudioData(pcm []float64, sampleRate, channels int, codec string) *AudioData {
	if channels <= 0 {
		channels = 1
	}
	a := &AudioData{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Codec:      codec,
	}
	if sampleRate > 0 {
		frames := len(pcm) / channels
		a.Duration = time.Duration(frames) * time.Second / time.Duration(sampleRate)
	}
	return a
}

// NewAudioData wraps already decoded samples
func NewAudioData(pcm []float64, sampleRate, channels int) *AudioData {
	return newAudioData(pcm, sampleRate, channels, "pcm")
}

// DurationSeconds returns the playing time in seconds; nil audio has none
func (a *AudioData) DurationSeconds() float64 {
	if a == nil {
		return 0
	}
	return a.Duration.Seconds()
}

// Mono returns a single-channel signal. Multi-channel audio is averaged into
// a new slice; mono audio is returned as is.
func (a *AudioData) Mono() []float64 {
	if a == nil {
		return nil
	}
	if a.Channels <= 1 {
		return a.PCM
	}

	frames := len(a.PCM) / a.Channels
	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range a.Channels {
			sum += a.PCM[i*a.Channels+c]
		}
		mono[i] = sum / float64(a.Channels)
	}
	return mono
}

// Chroma yields one raw chroma vector per windowSize samples of the mono
// signal, computed with a Hann-windowed STFT at A4 = 440 Hz. Analyzer wraps
// AudioData so that its configured tuning and window apply instead.
func (a *AudioData) Chroma(windowSize int) iter.Seq[[]float64] {
	if a == nil {
		return func(func([]float64) bool) {}
	}
	return chroma.NewChromaSTFTDefault(a.SampleRate).Windows(a.Mono(), windowSize)
}

// Truncate returns audio no longer than maxDuration. A non-positive limit or
// shorter audio returns a unchanged.
func (a *AudioData) Truncate(maxDuration time.Duration) *AudioData {
	if maxDuration <= 0 || a.Duration <= maxDuration || a.SampleRate <= 0 {
		return a
	}
	frames := int(maxDuration.Seconds() * float64(a.SampleRate))
	return newAudioData(a.PCM[:frames*a.Channels], a.SampleRate, a.Channels, a.Codec)
}
