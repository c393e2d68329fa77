package analysis

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/RyanBlaney/pitchperfect/algorithms/chroma"
	"github.com/RyanBlaney/pitchperfect/algorithms/tonal"
	"github.com/RyanBlaney/pitchperfect/transcode"
)

// KeyEvidence selects which chroma evidence feeds key detection
type KeyEvidence string

const (
	// KeyEvidenceAccumulated sums every valid window of the recording
	KeyEvidenceAccumulated KeyEvidence = "accumulated"

	// KeyEvidenceLastWindow uses only the final valid window
	KeyEvidenceLastWindow KeyEvidence = "last"
)

// Config holds the analysis parameters
type Config struct {
	WindowSize      int                      `json:"window_size"`      // samples per chroma window
	MaxWindows      int                      `json:"max_windows"`      // 0 = until the recording is exhausted
	TuningFrequency float64                  `json:"tuning_frequency"` // A4 in Hz
	Window          string                   `json:"window"`           // "hann", "hamming", "blackman", "bartlett"
	PitchMode       string                   `json:"pitch_mode"`       // "dominant", "average"
	KeyProfile      string                   `json:"key_profile"`      // "krumhansl", "temperley", "shaath", "diatonic"
	Scoring         string                   `json:"scoring"`          // "dot", "pearson"
	KeyEvidence     KeyEvidence              `json:"key_evidence"`
	Decoder         *transcode.DecoderConfig `json:"decoder"`
}

// DefaultConfig returns the reference analysis configuration
func DefaultConfig() *Config {
	return &Config{
		WindowSize:      512,
		MaxWindows:      0,
		TuningFrequency: 440.0,
		Window:          "hann",
		PitchMode:       tonal.PitchModeDominant.String(),
		KeyProfile:      "krumhansl",
		Scoring:         tonal.ScoreDotProduct.String(),
		KeyEvidence:     KeyEvidenceAccumulated,
		Decoder:         transcode.DefaultDecoderConfig(),
	}
}

// LoadConfig reads a JSON file over the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Decoder == nil {
		cfg.Decoder = transcode.DefaultDecoderConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field
func (c *Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive: %d", c.WindowSize)
	}
	if c.MaxWindows < 0 {
		return fmt.Errorf("max windows must not be negative: %d", c.MaxWindows)
	}
	if c.TuningFrequency <= 0 {
		return fmt.Errorf("tuning frequency must be positive: %g", c.TuningFrequency)
	}
	if _, err := chroma.ParseWindow(c.Window); err != nil {
		return err
	}
	if _, ok := tonal.ParsePitchMode(c.PitchMode); !ok {
		return fmt.Errorf("unknown pitch mode %q", c.PitchMode)
	}
	if _, ok := tonal.ParseKeyProfile(c.KeyProfile); !ok {
		return fmt.Errorf("unknown key profile %q", c.KeyProfile)
	}
	if _, ok := tonal.ParseScoringMethod(c.Scoring); !ok {
		return fmt.Errorf("unknown scoring method %q", c.Scoring)
	}
	switch c.KeyEvidence {
	case KeyEvidenceAccumulated, KeyEvidenceLastWindow, "":
	default:
		return fmt.Errorf("unknown key evidence %q", c.KeyEvidence)
	}
	if c.Decoder != nil {
		if err := c.Decoder.Validate(); err != nil {
			return fmt.Errorf("decoder: %w", err)
		}
	}
	return nil
}
