package tonal

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/pitchperfect/algorithms/chroma"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "Minor"
	}
	return "Major"
}

// ToneProfile holds the expected salience of each pitch class for a key
// whose tonic is C
type ToneProfile [chroma.NumPitchClasses]float64

// Krumhansl-Schmuckler profiles (empirically derived)
var (
	MajorProfile = ToneProfile{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	MinorProfile = ToneProfile{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// KeyProfile selects a major/minor template pair
type KeyProfile int

const (
	KeyProfileKrumhansl KeyProfile = iota
	KeyProfileTemperley
	KeyProfileShaath
	KeyProfileDiatonic
)

// KeyProfileTemplate contains a major/minor template pair
type KeyProfileTemplate struct {
	Major       ToneProfile
	Minor       ToneProfile
	Name        string
	Description string
}

// keyProfiles is read-only after package initialization
var keyProfiles = map[KeyProfile]KeyProfileTemplate{
	KeyProfileKrumhansl: {
		Major:       MajorProfile,
		Minor:       MinorProfile,
		Name:        "Krumhansl-Schmuckler",
		Description: "Empirical profiles based on listener ratings",
	},
	KeyProfileTemperley: {
		Major:       ToneProfile{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0},
		Minor:       ToneProfile{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0},
		Name:        "Temperley",
		Description: "Statistical profiles from musical corpora",
	},
	KeyProfileShaath: {
		Major:       ToneProfile{6.6, 2.0, 3.5, 2.3, 4.6, 4.0, 2.5, 5.2, 2.4, 3.7, 2.3, 3.4},
		Minor:       ToneProfile{6.5, 2.7, 3.5, 5.4, 2.6, 3.5, 2.5, 4.7, 4.0, 2.7, 3.4, 3.2},
		Name:        "Shaath",
		Description: "Optimized for electronic dance music",
	},
	KeyProfileDiatonic: {
		Major:       ToneProfile{5.0, 0.0, 3.0, 0.0, 4.0, 3.5, 0.0, 4.5, 0.0, 3.0, 0.0, 2.0},
		Minor:       ToneProfile{5.0, 0.0, 3.0, 3.5, 0.0, 3.5, 0.0, 4.5, 3.0, 0.0, 2.0, 0.0},
		Name:        "Diatonic",
		Description: "Simple diatonic scale weights",
	},
}

// GetKeyProfile returns the template pair for p, falling back to Krumhansl
func GetKeyProfile(p KeyProfile) KeyProfileTemplate {
	if t, ok := keyProfiles[p]; ok {
		return t
	}
	return keyProfiles[KeyProfileKrumhansl]
}

// ParseKeyProfile accepts "krumhansl", "temperley", "shaath" or "diatonic"
func ParseKeyProfile(name string) (KeyProfile, bool) {
	switch strings.ToLower(name) {
	case "krumhansl", "":
		return KeyProfileKrumhansl, true
	case "temperley":
		return KeyProfileTemperley, true
	case "shaath":
		return KeyProfileShaath, true
	case "diatonic":
		return KeyProfileDiatonic, true
	default:
		return KeyProfileKrumhansl, false
	}
}

// ScoringMethod defines how a rotated chroma vector is compared to a template
type ScoringMethod int

const (
	// ScoreDotProduct is the plain, unnormalized dot product
	ScoreDotProduct ScoringMethod = iota

	// ScorePearson is the Pearson correlation coefficient. Scale and offset
	// of the chroma vector do not affect it.
	ScorePearson
)

func (s ScoringMethod) String() string {
	switch s {
	case ScoreDotProduct:
		return "dot"
	case ScorePearson:
		return "pearson"
	default:
		return "unknown"
	}
}

// ParseScoringMethod accepts "dot" or "pearson"
func ParseScoringMethod(name string) (ScoringMethod, bool) {
	switch strings.ToLower(name) {
	case "dot", "":
		return ScoreDotProduct, true
	case "pearson", "correlation":
		return ScorePearson, true
	default:
		return ScoreDotProduct, false
	}
}

// Key is a musical key label. The zero value is UnknownKey; build known keys
// with NewKey.
type Key struct {
	Tonic int     // pitch class of the tonic, 0 = C
	Mode  KeyMode // major or minor
	known bool
}

// UnknownKey is reported when no chroma evidence was available
var UnknownKey = Key{}

// NewKey builds a known key. tonic is reduced modulo 12.
func NewKey(tonic int, mode KeyMode) Key {
	return Key{Tonic: wrapPitchClass(tonic), Mode: mode, known: true}
}

// IsKnown reports whether k is a real key rather than UnknownKey
func (k Key) IsKnown() bool {
	return k.known
}

// String returns names such as "C Major", "F# Minor" or "unknown"
func (k Key) String() string {
	if !k.known {
		return "unknown"
	}
	return chroma.PitchClassNames[wrapPitchClass(k.Tonic)] + " " + k.Mode.String()
}

// MarshalJSON encodes the key as its label
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the labels produced by String
func (k *Key) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	parsed, err := ParseKey(label)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses labels such as "C Major", "g# minor" or "unknown"
func ParseKey(label string) (Key, error) {
	if strings.EqualFold(label, "unknown") {
		return UnknownKey, nil
	}

	parts := strings.Fields(label)
	if len(parts) != 2 {
		return UnknownKey, fmt.Errorf("invalid key label %q", label)
	}

	tonic := -1
	for i, name := range chroma.PitchClassNames {
		if strings.EqualFold(parts[0], name) {
			tonic = i
			break
		}
	}
	if tonic < 0 {
		return UnknownKey, fmt.Errorf("invalid tonic in key label %q", label)
	}

	switch strings.ToLower(parts[1]) {
	case "major":
		return NewKey(tonic, KeyModeMajor), nil
	case "minor":
		return NewKey(tonic, KeyModeMinor), nil
	default:
		return UnknownKey, fmt.Errorf("invalid mode in key label %q", label)
	}
}

// Transpose returns the key moved up by semitones, mode unchanged
func (k Key) Transpose(semitones int) Key {
	if !k.known {
		return k
	}
	return NewKey(k.Tonic+semitones, k.Mode)
}

// KeyCandidate is one of the 24 keys with its template score
type KeyCandidate struct {
	Key   Key     `json:"key"`
	Score float64 `json:"score"`
}

// KeyDetector estimates a key by matching chroma evidence against the 24
// rotations of a major/minor template pair.
//
// For each rotation i (0..11) the chroma vector is shifted left by i, so the
// candidate tonic lands on index 0, and scored against the major and then the
// minor template. The highest score wins; on ties the earlier candidate in
// that order is kept.
type KeyDetector struct {
	profile KeyProfileTemplate
	scoring ScoringMethod
}

// NewKeyDetector creates a detector for the given template pair and scoring
func NewKeyDetector(profile KeyProfile, scoring ScoringMethod) *KeyDetector {
	return &KeyDetector{
		profile: GetKeyProfile(profile),
		scoring: scoring,
	}
}

// NewKeyDetectorDefault uses Krumhansl-Schmuckler templates and dot-product scoring
func NewKeyDetectorDefault() *KeyDetector {
	return NewKeyDetector(KeyProfileKrumhansl, ScoreDotProduct)
}

// Detect returns the best-scoring key for v
func (kd *KeyDetector) Detect(v chroma.Vector) Key {
	best := UnknownKey
	bestScore := math.Inf(-1)

	for i := range chroma.NumPitchClasses {
		rotated := v.RotateLeft(i)

		if s := kd.score(rotated, kd.profile.Major); s > bestScore {
			bestScore = s
			best = NewKey(i, KeyModeMajor)
		}
		if s := kd.score(rotated, kd.profile.Minor); s > bestScore {
			bestScore = s
			best = NewKey(i, KeyModeMinor)
		}
	}

	if !best.known {
		// every score was NaN
		return NewKey(0, KeyModeMajor)
	}
	return best
}

// DetectEvidence is Detect for optional evidence; nil yields UnknownKey
func (kd *KeyDetector) DetectEvidence(v *chroma.Vector) Key {
	if v == nil {
		return UnknownKey
	}
	return kd.Detect(*v)
}

// Scores returns all 24 candidates in evaluation order: for each tonic from C
// to B, major then minor.
func (kd *KeyDetector) Scores(v chroma.Vector) []KeyCandidate {
	candidates := make([]KeyCandidate, 0, 2*chroma.NumPitchClasses)
	for i := range chroma.NumPitchClasses {
		rotated := v.RotateLeft(i)
		candidates = append(candidates,
			KeyCandidate{Key: NewKey(i, KeyModeMajor), Score: kd.score(rotated, kd.profile.Major)},
			KeyCandidate{Key: NewKey(i, KeyModeMinor), Score: kd.score(rotated, kd.profile.Minor)},
		)
	}
	return candidates
}

func (kd *KeyDetector) score(rotated chroma.Vector, profile ToneProfile) float64 {
	switch kd.scoring {
	case ScorePearson:
		r := stat.Correlation(rotated[:], profile[:], nil)
		if math.IsNaN(r) {
			// constant chroma vector carries no key information
			return 0
		}
		return r
	default:
		return floats.Dot(rotated[:], profile[:])
	}
}

func wrapPitchClass(pc int) int {
	return ((pc % chroma.NumPitchClasses) + chroma.NumPitchClasses) % chroma.NumPitchClasses
}
