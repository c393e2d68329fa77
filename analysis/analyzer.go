package analysis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/RyanBlaney/pitchperfect/algorithms/chroma"
	"github.com/RyanBlaney/pitchperfect/algorithms/stats"
	"github.com/RyanBlaney/pitchperfect/algorithms/tonal"
	"github.com/RyanBlaney/pitchperfect/logging"
	"github.com/RyanBlaney/pitchperfect/transcode"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Recording is a decoded audio signal that can be windowed into chroma
// vectors. *transcode.AudioData satisfies it; Analyze rewindows AudioData
// with the analyzer's tuning frequency and window function.
type Recording interface {
	DurationSeconds() float64
	Chroma(windowSize int) iter.Seq[[]float64]
}

// audioRecording windows decoded audio with the configured tuning and
// analysis window
type audioRecording struct {
	audio *transcode.AudioData
	stft  *chroma.ChromaSTFT
}

func newAudioRecording(audio *transcode.AudioData, cfg *Config) (*audioRecording, error) {
	stft := chroma.NewChromaSTFT(audio.SampleRate, cfg.TuningFrequency)
	if err := stft.SetWindow(cfg.Window); err != nil {
		return nil, err
	}
	return &audioRecording{audio: audio, stft: stft}, nil
}

func (r *audioRecording) DurationSeconds() float64 {
	return r.audio.DurationSeconds()
}

func (r *audioRecording) Chroma(windowSize int) iter.Seq[[]float64] {
	return r.stft.Windows(r.audio.Mono(), windowSize)
}

var errNoAudio = errors.New("decoder returned no audio")

// DecodeFunc turns a file path into a Recording
type DecodeFunc func(ctx context.Context, path string) (Recording, error)

// Analyzer compares an original recording against a user's performance
type Analyzer struct {
	config   *Config
	pitch    *tonal.PitchEstimator
	keys     *tonal.KeyDetector
	aligner  *stats.SequenceAligner
	evidence KeyEvidence
	decode   DecodeFunc
	cache    *lru.Cache[string, Recording]
	logger   logging.Logger
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the logger; nil disables logging
func WithLogger(logger logging.Logger) Option {
	return func(a *Analyzer) {
		if logger == nil {
			a.logger = &logging.NoOpLogger{}
			return
		}
		a.logger = logger.WithFields(logging.Fields{"component": "analyzer"})
	}
}

// WithDecoder replaces the file decoder used by AnalyzeFiles
func WithDecoder(decode DecodeFunc) Option {
	return func(a *Analyzer) {
		if decode != nil {
			a.decode = decode
		}
	}
}

// New creates an analyzer. A nil config uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Analyzer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mode, _ := tonal.ParsePitchMode(cfg.PitchMode)
	profile, _ := tonal.ParseKeyProfile(cfg.KeyProfile)
	scoring, _ := tonal.ParseScoringMethod(cfg.Scoring)

	evidence := cfg.KeyEvidence
	if evidence == "" {
		evidence = KeyEvidenceAccumulated
	}

	a := &Analyzer{
		config:   cfg,
		pitch:    tonal.NewPitchEstimator(mode, cfg.TuningFrequency),
		keys:     tonal.NewKeyDetector(profile, scoring),
		aligner:  stats.NewSequenceAligner(cfg.WindowSize),
		evidence: evidence,
		logger:   logging.WithFields(logging.Fields{"component": "analyzer"}),
	}

	decoderConfig := cfg.Decoder
	if decoderConfig == nil {
		decoderConfig = transcode.DefaultDecoderConfig()
	}
	decoder := transcode.NewDecoder(decoderConfig)
	a.decode = func(ctx context.Context, path string) (Recording, error) {
		audio, err := decoder.DecodeFile(ctx, path)
		if err != nil {
			return nil, err
		}
		rec, err := newAudioRecording(audio, cfg)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the analyzer's configuration
func (a *Analyzer) Config() *Config {
	return a.config
}

// AnalyzeFiles decodes both files and compares them. Both recordings are
// decoded before any windowing starts.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, originalPath, userPath string) (*Report, error) {
	if originalPath == "" {
		return nil, missing(RoleOriginal)
	}
	if userPath == "" {
		return nil, missing(RoleUser)
	}

	var (
		wg       sync.WaitGroup
		original Recording
		user     Recording
		errs     [2]error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		original, errs[0] = a.decodeRecording(ctx, RoleOriginal, originalPath)
	}()
	go func() {
		defer wg.Done()
		user, errs[1] = a.decodeRecording(ctx, RoleUser, userPath)
	}()
	wg.Wait()

	if err := errors.Join(errs[0], errs[1]); err != nil {
		return nil, err
	}

	return a.Analyze(ctx, original, user)
}

func (a *Analyzer) decodeRecording(ctx context.Context, role Role, path string) (Recording, error) {
	logger := a.logger.WithContext(ctx).WithFields(logging.Fields{
		"role": string(role),
		"path": path,
	})
	logger.Debug("Decoding recording")

	rec, err := a.cachedDecode(ctx, path)
	if err != nil {
		logger.Error(err, "Failed to decode recording")
		return nil, &DecodeError{Role: role, Path: path, Err: err}
	}
	if isNilRecording(rec) {
		return nil, &DecodeError{Role: role, Path: path, Err: errNoAudio}
	}

	logger.Debug("Decoded recording", logging.Fields{
		"duration": rec.DurationSeconds(),
	})
	return rec, nil
}

// Analyze windows both recordings concurrently, detects their keys and aligns
// the two pitch sequences. The result depends only on the inputs and the
// configuration.
func (a *Analyzer) Analyze(ctx context.Context, original, user Recording) (*Report, error) {
	original, err := a.prepare(RoleOriginal, original)
	if err != nil {
		return nil, err
	}
	user, err = a.prepare(RoleUser, user)
	if err != nil {
		return nil, err
	}

	var (
		wg      sync.WaitGroup
		results [2]recordingAnalysis
		errs    [2]error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = a.analyzeRecording(ctx, RoleOriginal, original)
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = a.analyzeRecording(ctx, RoleUser, user)
	}()
	wg.Wait()

	if err := errors.Join(errs[0], errs[1]); err != nil {
		return nil, err
	}

	orig, usr := results[0], results[1]
	points := a.aligner.Align(orig.pitches, usr.pitches, orig.summary.Duration, usr.summary.Duration)

	a.logger.Info("Analysis complete", logging.Fields{
		"original_key": orig.key.String(),
		"user_key":     usr.key.String(),
		"points":       len(points),
	})

	return &Report{
		OriginalKey: orig.key,
		UserKey:     usr.key,
		Points:      points,
		Original:    orig.summary,
		User:        usr.summary,
	}, nil
}

// prepare rejects absent recordings, including typed nil pointers, and
// rewraps decoded audio so the configured tuning and window are used
func (a *Analyzer) prepare(role Role, rec Recording) (Recording, error) {
	if isNilRecording(rec) {
		return nil, missing(role)
	}
	audio, ok := rec.(*transcode.AudioData)
	if !ok {
		return rec, nil
	}
	wrapped, err := newAudioRecording(audio, a.config)
	if err != nil {
		return nil, fmt.Errorf("preparing %s recording: %w", role, err)
	}
	return wrapped, nil
}

// isNilRecording reports a nil interface or a nil pointer of a known
// recording type
func isNilRecording(rec Recording) bool {
	switch r := rec.(type) {
	case nil:
		return true
	case *transcode.AudioData:
		return r == nil
	case *audioRecording:
		return r == nil || r.audio == nil
	default:
		return false
	}
}

// analyzeRecording runs the per-window pipeline for one recording. Windows
// that are not valid chroma vectors are dropped and counted.
func (a *Analyzer) analyzeRecording(ctx context.Context, role Role, rec Recording) (recordingAnalysis, error) {
	logger := a.logger.WithContext(ctx).WithFields(logging.Fields{"role": string(role)})

	result := recordingAnalysis{
		summary: RecordingSummary{Duration: rec.DurationSeconds()},
	}
	var evidence chroma.Accumulator

	index := 0
	for values := range rec.Chroma(a.config.WindowSize) {
		if err := ctx.Err(); err != nil {
			return recordingAnalysis{}, fmt.Errorf("analyzing %s recording: %w", role, err)
		}
		if a.config.MaxWindows > 0 && index >= a.config.MaxWindows {
			break
		}
		index++

		v, err := chroma.FromSlice(values)
		if err != nil {
			result.summary.Skipped++
			logger.Debug("Skipping malformed window", logging.Fields{
				"window": index - 1,
				"error":  err.Error(),
			})
			continue
		}

		result.pitches = append(result.pitches, a.pitch.EstimateVector(v))
		evidence.Add(v)
	}
	if err := ctx.Err(); err != nil {
		return recordingAnalysis{}, fmt.Errorf("analyzing %s recording: %w", role, err)
	}

	result.summary.Windows = len(result.pitches)

	switch a.evidence {
	case KeyEvidenceLastWindow:
		result.key = a.keys.DetectEvidence(evidence.Last())
	default:
		result.key = a.keys.DetectEvidence(evidence.Sum())
	}

	logger.Debug("Recording analyzed", logging.Fields{
		"windows": result.summary.Windows,
		"skipped": result.summary.Skipped,
		"key":     result.key.String(),
	})
	if result.summary.Skipped > 0 {
		logger.Warn("Dropped malformed chroma windows", logging.Fields{
			"skipped": result.summary.Skipped,
		})
	}

	return result, nil
}
