package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/RyanBlaney/pitchperfect/algorithms/tonal"
	"github.com/RyanBlaney/pitchperfect/logging"
	"github.com/RyanBlaney/pitchperfect/transcode"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// fakeRecording yields prepared chroma windows regardless of window size
type fakeRecording struct {
	duration float64
	windows  [][]float64
}

func (f *fakeRecording) DurationSeconds() float64 {
	return f.duration
}

func (f *fakeRecording) Chroma(windowSize int) iter.Seq[[]float64] {
	return func(yield func([]float64) bool) {
		for _, w := range f.windows {
			if !yield(w) {
				return
			}
		}
	}
}

func pitchClass(pc int) []float64 {
	v := make([]float64, 12)
	v[pc] = 1
	return v
}

func repeated(window []float64, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = window
	}
	return out
}

func newTestAnalyzer(t *testing.T, cfg *Config, opts ...Option) *Analyzer {
	t.Helper()
	opts = append([]Option{WithLogger(&logging.NoOpLogger{})}, opts...)
	a, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAnalyzePureC(t *testing.T) {
	original := &fakeRecording{duration: 3, windows: repeated(pitchClass(0), 100)}
	user := &fakeRecording{duration: 3, windows: repeated(pitchClass(0), 80)}

	report, err := newTestAnalyzer(t, nil).Analyze(context.Background(), original, user)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got := report.OriginalKey.String(); got != "C Major" {
		t.Errorf("original key = %q, want C Major", got)
	}
	if got := report.UserKey.String(); got != "C Major" {
		t.Errorf("user key = %q, want C Major", got)
	}
	if len(report.Points) != 80 {
		t.Fatalf("got %d points, want 80", len(report.Points))
	}
	if report.Points[0].Time != "0 min 0 sec" {
		t.Errorf("first label = %q", report.Points[0].Time)
	}
	if report.Points[79].Time != "0 min 3 sec" {
		t.Errorf("last label = %q", report.Points[79].Time)
	}

	middleC := 440 * math.Pow(2, -9.0/12.0)
	for i, p := range report.Points {
		if math.Abs(p.Original-middleC) > 1e-9 || math.Abs(p.User-middleC) > 1e-9 {
			t.Fatalf("point %d = %+v, want %.4f Hz", i, p, middleC)
		}
	}

	if report.Original.Windows != 100 || report.User.Windows != 80 {
		t.Errorf("windows = %d/%d", report.Original.Windows, report.User.Windows)
	}
	if report.Original.Duration != 3 || report.User.Skipped != 0 {
		t.Errorf("unexpected summaries %+v %+v", report.Original, report.User)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	var windows [][]float64
	for i := range 40 {
		windows = append(windows, pitchClass((i*7)%12))
	}
	original := &fakeRecording{duration: 2.5, windows: windows}
	user := &fakeRecording{duration: 4, windows: windows[:25]}

	a := newTestAnalyzer(t, nil)

	var encoded []string
	for range 3 {
		report, err := a.Analyze(context.Background(), original, user)
		if err != nil {
			t.Fatal(err)
		}
		data, err := json.Marshal(report)
		if err != nil {
			t.Fatal(err)
		}
		encoded = append(encoded, string(data))
	}
	for i := 1; i < len(encoded); i++ {
		if encoded[i] != encoded[0] {
			t.Fatalf("run %d differs:\n%s\n%s", i, encoded[i], encoded[0])
		}
	}
}

func TestAnalyzeMissingInput(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	rec := &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 2)}
	ctx := context.Background()

	if _, err := a.Analyze(ctx, nil, rec); !errors.Is(err, ErrMissingInput) {
		t.Errorf("nil original: got %v", err)
	}
	if _, err := a.Analyze(ctx, rec, nil); !errors.Is(err, ErrMissingInput) {
		t.Errorf("nil user: got %v", err)
	}
	if _, err := a.AnalyzeFiles(ctx, "", "user.wav"); !errors.Is(err, ErrMissingInput) {
		t.Errorf("empty original path: got %v", err)
	}
	if _, err := a.AnalyzeFiles(ctx, "orig.wav", ""); !errors.Is(err, ErrMissingInput) {
		t.Errorf("empty user path: got %v", err)
	}
}

func TestAnalyzeNilAudioData(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	rec := &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 2)}
	ctx := context.Background()

	var nilAudio *transcode.AudioData
	if _, err := a.Analyze(ctx, nilAudio, rec); !errors.Is(err, ErrMissingInput) {
		t.Errorf("nil *AudioData original: got %v", err)
	}
	if _, err := a.Analyze(ctx, rec, nilAudio); !errors.Is(err, ErrMissingInput) {
		t.Errorf("nil *AudioData user: got %v", err)
	}
}

func TestAnalyzeFilesDecoderReturnsNilAudio(t *testing.T) {
	decode := func(ctx context.Context, path string) (Recording, error) {
		if path == "user.wav" {
			var audio *transcode.AudioData
			return audio, nil
		}
		return &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 4)}, nil
	}

	a := newTestAnalyzer(t, nil, WithDecoder(decode), WithDecodeCache(4))
	_, err := a.AnalyzeFiles(context.Background(), "orig.wav", "user.wav")
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("got %v, want ErrDecodeFailure", err)
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Role != RoleUser {
		t.Errorf("unexpected error %v", err)
	}
}

func TestAnalyzeAudioDataUsesConfiguredTuning(t *testing.T) {
	const sampleRate = 44100
	tone := make([]float64, sampleRate)
	for i := range tone {
		tone[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/sampleRate)
	}
	audio := transcode.NewAudioData(tone, sampleRate, 1)

	// with A4 a semitone sharp, a 440 Hz tone falls on G#
	cfg := DefaultConfig()
	cfg.WindowSize = 4096
	cfg.TuningFrequency = 440 * math.Pow(2, 1.0/12.0)

	report, err := newTestAnalyzer(t, cfg).Analyze(context.Background(), audio, audio)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Points) != sampleRate/4096 {
		t.Fatalf("got %d points", len(report.Points))
	}
	for i, p := range report.Points {
		if math.Abs(p.Original-440) > 1e-9 || math.Abs(p.User-440) > 1e-9 {
			t.Errorf("point %d = %+v, want 440 Hz at the shifted tuning", i, p)
		}
	}
}

func TestAnalyzeLogsContextFields(t *testing.T) {
	var out bytes.Buffer
	logger := logging.NewLogger(&out, &out, logging.DebugLevel, false)
	a := newTestAnalyzer(t, nil, WithLogger(logger))

	ctx := logging.ContextWithFields(context.Background(), logging.Fields{"session": "take-7"})
	rec := &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 2)}
	if _, err := a.Analyze(ctx, rec, rec); err != nil {
		t.Fatal(err)
	}

	var analyzed int
	for line := range strings.Lines(out.String()) {
		if strings.Contains(line, "Recording analyzed") {
			analyzed++
			if !strings.Contains(line, "session=take-7") || !strings.Contains(line, "component=analyzer") {
				t.Errorf("context fields missing from %q", line)
			}
		}
	}
	if analyzed != 2 {
		t.Errorf("got %d per-recording lines, want 2:\n%s", analyzed, out.String())
	}
}

func TestAnalyzeFilesDecodeFailure(t *testing.T) {
	errCorrupt := errors.New("corrupt stream")
	decode := func(ctx context.Context, path string) (Recording, error) {
		if path == "user.mp3" {
			return nil, errCorrupt
		}
		return &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 4)}, nil
	}

	a := newTestAnalyzer(t, nil, WithDecoder(decode))
	_, err := a.AnalyzeFiles(context.Background(), "orig.mp3", "user.mp3")
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("got %v, want ErrDecodeFailure", err)
	}
	if !errors.Is(err, errCorrupt) {
		t.Errorf("decoder error not preserved: %v", err)
	}

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error %v is not a *DecodeError", err)
	}
	if decodeErr.Role != RoleUser || decodeErr.Path != "user.mp3" {
		t.Errorf("unexpected decode error %+v", decodeErr)
	}
}

func TestAnalyzeFilesWithDecoder(t *testing.T) {
	recordings := map[string]*fakeRecording{
		"orig.mp3": {duration: 2, windows: repeated(pitchClass(9), 10)},
		"user.mp3": {duration: 2, windows: repeated(pitchClass(9), 10)},
	}
	decode := func(ctx context.Context, path string) (Recording, error) {
		return recordings[path], nil
	}

	report, err := newTestAnalyzer(t, nil, WithDecoder(decode)).
		AnalyzeFiles(context.Background(), "orig.mp3", "user.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if report.OriginalKey.String() != "A Major" || len(report.Points) != 10 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Points[0].Original != 440 {
		t.Errorf("A pitch = %v, want 440", report.Points[0].Original)
	}
}

func TestAnalyzeSkipsMalformedWindows(t *testing.T) {
	nan := pitchClass(0)
	nan[3] = math.NaN()
	negative := pitchClass(0)
	negative[5] = -0.1

	windows := [][]float64{
		pitchClass(0),
		make([]float64, 11),
		nan,
		pitchClass(0),
		negative,
		pitchClass(0),
	}
	rec := &fakeRecording{duration: 1, windows: windows}

	report, err := newTestAnalyzer(t, nil).Analyze(context.Background(), rec, rec)
	if err != nil {
		t.Fatal(err)
	}
	if report.Original.Windows != 3 || report.Original.Skipped != 3 {
		t.Errorf("summary = %+v, want 3 kept and 3 skipped", report.Original)
	}
	if len(report.Points) != 3 {
		t.Errorf("got %d points, want 3", len(report.Points))
	}
	if report.OriginalKey.String() != "C Major" {
		t.Errorf("key = %s", report.OriginalKey)
	}
}

func TestAnalyzeMaxWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWindows = 5

	rec := &fakeRecording{duration: 10, windows: repeated(pitchClass(2), 50)}
	report, err := newTestAnalyzer(t, cfg).Analyze(context.Background(), rec, rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Points) != 5 || report.Original.Windows != 5 {
		t.Errorf("got %d points and %d windows, want 5", len(report.Points), report.Original.Windows)
	}
	if report.Points[4].Time != "0 min 8 sec" {
		t.Errorf("label = %q", report.Points[4].Time)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 10)}
	if _, err := newTestAnalyzer(t, nil).Analyze(ctx, rec, rec); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestAnalyzeWithoutWindows(t *testing.T) {
	empty := &fakeRecording{duration: 0.01}
	full := &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 5)}

	report, err := newTestAnalyzer(t, nil).Analyze(context.Background(), empty, full)
	if err != nil {
		t.Fatal(err)
	}
	if report.OriginalKey.IsKnown() {
		t.Errorf("original key = %s, want unknown", report.OriginalKey)
	}
	if report.UserKey.String() != "C Major" {
		t.Errorf("user key = %s", report.UserKey)
	}
	if report.Points == nil || len(report.Points) != 0 {
		t.Errorf("points = %#v, want empty", report.Points)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"original_key":"unknown"`, `"points":[]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("%s missing %s", data, want)
		}
	}
}

func TestAnalyzeKeyEvidence(t *testing.T) {
	windows := append(repeated(pitchClass(0), 10), pitchClass(9))
	rec := &fakeRecording{duration: 1, windows: windows}

	tests := []struct {
		evidence KeyEvidence
		want     string
	}{
		{KeyEvidenceAccumulated, "C Major"},
		{KeyEvidenceLastWindow, "A Major"},
	}
	for _, tt := range tests {
		t.Run(string(tt.evidence), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.KeyEvidence = tt.evidence

			report, err := newTestAnalyzer(t, cfg).Analyze(context.Background(), rec, rec)
			if err != nil {
				t.Fatal(err)
			}
			if got := report.OriginalKey.String(); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalyzeScoringAndPitchModes(t *testing.T) {
	major := tonal.MajorProfile
	rec := &fakeRecording{duration: 1, windows: [][]float64{major[:]}}

	mean := 0.0
	for _, w := range major {
		mean += w
	}
	mean /= 12

	tests := []struct {
		name      string
		scoring   string
		pitchMode string
		wantKey   string
		wantPitch float64
	}{
		{"dot", "dot", "dominant", "A Minor", 440 * math.Pow(2, -9.0/12.0)},
		{"pearson", "pearson", "dominant", "C Major", 440 * math.Pow(2, -9.0/12.0)},
		{"average", "pearson", "average", "C Major", mean},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Scoring = tt.scoring
			cfg.PitchMode = tt.pitchMode

			report, err := newTestAnalyzer(t, cfg).Analyze(context.Background(), rec, rec)
			if err != nil {
				t.Fatal(err)
			}
			if got := report.OriginalKey.String(); got != tt.wantKey {
				t.Errorf("key = %q, want %q", got, tt.wantKey)
			}
			if got := report.Points[0].Original; math.Abs(got-tt.wantPitch) > 1e-9 {
				t.Errorf("pitch = %v, want %v", got, tt.wantPitch)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 0
	if _, err := New(cfg); err == nil {
		t.Error("expected error for zero window size")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := map[string]func(*Config){
		"window size": func(c *Config) { c.WindowSize = -1 },
		"max windows": func(c *Config) { c.MaxWindows = -3 },
		"tuning":      func(c *Config) { c.TuningFrequency = 0 },
		"window":      func(c *Config) { c.Window = "kaiser" },
		"pitch mode":  func(c *Config) { c.PitchMode = "median" },
		"profile":     func(c *Config) { c.KeyProfile = "bach" },
		"scoring":     func(c *Config) { c.Scoring = "cosine" },
		"evidence":    func(c *Config) { c.KeyEvidence = "first" },
		"decoder":     func(c *Config) { c.Decoder.TargetSampleRate = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"window_size": 1024, "scoring": "pearson"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WindowSize != 1024 || cfg.Scoring != "pearson" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.PitchMode != "dominant" || cfg.TuningFrequency != 440 || cfg.Decoder == nil {
		t.Errorf("defaults not kept: %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"window_size": "big"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Error("expected parse error")
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"pitch_mode": "loudest"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(invalid); err == nil {
		t.Error("expected validation error")
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

// writeTone writes a mono 16-bit WAV file holding a sine at freq
func writeTone(t *testing.T, path string, sampleRate int, seconds, freq float64) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, int(seconds*float64(sampleRate)))
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeFilesWAV(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "original.wav")
	user := filepath.Join(dir, "user.wav")
	writeTone(t, original, 44100, 2.0, 440)
	writeTone(t, user, 44100, 1.0, 440)

	cfg := DefaultConfig()
	cfg.WindowSize = 4096

	report, err := newTestAnalyzer(t, cfg).AnalyzeFiles(context.Background(), original, user)
	if err != nil {
		t.Fatalf("AnalyzeFiles: %v", err)
	}

	if report.Original.Windows != 88200/4096 || report.User.Windows != 44100/4096 {
		t.Errorf("windows = %d/%d", report.Original.Windows, report.User.Windows)
	}
	if len(report.Points) != report.User.Windows {
		t.Errorf("got %d points, want %d", len(report.Points), report.User.Windows)
	}
	for i, p := range report.Points {
		if p.Original != 440 || p.User != 440 {
			t.Errorf("point %d = %+v, want 440 Hz on both sides", i, p)
		}
	}
	if math.Abs(report.Original.Duration-2.0) > 1e-9 {
		t.Errorf("original duration = %v", report.Original.Duration)
	}
}

func TestDecodeCache(t *testing.T) {
	dir := t.TempDir()
	paths := map[string]string{}
	for _, name := range []string{"original.mp3", "take1.mp3", "take2.mp3"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		paths[name] = path
	}

	var mu sync.Mutex
	calls := map[string]int{}
	decode := func(ctx context.Context, path string) (Recording, error) {
		mu.Lock()
		calls[path]++
		mu.Unlock()
		return &fakeRecording{duration: 1, windows: repeated(pitchClass(7), 4)}, nil
	}

	a := newTestAnalyzer(t, nil, WithDecoder(decode), WithDecodeCache(4))
	for _, take := range []string{"take1.mp3", "take2.mp3", "take1.mp3"} {
		if _, err := a.AnalyzeFiles(context.Background(), paths["original.mp3"], paths[take]); err != nil {
			t.Fatalf("%s: %v", take, err)
		}
	}

	for name, want := range map[string]int{"original.mp3": 1, "take1.mp3": 1, "take2.mp3": 1} {
		if got := calls[paths[name]]; got != want {
			t.Errorf("%s decoded %d times, want %d", name, got, want)
		}
	}

	// files that cannot be stat'ed bypass the cache
	missingPath := filepath.Join(dir, "missing.mp3")
	for range 2 {
		if _, err := a.AnalyzeFiles(context.Background(), paths["original.mp3"], missingPath); err != nil {
			t.Fatal(err)
		}
	}
	if calls[missingPath] != 2 {
		t.Errorf("uncacheable file decoded %d times, want 2", calls[missingPath])
	}
}

func TestDecodeCacheDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	calls := 0
	decode := func(ctx context.Context, path string) (Recording, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return &fakeRecording{duration: 1, windows: repeated(pitchClass(0), 2)}, nil
	}

	a := newTestAnalyzer(t, nil, WithDecoder(decode), WithDecodeCache(0))
	for range 2 {
		if _, err := a.AnalyzeFiles(context.Background(), path, path); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 4 {
		t.Errorf("decoder called %d times, want 4", calls)
	}
}
