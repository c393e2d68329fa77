package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/pitchperfect/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels"`
	MaxDuration      time.Duration `json:"max_duration"`     // 0 = whole file
	ResampleQuality  string        `json:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `json:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout"`    // per ffmpeg/ffprobe invocation
	NativeWAV        bool          `json:"native_wav"` // decode .wav files without ffmpeg
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		TargetChannels:   1,
		MaxDuration:      0,
		ResampleQuality:  "medium",
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          30 * time.Second,
		NativeWAV:        true,
	}
}

// Validate checks the configuration values that do not depend on the host
func (c *DecoderConfig) Validate() error {
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", c.TargetSampleRate)
	}
	if c.TargetChannels <= 0 || c.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 1 and 8: %d", c.TargetChannels)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", c.Timeout)
	}
	switch c.ResampleQuality {
	case "", "fast", "medium", "high":
	default:
		return fmt.Errorf("unknown resample quality %q", c.ResampleQuality)
	}
	return nil
}

// AudioMetadata describes the input stream as reported by ffprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// Decoder turns audio files into PCM, natively for WAV and through FFmpeg
// for every other container
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// DecodeFile decodes an audio file to mono PCM
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodeFile",
		"filename": filename,
	})

	if d.config.NativeWAV && strings.EqualFold(filepath.Ext(filename), ".wav") {
		logger.Debug("Decoding WAV natively")
		audio, err := DecodeWAVFile(filename)
		switch {
		case err == nil:
			return audio.Truncate(d.config.MaxDuration), nil
		case errors.Is(err, ErrUnsupportedWAVFormat):
			logger.Debug("WAV sample format needs ffmpeg", logging.Fields{"error": err.Error()})
		default:
			logger.Error(err, "Failed to decode WAV file")
			return nil, err
		}
	}

	logger.Debug("Decoding with ffmpeg")

	metadata, err := d.inspect(ctx, filename)
	if err != nil {
		logger.Error(err, "Failed to read stream info")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	return d.decodeFileWithFFmpeg(ctx, filename, metadata)
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// ErrNoAudioStream is returned for files whose first selected stream is not
// audio
var ErrNoAudioStream = errors.New("no audio stream")

// streamInfo is the part of an ffprobe stream entry the decoder reads.
// ffprobe reports most numbers as strings.
type streamInfo struct {
	Type       string `json:"codec_type"`
	Codec      string `json:"codec_name"`
	Format     string `json:"codec_long_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

// inspect reads the first audio stream's properties with ffprobe
func (d *Decoder) inspect(ctx context.Context, filename string) (*AudioMetadata, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	report, err := exec.CommandContext(ctx, d.config.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		filename,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", filename, withStderr(err))
	}
	return parseStreamReport(report)
}

// parseStreamReport reads ffprobe's JSON stream report. A missing or
// malformed sample rate counts as 44100 Hz; duration and bitrate stay zero.
func parseStreamReport(report []byte) (*AudioMetadata, error) {
	var doc struct {
		Streams []streamInfo `json:"streams"`
	}
	if err := json.Unmarshal(report, &doc); err != nil {
		return nil, fmt.Errorf("reading stream report: %w", err)
	}
	if len(doc.Streams) == 0 {
		return nil, ErrNoAudioStream
	}

	s := doc.Streams[0]
	if s.Type != "audio" {
		return nil, fmt.Errorf("%w: first stream is %q", ErrNoAudioStream, s.Type)
	}
	if s.Channels < 1 || s.Channels > 8 {
		return nil, fmt.Errorf("audio stream reports %d channels", s.Channels)
	}

	meta := &AudioMetadata{
		SampleRate: 44100,
		Channels:   s.Channels,
		Codec:      s.Codec,
		Format:     s.Format,
	}
	if rate, err := strconv.Atoi(s.SampleRate); err == nil {
		meta.SampleRate = rate
	}
	if secs, err := strconv.ParseFloat(s.Duration, 64); err == nil {
		meta.Duration = secs
	}
	if bps, err := strconv.Atoi(s.BitRate); err == nil {
		meta.Bitrate = bps
	}
	return meta, nil
}

// withStderr adds the captured stderr of a failed command to err
func withStderr(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
	}
	return err
}

// decodeFileWithFFmpeg performs the actual audio decoding from a file
func (d *Decoder) decodeFileWithFFmpeg(ctx context.Context, filename string, metadata *AudioMetadata) (*AudioData, error) {
	args := d.buildFFmpegArgs(metadata)
	args = append([]string{"-i", filename}, args...)
	args = append(args, "pipe:1")

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	d.logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := exec.CommandContext(ctx, d.config.FFmpegPath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w", filename, withStderr(err))
	}

	samples := decodeF64LE(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("ffmpeg %s: no samples in output", filename)
	}

	return newAudioData(samples, d.config.TargetSampleRate, d.config.TargetChannels, metadata.Codec), nil
}

// buildFFmpegArgs builds the ffmpeg output arguments
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata) []string {
	args := []string{
		"-f", "f64le", // raw float64 little-endian
		"-ac", strconv.Itoa(d.config.TargetChannels),
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	if d.config.ResampleQuality != "" && metadata.SampleRate != d.config.TargetSampleRate {
		switch d.config.ResampleQuality {
		case "fast":
			args = append(args, "-af", "aresample=resampler=soxr:precision=16")
		case "medium":
			args = append(args, "-af", "aresample=resampler=soxr:precision=20")
		case "high":
			args = append(args, "-af", "aresample=resampler=soxr:precision=28")
		}
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "-v", "error")
}

// decodeF64LE reinterprets ffmpeg's f64le output as samples. A trailing
// partial sample is dropped.
func decodeF64LE(raw []byte) []float64 {
	samples := make([]float64, len(raw)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return samples
}

// CheckFFmpeg reports whether ffmpeg and ffprobe can be executed
func (d *Decoder) CheckFFmpeg() error {
	if _, err := exec.LookPath(d.config.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if _, err := exec.LookPath(d.config.FFprobePath); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}
