package transcode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// WAV format tags from the fmt chunk
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// ErrUnsupportedWAVFormat is returned for WAV files that are not integer PCM,
// such as IEEE float data. Decoder falls back to ffmpeg for these.
var ErrUnsupportedWAVFormat = errors.New("unsupported WAV sample format")

// DecodeWAVFile reads a PCM WAV file from disk
func DecodeWAVFile(filename string) (*AudioData, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer f.Close()

	audio, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return audio, nil
}

// DecodeWAV reads an integer PCM WAV stream. Samples are scaled to [-1, 1]
// and the channel layout is kept. 8-bit data is unsigned and centred on 128.
func DecodeWAV(r io.ReadSeeker) (*AudioData, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	switch decoder.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
	default:
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAVFormat, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	channels := int(decoder.NumChans)
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	sampleRate := int(decoder.SampleRate)
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	fullScale := float64(int64(1) << uint(bitDepth-1))
	offset := 0.0
	if bitDepth == 8 {
		offset = fullScale
	}
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = (float64(v) - offset) / fullScale
	}

	return newAudioData(samples, sampleRate, channels, "pcm_wav"), nil
}
