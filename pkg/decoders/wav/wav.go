package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/drgolem/gapless/pkg/types"
	"github.com/youpy/go-wav"
)

// Decoder wraps go-wav for decoding WAV audio files.
// Implements types.AudioDecoder interface.
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	rate     int
	channels int
	bps      int
	format   uint16

	currentFrame int64
	lifecycle    types.LifecycleCallbacks
}

// NewDecoder creates a new WAV decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens a WAV file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	// Validate format
	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("unsupported WAV format: %d (only PCM supported)", format.AudioFormat)
	}

	d.file = file
	d.reader = reader
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)
	d.format = format.AudioFormat
	d.currentFrame = 0

	return nil
}

// Close closes the WAV file
func (d *Decoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// GetFormat returns the audio format (sample rate, channels, bits per sample)
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bps
}

// SupportsSeeking reports that go-wav's reader is forward-only.
func (d *Decoder) SupportsSeeking() bool {
	return false
}

// CurrentFrame returns the decoder's current read position in frames.
func (d *Decoder) CurrentFrame() int64 {
	return d.currentFrame
}

// SeekToFrame always fails; WAV decoding here has no seek support.
func (d *Decoder) SeekToFrame(frame int64) int64 {
	return -1
}

// SetLifecycleCallbacks installs the engine's lifecycle hooks. The engine
// fires decoding/rendering lifecycle events directly from the pipeline
// rather than through the decoder, so this decoder only stores them for
// interface conformance.
func (d *Decoder) SetLifecycleCallbacks(cb types.LifecycleCallbacks) {
	d.lifecycle = cb
}

// DecodeSamples decodes up to 'samples' audio samples into the provided buffer
//
// Parameters:
//   - samples: number of samples to decode (not bytes)
//   - audio: buffer to write decoded audio data
//
// Returns:
//   - number of samples actually decoded
//   - error if any
//
// The buffer must be large enough to hold: samples * channels * (bitsPerSample/8) bytes
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	bytesPerSample := d.bps / 8
	totalSamples := 0

	// Read samples one at a time (go-wav reads sample by sample)
	for i := 0; i < samples; i++ {
		samplesData, err := d.reader.ReadSamples(1)
		if err != nil {
			// End of file or error
			d.currentFrame += int64(totalSamples)
			if errors.Is(err, io.EOF) {
				return totalSamples, nil
			}
			return totalSamples, err
		}

		if len(samplesData) == 0 {
			// No more data
			d.currentFrame += int64(totalSamples)
			return totalSamples, nil
		}

		// Convert samples to bytes and write to buffer
		// go-wav returns samples as []wav.Sample which contains IntValue for each channel
		for ch := 0; ch < d.channels; ch++ {
			if ch >= len(samplesData[0].Values) {
				break
			}

			value := samplesData[0].Values[ch]
			offset := (totalSamples*d.channels + ch) * bytesPerSample

			// Check buffer bounds
			if offset+bytesPerSample > len(audio) {
				d.currentFrame += int64(totalSamples)
				return totalSamples, nil
			}

			// Write sample bytes (little-endian)
			switch d.bps {
			case 8:
				audio[offset] = byte(value)
			case 16:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
			case 24:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
				audio[offset+2] = byte((value >> 16) & 0xFF)
			case 32:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
				audio[offset+2] = byte((value >> 16) & 0xFF)
				audio[offset+3] = byte((value >> 24) & 0xFF)
			default:
				d.currentFrame += int64(totalSamples)
				return totalSamples, fmt.Errorf("unsupported bits per sample: %d", d.bps)
			}
		}

		totalSamples++
	}

	d.currentFrame += int64(totalSamples)
	return totalSamples, nil
}
