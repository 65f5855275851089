package vorbis

import (
	"fmt"
	"os"

	"github.com/drgolem/gapless/pkg/types"
	"github.com/jfreymuth/oggvorbis"
)

// Decoder wraps github.com/jfreymuth/oggvorbis (itself built on
// github.com/jfreymuth/vorbis) to provide Ogg Vorbis decoding
// capabilities. Implements types.AudioDecoder.
//
// oggvorbis.Reader decodes to float32 PCM in [-1, 1]; this wrapper
// converts each sample to the engine's fixed-point 16-bit PCM, the same
// conversion responsibility the flac/opus decoders don't need since their
// underlying libraries already emit integer PCM.
type Decoder struct {
	file   *os.File
	reader *oggvorbis.Reader

	rate     int
	channels int

	scratch      []float32
	currentFrame int64
	lifecycle    types.LifecycleCallbacks
}

// NewDecoder creates a new Vorbis decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes an Ogg Vorbis file for decoding.
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open Vorbis file: %w", err)
	}

	reader, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create vorbis reader: %w", err)
	}

	d.file = file
	d.reader = reader
	d.rate = reader.SampleRate()
	d.channels = reader.Channels()
	d.currentFrame = 0

	return nil
}

// Close closes the decoder and releases resources.
func (d *Decoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// GetFormat returns the audio format: Vorbis decodes here always land as
// 16-bit PCM after float-to-int conversion.
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, 16
}

// DecodeSamples decodes up to 'samples' frames into audio as 16-bit
// little-endian PCM, converting from oggvorbis's float32 output.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	need := samples * d.channels
	if len(d.scratch) < need {
		d.scratch = make([]float32, need)
	}

	total := 0
	for total < need {
		n, err := d.reader.Read(d.scratch[total:need])
		total += n
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}

	frames := total / d.channels
	for i := 0; i < frames*d.channels; i++ {
		v := d.scratch[i]
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		sample := int16(v * 32767)
		offset := i * 2
		audio[offset] = byte(sample & 0xFF)
		audio[offset+1] = byte((sample >> 8) & 0xFF)
	}

	d.currentFrame += int64(frames)
	return frames, nil
}

// SupportsSeeking reports false: this wrapper does not surface
// oggvorbis's page-granularity seek as a sample-accurate one.
func (d *Decoder) SupportsSeeking() bool {
	return false
}

// CurrentFrame returns the decoder's current read position in frames.
func (d *Decoder) CurrentFrame() int64 {
	return d.currentFrame
}

// SeekToFrame always fails; this Vorbis decoder has no seek support.
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
