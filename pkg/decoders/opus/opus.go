package opus

import (
	"fmt"

	"github.com/drgolem/gapless/pkg/types"
	goopus "github.com/drgolem/go-opus/opus"
)

// Decoder wraps the go-opus decoder to provide Opus decoding capabilities.
// Implements types.AudioDecoder interface. Mirrors the flac package's
// wrapper shape, since go-opus shares its author and general convention
// with go-flac (NewDecoder/Open/Close/GetFormat/DecodeSamples, plus the
// same Rate/Channels/Encoding helper trio).
type Decoder struct {
	decoder  *goopus.OpusDecoder
	rate     int
	channels int
	bps      int

	currentFrame int64
	lifecycle    types.LifecycleCallbacks
}

// NewDecoder creates a new Opus decoder. Uses 16-bit output by default.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// GetFormat returns the audio format (rate, channels, bits per sample).
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes the specified number of samples into the audio buffer.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}
	n, err := d.decoder.DecodeSamples(samples, audio)
	d.currentFrame += int64(n)
	return n, err
}

// Open opens and initializes an Opus file for decoding.
func (d *Decoder) Open(fileName string) error {
	decoder, err := goopus.NewOpusFrameDecoder(16)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Open(fileName); err != nil {
		decoder.Delete()
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	rate, channels, bps := decoder.GetFormat()

	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	d.bps = bps
	d.currentFrame = 0

	return nil
}

// Close closes the decoder and releases resources.
func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder.Delete()
		d.decoder = nil
	}
	return nil
}

// Rate returns the sample rate in Hz.
func (d *Decoder) Rate() int {
	return d.rate
}

// Channels returns the number of audio channels.
func (d *Decoder) Channels() int {
	return d.channels
}

// Encoding returns the bits per sample.
func (d *Decoder) Encoding() int {
	return d.bps
}

// SupportsSeeking reports false: the Opus wrapper here decodes a single
// forward pass over the stream with no sample-accurate seek surfaced.
func (d *Decoder) SupportsSeeking() bool {
	return false
}

// CurrentFrame returns the decoder's current read position in frames.
func (d *Decoder) CurrentFrame() int64 {
	return d.currentFrame
}

// SeekToFrame always fails; this Opus decoder has no seek support.
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
