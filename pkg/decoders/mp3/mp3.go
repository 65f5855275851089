package mp3

import (
	"fmt"
	"os"

	"github.com/drgolem/gapless/pkg/types"
	"github.com/imcarsen/go-mp3"
)

// bytesPerFrame is fixed by go-mp3: it always decodes to 16-bit signed
// little-endian, 2-channel PCM regardless of the source file's channel
// count.
const bytesPerFrame = 4

// Decoder wraps github.com/imcarsen/go-mp3, a pure-Go MP3 decoder, to
// provide MP3 decoding capabilities. Implements types.AudioDecoder.
//
// Replaces the undeclared github.com/drgolem/go-mpg123 import this
// package previously carried (that module was never listed in go.mod);
// imcarsen/go-mp3 is the declared dependency this decoder now matches.
type Decoder struct {
	file    *os.File
	decoder *mp3.Decoder
	rate    int

	currentFrame int64
	lifecycle    types.LifecycleCallbacks
}

// NewDecoder creates a new MP3 decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes an MP3 file for decoding.
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	d.file = file
	d.decoder = decoder
	d.rate = decoder.SampleRate()
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

// GetFormat returns the audio format: go-mp3 always decodes to stereo,
// 16-bit PCM at the source file's sample rate.
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, 2, 16
}

// Rate returns the sample rate in Hz.
func (d *Decoder) Rate() int {
	return d.rate
}

// Channels returns the number of audio channels (always 2 for go-mp3).
func (d *Decoder) Channels() int {
	return 2
}

// Encoding returns the bits per sample (always 16 for go-mp3).
func (d *Decoder) Encoding() int {
	return 16
}

// DecodeSamples decodes up to 'samples' frames into audio, returning the
// number of frames actually decoded. 0 frames with a nil error means EOS.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	want := samples * bytesPerFrame
	if len(audio) < want {
		want = len(audio) - (len(audio) % bytesPerFrame)
	}

	total := 0
	for total < want {
		n, err := d.decoder.Read(audio[total:want])
		total += n
		if err != nil {
			frames := total / bytesPerFrame
			d.currentFrame += int64(frames)
			return frames, nil
		}
		if n == 0 {
			break
		}
	}

	frames := total / bytesPerFrame
	d.currentFrame += int64(frames)
	return frames, nil
}

// SupportsSeeking reports false: go-mp3's Decoder exposes only a forward
// io.Reader over the compressed stream, with no sample-accurate seek.
func (d *Decoder) SupportsSeeking() bool {
	return false
}

// CurrentFrame returns the decoder's current read position in frames.
func (d *Decoder) CurrentFrame() int64 {
	return d.currentFrame
}

// SeekToFrame always fails; MP3 decoding here has no seek support.
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
