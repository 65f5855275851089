package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/gapless/pkg/audioframe"
	"github.com/drgolem/gapless/pkg/audioframeringbuffer"
	"github.com/drgolem/gapless/pkg/types"
)

// jitterBufferFrames sizes the internal AudioFrame jitter buffer: enough
// frames of slack to absorb provider arrival jitter (network scheduling,
// burst delivery) without the decoder's own DecodeSamples calls ever
// seeing that jitter directly.
const jitterBufferFrames = 64

// pollInterval is how long DecodeSamples backs off between jitter-buffer
// polls when no frame has arrived yet, mirroring a consumer loop's
// backoff on a ring buffer underrun: wait a bit and retry rather than
// busy-spin.
const pollInterval = 10 * time.Millisecond

// AudioPacketProvider is the collaborator that feeds a StreamDecoder from
// an external source (network socket, in-process buffer, test fixture).
// This is the engine's Decoder collaborator specialized for sources that
// hand PCM to the engine directly rather than decoding a compressed file
// on disk — a decoder that produces PCM frames from a URL, generalized to
// any push source.
type AudioPacketProvider interface {
	// ReadAudioPacket blocks until the next frame is available, ctx is
	// canceled, or the stream ends (io.EOF).
	ReadAudioPacket(ctx context.Context) (*audioframe.AudioFrame, error)
}

// StreamDecoder implements types.AudioDecoder for streaming audio
// sources, pulling AudioFrames from an AudioPacketProvider on a background
// goroutine into a jitter buffer, and serving DecodeSamples calls out of
// that buffer. Seeking is never supported: a push source has no notion of
// an absolute frame to seek back to.
type StreamDecoder struct {
	provider AudioPacketProvider
	jitter   *audioframeringbuffer.AudioFrameRingBuffer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	formatMx     sync.RWMutex
	format       types.PCMFormat
	formatChange chan types.PCMFormat

	eof          atomic.Bool
	pullErr      atomic.Pointer[error]
	currentFrame int64

	lifecycle types.LifecycleCallbacks
}

// NewStreamDecoder creates a decoder for streaming audio sources. Open
// starts the background pull goroutine; the decoder is otherwise ready to
// use immediately.
func NewStreamDecoder(provider AudioPacketProvider, initialFormat types.PCMFormat) *StreamDecoder {
	return &StreamDecoder{
		provider:     provider,
		jitter:       audioframeringbuffer.New(jitterBufferFrames),
		format:       initialFormat,
		formatChange: make(chan types.PCMFormat, 1),
	}
}

// Open starts the pull loop. fileName is ignored: a StreamDecoder is
// already bound to its provider at construction.
func (d *StreamDecoder) Open(fileName string) error {
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.pullLoop()
	return nil
}

// Close stops the pull loop and waits for it to exit.
func (d *StreamDecoder) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	return nil
}

// GetFormat returns the currently known PCM format. A stream source may
// change format mid-stream; callers that need to be notified should watch
// FormatChanges.
func (d *StreamDecoder) GetFormat() (rate, channels, bitsPerSample int) {
	d.formatMx.RLock()
	defer d.formatMx.RUnlock()
	return d.format.SampleRate, d.format.Channels, d.format.BytesPerSample * 8
}

// pullLoop drains the provider as fast as it produces frames and pushes
// them into the jitter buffer, backing off when the buffer is full rather
// than dropping frames.
func (d *StreamDecoder) pullLoop() {
	defer d.wg.Done()
	for {
		frame, err := d.provider.ReadAudioPacket(d.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof.Store(true)
			} else if !errors.Is(err, context.Canceled) {
				d.pullErr.Store(&err)
			}
			return
		}

		for {
			n, werr := d.jitter.Write([]audioframe.AudioFrame{*frame})
			if n == 1 {
				break
			}
			_ = werr
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(pollInterval):
			}
		}
	}
}

// DecodeSamples fills audio with up to 'samples' frames pulled from the
// jitter buffer, blocking (with backoff) until at least one frame arrives,
// the stream reaches EOF, or the pull loop reports a fatal error. Returns
// 0 with a nil error only on true end-of-stream, matching the
// read-returning-0-means-EOS contract decoders follow.
func (d *StreamDecoder) DecodeSamples(samples int, audio []byte) (int, error) {
	totalFrames := 0
	defer func() { d.currentFrame += int64(totalFrames) }()

	for totalFrames < samples {
		pkt, ok := d.jitter.ReadOne()
		if !ok {
			if p := d.pullErr.Load(); p != nil {
				return totalFrames, fmt.Errorf("stream decoder: %w", *p)
			}
			if d.eof.Load() {
				return totalFrames, nil
			}
			if totalFrames > 0 {
				return totalFrames, nil
			}
			select {
			case <-d.ctx.Done():
				return 0, d.ctx.Err()
			case <-time.After(pollInterval):
				continue
			}
		}

		d.noteFormatChange(pkt.Format)

		bytesPerFrame := pkt.BytesPerFrame()
		n32 := int(pkt.SamplesCount)
		if totalFrames+n32 > samples {
			n32 = samples - totalFrames
		}

		offset := totalFrames * bytesPerFrame
		byteLen := n32 * bytesPerFrame
		if offset+byteLen > len(audio) {
			byteLen = len(audio) - offset
			n32 = byteLen / bytesPerFrame
		}
		copy(audio[offset:offset+byteLen], pkt.Audio[:byteLen])

		totalFrames += n32
	}

	return totalFrames, nil
}

func (d *StreamDecoder) noteFormatChange(f audioframe.FrameFormat) {
	newFormat := f.PCMFormat()

	d.formatMx.Lock()
	changed := newFormat != d.format
	if changed {
		d.format = newFormat
	}
	d.formatMx.Unlock()

	if changed {
		select {
		case d.formatChange <- newFormat:
		default:
		}
	}
}

// FormatChanges returns a channel that receives format change notifications.
func (d *StreamDecoder) FormatChanges() <-chan types.PCMFormat {
	return d.formatChange
}

// SupportsSeeking reports false: a push source has no addressable past to
// seek back to.
func (d *StreamDecoder) SupportsSeeking() bool {
	return false
}

// CurrentFrame returns the number of frames handed out by DecodeSamples so far.
func (d *StreamDecoder) CurrentFrame() int64 {
	return d.currentFrame
}

// SeekToFrame always fails for a streaming source.
func (d *StreamDecoder) SeekToFrame(frame int64) int64 {
	return -1
}

// SetLifecycleCallbacks installs the engine's lifecycle hooks. The engine
// fires decoding/rendering lifecycle events directly from the pipeline
// rather than through the decoder, so this decoder only stores them for
// interface conformance.
func (d *StreamDecoder) SetLifecycleCallbacks(cb types.LifecycleCallbacks) {
	d.lifecycle = cb
}
