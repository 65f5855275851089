package engine

import (
	"sync/atomic"

	"github.com/drgolem/gapless/pkg/types"
)

// decodeChunkFrames is the number of frames DecoderWorker asks its decoder
// to produce per DecodeSamples call — large enough to amortize per-call
// overhead, small enough to keep worker latency low when a seek or
// enqueue needs the worker's attention promptly.
const decodeChunkFrames = 2048

// DecoderState wraps one queued or active pkg/types.AudioDecoder with the
// bookkeeping the engine needs to interleave it gaplessly with its
// neighbors: an absolute ring-buffer placement timestamp, counters the
// render thread and the worker thread both touch, and the seek protocol's
// handshake fields the seek protocol needs.
type DecoderState struct {
	decoder types.AudioDecoder
	format  types.PCMFormat

	// timestamp is this decoder's first frame's absolute position in the
	// shared ring buffer address space. Frames this decoder produces land
	// at timestamp, timestamp+1, timestamp+2, ...
	timestamp int64

	// totalFrames is the decoder's known length in frames, or -1 while
	// unknown. The worker sets it at EOS to its starting frame number, the
	// decoder-numbered position just past the last frame it stored.
	totalFrames atomic.Int64

	// framesRendered counts frames of this specific decoder's output that
	// have been consumed by the render thread, used to decide when the
	// decoder is fully drained and can be retired from the ActiveSet.
	framesRendered atomic.Int64

	// frameToSeek holds a pending seek target (in this decoder's own
	// frame numbering) for the worker to notice and act on; -1 means no
	// seek is pending.
	frameToSeek atomic.Int64

	// keepDecoding is cleared to tell the worker to stop decoding this
	// state (EOS, Stop, or the worker itself being stopped). A decode error
	// only skips the chunk and leaves it set.
	keepDecoding atomic.Bool

	// readyForCollection is set by the render thread once a decoder is
	// fully drained and by Stop for every active state; the Collector
	// polls it to know when to retire and close a DecoderState.
	readyForCollection atomic.Bool

	scratch []byte
}

// NewDecoderState wraps decoder for placement at the given absolute
// timestamp in the ring buffer's address space. format must already be
// known (the worker calls decoder.GetFormat() before constructing this).
func NewDecoderState(decoder types.AudioDecoder, format types.PCMFormat, timestamp int64) *DecoderState {
	ds := &DecoderState{
		decoder:   decoder,
		format:    format,
		timestamp: timestamp,
		scratch:   make([]byte, decodeChunkFrames*format.BytesPerFrame()),
	}
	ds.totalFrames.Store(-1)
	ds.frameToSeek.Store(-1)
	ds.keepDecoding.Store(true)
	return ds
}

// Decoder returns the wrapped AudioDecoder.
func (ds *DecoderState) Decoder() types.AudioDecoder {
	return ds.decoder
}

// Format returns the PCM format this decoder produces.
func (ds *DecoderState) Format() types.PCMFormat {
	return ds.format
}

// Timestamp returns this decoder's first frame's absolute ring-buffer
// position.
func (ds *DecoderState) Timestamp() int64 {
	return ds.timestamp
}

// SetTimestamp repositions this decoder's first frame in the ring buffer's
// address space. Neither the worker nor the render path calls it: a state
// keeps the timestamp it was created with.
func (ds *DecoderState) SetTimestamp(t int64) {
	ds.timestamp = t
}

// TotalFrames returns the decoder's known length, or -1 if still unknown.
func (ds *DecoderState) TotalFrames() int64 {
	return ds.totalFrames.Load()
}

// SetTotalFrames records the decoder's known length once discovered.
func (ds *DecoderState) SetTotalFrames(n int64) {
	ds.totalFrames.Store(n)
}

// FramesRendered returns how many of this decoder's frames have been
// consumed by the render thread.
func (ds *DecoderState) FramesRendered() int64 {
	return ds.framesRendered.Load()
}

// AddFramesRendered advances the rendered-frame counter by n.
func (ds *DecoderState) AddFramesRendered(n int64) int64 {
	return ds.framesRendered.Add(n)
}

// RequestSeek records a pending seek target in this decoder's own frame
// numbering for the worker to pick up.
func (ds *DecoderState) RequestSeek(frame int64) {
	ds.frameToSeek.Store(frame)
}

// TakeSeekRequest atomically reads and clears a pending seek target,
// returning ok=false if none is pending.
func (ds *DecoderState) TakeSeekRequest() (frame int64, ok bool) {
	frame = ds.frameToSeek.Swap(-1)
	return frame, frame >= 0
}

// KeepDecoding reports whether the worker should keep decoding this state.
func (ds *DecoderState) KeepDecoding() bool {
	return ds.keepDecoding.Load()
}

// StopDecoding tells the worker to stop decoding this state.
func (ds *DecoderState) StopDecoding() {
	ds.keepDecoding.Store(false)
}

// ReadyForCollection reports whether this state is fully drained and safe
// for the Collector to retire.
func (ds *DecoderState) ReadyForCollection() bool {
	return ds.readyForCollection.Load()
}

// MarkReadyForCollection flags this state as safe for the Collector to
// retire.
func (ds *DecoderState) MarkReadyForCollection() {
	ds.readyForCollection.Store(true)
}

// Scratch returns the per-state decode scratch buffer, sized for one
// decodeChunkFrames write.
func (ds *DecoderState) Scratch() []byte {
	return ds.scratch
}
