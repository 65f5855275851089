package engine

import (
	"log/slog"
	"time"

	"github.com/drgolem/gapless/pkg/types"
)

// writeChunkFrames is the fixed unit the worker writes to the ring buffer
// per store call: decoding is gated on at least one chunk of free space
// being available.
const writeChunkFrames = 2048

// workerWaitTimeout bounds how long the worker sleeps between wake checks
// when idle, so a missed signal cannot stall activation forever. The
// timeout exists solely to bound wake latency on missed signals, not as a
// watchdog.
const workerWaitTimeout = 2 * time.Second

// DecoderWorker pulls queued decoders one at a time, creates their
// DecoderState, refills the RingBuffer in fixed-size chunks, services
// seeks, and finalizes on end-of-stream. It runs on its own goroutine for
// the lifetime of the PlayerController that owns it, generalizing a
// single-decoder producer loop to multi-decoder, gapless operation
// against absolute frame addressing instead of a single decoder streamed
// straight into a byte ring buffer.
type DecoderWorker struct {
	controller *PlayerController
	signal     *Semaphore
	stopChan   chan struct{}
}

// NewDecoderWorker creates a worker bound to controller, woken by signal.
func NewDecoderWorker(controller *PlayerController, signal *Semaphore) *DecoderWorker {
	return &DecoderWorker{
		controller: controller,
		signal:     signal,
		stopChan:   make(chan struct{}),
	}
}

// Stop asks the worker goroutine to exit at its next wake.
func (w *DecoderWorker) Stop() {
	close(w.stopChan)
	w.signal.Signal()
}

// Run is the worker's goroutine body. It never returns until Stop is
// called.
func (w *DecoderWorker) Run() {
	for {
		select {
		case <-w.stopChan:
			return
		default:
		}

		decoder, ok := w.controller.pending.Pop()
		if !ok {
			w.signal.WaitTimeout(workerWaitTimeout)
			continue
		}

		w.activate(decoder)
	}
}

// activate runs one decoder from creation through EOS or a stop request.
func (w *DecoderWorker) activate(decoder types.AudioDecoder) {
	c := w.controller

	rate, channels, bits := decoder.GetFormat()
	format := types.PCMFormat{
		SampleRate:     rate,
		Channels:       channels,
		BytesPerSample: bits / 8,
	}

	timestamp := c.framesDecoded.Load()
	ds := NewDecoderState(decoder, format, timestamp)

	if !c.active.Add(ds) {
		slog.Error("decoder worker: activation failed, active set full", "timestamp", timestamp)
		decoder.Close()
		return
	}

	startingFrameNumber := int64(0)
	decodingStarted := false

	for ds.KeepDecoding() {
		select {
		case <-w.stopChan:
			ds.StopDecoding()
			continue
		default:
		}

		if frame, ok := ds.TakeSeekRequest(); ok {
			if post := w.seek(ds, frame); post >= 0 {
				startingFrameNumber = post
			}
			continue
		}

		freeSpace := c.ringBuffer.Capacity() - uint64(c.framesDecoded.Load()-c.framesRendered.Load())
		if freeSpace < writeChunkFrames {
			w.signal.WaitTimeout(workerWaitTimeout)
			continue
		}

		if !decodingStarted {
			decoder.SetLifecycleCallbacks(c.lifecycleCallbacksFor(ds))
			c.fireDecodingStarted(ds)
			decodingStarted = true
		}

		n, err := decoder.DecodeSamples(writeChunkFrames, ds.Scratch())
		if err != nil {
			slog.Error("decoder worker: decode error, skipping chunk", "error", err, "timestamp", ds.Timestamp())
			continue
		}

		if n == 0 {
			ds.SetTotalFrames(startingFrameNumber)
			ds.StopDecoding()
			c.fireDecodingFinished(ds)
			continue
		}

		dest := startingFrameNumber + ds.Timestamp()
		if err := c.ringBuffer.Store(ds.Scratch(), uint64(n), uint64(dest), uint64(c.framesRendered.Load())); err != nil {
			slog.Error("decoder worker: store overrun", "error", err, "dest", dest)
			continue
		}

		startingFrameNumber += int64(n)
		c.framesDecoded.Add(int64(n))
		c.collectorSignal.Signal()
	}
}

// seek implements the seek protocol exactly, including the ordering of
// the is_seeking flag relative to counter mutation. Returns the frame the
// decoder landed on, or a negative value if the seek failed.
func (w *DecoderWorker) seek(ds *DecoderState, frame int64) int64 {
	c := w.controller

	c.flags.Set(flagIsSeeking)

	pre := ds.Decoder().CurrentFrame()
	post := ds.Decoder().SeekToFrame(frame)

	if post >= 0 {
		ds.framesRendered.Store(post)
		delta := post - pre
		c.framesDecoded.Add(delta)
		c.framesRendered.Store(c.framesDecoded.Load())
		if c.converter != nil {
			c.converter.Reset()
		}
		c.resetOutput()
	} else {
		slog.Warn("decoder worker: seek failed", "requested_frame", frame, "timestamp", ds.Timestamp())
	}

	c.flags.Clear(flagIsSeeking)
	return post
}
