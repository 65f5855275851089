package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/gapless/pkg/metadata"
	"github.com/drgolem/gapless/pkg/types"
)

// renderScratchFrames bounds the controller's preallocated render-path
// scratch buffer; sized generously above any single device buffer period
// so the render callback's input pulls never need to grow it.
const renderScratchFrames = 65536

// playbackState is the controller's own play/pause/stop state, distinct
// from the shared Flags bitset the render callback reads: this one is only
// ever touched by control-plane goroutines under mu.
type playbackState int

const (
	statePlaying playbackState = iota
	statePaused
	stateStopped
)

// Device is the platform audio subsystem collaborator, specified only at
// its interface: it owns the output device, drives a
// periodic render callback, and exposes property get/set plus
// change-notification streams. pkg/device.Device implements this against
// github.com/drgolem/go-portaudio.
type Device interface {
	Open(deviceIndex int) error
	Close() error
	RegisterRenderCallback(cb func(output []byte) int)
	SetNominalSampleRate(rate float64) error
	SetHogMode(pid int) error
	SetBufferFrameSize(frames int) error
	StartStream() error
	StopStream() error
	CurrentStream() Stream
}

// Stream is the Device collaborator's current output stream: it carries
// the negotiated virtual/physical formats and notifies the
// controller when either changes.
type Stream interface {
	VirtualFormat() types.PCMFormat
	PhysicalFormat() types.PCMFormat
	OnVirtualFormatChanged(func(types.PCMFormat))
	OnPhysicalFormatChanged(func(types.PCMFormat))
}

// PlayerController orchestrates the whole pipeline: start/stop output,
// enqueue, clear, seek, device/stream binding, format convergence, and the
// mode-flag word shared across threads. It owns the
// RingBuffer, the Collector, the DecoderWorker, and the ActiveSet.
type PlayerController struct {
	mu    sync.Mutex
	state playbackState

	pending *PendingQueue
	active  *ActiveSet

	ringBuffer       *RingBuffer
	ringBufferFormat types.PCMFormat
	ringBufferCap    uint64

	converter           Converter
	streamVirtualFormat types.PCMFormat

	device Device
	stream Stream

	flags Flags

	framesDecoded  atomic.Int64
	framesRendered atomic.Int64

	decoderSignal   *Semaphore
	collectorSignal *Semaphore
	worker          *DecoderWorker
	collector       *Collector
	render          *RenderCallback

	renderScratch []byte

	// tags is the optional metadata/replay-gain collaborator, an external
	// collaborator specified only at its interface. Never consulted by the
	// render or decode path; a caller reads it directly.
	tags metadata.Provider

	volume float64

	startTime time.Time

	lifecycleEvents chan lifecycleEvent
}

// lifecycleEvent carries a lifecycle callback firing off the realtime
// render path to the background logger goroutine. The render path
// (distribute, called from Render) must never log synchronously, so
// fireRenderingStarted/Finished only post here; fireDecodingStarted/
// Finished run on the decoder worker goroutine, not the render path, but
// are routed through the same channel for one logging call site.
type lifecycleEvent struct {
	kind        string
	timestamp   int64
	totalFrames int64
}

// lifecycleEventCapacity bounds the backlog of unlogged lifecycle events;
// sized generously above any plausible burst of decoder transitions
// between logger wakeups.
const lifecycleEventCapacity = 256

// Config holds the tunables a caller supplies when constructing a
// PlayerController, generalizing a single-file player's config
// (BufferSize, FramesPerBuffer, DeviceIndex) to the gapless engine's
// absolute-frame-addressed ring buffer.
type Config struct {
	RingBufferCapacityFrames uint64 // default 16384
	DeviceIndex              int
}

// DefaultConfig returns the default ring buffer capacity of 16384 frames.
func DefaultConfig() Config {
	return Config{
		RingBufferCapacityFrames: 16384,
		DeviceIndex:              -1,
	}
}

// NewPlayerController constructs a controller bound to device, with its
// worker and collector goroutines started immediately (they idle on their
// semaphores until decoders are enqueued).
func NewPlayerController(device Device, config Config) *PlayerController {
	c := &PlayerController{
		pending:         NewPendingQueue(),
		active:          NewActiveSet(),
		device:          device,
		ringBufferCap:   config.RingBufferCapacityFrames,
		decoderSignal:   NewSemaphore(),
		collectorSignal: NewSemaphore(),
		volume:          1.0,
		state:           stateStopped,
		tags:            metadata.NopProvider{},
		lifecycleEvents: make(chan lifecycleEvent, lifecycleEventCapacity),
	}
	c.worker = NewDecoderWorker(c, c.decoderSignal)
	c.collector = NewCollector(c, c.collectorSignal)
	c.render = NewRenderCallback(c)

	go c.worker.Run()
	go c.collector.Run()
	go c.logLifecycleEvents()

	return c
}

// logLifecycleEvents drains lifecycleEvents and logs each one. Runs for
// the controller's lifetime; exits when the channel is closed by Close.
func (c *PlayerController) logLifecycleEvents() {
	for ev := range c.lifecycleEvents {
		switch ev.kind {
		case "decoding_started":
			slog.Debug("engine: decoding started", "timestamp", ev.timestamp)
		case "decoding_finished":
			slog.Debug("engine: decoding finished", "timestamp", ev.timestamp, "total_frames", ev.totalFrames)
		case "rendering_started":
			slog.Debug("engine: rendering started", "timestamp", ev.timestamp)
		case "rendering_finished":
			slog.Debug("engine: rendering finished", "timestamp", ev.timestamp)
		}
	}
}

// postLifecycleEvent enqueues ev without blocking, dropping it if the
// logger goroutine is backed up rather than stalling the caller (which
// may be the realtime render path).
func (c *PlayerController) postLifecycleEvent(ev lifecycleEvent) {
	select {
	case c.lifecycleEvents <- ev:
	default:
	}
}

// Enqueue appends decoder to the pending queue, adopting its format as the
// ring buffer format if this is the first decoder, or rejecting it if its
// format does not bit-exactly match the established ring_buffer_format.
// The caller retains ownership of decoder on rejection.
func (c *PlayerController) Enqueue(decoder types.AudioDecoder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate, channels, bits := decoder.GetFormat()
	format := types.PCMFormat{SampleRate: rate, Channels: channels, BytesPerSample: bits / 8}

	if c.active.Current() == nil && c.pending.Empty() && c.ringBuffer == nil {
		if err := c.adoptFormat(format); err != nil {
			return fmt.Errorf("engine: enqueue: %w", err)
		}
	} else if !format.Equal(c.ringBufferFormat) {
		return fmt.Errorf("engine: enqueue %+v against established %+v: %w", format, c.ringBufferFormat, ErrFormatMismatchOnEnqueue)
	}

	c.pending.Push(decoder)
	c.decoderSignal.Signal()
	return nil
}

// adoptFormat establishes ring_buffer_format, allocates the RingBuffer and
// render scratch buffer, and builds the converter. Called with mu held.
func (c *PlayerController) adoptFormat(format types.PCMFormat) error {
	c.ringBufferFormat = format
	c.ringBuffer = NewRingBuffer(c.ringBufferCap, format.BytesPerFrame())
	c.renderScratch = make([]byte, renderScratchFrames*format.BytesPerFrame())

	if c.stream != nil {
		c.streamVirtualFormat = c.stream.VirtualFormat()
	} else {
		c.streamVirtualFormat = format
	}

	if c.converter == nil {
		return fmt.Errorf("engine: no converter configured: %w", ErrResourceAllocationFailed)
	}
	return c.converter.Reset()
}

// SetConverter installs the Converter collaborator. Must be called before
// the first Enqueue: the converter is built once the ring_buffer_format
// is known.
func (c *PlayerController) SetConverter(conv Converter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.converter = conv
}

// ClearQueue discards all pending (not yet activated) decoders, closing
// each one since the controller was their owner while queued.
func (c *PlayerController) ClearQueue() {
	for _, d := range c.pending.Clear() {
		d.Close()
	}
}

// Play starts (or resumes) output.
func (c *PlayerController) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return ErrInvalidDeviceOrStream
	}
	if c.state == statePlaying {
		return nil
	}

	c.device.RegisterRenderCallback(c.render.Render)
	if err := c.device.StartStream(); err != nil {
		return fmt.Errorf("engine: play: %w", ErrDeviceConfigurationFailed)
	}

	if c.startTime.IsZero() {
		c.startTime = time.Now()
	}
	c.state = statePlaying
	return nil
}

// Pause stops the device without resetting any counters, so a subsequent
// Play resumes exactly where playback left off: frames_rendered is left
// unchanged.
func (c *PlayerController) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseLocked()
}

func (c *PlayerController) pauseLocked() error {
	if c.device == nil || c.state != statePlaying {
		return nil
	}
	if err := c.device.StopStream(); err != nil {
		slog.Warn("engine: pause: failed to stop stream", "error", err)
	}
	c.state = statePaused
	return nil
}

// Stop requests Pause, marks every active decoder terminated and ready for
// collection, signals both worker threads, and zeros the global frame
// counters so a following Enqueue restarts from frame 0.
func (c *PlayerController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pauseLocked()

	c.active.Each(func(ds *DecoderState) {
		ds.StopDecoding()
		ds.MarkReadyForCollection()
	})

	c.decoderSignal.Signal()
	c.collectorSignal.Signal()

	c.framesDecoded.Store(0)
	c.framesRendered.Store(0)
	c.startTime = time.Time{}

	c.state = stateStopped
	return nil
}

// SeekToFrame asks the current decoder to seek to an absolute frame within
// its own stream. Returns false without mutating any state if there is no
// current decoder, the decoder does not support seeking, or a seek is
// already in flight.
func (c *PlayerController) SeekToFrame(frame int64) bool {
	ds := c.active.Current()
	if ds == nil {
		return false
	}
	if !ds.Decoder().SupportsSeeking() {
		return false
	}
	if !ds.frameToSeek.CompareAndSwap(-1, frame) {
		return false
	}
	c.decoderSignal.Signal()
	return true
}

// SeekBySeconds seeks the current decoder by a relative offset in seconds,
// translating to an absolute frame using the decoder's own sample rate.
func (c *PlayerController) SeekBySeconds(seconds float64) bool {
	ds := c.active.Current()
	if ds == nil {
		return false
	}
	delta := int64(seconds * float64(ds.Format().SampleRate))
	target := ds.Decoder().CurrentFrame() + delta
	if target < 0 {
		target = 0
	}
	return c.SeekToFrame(target)
}

// GetCurrentFrame returns the current decoder's playback position in its
// own frame numbering, or 0 if none is active.
func (c *PlayerController) GetCurrentFrame() int64 {
	ds := c.active.Current()
	if ds == nil {
		return 0
	}
	return ds.FramesRendered()
}

// GetTotalFrames returns the current decoder's known length, or -1 if
// unknown or none is active.
func (c *PlayerController) GetTotalFrames() int64 {
	ds := c.active.Current()
	if ds == nil {
		return -1
	}
	return ds.TotalFrames()
}

// SetOutputDevice closes the current device binding, opens device at
// deviceIndex, binds to it, and subscribes to virtual-format changes of
// its current stream. It does not subscribe to device property changes
// (running state, sample rate, stream list, overload) or to the stream's
// physical-format changes.
func (c *PlayerController) SetOutputDevice(device Device, deviceIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Close()
	}

	if err := device.Open(deviceIndex); err != nil {
		return fmt.Errorf("engine: set output device: %w", ErrInvalidDeviceOrStream)
	}

	c.device = device
	c.stream = device.CurrentStream()
	if c.stream != nil {
		c.stream.OnVirtualFormatChanged(c.onVirtualFormatChanged)
	}
	return nil
}

// SetOutputStream selects stream as the active output stream and
// subscribes to its virtual-format-change notifications.
func (c *PlayerController) SetOutputStream(stream Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = stream
	if stream != nil {
		stream.OnVirtualFormatChanged(c.onVirtualFormatChanged)
	}
}

// onVirtualFormatChanged is the property-listener handler invoked from a
// listener thread when the device's virtual format changes: it stops
// output, flags the change for the render path, rebuilds the converter,
// clears the flag, and restarts output if it was playing.
func (c *PlayerController) onVirtualFormatChanged(newFormat types.PCMFormat) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPlaying := c.state == statePlaying

	c.flags.Set(flagVirtualFormatChanged)
	c.pauseLocked()

	c.streamVirtualFormat = newFormat
	if c.converter != nil {
		if err := c.converter.Reset(); err != nil {
			slog.Error("engine: rebuild converter after format change", "error", err)
		}
	}

	c.flags.Clear(flagVirtualFormatChanged)

	if wasPlaying {
		if err := c.device.StartStream(); err != nil {
			slog.Error("engine: restart output after format change", "error", err)
			return
		}
		c.state = statePlaying
	}
}

// requestStopOutput is called from the render callback when it decides
// playback should stop (empty ring buffer with no current decoder, or a
// pending format change). It must not block, so it hands the pause to a
// new goroutine, which takes mu and stops the device if output is still
// playing.
func (c *PlayerController) requestStopOutput() {
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == statePlaying {
			c.pauseLocked()
		}
	}()
}

// resetOutput is a no-op in the system this design is drawn from,
// preserved as a hook in case a platform needs to flush device-side
// latency after a seek.
func (c *PlayerController) resetOutput() {
}

// SetVolume sets playback volume in [0, 1].
func (c *PlayerController) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
}

// Volume returns the current playback volume.
func (c *PlayerController) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetTagProvider installs the metadata/replay-gain collaborator. Not
// consulted by any playback path; purely a typed slot for a caller to use.
func (c *PlayerController) SetTagProvider(p metadata.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = p
}

// TagProvider returns the installed metadata/replay-gain collaborator.
func (c *PlayerController) TagProvider() metadata.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tags
}

// GetPlaybackStatus implements types.PlaybackMonitor, letting cmd drive a
// periodic status-logging ticker loop directly against a PlayerController.
func (c *PlayerController) GetPlaybackStatus() types.PlaybackStatus {
	c.mu.Lock()
	startTime := c.startTime
	format := c.ringBufferFormat
	c.mu.Unlock()

	ds := c.active.Current()
	var fileName string
	if ds != nil {
		fileName = fmt.Sprintf("timestamp=%d", ds.Timestamp())
	}

	rendered := c.framesRendered.Load()
	decoded := c.framesDecoded.Load()
	buffered := decoded - rendered
	if buffered < 0 {
		buffered = 0
	}

	var elapsed time.Duration
	if !startTime.IsZero() {
		elapsed = time.Since(startTime)
	}

	return types.PlaybackStatus{
		FileName:        fileName,
		SampleRate:      format.SampleRate,
		Channels:        format.Channels,
		BitsPerSample:   format.BytesPerSample * 8,
		PlayedSamples:   uint64(rendered),
		BufferedSamples: uint64(buffered),
		ElapsedTime:     elapsed,
	}
}

// SetDeviceSampleRate sets the device's nominal sample rate.
func (c *PlayerController) SetDeviceSampleRate(rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return ErrInvalidDeviceOrStream
	}
	if err := c.device.SetNominalSampleRate(rate); err != nil {
		return fmt.Errorf("engine: set device sample rate: %w", ErrDeviceConfigurationFailed)
	}
	return nil
}

// AcquireHogMode requests exclusive ownership of the output device by
// writing this process's PID to the device's hog-mode property.
func (c *PlayerController) AcquireHogMode(pid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return ErrInvalidDeviceOrStream
	}
	if err := c.device.SetHogMode(pid); err != nil {
		return fmt.Errorf("engine: acquire hog mode: %w", ErrDeviceConfigurationFailed)
	}
	return nil
}

// ReleaseHogMode releases hog mode by writing -1 (no owner) to the
// device's hog-mode property.
func (c *PlayerController) ReleaseHogMode() error {
	return c.AcquireHogMode(-1)
}

// lifecycleCallbacksFor builds the LifecycleCallbacks struct the worker
// installs on a decoder it is about to activate. It is empty: the engine
// fires all four events itself through the fire* methods below,
// decoding-started and decoding-finished from the worker thread
// (worker.go), rendering-started and rendering-finished from render.go's
// distribute, so no decoder hook is involved.
func (c *PlayerController) lifecycleCallbacksFor(ds *DecoderState) types.LifecycleCallbacks {
	return types.LifecycleCallbacks{}
}

func (c *PlayerController) fireDecodingStarted(ds *DecoderState) {
	c.postLifecycleEvent(lifecycleEvent{kind: "decoding_started", timestamp: ds.Timestamp()})
}

func (c *PlayerController) fireDecodingFinished(ds *DecoderState) {
	c.postLifecycleEvent(lifecycleEvent{kind: "decoding_finished", timestamp: ds.Timestamp(), totalFrames: ds.TotalFrames()})
}

func (c *PlayerController) fireRenderingStarted(ds *DecoderState) {
	c.postLifecycleEvent(lifecycleEvent{kind: "rendering_started", timestamp: ds.Timestamp()})
}

func (c *PlayerController) fireRenderingFinished(ds *DecoderState) {
	c.postLifecycleEvent(lifecycleEvent{kind: "rendering_finished", timestamp: ds.Timestamp()})
}

// Close stops playback and shuts down the worker and collector goroutines.
// The controller is not usable afterward.
func (c *PlayerController) Close() error {
	c.Stop()
	c.worker.Stop()
	c.collector.Stop()
	c.ClearQueue()
	close(c.lifecycleEvents)
	if c.device != nil {
		return c.device.Close()
	}
	return nil
}

// waitForDrain blocks until no current decoder remains active and the
// pending queue is empty; Wait, which cmd's play command calls to know
// when a playlist has finished, is built on it.
func (c *PlayerController) waitForDrain(pollInterval time.Duration) {
	for c.active.Current() != nil || !c.pending.Empty() {
		time.Sleep(pollInterval)
	}
}

// Wait blocks until the pending queue is empty and no decoder is active,
// generalizing a single-file Wait (which blocked on one file's completion
// channel) to a queue-drain model where a caller enqueues a whole
// playlist up front.
func (c *PlayerController) Wait() {
	c.waitForDrain(50 * time.Millisecond)
}
