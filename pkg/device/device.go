// Package device wraps github.com/drgolem/go-portaudio as the engine's
// Device collaborator, generalizing the direct PortAudio calls a
// single-file player would make inline into a standalone collaborator
// the engine controls through an interface.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/gapless/internal/engine"
	"github.com/drgolem/gapless/pkg/types"

	"github.com/drgolem/go-portaudio/portaudio"
)

const (
	defaultSampleRate      = 44100.0
	defaultChannels        = 2
	defaultBitsPerSample   = 16
	defaultFramesPerBuffer = 512

	// propertyPollInterval drives the background diff loop that stands in
	// for CoreAudio's native property-listener API, which PortAudio has no
	// equivalent of (the same shape as cmd/play.go's status-logging ticker).
	propertyPollInterval = 250 * time.Millisecond
)

// ErrNoRenderCallback is returned by StartStream if RegisterRenderCallback
// was never called.
var ErrNoRenderCallback = errors.New("device: no render callback registered")

// Device wraps a single PortAudio output device. Zero value is not usable;
// construct with New.
type Device struct {
	mu sync.Mutex

	deviceIndex     int
	sampleRate      float64
	channels        int
	bitsPerSample   int
	framesPerBuffer int
	hogPID          int

	paStream *portaudio.PaStream
	renderCB func([]byte) int
	running  bool

	stream *Stream

	stopPoll chan struct{}
}

// New creates a Device with sensible CD-quality defaults. Open must be
// called before StartStream.
func New() *Device {
	return &Device{
		sampleRate:      defaultSampleRate,
		channels:        defaultChannels,
		bitsPerSample:   defaultBitsPerSample,
		framesPerBuffer: defaultFramesPerBuffer,
		hogPID:          -1,
	}
}

// Open binds the device to deviceIndex and starts the property-poll
// goroutine. deviceIndex of -1 selects PortAudio's default output device,
// the "unset" sentinel used by engine.DefaultConfig.
func (d *Device) Open(deviceIndex int) error {
	d.mu.Lock()
	d.deviceIndex = deviceIndex
	d.stream = newStream(d.formatLocked())
	d.stopPoll = make(chan struct{})
	stopPoll := d.stopPoll
	d.mu.Unlock()

	go d.pollProperties(stopPoll)
	return nil
}

// Close tears down any open stream and stops the property-poll goroutine.
func (d *Device) Close() error {
	d.mu.Lock()
	stream := d.paStream
	stopPoll := d.stopPoll
	d.paStream = nil
	d.stopPoll = nil
	d.running = false
	d.mu.Unlock()

	if stopPoll != nil {
		close(stopPoll)
	}
	if stream == nil {
		return nil
	}
	if err := stream.StopStream(); err != nil {
		slog.Warn("device: stop stream on close", "error", err)
	}
	return stream.CloseCallback()
}

// RegisterRenderCallback installs cb as the PortAudio stream callback.
// cb is invoked from PortAudio's realtime audio thread, not a Go
// goroutine, so it must honor the same realtime constraints as the
// render path itself.
func (d *Device) RegisterRenderCallback(cb func(output []byte) int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderCB = cb
}

// CurrentStream returns the device's current Stream, or nil if Open has
// not been called. Returns engine.Stream (rather than *Stream) so *Device
// satisfies engine.Device's CurrentStream method exactly.
func (d *Device) CurrentStream() engine.Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	return d.stream
}

func (d *Device) formatLocked() types.PCMFormat {
	return types.PCMFormat{
		SampleRate:     int(d.sampleRate),
		Channels:       d.channels,
		BytesPerSample: d.bitsPerSample / 8,
	}
}

func (d *Device) sampleFormatLocked() portaudio.PaSampleFormat {
	switch d.bitsPerSample {
	case 24:
		return portaudio.SampleFmtInt24
	case 32:
		return portaudio.SampleFmtInt32
	default:
		return portaudio.SampleFmtInt16
	}
}

// StartStream opens (if necessary) and starts the PortAudio callback
// stream against the device's currently configured format and buffer
// size.
func (d *Device) StartStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.renderCB == nil {
		return ErrNoRenderCallback
	}

	if d.paStream != nil {
		if err := d.paStream.StartStream(); err != nil {
			return fmt.Errorf("device: start stream: %w", err)
		}
		d.running = true
		return nil
	}

	cb := d.renderCB
	paStream := &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  d.deviceIndex,
			ChannelCount: d.channels,
			SampleFormat: d.sampleFormatLocked(),
		},
		SampleRate: d.sampleRate,
	}

	// paCallback runs on PortAudio's own audio thread. It must not
	// allocate or block; it only forwards to the engine's RenderCallback,
	// which owns that constraint itself.
	paCallback := func(
		input, output []byte,
		frameCount uint,
		timeInfo *portaudio.StreamCallbackTimeInfo,
		statusFlags portaudio.StreamCallbackFlags,
	) portaudio.StreamCallbackResult {
		cb(output)
		return portaudio.Continue
	}

	if err := paStream.OpenCallback(d.framesPerBuffer, paCallback); err != nil {
		return fmt.Errorf("device: open stream: %w", err)
	}
	if err := paStream.StartStream(); err != nil {
		paStream.CloseCallback()
		return fmt.Errorf("device: start stream: %w", err)
	}

	d.paStream = paStream
	d.running = true
	return nil
}

// StopStream stops the PortAudio stream without closing it, so a
// subsequent StartStream resumes immediately without reopening.
func (d *Device) StopStream() error {
	d.mu.Lock()
	stream := d.paStream
	d.running = false
	d.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.StopStream(); err != nil {
		return fmt.Errorf("device: stop stream: %w", err)
	}
	return nil
}

// SetNominalSampleRate reconfigures the device's output sample rate,
// reopening the underlying PortAudio stream if one is active and
// notifying Stream listeners of the resulting virtual-format change.
func (d *Device) SetNominalSampleRate(rate float64) error {
	return d.reconfigure(func() bool {
		if d.sampleRate == rate {
			return false
		}
		d.sampleRate = rate
		return true
	})
}

// SetBufferFrameSize sets the PortAudio frames-per-buffer period,
// reopening the stream if one is active. This does not change the PCM
// format, so it does not fire a virtual-format-changed notification.
func (d *Device) SetBufferFrameSize(frames int) error {
	d.mu.Lock()
	if d.framesPerBuffer == frames {
		d.mu.Unlock()
		return nil
	}
	d.framesPerBuffer = frames
	wasRunning := d.paStream != nil && d.running
	old := d.paStream
	d.paStream = nil
	d.mu.Unlock()

	if old != nil {
		old.StopStream()
		old.CloseCallback()
	}
	if wasRunning {
		return d.StartStream()
	}
	return nil
}

// SetHogMode requests exclusive ownership of the device by pid, or
// releases it when pid is negative. PortAudio, unlike CoreAudio, has no
// portable cross-host-API hog-mode property; this records the request so
// AcquireHogMode/ReleaseHogMode round-trip correctly, but cannot enforce
// exclusivity at the OS level on every backend.
func (d *Device) SetHogMode(pid int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hogPID = pid
	return nil
}

// reconfigure runs mutate with the device lock held; if it reports a real
// change, the underlying stream (if any) is torn down and reopened with
// the new settings, and the Stream's virtual format listeners are
// notified.
func (d *Device) reconfigure(mutate func() bool) error {
	d.mu.Lock()
	changed := mutate()
	if !changed {
		d.mu.Unlock()
		return nil
	}
	wasRunning := d.paStream != nil && d.running
	old := d.paStream
	d.paStream = nil
	format := d.formatLocked()
	stream := d.stream
	d.mu.Unlock()

	if old != nil {
		old.StopStream()
		old.CloseCallback()
	}
	if stream != nil {
		stream.setVirtualFormat(format)
		stream.setPhysicalFormat(format)
	}
	if wasRunning {
		return d.StartStream()
	}
	return nil
}

// pollProperties stands in for CoreAudio's native property-listener API.
// It only watches is_running, since that's the one property this
// PortAudio binding actually exposes a live signal for; nominal sample
// rate changes are already pushed synchronously through
// reconfigure/setVirtualFormat above, and buffer size changes fire no
// notification. processor_overload and physical
// device enumeration have no equivalent in this binding and are not
// polled rather than fabricated.
func (d *Device) pollProperties(stop chan struct{}) {
	ticker := time.NewTicker(propertyPollInterval)
	defer ticker.Stop()

	lastRunning := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			running := d.running
			d.mu.Unlock()
			if running != lastRunning {
				slog.Debug("device: is_running changed", "running", running)
				lastRunning = running
			}
		}
	}
}
