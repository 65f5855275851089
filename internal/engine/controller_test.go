package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drgolem/gapless/pkg/types"
)

// fakeDecoder produces a fixed number of silent frames then reports EOS,
// matching the read-returning-0-means-EOS contract decoders follow.
type fakeDecoder struct {
	mu            sync.Mutex
	rate          int
	channels      int
	bits          int
	framesLeft    int64
	currentFrame  int64
	supportsSeek  bool
	closeCalled   bool
	lifecycle     types.LifecycleCallbacks
}

func newFakeDecoder(totalFrames int64) *fakeDecoder {
	return &fakeDecoder{rate: 44100, channels: 2, bits: 16, framesLeft: totalFrames}
}

func (d *fakeDecoder) Open(fileName string) error { return nil }
func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalled = true
	return nil
}
func (d *fakeDecoder) GetFormat() (int, int, int) { return d.rate, d.channels, d.bits }

func (d *fakeDecoder) DecodeSamples(samples int, audio []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.framesLeft == 0 {
		return 0, nil
	}
	n := int64(samples)
	if n > d.framesLeft {
		n = d.framesLeft
	}
	d.framesLeft -= n
	d.currentFrame += n
	return int(n), nil
}

func (d *fakeDecoder) SupportsSeeking() bool   { return d.supportsSeek }
func (d *fakeDecoder) CurrentFrame() int64     { return d.currentFrame }
func (d *fakeDecoder) SeekToFrame(f int64) int64 {
	if !d.supportsSeek {
		return -1
	}
	d.currentFrame = f
	return f
}
func (d *fakeDecoder) SetLifecycleCallbacks(cb types.LifecycleCallbacks) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lifecycle = cb
}

// fakeConverter passes PCM straight through without resampling, pulling
// from the ring buffer one output-sized slab at a time.
type fakeConverter struct{}

func (fakeConverter) Fill(numFrames int, output []byte, input InputCallback) (int, error) {
	buf, n := input(uint64(numFrames))
	copy(output, buf)
	return int(n), nil
}
func (fakeConverter) Reset() error                       { return nil }
func (fakeConverter) CalculateInputBufferSize(n int) int { return n }
func (fakeConverter) Dispose() error                     { return nil }

// fakeDevice is a no-op Device collaborator sufficient to exercise
// PlayerController's control-plane methods without a real PortAudio
// stream.
type fakeDevice struct {
	started bool
	cb      func([]byte) int
}

func (d *fakeDevice) Open(int) error                          { return nil }
func (d *fakeDevice) Close() error                             { return nil }
func (d *fakeDevice) RegisterRenderCallback(cb func([]byte) int) { d.cb = cb }
func (d *fakeDevice) SetNominalSampleRate(float64) error       { return nil }
func (d *fakeDevice) SetHogMode(int) error                     { return nil }
func (d *fakeDevice) SetBufferFrameSize(int) error              { return nil }
func (d *fakeDevice) StartStream() error                       { d.started = true; return nil }
func (d *fakeDevice) StopStream() error                        { d.started = false; return nil }
func (d *fakeDevice) CurrentStream() Stream                    { return nil }

func newTestController() (*PlayerController, *fakeDevice) {
	dev := &fakeDevice{}
	c := NewPlayerController(dev, DefaultConfig())
	c.SetConverter(fakeConverter{})
	return c, dev
}

func TestEnqueueAdoptsFormatOnFirstDecoder(t *testing.T) {
	c, _ := newTestController()
	defer c.Close()

	d := newFakeDecoder(1000)
	if err := c.Enqueue(d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	want := types.PCMFormat{SampleRate: 44100, Channels: 2, BytesPerSample: 2}
	if c.ringBufferFormat != want {
		t.Fatalf("ringBufferFormat = %+v, want %+v", c.ringBufferFormat, want)
	}
}

func TestEnqueueRejectsFormatMismatch(t *testing.T) {
	c, _ := newTestController()
	defer c.Close()

	first := newFakeDecoder(1000)
	if err := c.Enqueue(first); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}

	mismatched := newFakeDecoder(1000)
	mismatched.rate = 48000
	err := c.Enqueue(mismatched)
	if err == nil {
		t.Fatal("expected format mismatch rejection, got nil")
	}
	if !errors.Is(err, ErrFormatMismatchOnEnqueue) {
		t.Fatalf("error = %v, want ErrFormatMismatchOnEnqueue", err)
	}
}

func TestSeekToFrameRejectedWhenUnsupported(t *testing.T) {
	c, _ := newTestController()
	defer c.Close()

	d := newFakeDecoder(1000)
	d.supportsSeek = false
	if err := c.Enqueue(d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for c.active.Current() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if c.SeekToFrame(0) {
		t.Fatal("SeekToFrame succeeded on a decoder that does not support seeking")
	}
}

func TestStopZeroesGlobalCounters(t *testing.T) {
	c, _ := newTestController()
	defer c.Close()

	c.framesDecoded.Store(500)
	c.framesRendered.Store(200)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if c.framesDecoded.Load() != 0 || c.framesRendered.Load() != 0 {
		t.Fatalf("counters not zeroed: decoded=%d rendered=%d", c.framesDecoded.Load(), c.framesRendered.Load())
	}
}

func TestPlayRegistersRenderCallbackAndStartsStream(t *testing.T) {
	c, dev := newTestController()
	defer c.Close()

	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !dev.started {
		t.Fatal("device stream was not started")
	}
	if dev.cb == nil {
		t.Fatal("render callback was not registered")
	}
}

func TestGetPlaybackStatusReflectsFormatAndCounters(t *testing.T) {
	c, _ := newTestController()
	defer c.Close()

	d := newFakeDecoder(1000)
	if err := c.Enqueue(d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	c.framesDecoded.Store(500)
	c.framesRendered.Store(200)

	status := c.GetPlaybackStatus()
	if status.SampleRate != 44100 || status.Channels != 2 || status.BitsPerSample != 16 {
		t.Fatalf("status format = %+v, want 44100/2/16", status)
	}
	if status.PlayedSamples != 200 {
		t.Fatalf("PlayedSamples = %d, want 200", status.PlayedSamples)
	}
	if status.BufferedSamples != 300 {
		t.Fatalf("BufferedSamples = %d, want 300", status.BufferedSamples)
	}
}

func TestTagProviderDefaultsToNopProvider(t *testing.T) {
	c, _ := newTestController()
	defer c.Close()

	if _, err := c.TagProvider().ReadTags("x.flac"); err == nil {
		t.Fatal("expected default NopProvider to return an error")
	}
}

func TestDecoderWorkerDecodesEnqueuedDecoder(t *testing.T) {
	c, _ := newTestController()
	defer c.Close()

	d := newFakeDecoder(4096)
	if err := c.Enqueue(d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.framesDecoded.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if c.framesDecoded.Load() == 0 {
		t.Fatal("worker did not decode any frames within timeout")
	}
}
