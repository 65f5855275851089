package types

import (
	"errors"
	"time"
)

// PCMFormat describes the layout of decoded PCM frames: sample rate,
// channel count, and bytes per sample. It is the format-pair type shared by
// the ring buffer, the decoders, the converter, and the device stream.
type PCMFormat struct {
	SampleRate     int
	Channels       int
	BytesPerSample int
	NonInterleaved bool
}

// BytesPerFrame returns the number of bytes one multi-channel PCM frame
// occupies in this format.
func (f PCMFormat) BytesPerFrame() int {
	return f.Channels * f.BytesPerSample
}

// Equal reports whether two formats are bit-exact, the requirement for a
// gapless join between two consecutive decoders.
func (f PCMFormat) Equal(other PCMFormat) bool {
	return f.SampleRate == other.SampleRate &&
		f.Channels == other.Channels &&
		f.BytesPerSample == other.BytesPerSample &&
		f.NonInterleaved == other.NonInterleaved
}

// LifecycleCallbacks are the four hooks a decoder fires over its lifetime:
// decoding-started and decoding-finished from the worker thread,
// rendering-started and rendering-finished from the render thread.
type LifecycleCallbacks struct {
	DecodingStarted   func()
	DecodingFinished  func()
	RenderingStarted  func()
	RenderingFinished func()
}

// AudioDecoder is the common interface for all audio decoders (MP3, FLAC,
// WAV, Opus, Vorbis, and streaming sources). Decoders implement this to
// provide a consistent API for decoding into raw PCM samples, plus the seek
// and lifecycle-callback surface the gapless engine needs to drive the seek
// protocol and fire lifecycle events.
type AudioDecoder interface {
	// Open opens an audio source for decoding.
	Open(fileName string) error

	// Close closes the decoder and releases resources.
	Close() error

	// GetFormat returns the audio format information.
	// Returns: sample rate (Hz), channels (1=mono, 2=stereo), bits per sample.
	GetFormat() (rate, channels, bitsPerSample int)

	// DecodeSamples decodes audio samples into the provided buffer.
	// Returns the number of samples actually decoded; 0 with a nil error
	// means end-of-stream.
	DecodeSamples(samples int, audio []byte) (int, error)

	// SupportsSeeking reports whether SeekToFrame can succeed.
	SupportsSeeking() bool

	// CurrentFrame returns the decoder's current read position in frames.
	CurrentFrame() int64

	// SeekToFrame asks the decoder to seek to the given absolute frame
	// index within its own stream and returns the frame it actually landed
	// on, or a negative value if the seek failed.
	SeekToFrame(frame int64) int64

	// SetLifecycleCallbacks installs the hooks the engine fires over this
	// decoder's life. Implementations that cannot fire a given hook may
	// leave the corresponding field nil without error.
	SetLifecycleCallbacks(cb LifecycleCallbacks)
}

// PlaybackStatus holds unified playback information for audio players.
// This struct provides real-time metrics for monitoring audio playback.
type PlaybackStatus struct {
	FileName        string        // Name of the currently playing file
	SampleRate      int           // Audio sample rate in Hz (e.g., 44100, 48000)
	Channels        int           // Number of audio channels (1=mono, 2=stereo)
	BitsPerSample   int           // Bit depth (8, 16, 24, or 32)
	FramesPerBuffer int           // Device frames per buffer (if applicable)
	PlayedSamples   uint64        // Samples actually sent to audio output (played)
	BufferedSamples uint64        // Samples decoded but not yet played (in-flight)
	ElapsedTime     time.Duration // Wall-clock time since playback started
}

// PlaybackMonitor is an interface for types that can report playback status.
// Implementing this interface allows consistent status monitoring across
// different player implementations.
type PlaybackMonitor interface {
	GetPlaybackStatus() PlaybackStatus
}

// Common ring buffer errors used across the engine and decoder packages.
// These enable consistent error handling and comparison using errors.Is().
var (
	// ErrInsufficientSpace indicates the ring buffer doesn't have enough space for the write operation
	ErrInsufficientSpace = errors.New("insufficient space in ring buffer")

	// ErrInsufficientData indicates the ring buffer doesn't have enough data for the read operation
	ErrInsufficientData = errors.New("insufficient data in ring buffer")
)
