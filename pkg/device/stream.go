package device

import (
	"sync"

	"github.com/drgolem/gapless/pkg/types"
)

// Stream is pkg/device's implementation of the engine's Stream
// collaborator: it reports the negotiated PCM format and lets the
// controller subscribe to format-change notifications.
//
// PortAudio doesn't distinguish a "virtual" format (what the application
// writes) from a "physical" format (what the hardware actually consumes)
// the way the CoreAudio-style interface the engine assumes does; this
// wrapper tracks them as the same negotiated format and updates both
// together. Any real mismatch between what a decoder produces and what
// the device wants is the Converter collaborator's job, not this one's.
type Stream struct {
	mu             sync.RWMutex
	virtualFormat  types.PCMFormat
	physicalFormat types.PCMFormat

	virtualListeners  []func(types.PCMFormat)
	physicalListeners []func(types.PCMFormat)
}

func newStream(format types.PCMFormat) *Stream {
	return &Stream{
		virtualFormat:  format,
		physicalFormat: format,
	}
}

// VirtualFormat returns the format the application currently writes.
func (s *Stream) VirtualFormat() types.PCMFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.virtualFormat
}

// PhysicalFormat returns the format the hardware currently consumes.
func (s *Stream) PhysicalFormat() types.PCMFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.physicalFormat
}

// OnVirtualFormatChanged registers fn to be called whenever the virtual
// format changes. fn is invoked synchronously by Device.SetNominalSampleRate
// on the caller's goroutine, never from the realtime render path.
func (s *Stream) OnVirtualFormatChanged(fn func(types.PCMFormat)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.virtualListeners = append(s.virtualListeners, fn)
}

// OnPhysicalFormatChanged registers fn to be called whenever the physical
// format changes.
func (s *Stream) OnPhysicalFormatChanged(fn func(types.PCMFormat)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.physicalListeners = append(s.physicalListeners, fn)
}

func (s *Stream) setVirtualFormat(f types.PCMFormat) {
	s.mu.Lock()
	changed := f != s.virtualFormat
	if changed {
		s.virtualFormat = f
	}
	listeners := append([]func(types.PCMFormat){}, s.virtualListeners...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(f)
	}
}

func (s *Stream) setPhysicalFormat(f types.PCMFormat) {
	s.mu.Lock()
	changed := f != s.physicalFormat
	if changed {
		s.physicalFormat = f
	}
	listeners := append([]func(types.PCMFormat){}, s.physicalListeners...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(f)
	}
}
