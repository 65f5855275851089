package engine

import "errors"

// Error kinds surfaced by the engine's control operations. The render
// callback and the decoder worker never return these to their callers —
// the hot path degrades to silence and logs instead; they exist for
// PlayerController's control-plane methods.
var (
	ErrInvalidDeviceOrStream     = errors.New("engine: invalid device or stream")
	ErrResourceAllocationFailed  = errors.New("engine: resource allocation failed")
	ErrDecoderRejected           = errors.New("engine: decoder rejected")
	ErrFormatMismatchOnEnqueue   = errors.New("engine: format mismatch on enqueue")
	ErrSeekUnsupported           = errors.New("engine: seek unsupported by decoder")
	ErrSeekFailed                = errors.New("engine: seek failed")
	ErrDeviceConfigurationFailed = errors.New("engine: device configuration failed")
	ErrBufferOverrun             = errors.New("engine: ring buffer overrun")
)
