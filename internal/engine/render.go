package engine

// InputCallback is the shape the converter pulls PCM through: it returns
// one ring-buffer-aligned slab of up to maxFrames frames, plus the number
// of frames actually filled. The render callback's own input callback
// implementation fetches from the RingBuffer at frames_rendered and
// advances that counter atomically.
type InputCallback func(maxFrames uint64) (buf []byte, frames uint64)

// Converter is the format-conversion collaborator, named at interface
// only: it pulls PCM from the ring buffer via an InputCallback
// and fills a device output buffer, doing whatever sample-rate or
// bit-depth adaptation is needed. pkg/converter.Resampler implements this
// against github.com/zaf/resample.
type Converter interface {
	Fill(numFrames int, output []byte, input InputCallback) (int, error)
	Reset() error
	CalculateInputBufferSize(outputBytes int) int
	Dispose() error
}

// RenderCallback is invoked by the device's realtime context once per
// output buffer period. It must not allocate, block, or take a lock:
// every field it touches is an atomic or a wait-free ActiveSet scan.
type RenderCallback struct {
	controller *PlayerController
}

// NewRenderCallback binds a RenderCallback to its controller.
func NewRenderCallback(controller *PlayerController) *RenderCallback {
	return &RenderCallback{controller: controller}
}

// Render fills output with up to len(output)/bytesPerFrame frames of PCM
// and returns the number of frames actually produced (possibly silence).
// This is the function registered with the Device collaborator as its
// periodic render callback.
func (r *RenderCallback) Render(output []byte) int {
	c := r.controller

	if c.flags.Has(flagVirtualFormatChanged) {
		c.requestStopOutput()
		return r.silence(output)
	}

	if c.flags.Has(flagIsSeeking) {
		return r.silence(output)
	}

	avail := c.framesDecoded.Load() - c.framesRendered.Load()
	if avail == 0 {
		if c.active.Current() == nil {
			c.requestStopOutput()
		}
		return r.silence(output)
	}

	if c.converter == nil {
		return r.silence(output)
	}

	startRendered := c.framesRendered.Load()
	bpf := c.ringBufferFormat.BytesPerFrame()
	scratchOffset := 0

	// input draws frames from a pre-sized scratch buffer owned by the
	// controller rather than allocating, since Fill may call it more than
	// once per Render and the render path must not allocate.
	input := func(maxFrames uint64) ([]byte, uint64) {
		decoded := uint64(c.framesDecoded.Load())
		rendered := uint64(c.framesRendered.Load())
		avail := uint64(0)
		if decoded > rendered {
			avail = decoded - rendered
		}
		n := min(maxFrames, avail)
		if n == 0 {
			return nil, 0
		}
		byteLen := int(n) * bpf
		if scratchOffset+byteLen > len(c.renderScratch) {
			n = uint64((len(c.renderScratch) - scratchOffset) / bpf)
			if n == 0 {
				return nil, 0
			}
			byteLen = int(n) * bpf
		}
		buf := c.renderScratch[scratchOffset : scratchOffset+byteLen]
		scratchOffset += byteLen
		real := c.ringBuffer.Fetch(buf, n, rendered, decoded)
		c.framesRendered.Add(int64(n))
		return buf, real
	}

	bytesPerFrame := c.streamVirtualFormat.BytesPerFrame()
	numFrames := len(output) / bytesPerFrame
	written, err := c.converter.Fill(numFrames, output, input)
	if err != nil {
		return r.silence(output)
	}

	renderedThisPass := c.framesRendered.Load() - startRendered

	if c.ringBuffer.Capacity()-uint64(c.framesDecoded.Load()-c.framesRendered.Load()) >= writeChunkFrames {
		c.decoderSignal.Signal()
	}

	r.distribute(renderedThisPass)

	return written
}

// distribute attributes renderedThisPass frames across active decoders in
// timestamp order, firing lifecycle callbacks and marking decoders ready
// for collection as they drain.
func (r *RenderCallback) distribute(renderedThisPass int64) {
	c := r.controller
	remaining := renderedThisPass

	ds := c.active.Current()
	for remaining > 0 && ds != nil {
		total := ds.TotalFrames()
		already := ds.FramesRendered()

		var remainingInDecoder int64 = 1<<63 - 1
		if total >= 0 {
			remainingInDecoder = total - already
			if remainingInDecoder < 0 {
				remainingInDecoder = 0
			}
		}

		attribute := remaining
		if attribute > remainingInDecoder {
			attribute = remainingInDecoder
		}

		if attribute > 0 {
			if already == 0 {
				c.fireRenderingStarted(ds)
			}
			ds.AddFramesRendered(attribute)
			remaining -= attribute
		}

		if ds.TotalFrames() >= 0 && ds.FramesRendered() >= ds.TotalFrames() {
			c.fireRenderingFinished(ds)
			ds.MarkReadyForCollection()
			c.collectorSignal.Signal()
		}

		ds = c.active.NextAfter(ds.Timestamp())
	}
}

// silence zeroes output and returns the frame count it represents, the
// degrade-to-silence behavior required of the hot path on every error or
// gating condition.
func (r *RenderCallback) silence(output []byte) int {
	clear(output)
	bytesPerFrame := r.controller.streamVirtualFormat.BytesPerFrame()
	if bytesPerFrame == 0 {
		return 0
	}
	return len(output) / bytesPerFrame
}
