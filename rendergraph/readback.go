// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

// PickResult is the decoded contents of a picking readback buffer: a
// packed entity ID, with 0 reserved for "background/nothing".
type PickResult struct {
	HasHit   bool
	EntityID uint32
}

// pickRequest tracks one in-flight picking readback against the frame
// slot it was queued in.
type pickRequest struct {
	pending     bool
	globalFrame uint64
}

// PickReader reads a mapped, host-visible readback buffer's packed
// entity ID. Supplied by the device layer; the buffer behind slot
// frameIndex is expected to have been the transfer destination of a
// single-pixel copy from the picking pass's output image.
type PickReader interface {
	ReadPickBuffer(frameIndex uint32) uint32
}

// ReadbackBuffer is a supplemented helper grounded on
// Graphics.Interaction.cpp's InteractionSystem: one picking readback
// request per frame-in-flight slot, consumed once the GPU has
// completed the global frame that queued it. The render graph only
// owns the bookkeeping here; the actual buffer allocation and the
// single-pixel copy into it are recorded by the pass that produces
// the picking target, via the graph's normal resource/barrier machinery.
type ReadbackBuffer struct {
	reader   PickReader
	requests []pickRequest

	lastResult    PickResult
	hasPending    bool
	pendingResult PickResult
}

// NewReadbackBuffer constructs a ReadbackBuffer with one request slot
// per frame in flight.
func NewReadbackBuffer(reader PickReader, framesInFlight int) *ReadbackBuffer {
	return &ReadbackBuffer{
		reader:   reader,
		requests: make([]pickRequest, framesInFlight),
	}
}

// RequestPick marks frameIndex's slot as awaiting a readback, tagged
// with the global frame that will produce it. While any slot still has
// a pick pending, the request is ignored, matching the original's
// "already have a pending pick request" short-circuit.
func (rb *ReadbackBuffer) RequestPick(frameIndex uint32, globalFrame uint64) {
	if rb.hasPendingThisFrame() {
		return
	}
	rb.requests[frameIndex] = pickRequest{pending: true, globalFrame: globalFrame}
}

func (rb *ReadbackBuffer) hasPendingThisFrame() bool {
	for i := range rb.requests {
		if rb.requests[i].pending {
			return true
		}
	}
	return false
}

// ProcessReadbacks scans every frame slot; any whose queued global
// frame has completed on the GPU gets its buffer read, decoded, and
// queued for TryConsumePickResult, then the slot is cleared.
func (rb *ReadbackBuffer) ProcessReadbacks(completedGlobalFrame uint64) {
	for i := range rb.requests {
		req := &rb.requests[i]
		if !req.pending || req.globalFrame > completedGlobalFrame {
			continue
		}

		pixel := rb.reader.ReadPickBuffer(uint32(i))
		rb.lastResult = PickResult{HasHit: pixel != 0, EntityID: pixel}
		rb.hasPending = true
		rb.pendingResult = rb.lastResult

		req.pending = false
		req.globalFrame = 0
	}
}

// TryConsumePickResult returns the most recently decoded pick result
// once, then clears it; ok is false if nothing new is pending.
func (rb *ReadbackBuffer) TryConsumePickResult() (result PickResult, ok bool) {
	if !rb.hasPending {
		return PickResult{}, false
	}
	rb.hasPending = false
	return rb.pendingResult, true
}

// LastResult returns the most recently decoded pick result regardless
// of whether it has already been consumed.
func (rb *ReadbackBuffer) LastResult() PickResult { return rb.lastResult }
