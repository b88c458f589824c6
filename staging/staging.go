// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package staging implements the Staging Belt (C3): a fixed-capacity,
// persistently mapped host-visible ring buffer with a FIFO of retired
// regions tagged by transfer timeline value. Grounded stylistically on
// the teacher's descriptor-pool growth accounting in
// hal/vulkan/descriptor.go, but the algorithm itself follows spec.md
// §4.3's head/tail/pending-range wrap logic exactly.
package staging

import (
	"sync"

	"github.com/gogpu/rendercore/errs"
)

// Region is a retired, GPU-timeline-tagged byte range of the belt.
type Region struct {
	Start, End uint64
	Value      uint64
}

// Allocation is the result of a successful Allocate call: the caller
// writes into Mapped[:Size] and records Offset for the copy command.
type Allocation struct {
	Offset uint64
	Size   uint64
	Mapped []byte
}

// Belt is the fixed-capacity ring. Buffer and Mapped must be supplied
// by the caller (the device layer owns the persistently-mapped
// VkBuffer); this package only manages offsets.
type Belt struct {
	mu       sync.Mutex
	capacity uint64
	mapped   []byte

	head uint64
	tail uint64

	pendingOpen  bool
	pendingStart uint64
	pendingEnd   uint64

	inFlight []Region
}

// New wraps a persistently mapped host-visible buffer of the given
// capacity.
func New(mapped []byte) *Belt {
	return &Belt{capacity: uint64(len(mapped)), mapped: mapped}
}

func alignUp(v, alignment uint64) uint64 {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

// Allocate reserves size bytes aligned to alignment, per spec.md
// §4.3's accept/wrap/fail decision tree. On success the pending range
// is extended (or opened) to cover the new allocation.
func (b *Belt) Allocate(size, alignment uint64) (Allocation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	alignedTail := alignUp(b.tail, alignment)
	if b.fits(alignedTail, size) {
		return b.accept(alignedTail, size), true
	}

	if b.pendingOpen {
		// Disallow wrapping while a pending range is open; callers
		// must retire between wrap-heavy batches.
		return Allocation{}, false
	}

	// Try wrapping: reset candidate to 0.
	if b.fits(0, size) {
		return b.accept(0, size), true
	}

	return Allocation{}, false
}

// fits reports whether [start, start+size) lies below capacity and
// does not overlap any region that is still live: every retired-but-
// not-yet-collected entry in inFlight, plus the currently open pending
// range. head alone cannot decide this — head only advances on
// GarbageCollect, so a region can be retired (no longer pending) and
// still be live data the GPU hasn't finished reading; checking against
// head==0 would treat that data as free, aliasing it on wrap.
func (b *Belt) fits(start, size uint64) bool {
	end := start + size
	if end > b.capacity {
		return false
	}
	for _, r := range b.inFlight {
		if start < r.End && end > r.Start {
			return false
		}
	}
	if b.pendingOpen && start < b.pendingEnd && end > b.pendingStart {
		return false
	}
	return true
}

func (b *Belt) accept(start, size uint64) Allocation {
	end := start + size
	if !b.pendingOpen {
		b.pendingOpen = true
		b.pendingStart = start
		b.pendingEnd = end
	} else {
		if start < b.pendingStart {
			b.pendingStart = start
		}
		if end > b.pendingEnd {
			b.pendingEnd = end
		}
	}
	b.tail = end
	return Allocation{Offset: start, Size: size, Mapped: b.mapped[start:end]}
}

// AllocateForImage is the image-upload helper: same as Allocate with
// alignment = max(baseOffsetAlignment, rowPitchAlignment if rowPitch
// != 0, texelBlockSize).
func (b *Belt) AllocateForImage(size, baseOffsetAlignment, rowPitchAlignment, rowPitch, texelBlockSize uint64) (Allocation, bool) {
	alignment := baseOffsetAlignment
	if rowPitch != 0 && rowPitchAlignment > alignment {
		alignment = rowPitchAlignment
	}
	if texelBlockSize > alignment {
		alignment = texelBlockSize
	}
	return b.Allocate(size, alignment)
}

// Retire seals the pending range and pushes it onto the in-flight
// FIFO tagged with the transfer timeline value that will signal its
// completion.
func (b *Belt) Retire(timelineValue uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pendingOpen {
		return
	}
	b.inFlight = append(b.inFlight, Region{Start: b.pendingStart, End: b.pendingEnd, Value: timelineValue})
	b.pendingOpen = false
}

// GarbageCollect pops in-flight regions whose value is ≤ completed and
// advances head to each region's end; if the FIFO empties out, head is
// compacted to tail.
func (b *Belt) GarbageCollect(completed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := 0
	for ; i < len(b.inFlight); i++ {
		if b.inFlight[i].Value > completed {
			break
		}
		b.head = b.inFlight[i].End
	}
	b.inFlight = b.inFlight[i:]

	if len(b.inFlight) == 0 {
		b.head = b.tail
	}
}

// MustAllocate is a convenience wrapper for callers that want
// errs.ErrStagingFull instead of a boolean, matching the sentinel-
// error style the rest of the core uses.
func (b *Belt) MustAllocate(size, alignment uint64) (Allocation, error) {
	a, ok := b.Allocate(size, alignment)
	if !ok {
		return Allocation{}, errs.ErrStagingFull
	}
	return a, nil
}
