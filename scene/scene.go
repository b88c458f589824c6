// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package scene implements the GPU Scene (C7): a retained-mode
// instance table with a free-slot stack, a pending-update merge queue,
// and a compute-shader scatter sync. Grounded directly on
// original_source/src/Runtime/Graphics/Graphics.GPUScene.cpp
// (MergeUpdate's exact sign-based merge semantics, EnsurePersistentBuffers'
// fixed-capacity sizing). Slots are plain uint32 indices on a CPU-side
// free-list, not a generational internal/ids.Handle: spec.md §3's
// "Instance slot" carries no generation on the wire, and the scatter
// sync writes the raw index straight into the GPU-visible table.
package scene

import (
	"sync"
	"unsafe"

	"github.com/gogpu/rendercore/errs"
)

// PreserveGeo is the sentinel geometry id meaning "keep whatever this
// slot already has," mirroring kPreserveGeometryId in the original.
const PreserveGeo uint32 = 0xFFFFFFFF

// InstanceData is the CPU-side mirror of GpuInstanceData.
type InstanceData struct {
	Model      [16]float32
	GeometryID uint32
	TextureID  uint32
	EntityID   uint32
}

// SphereBounds is a bounding sphere; W encodes activation state:
// W == 0 deactivates, W < 0 means "preserve bounds," W > 0 is a live
// radius to apply.
type SphereBounds struct {
	X, Y, Z, W float32
}

// UpdatePacket is one pending per-slot update.
type UpdatePacket struct {
	Slot   uint32
	Data   InstanceData
	Bounds SphereBounds
}

// ComputeDispatcher issues the scatter compute dispatch described in
// spec.md §4.7 step 5. Supplied by the device/rendergraph layer.
type ComputeDispatcher interface {
	// EnsureStaging guarantees a CPU-visible staging buffer of at
	// least byteSize, reallocating if the current one is smaller.
	EnsureStaging(byteSize uint64) (mapped []byte)
	// DispatchScatter binds the updates/scene/bounds descriptor set
	// (bindings 0,1,2), pushes count as a uint32 push-constant, and
	// dispatches ceil(count/64) workgroups.
	DispatchScatter(count uint32)
}

const sentinelSlot = ^uint32(0)

// Scene owns the two fixed-capacity GPU buffers (instance table,
// bounds table) plus the CPU-side free list and pending-update queue.
type Scene struct {
	maxInstances uint32

	allocMu  sync.Mutex
	free     []uint32
	next     uint32
	active   int

	updateMu       sync.Mutex
	geometryShadow []uint32
	pendingIndex   []int32 // slot -> index into pending, or -1
	pending        []UpdatePacket

	dispatcher ComputeDispatcher
}

// New constructs a Scene sized for maxInstances (M).
func New(maxInstances uint32, dispatcher ComputeDispatcher) *Scene {
	shadow := make([]uint32, maxInstances)
	for i := range shadow {
		shadow[i] = PreserveGeo
	}
	idx := make([]int32, maxInstances)
	for i := range idx {
		idx[i] = -1
	}
	return &Scene{
		maxInstances:   maxInstances,
		geometryShadow: shadow,
		pendingIndex:   idx,
		dispatcher:     dispatcher,
	}
}

// AllocateSlot pops the free list, else bumps next; fails once bumped
// past M.
func (s *Scene) AllocateSlot() (uint32, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		s.free = s.free[:n-1]
		s.active++
		return slot, nil
	}
	if s.next >= s.maxInstances {
		return sentinelSlot, errs.ErrSlotsExhausted
	}
	slot := s.next
	s.next++
	s.active++
	return slot, nil
}

// FreeSlot pushes slot onto the free list and clears its geometry-id
// shadow back to PreserveGeo.
func (s *Scene) FreeSlot(slot uint32) {
	s.allocMu.Lock()
	s.free = append(s.free, slot)
	s.active--
	s.allocMu.Unlock()

	s.updateMu.Lock()
	if int(slot) < len(s.geometryShadow) {
		s.geometryShadow[slot] = PreserveGeo
	}
	s.updateMu.Unlock()
}

// ActiveCount returns the approximate number of allocated slots.
func (s *Scene) ActiveCount() int {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	return s.active
}

// QueueUpdate implements spec.md §4.7's merge semantics, grounded
// directly on Graphics.GPUScene.cpp's MergeUpdate.
func (s *Scene) QueueUpdate(slot uint32, data InstanceData, bounds SphereBounds) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if data.GeometryID == PreserveGeo {
		if int(slot) < len(s.geometryShadow) && s.geometryShadow[slot] != PreserveGeo {
			data.GeometryID = s.geometryShadow[slot]
		}
	} else if int(slot) < len(s.geometryShadow) {
		s.geometryShadow[slot] = data.GeometryID
	}

	packet := UpdatePacket{Slot: slot, Data: data, Bounds: bounds}

	if int(slot) < len(s.pendingIndex) {
		if i := s.pendingIndex[slot]; i >= 0 {
			mergeInto(&s.pending[i], packet)
			return
		}
	}

	s.pending = append(s.pending, packet)
	if int(slot) < len(s.pendingIndex) {
		s.pendingIndex[slot] = int32(len(s.pending) - 1)
	}
}

// mergeInto merges src onto dst in place, matching MergeUpdate:
//   - src deactivating (w==0) while dst is still active (w>0) wins outright.
//   - dst already deactivating while src only preserves (w<0) is a no-op.
//   - otherwise model/texture/entity always overwrite; geometry only
//     overwrites when src is not PreserveGeo; bounds only overwrite
//     when src.w >= 0.
func mergeInto(dst *UpdatePacket, src UpdatePacket) {
	dstDeactivate := dst.Bounds.W == 0
	srcDeactivate := src.Bounds.W == 0
	srcPreserve := src.Bounds.W < 0

	if srcDeactivate && dst.Bounds.W > 0 {
		dst.Data = src.Data
		dst.Bounds = src.Bounds
		return
	}
	if dstDeactivate && srcPreserve {
		return
	}

	dst.Data.Model = src.Data.Model
	dst.Data.TextureID = src.Data.TextureID
	dst.Data.EntityID = src.Data.EntityID

	if src.Data.GeometryID != PreserveGeo {
		dst.Data.GeometryID = src.Data.GeometryID
	}
	if src.Bounds.W >= 0 {
		dst.Bounds = src.Bounds
	}
}

// Sync swaps the pending vector out, copies it into a staging buffer,
// and dispatches the compute scatter. Returns immediately if nothing
// is pending.
func (s *Scene) Sync(encode func(mapped []byte, packets []UpdatePacket)) {
	s.updateMu.Lock()
	packets := s.pending
	s.pending = nil
	for i := range s.pendingIndex {
		s.pendingIndex[i] = -1
	}
	s.updateMu.Unlock()

	if len(packets) == 0 {
		return
	}

	const packetSize = uint64(unsafe.Sizeof(UpdatePacket{})) // one packet's size; device layer encodes exact layout
	mapped := s.dispatcher.EnsureStaging(uint64(len(packets)) * packetSize)
	encode(mapped, packets)

	s.dispatcher.DispatchScatter(uint32(len(packets)))
}
