// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package bindless implements the Bindless Table (C5): a single
// update-after-bind, partially-bound combined-image-sampler array.
// Grounded on the teacher's hal/vulkan/descriptor.go
// (DescriptorAllocator growth-policy style) for the pool/layout
// shape, generalized to spec.md §4.5's fixed single-binding array
// rather than the teacher's per-draw growable pool.
package bindless

import (
	"fmt"
	"sync"

	"github.com/gogpu/rendercore/errs"
	"github.com/gogpu/rendercore/internal/ids"
)

// DefaultMaxCapacity is the ceiling New clamps the hardware-reported
// maxDescriptorSetUpdateAfterBindSampledImages against.
const DefaultMaxCapacity = 65536

// Update is a pending bindless descriptor write.
type Update struct {
	Index   uint32
	View    uint64 // VkImageView, opaque to this package
	Sampler uint64 // VkSampler, opaque to this package
	Layout  uint32 // VkImageLayout
}

// DescriptorWriter applies a batch of descriptor writes to the
// table's single descriptor set. Supplied by the device layer so this
// package stays free of raw vkffi calls.
type DescriptorWriter interface {
	WriteCombinedImageSamplers(updates []Update)
}

// Table is the bindless combined-image-sampler array.
type Table struct {
	capacity uint32
	writer   DescriptorWriter

	mu      sync.Mutex
	pending []Update

	defaultMu      sync.Mutex
	defaultView    uint64
	defaultSampler uint64
}

// New creates a Table sized to min(hardwareMax, DefaultMaxCapacity).
func New(hardwareMax uint32, writer DescriptorWriter) *Table {
	cap := hardwareMax
	if cap == 0 || cap > DefaultMaxCapacity {
		cap = DefaultMaxCapacity
	}
	return &Table{capacity: cap, writer: writer}
}

// Capacity returns K.
func (t *Table) Capacity() uint32 { return t.capacity }

// EnqueueUpdate validates and queues a descriptor write. A null view
// or sampler is rejected outright: writing a null combined-image-
// sampler without the null-descriptor feature is undefined behavior,
// so callers must bind the default descriptor instead.
func (t *Table) EnqueueUpdate(index uint32, view, sampler uint64, layout uint32) error {
	if index >= t.capacity {
		return fmt.Errorf("%w: index=%d capacity=%d", errs.ErrBindlessOutOfRange, index, t.capacity)
	}
	if view == 0 || sampler == 0 {
		return errs.ErrBindlessNullDescriptor
	}

	t.mu.Lock()
	t.pending = append(t.pending, Update{Index: index, View: view, Sampler: sampler, Layout: layout})
	t.mu.Unlock()
	return nil
}

// FlushPending takes the pending list under lock and applies it as a
// single batch of descriptor writes.
func (t *Table) FlushPending() {
	t.mu.Lock()
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	t.writer.WriteCombinedImageSamplers(batch)
}

// SetDefaultDescriptor records the default-binding pair used by the
// texture pool (C6) to rebind a freed bindless slot.
func (t *Table) SetDefaultDescriptor(view, sampler uint64) {
	t.defaultMu.Lock()
	t.defaultView = view
	t.defaultSampler = sampler
	t.defaultMu.Unlock()
}

// DefaultDescriptor returns the current default view/sampler pair.
func (t *Table) DefaultDescriptor() (view, sampler uint64) {
	t.defaultMu.Lock()
	defer t.defaultMu.Unlock()
	return t.defaultView, t.defaultSampler
}

// RebindToDefault enqueues index to point at the current default
// descriptor, used when a texture pool slot is reclaimed. Always
// performed unconditionally, per SPEC_FULL.md §5's open-question
// decision (no null-descriptor feature probing).
func (t *Table) RebindToDefault(index uint32, layout uint32) error {
	view, sampler := t.DefaultDescriptor()
	return t.EnqueueUpdate(index, view, sampler, layout)
}

// Handle wraps a bindless slot with an optional debug name for leak
// detection in debug builds (SPEC_FULL.md §4 supplemented feature,
// grounded on RHI.PersistentDescriptors.cpp). Purely additive: it does
// not change EnqueueUpdate/FlushPending's own semantics.
type Handle struct {
	slot      ids.BindlessSlot
	debugName string
	destroyed bool
}

// NewHandle wraps slot with an optional debug name.
func NewHandle(slot ids.BindlessSlot, debugName string) *Handle {
	return &Handle{slot: slot, debugName: debugName}
}

// Slot returns the underlying bindless slot handle.
func (h *Handle) Slot() ids.BindlessSlot { return h.slot }

// MarkDestroyed flags the handle as destroyed; using it afterward is a
// programming error callers can detect in debug builds.
func (h *Handle) MarkDestroyed() { h.destroyed = true }

// Destroyed reports whether MarkDestroyed has been called.
func (h *Handle) Destroyed() bool { return h.destroyed }

func (h *Handle) String() string {
	if h.debugName == "" {
		return h.slot.String()
	}
	return fmt.Sprintf("%s(%s)", h.debugName, h.slot)
}
