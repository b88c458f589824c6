// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package ids provides the generic generational Handle used throughout
// the rendering core for texture pool entries and bindless descriptor
// slots (the GPU scene and the render graph use plain uint32 indices
// of their own). A Handle is valid only while its slot is
// allocated and its generation matches the slot's current generation,
// matching spec.md §3 ("Handle (generic)").
package ids

import "fmt"

// Index identifies the slot in a backing array.
type Index = uint32

// Generation invalidates stale handles to the same index after reuse.
type Generation = uint32

// Marker distinguishes Handle types at compile time so a TextureHandle
// can never be passed where a BindlessSlot is expected.
type Marker interface {
	marker()
}

// Handle is a type-safe (index, generation) pair.
type Handle[T Marker] struct {
	index Index
	gen   Generation
}

// Invalid is the zero Handle: index 0, generation 0. Slot 0 of any
// table that reserves index 0 (e.g. the bindless default descriptor)
// must never be handed out as an allocation, so the zero Handle can
// double as a sentinel when callers compare against it explicitly.
func Invalid[T Marker]() Handle[T] { return Handle[T]{} }

// New builds a Handle from its parts.
func New[T Marker](index Index, gen Generation) Handle[T] {
	return Handle[T]{index: index, gen: gen}
}

// Index returns the slot index.
func (h Handle[T]) Index() Index { return h.index }

// Generation returns the slot generation.
func (h Handle[T]) Generation() Generation { return h.gen }

// Equal reports whether both the index and generation match.
func (h Handle[T]) Equal(o Handle[T]) bool {
	return h.index == o.index && h.gen == o.gen
}

func (h Handle[T]) String() string {
	return fmt.Sprintf("Handle(%d,%d)", h.index, h.gen)
}

// Marker types, one per handle domain.

type (
	textureMarker  struct{}
	bindlessMarker struct{}
)

func (textureMarker) marker()  {}
func (bindlessMarker) marker() {}

// TextureHandle identifies a slot in the texture pool (C6).
type TextureHandle = Handle[textureMarker]

// BindlessSlot identifies an entry in the bindless descriptor array
// (C5). Bindless slots are plain indices on the wire (no generation),
// exposed here only for symmetry with the other handle domains. The
// bindless package's own Handle wraps one of these with the debug name
// used for leak detection in debug builds (SPEC_FULL.md §4.2, grounded
// on RHI.PersistentDescriptors.cpp).
type BindlessSlot = Handle[bindlessMarker]

// TransferToken identifies a completed-or-pending async upload (C4).
// Tokens are monotonically increasing timeline values rather than
// generational slots, but are expressed with the same Handle-like
// discipline: a zero token never denotes real work.
type TransferToken uint64
