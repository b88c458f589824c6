// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import (
	"fmt"

	"github.com/gogpu/rendercore/internal/vkffi"
	"github.com/gogpu/rendercore/transient"
)

// ImageAllocator creates an unbound image for a graph-owned texture,
// queries its memory requirements, and binds it at the transient
// allocation's returned offset. Supplied by the device layer.
type ImageAllocator interface {
	CreateUnboundImage(desc TextureDesc) (vkffi.Image, vkffi.ImageView, transient.Requirements, error)
	BindImageMemory(img vkffi.Image, memory uint64, offset uint64) error
}

// BufferPoolEntry is one frame-slot-scoped reusable buffer.
type BufferPoolEntry struct {
	Buffer    vkffi.Buffer
	Size      uint64
	Usage     uint32
	Start, End PassIndex
}

// BufferPool searches/allocates GPU-local buffers keyed by
// (size, usage), reused across passes whose claimed intervals do not
// overlap within the same frame slot.
type BufferPool interface {
	Find(size uint64, usage uint32, start, end PassIndex) (vkffi.Buffer, bool)
	Allocate(size uint64, usage uint32) (vkffi.Buffer, error)
}

// resolveResources is Compile step 1: imports get their initial
// layout/stage/access recorded; graph-owned textures are created and
// placed by C2 from their memory requirements alone (size, alignment,
// type bits) — neither the resource's [start,end] interval nor
// frameIndex is passed to C2, so textures with disjoint lifetimes do
// not share memory; graph-owned buffers are served from a keyed pool
// or freshly allocated.
func (g *Graph) resolveResources(frameIndex uint64, images ImageAllocator, pages *transient.Pool, buffers BufferPool) error {
	for i := range g.resources {
		r := &g.resources[i]

		if r.imported {
			r.image = r.importedImg
			r.view = r.importedView
			r.vkBuf = r.importedBuf
			r.lastStage = vkffi.PipelineStageTopOfPipe2
			r.lastAccess = vkffi.AccessNone2
			// currentLayout was already set by ImportTexture.
			continue
		}

		switch r.kind {
		case KindTexture:
			img, view, reqs, err := images.CreateUnboundImage(r.texture)
			if err != nil {
				return fmt.Errorf("rendergraph: create image %q: %w", r.name, err)
			}
			alloc, err := pages.Allocate(transient.Requirements{
				Size:      reqs.Size,
				Alignment: reqs.Alignment,
				TypeBits:  reqs.TypeBits,
			})
			if err != nil {
				return fmt.Errorf("rendergraph: allocate transient memory for %q: %w", r.name, err)
			}
			if err := images.BindImageMemory(img, alloc.Memory, alloc.Offset); err != nil {
				return fmt.Errorf("rendergraph: bind image memory for %q: %w", r.name, err)
			}
			r.image = img
			r.view = view
			r.memory = alloc.Memory
			r.offset = alloc.Offset
			r.currentLayout = vkffi.ImageLayoutUndefined
			r.lastStage = vkffi.PipelineStageTopOfPipe2
			r.lastAccess = vkffi.AccessNone2

		case KindBuffer:
			if buf, ok := buffers.Find(r.buffer.Size, r.buffer.Usage, r.startPass, r.endPass); ok {
				r.vkBuf = buf
			} else {
				buf, err := buffers.Allocate(r.buffer.Size, r.buffer.Usage)
				if err != nil {
					return fmt.Errorf("rendergraph: allocate buffer %q: %w", r.name, err)
				}
				r.vkBuf = buf
			}
			r.lastStage = vkffi.PipelineStageTopOfPipe2
			r.lastAccess = vkffi.AccessNone2
		}
	}
	_ = frameIndex
	return nil
}
