// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package texture implements the Texture Pool (C6): a generational
// pool of GPU textures with N-frames-in-flight deferred reclamation,
// each slot owning a bindless index. Grounded on internal/ids.Storage
// (adapted from core/storage.go) for the generational slot array and
// wired to bindless.Table for the default-descriptor rebind spec.md
// §4.6 requires on destroy.
package texture

import (
	"fmt"
	"sync"

	"github.com/gogpu/rendercore/bindless"
	"github.com/gogpu/rendercore/internal/ids"
)

// PixelFormat is an opaque format token; the device layer interprets
// it into a concrete VkFormat.
type PixelFormat uint32

// GpuData is the data a live slot holds: the created image/view/
// sampler plus the bindless slot publishing it to shaders.
type GpuData struct {
	Image        uint64
	View         uint64
	Sampler      uint64
	BindlessSlot uint32
}

// Backend creates and destroys the underlying GPU objects. Supplied
// by the device layer; this package owns only pool bookkeeping.
type Backend interface {
	CreateImage(w, h int, format PixelFormat) (image, view, sampler uint64, err error)
	DestroyImage(image, view, sampler uint64)
}

// BindlessAllocator allocates/frees a slot index in the bindless
// table. The texture pool owns slot lifetime; the bindless table owns
// descriptor contents.
type BindlessAllocator interface {
	Allocate() (uint32, bool)
	Free(index uint32)
}

type pendingDeletion struct {
	handle      ids.TextureHandle
	enqueueFrame uint64
}

// Pool is the generational texture pool.
type Pool struct {
	backend  Backend
	bindless *bindless.Table
	slots    BindlessAllocator
	n        int // frames in flight

	storage *ids.TextureStorage[GpuData]

	mu        sync.Mutex
	deletions []pendingDeletion

	dedupMu sync.Mutex
	dedup   map[string]ids.TextureHandle
}

// New constructs a texture pool with n frames in flight.
func New(backend Backend, bindlessTable *bindless.Table, slotAllocator BindlessAllocator, n int) *Pool {
	if n <= 0 {
		n = 3
	}
	return &Pool{
		backend:  backend,
		bindless: bindlessTable,
		slots:    slotAllocator,
		n:        n,
		storage:  ids.NewTextureStorage[GpuData](64),
		dedup:    make(map[string]ids.TextureHandle),
	}
}

// CreatePending allocates the GPU image/view/sampler, a bindless
// slot, publishes the view to the bindless table, and stores the
// result in a new pool entry.
func (p *Pool) CreatePending(w, h int, format PixelFormat) (ids.TextureHandle, error) {
	image, view, sampler, err := p.backend.CreateImage(w, h, format)
	if err != nil {
		return ids.TextureHandle{}, fmt.Errorf("texture: create image: %w", err)
	}

	slot, ok := p.slots.Allocate()
	if !ok {
		p.backend.DestroyImage(image, view, sampler)
		return ids.TextureHandle{}, fmt.Errorf("texture: bindless table exhausted")
	}

	if err := p.bindless.EnqueueUpdate(slot, view, sampler, 0); err != nil {
		p.slots.Free(slot)
		p.backend.DestroyImage(image, view, sampler)
		return ids.TextureHandle{}, fmt.Errorf("texture: publish to bindless table: %w", err)
	}

	handle := p.storage.Insert(GpuData{Image: image, View: view, Sampler: sampler, BindlessSlot: slot})
	return handle, nil
}

// CreatePendingDeduped is additive sugar over CreatePending (SPEC_FULL
// §4 supplemented feature, grounded on RHI.TextureSystem.cpp): two
// calls for the same key share one handle instead of two uploads.
func (p *Pool) CreatePendingDeduped(key string, w, h int, format PixelFormat) (ids.TextureHandle, bool, error) {
	p.dedupMu.Lock()
	if existing, ok := p.dedup[key]; ok {
		p.dedupMu.Unlock()
		return existing, true, nil
	}
	p.dedupMu.Unlock()

	handle, err := p.CreatePending(w, h, format)
	if err != nil {
		return ids.TextureHandle{}, false, err
	}

	p.dedupMu.Lock()
	if existing, ok := p.dedup[key]; ok {
		// Lost the race: drop our own allocation and use theirs.
		p.dedupMu.Unlock()
		p.Destroy(handle, 0)
		return existing, true, nil
	}
	p.dedup[key] = handle
	p.dedupMu.Unlock()
	return handle, false, nil
}

// Get retrieves the GpuData for a live handle.
func (p *Pool) Get(handle ids.TextureHandle) (GpuData, bool) {
	return p.storage.Get(handle)
}

// MustGet is Get for callers that want errs.ErrInvalidHandle instead
// of a boolean, e.g. diagnostics that want to propagate the specific
// failure rather than just branch on it.
func (p *Pool) MustGet(handle ids.TextureHandle) (GpuData, error) {
	return p.storage.MustGet(handle)
}

// Destroy enqueues reclamation of handle tagged with the current
// global frame number. Reclamation happens no sooner than N frames
// later via ProcessDeletions.
func (p *Pool) Destroy(handle ids.TextureHandle, currentFrame uint64) {
	p.mu.Lock()
	p.deletions = append(p.deletions, pendingDeletion{handle: handle, enqueueFrame: currentFrame})
	p.mu.Unlock()
}

// ProcessDeletions drains entries whose enqueue-frame + N ≤
// currentFrame. destroyDeferred schedules the actual image/view/
// sampler teardown through C1's timeline-guarded deferred-destroy
// queue (never destroyed synchronously here).
func (p *Pool) ProcessDeletions(currentFrame uint64, destroyDeferred func(fn func())) {
	p.mu.Lock()
	ready := p.deletions[:0]
	var toProcess []pendingDeletion
	for _, d := range p.deletions {
		if d.enqueueFrame+uint64(p.n) <= currentFrame {
			toProcess = append(toProcess, d)
		} else {
			ready = append(ready, d)
		}
	}
	p.deletions = ready
	p.mu.Unlock()

	for _, d := range toProcess {
		data, ok := p.storage.Get(d.handle)
		if !ok {
			continue
		}

		// 1. Rebind the freed bindless slot to the default descriptor
		// first, so shaders never sample a destroyed view.
		_ = p.bindless.RebindToDefault(data.BindlessSlot, 0)
		p.slots.Free(data.BindlessSlot)

		// 2. Destroy via C1's deferred queue, not directly.
		image, view, sampler := data.Image, data.View, data.Sampler
		destroyDeferred(func() { p.backend.DestroyImage(image, view, sampler) })

		p.storage.Remove(d.handle)
		p.removeFromDedup(d.handle)
	}
}

func (p *Pool) removeFromDedup(handle ids.TextureHandle) {
	p.dedupMu.Lock()
	defer p.dedupMu.Unlock()
	for k, v := range p.dedup {
		if v.Equal(handle) {
			delete(p.dedup, k)
			return
		}
	}
}

// SetDefaultDescriptor forwards to the bindless table.
func (p *Pool) SetDefaultDescriptor(view, sampler uint64) {
	p.bindless.SetDefaultDescriptor(view, sampler)
}
