// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package transient implements the Transient Page Allocator (C2): a
// per-memory-type bump-pointer allocator over fixed-size pages, reset
// once per frame. It follows the statistics/error-style of the
// teacher's hal/vulkan/memory.BuddyAllocator (ErrOutOfMemory,
// allocation counters) but a deliberately different placement
// algorithm — bump-pointer-per-page, not buddy splitting — because
// spec.md §4.2 requires forward-only cursors that reset in O(1)
// rather than general-purpose free/merge.
package transient

import (
	"fmt"
	"sync"
)

// DefaultPageSize is P, the default page size for a new page (16 MiB).
const DefaultPageSize = 16 << 20

// Requirements mirrors VkMemoryRequirements plus the preferred-flags
// hint spec.md's allocate() takes.
type Requirements struct {
	Size           uint64
	Alignment      uint64
	TypeBits       uint32
	PreferredFlags uint32
}

// MemoryTypeFinder maps requirements to a compatible memory-type
// index, falling back to any compatible type if the preferred flags
// cannot be satisfied. Supplied by the device layer, which owns the
// physical device's memory properties.
type MemoryTypeFinder func(typeBits uint32, preferredFlags uint32) (typeIndex uint32, ok bool)

// PageAllocator abstracts device-memory page creation so this package
// never calls vkffi directly; transient.Pool only tracks CPU-side
// cursors and intervals.
type PageAllocator interface {
	AllocatePage(typeIndex uint32, size uint64) (memory uint64, err error)
	FreePage(memory uint64)
}

type interval struct{ start, end uint64 }

type page struct {
	memory    uint64
	size      uint64
	cursor    uint64
	intervals []interval
}

// Allocation is the result of a successful allocate() call.
type Allocation struct {
	Memory uint64
	Offset uint64
	Size   uint64
}

// Pool is the per-device transient page allocator. One Pool is shared
// across all frame-in-flight slots; reset() is called once per frame
// after the GPU is idle on that slot.
type Pool struct {
	mu          sync.Mutex
	findType    MemoryTypeFinder
	backing     PageAllocator
	pageSize    uint64
	buckets     map[uint32][]*page
	activeIndex map[uint32]int
}

// New constructs a Pool. pageSize defaults to DefaultPageSize when 0.
func New(findType MemoryTypeFinder, backing PageAllocator, pageSize uint64) *Pool {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	return &Pool{
		findType:    findType,
		backing:     backing,
		pageSize:    pageSize,
		buckets:     make(map[uint32][]*page),
		activeIndex: make(map[uint32]int),
	}
}

func alignUp(v, alignment uint64) uint64 {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

func isPowerOfTwo(v uint64) bool { return v != 0 && v&(v-1) == 0 }

// Allocate places a resource per spec.md §4.2: walk pages in the
// matching bucket from activeIndex; if none fit, allocate a new page
// of size max(P, size) at offset 0.
func (p *Pool) Allocate(req Requirements) (Allocation, error) {
	if !isPowerOfTwo(req.Alignment) {
		return Allocation{}, fmt.Errorf("transient: alignment %d is not a power of two", req.Alignment)
	}

	typeIndex, ok := p.findType(req.TypeBits, req.PreferredFlags)
	if !ok {
		return Allocation{}, fmt.Errorf("transient: no compatible memory type for typeBits=%#x", req.TypeBits)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pages := p.buckets[typeIndex]
	start := p.activeIndex[typeIndex]
	for i := start; i < len(pages); i++ {
		pg := pages[i]
		aligned := alignUp(pg.cursor, req.Alignment)
		if aligned+req.Size <= pg.size {
			pg.cursor = aligned + req.Size
			pg.intervals = append(pg.intervals, interval{start: aligned, end: pg.cursor})
			p.activeIndex[typeIndex] = i
			return Allocation{Memory: pg.memory, Offset: aligned, Size: req.Size}, nil
		}
	}

	newSize := p.pageSize
	if req.Size > newSize {
		newSize = req.Size
	}
	memory, err := p.backing.AllocatePage(typeIndex, newSize)
	if err != nil {
		return Allocation{}, fmt.Errorf("transient: allocate page of %d bytes: %w", newSize, err)
	}
	pg := &page{memory: memory, size: newSize, cursor: req.Size}
	pg.intervals = append(pg.intervals, interval{start: 0, end: req.Size})
	p.buckets[typeIndex] = append(p.buckets[typeIndex], pg)
	p.activeIndex[typeIndex] = len(p.buckets[typeIndex]) - 1
	return Allocation{Memory: memory, Offset: 0, Size: req.Size}, nil
}

// Reset clears per-page cursors and interval lists without freeing
// any page. Must only be called once GPU work against the previous
// contents of these pages has completed. The caller that owns the Pool
// makes this call; neither rendergraph nor the orchestrator does.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for typeIndex, pages := range p.buckets {
		for _, pg := range pages {
			pg.cursor = 0
			pg.intervals = pg.intervals[:0]
		}
		p.activeIndex[typeIndex] = 0
	}
}

// Shutdown frees every page. Only valid once the GPU is fully idle;
// transient pages are otherwise never destroyed.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for typeIndex, pages := range p.buckets {
		for _, pg := range pages {
			p.backing.FreePage(pg.memory)
		}
		p.buckets[typeIndex] = nil
	}
}

// PageCount reports the number of pages currently held for typeIndex,
// exposed for tests and telemetry.
func (p *Pool) PageCount(typeIndex uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[typeIndex])
}
