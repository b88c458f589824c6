// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transient

import "testing"

type fakeBacking struct {
	next   uint64
	allocd map[uint64]uint64
}

func newFakeBacking() *fakeBacking {
	return &fakeBacking{allocd: make(map[uint64]uint64)}
}

func (f *fakeBacking) AllocatePage(typeIndex uint32, size uint64) (uint64, error) {
	f.next++
	f.allocd[f.next] = size
	return f.next, nil
}

func (f *fakeBacking) FreePage(memory uint64) {
	delete(f.allocd, memory)
}

func oneType(typeBits uint32, preferred uint32) (uint32, bool) { return 0, true }

func verifyAllocation(t *testing.T, a Allocation, wantMemory uint64, wantOffset, wantSize uint64) {
	t.Helper()
	if a.Memory != wantMemory || a.Offset != wantOffset || a.Size != wantSize {
		t.Fatalf("Allocate = %+v, want {Memory:%d Offset:%d Size:%d}", a, wantMemory, wantOffset, wantSize)
	}
}

func TestAllocateFirstPage(t *testing.T) {
	pool := New(oneType, newFakeBacking(), 1024)
	a, err := pool.Allocate(Requirements{Size: 64, Alignment: 16, TypeBits: 1})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	verifyAllocation(t, a, 1, 0, 64)
}

func TestAllocateAdvancesCursorWithinPage(t *testing.T) {
	pool := New(oneType, newFakeBacking(), 1024)
	a1, _ := pool.Allocate(Requirements{Size: 64, Alignment: 16, TypeBits: 1})
	a2, _ := pool.Allocate(Requirements{Size: 32, Alignment: 16, TypeBits: 1})
	verifyAllocation(t, a1, 1, 0, 64)
	verifyAllocation(t, a2, 1, 64, 32)
}

func TestAllocateAlignsCursor(t *testing.T) {
	pool := New(oneType, newFakeBacking(), 1024)
	pool.Allocate(Requirements{Size: 10, Alignment: 4, TypeBits: 1})
	a2, _ := pool.Allocate(Requirements{Size: 16, Alignment: 64, TypeBits: 1})
	if a2.Offset != 64 {
		t.Fatalf("second allocation offset = %d, want 64 (aligned up from cursor=10)", a2.Offset)
	}
}

func TestAllocateSpillsToNewPageWhenFull(t *testing.T) {
	pool := New(oneType, newFakeBacking(), 128)
	pool.Allocate(Requirements{Size: 100, Alignment: 4, TypeBits: 1})
	a2, err := pool.Allocate(Requirements{Size: 64, Alignment: 4, TypeBits: 1})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a2.Memory == 1 {
		t.Fatalf("expected a new page, got same memory handle %d", a2.Memory)
	}
	verifyAllocation(t, a2, 2, 0, 64)
}

func TestAllocateOversizeGetsDedicatedPage(t *testing.T) {
	pool := New(oneType, newFakeBacking(), 128)
	a, err := pool.Allocate(Requirements{Size: 1 << 20, Alignment: 4, TypeBits: 1})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	verifyAllocation(t, a, 1, 0, 1<<20)
}

func TestAllocateRejectsNonPowerOfTwoAlignment(t *testing.T) {
	pool := New(oneType, newFakeBacking(), 1024)
	_, err := pool.Allocate(Requirements{Size: 16, Alignment: 3, TypeBits: 1})
	if err == nil {
		t.Fatalf("expected error for non-power-of-two alignment")
	}
}

func TestResetClearsCursorsWithoutFreeingPages(t *testing.T) {
	backing := newFakeBacking()
	pool := New(oneType, backing, 128)
	pool.Allocate(Requirements{Size: 64, Alignment: 4, TypeBits: 1})
	pool.Reset()

	if got := pool.PageCount(0); got != 1 {
		t.Fatalf("PageCount after Reset = %d, want 1 (pages survive reset)", got)
	}

	a, err := pool.Allocate(Requirements{Size: 64, Alignment: 4, TypeBits: 1})
	if err != nil {
		t.Fatalf("Allocate after Reset: %v", err)
	}
	verifyAllocation(t, a, 1, 0, 64)
}

func TestShutdownFreesAllPages(t *testing.T) {
	backing := newFakeBacking()
	pool := New(oneType, backing, 128)
	pool.Allocate(Requirements{Size: 64, Alignment: 4, TypeBits: 1})
	pool.Allocate(Requirements{Size: 128, Alignment: 4, TypeBits: 1})
	pool.Shutdown()

	if len(backing.allocd) != 0 {
		t.Fatalf("Shutdown left %d pages allocated, want 0", len(backing.allocd))
	}
	if pool.PageCount(0) != 0 {
		t.Fatalf("PageCount after Shutdown = %d, want 0", pool.PageCount(0))
	}
}
