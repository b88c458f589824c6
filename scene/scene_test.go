// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package scene

import "testing"

type fakeDispatcher struct {
	staged       []byte
	dispatchedN  uint32
	dispatchCalls int
}

func (f *fakeDispatcher) EnsureStaging(byteSize uint64) []byte {
	if uint64(len(f.staged)) < byteSize {
		f.staged = make([]byte, byteSize)
	}
	return f.staged
}

func (f *fakeDispatcher) DispatchScatter(count uint32) {
	f.dispatchedN = count
	f.dispatchCalls++
}

func TestAllocateSlotBumpsThenUsesFreeList(t *testing.T) {
	s := New(4, &fakeDispatcher{})
	s0, err := s.AllocateSlot()
	if err != nil || s0 != 0 {
		t.Fatalf("AllocateSlot = %d, %v; want 0, nil", s0, err)
	}
	s1, _ := s.AllocateSlot()
	if s1 != 1 {
		t.Fatalf("AllocateSlot = %d, want 1", s1)
	}
	s.FreeSlot(s0)
	s2, _ := s.AllocateSlot()
	if s2 != s0 {
		t.Fatalf("expected freed slot %d to be reused, got %d", s0, s2)
	}
}

func TestAllocateSlotExhaustion(t *testing.T) {
	s := New(2, &fakeDispatcher{})
	s.AllocateSlot()
	s.AllocateSlot()
	_, err := s.AllocateSlot()
	if err == nil {
		t.Fatalf("expected ErrSlotsExhausted once M slots are bumped")
	}
}

func TestQueueUpdatePreserveGeoSubstitutesFromShadow(t *testing.T) {
	s := New(4, &fakeDispatcher{})
	slot, _ := s.AllocateSlot()

	s.QueueUpdate(slot, InstanceData{GeometryID: 7}, SphereBounds{W: 1})
	s.QueueUpdate(slot, InstanceData{GeometryID: PreserveGeo}, SphereBounds{W: 1})

	if got := s.pending[0].Data.GeometryID; got != 7 {
		t.Fatalf("GeometryID after preserve-merge = %d, want 7 (from shadow)", got)
	}
}

func TestQueueUpdateMergesInPlaceForSameSlot(t *testing.T) {
	s := New(4, &fakeDispatcher{})
	slot, _ := s.AllocateSlot()

	s.QueueUpdate(slot, InstanceData{TextureID: 1, EntityID: 1}, SphereBounds{W: 1})
	s.QueueUpdate(slot, InstanceData{TextureID: 2, EntityID: 2}, SphereBounds{W: 2})

	if len(s.pending) != 1 {
		t.Fatalf("expected merge into single pending entry, got %d", len(s.pending))
	}
	got := s.pending[0]
	if got.Data.TextureID != 2 || got.Data.EntityID != 2 || got.Bounds.W != 2 {
		t.Fatalf("merged packet = %+v, want newer values to win", got)
	}
}

func TestQueueUpdateDeactivateBeatsActive(t *testing.T) {
	s := New(4, &fakeDispatcher{})
	slot, _ := s.AllocateSlot()

	s.QueueUpdate(slot, InstanceData{EntityID: 1}, SphereBounds{W: 5})
	s.QueueUpdate(slot, InstanceData{EntityID: 2}, SphereBounds{W: 0}) // deactivate

	if s.pending[0].Bounds.W != 0 {
		t.Fatalf("expected deactivate (w=0) to win over prior active bounds, got w=%v", s.pending[0].Bounds.W)
	}
}

func TestQueueUpdatePreserveBoundsNoOpWhenAlreadyDeactivated(t *testing.T) {
	s := New(4, &fakeDispatcher{})
	slot, _ := s.AllocateSlot()

	s.QueueUpdate(slot, InstanceData{EntityID: 1}, SphereBounds{W: 0}) // deactivated
	s.QueueUpdate(slot, InstanceData{EntityID: 99}, SphereBounds{W: -1}) // preserve-only

	got := s.pending[0]
	if got.Data.EntityID != 1 || got.Bounds.W != 0 {
		t.Fatalf("expected no-op merge when dst deactivated and src only preserves, got %+v", got)
	}
}

func TestSyncSwapsPendingAndDispatches(t *testing.T) {
	disp := &fakeDispatcher{}
	s := New(4, disp)
	slot, _ := s.AllocateSlot()
	s.QueueUpdate(slot, InstanceData{EntityID: 1}, SphereBounds{W: 1})

	var encoded []UpdatePacket
	s.Sync(func(mapped []byte, packets []UpdatePacket) { encoded = packets })

	if len(encoded) != 1 {
		t.Fatalf("expected Sync to pass 1 packet to encode, got %d", len(encoded))
	}
	if disp.dispatchCalls != 1 || disp.dispatchedN != 1 {
		t.Fatalf("expected one dispatch of count=1, got calls=%d count=%d", disp.dispatchCalls, disp.dispatchedN)
	}
	if len(s.pending) != 0 {
		t.Fatalf("expected pending to be cleared after Sync")
	}
}

func TestSyncNoOpWhenNothingPending(t *testing.T) {
	disp := &fakeDispatcher{}
	s := New(4, disp)
	s.Sync(func(mapped []byte, packets []UpdatePacket) {
		t.Fatalf("encode callback invoked with nothing pending")
	})
	if disp.dispatchCalls != 0 {
		t.Fatalf("expected no dispatch when nothing is pending")
	}
}
