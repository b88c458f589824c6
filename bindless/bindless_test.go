// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package bindless

import (
	"testing"

	"github.com/gogpu/rendercore/internal/ids"
)

type fakeWriter struct {
	batches [][]Update
}

func (f *fakeWriter) WriteCombinedImageSamplers(updates []Update) {
	f.batches = append(f.batches, updates)
}

func TestNewClampsToDefaultMaxCapacity(t *testing.T) {
	tests := []struct {
		name        string
		hardwareMax uint32
		want        uint32
	}{
		{"zero means use default", 0, DefaultMaxCapacity},
		{"below default kept as-is", 1024, 1024},
		{"above default clamped", 1 << 20, DefaultMaxCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := New(tt.hardwareMax, &fakeWriter{})
			if got := table.Capacity(); got != tt.want {
				t.Fatalf("Capacity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEnqueueUpdateRejectsOutOfRangeIndex(t *testing.T) {
	table := New(4, &fakeWriter{})
	err := table.EnqueueUpdate(4, 1, 1, 0)
	if err == nil {
		t.Fatalf("expected error for index at capacity")
	}
}

func TestEnqueueUpdateRejectsNullDescriptors(t *testing.T) {
	table := New(4, &fakeWriter{})
	if err := table.EnqueueUpdate(0, 0, 1, 0); err == nil {
		t.Fatalf("expected error for null view")
	}
	if err := table.EnqueueUpdate(0, 1, 0, 0); err == nil {
		t.Fatalf("expected error for null sampler")
	}
}

func TestFlushPendingAppliesBatchOnce(t *testing.T) {
	writer := &fakeWriter{}
	table := New(16, writer)
	table.EnqueueUpdate(0, 1, 1, 0)
	table.EnqueueUpdate(1, 2, 2, 0)
	table.FlushPending()

	if len(writer.batches) != 1 {
		t.Fatalf("expected exactly one batch write, got %d", len(writer.batches))
	}
	if len(writer.batches[0]) != 2 {
		t.Fatalf("expected batch of 2 updates, got %d", len(writer.batches[0]))
	}

	table.FlushPending() // nothing pending: must not write an empty batch
	if len(writer.batches) != 1 {
		t.Fatalf("FlushPending with nothing pending issued a write")
	}
}

func TestRebindToDefaultUsesRecordedDefault(t *testing.T) {
	writer := &fakeWriter{}
	table := New(16, writer)
	table.SetDefaultDescriptor(99, 100)

	if err := table.RebindToDefault(3, 0); err != nil {
		t.Fatalf("RebindToDefault: %v", err)
	}
	table.FlushPending()

	got := writer.batches[0][0]
	if got.View != 99 || got.Sampler != 100 {
		t.Fatalf("rebind wrote view=%d sampler=%d, want 99,100", got.View, got.Sampler)
	}
}

func TestHandleStringIncludesDebugName(t *testing.T) {
	h := NewHandle(ids.BindlessSlot{}, "albedo")
	if got := h.String(); got != "albedo(Handle(0,0))" {
		t.Fatalf("String() = %q, want %q", got, "albedo(Handle(0,0))")
	}
}

func TestHandleMarkDestroyed(t *testing.T) {
	h := NewHandle(ids.BindlessSlot{}, "")
	if h.Destroyed() {
		t.Fatalf("new handle reports destroyed")
	}
	h.MarkDestroyed()
	if !h.Destroyed() {
		t.Fatalf("MarkDestroyed did not take effect")
	}
}
