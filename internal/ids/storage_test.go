// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ids

import (
	"errors"
	"testing"

	"github.com/gogpu/rendercore/errs"
)

type testMarker struct{}

func (testMarker) marker() {}

func verifyGet(t *testing.T, s *Storage[string, testMarker], h Handle[testMarker], want string, wantOk bool) {
	t.Helper()
	got, ok := s.Get(h)
	if ok != wantOk {
		t.Fatalf("Get ok = %v, want %v", ok, wantOk)
	}
	if ok && got != want {
		t.Fatalf("Get value = %q, want %q", got, want)
	}
}

func TestInsertAndGet(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h := s.Insert("alpha")
	verifyGet(t, s, h, "alpha", true)
}

func TestRemoveInvalidatesHandle(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h := s.Insert("alpha")
	if !s.Remove(h) {
		t.Fatalf("Remove returned false for live handle")
	}
	verifyGet(t, s, h, "", false)
}

func TestReusedSlotBumpsGenerationInvalidatingOldHandle(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h1 := s.Insert("alpha")
	s.Remove(h1)
	h2 := s.Insert("beta")

	if h1.Index() != h2.Index() {
		t.Fatalf("expected slot reuse: h1.Index()=%d h2.Index()=%d", h1.Index(), h2.Index())
	}
	if h1.Generation() == h2.Generation() {
		t.Fatalf("expected generation bump on reuse, both are %d", h1.Generation())
	}
	verifyGet(t, s, h1, "", false)
	verifyGet(t, s, h2, "beta", true)
}

func TestGetMutMutatesInPlace(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h := s.Insert("alpha")
	ok := s.GetMut(h, func(item *string) { *item = "mutated" })
	if !ok {
		t.Fatalf("GetMut returned false for live handle")
	}
	verifyGet(t, s, h, "mutated", true)
}

func TestLenTracksLiveSlotsAcrossFreeListReuse(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h1 := s.Insert("a")
	s.Insert("b")
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	s.Remove(h1)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d after remove, want 1", s.Len())
	}
	s.Insert("c")
	if s.Len() != 2 {
		t.Fatalf("Len() = %d after reinsert, want 2", s.Len())
	}
}

func TestForEachVisitsOnlyLiveSlots(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h1 := s.Insert("a")
	s.Insert("b")
	s.Remove(h1)

	var seen []string
	s.ForEach(func(h Handle[testMarker], item string) { seen = append(seen, item) })
	if len(seen) != 1 || seen[0] != "b" {
		t.Fatalf("ForEach visited %v, want [b]", seen)
	}
}

func TestMustGetReturnsErrInvalidHandleForStaleHandle(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h := s.Insert("alpha")
	s.Remove(h)

	_, err := s.MustGet(h)
	if !errors.Is(err, errs.ErrInvalidHandle) {
		t.Fatalf("MustGet error = %v, want errs.ErrInvalidHandle", err)
	}
}

func TestMustGetReturnsValueForLiveHandle(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h := s.Insert("alpha")

	got, err := s.MustGet(h)
	if err != nil {
		t.Fatalf("MustGet: %v", err)
	}
	if got != "alpha" {
		t.Fatalf("MustGet value = %q, want %q", got, "alpha")
	}
}

func TestContainsReflectsHandleValidity(t *testing.T) {
	s := NewStorage[string, testMarker](0)
	h := s.Insert("a")
	if !s.Contains(h) {
		t.Fatalf("Contains = false for freshly inserted handle")
	}
	s.Remove(h)
	if s.Contains(h) {
		t.Fatalf("Contains = true for removed handle")
	}
}
