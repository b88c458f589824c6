// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transfer

import (
	"testing"

	"github.com/gogpu/rendercore/internal/vkffi"
	"github.com/gogpu/rendercore/staging"
)

type fakeRecorder struct {
	nextCmd      vkffi.CommandBuffer
	submitted    []uint64
	copies       []copyCall
	dedicated    []dedicatedCall
	submitShouldErr bool
}

type copyCall struct {
	srcOffset, dstOffset, size uint64
}

type dedicatedCall struct {
	size uint64
}

func (f *fakeRecorder) Begin() (vkffi.CommandBuffer, error) {
	f.nextCmd++
	return f.nextCmd, nil
}

func (f *fakeRecorder) End(cmd vkffi.CommandBuffer) error { return nil }

func (f *fakeRecorder) RecordCopyBuffer(cmd vkffi.CommandBuffer, srcOffset uint64, dst vkffi.Buffer, dstOffset, size uint64) {
	f.copies = append(f.copies, copyCall{srcOffset: srcOffset, dstOffset: dstOffset, size: size})
}

func (f *fakeRecorder) RecordCopyFromDedicated(cmd vkffi.CommandBuffer, src []byte, dst vkffi.Buffer, dstOffset uint64) {
	f.dedicated = append(f.dedicated, dedicatedCall{size: uint64(len(src))})
}

func (f *fakeRecorder) Submit(cmd vkffi.CommandBuffer, waitValue, signalValue uint64) error {
	if f.submitShouldErr {
		return errTestSubmit
	}
	f.submitted = append(f.submitted, signalValue)
	return nil
}

var errTestSubmit = &submitError{}

type submitError struct{}

func (*submitError) Error() string { return "simulated submit failure" }

func alwaysZeroCompleted() uint64 { return 0 }

func TestUploadBufferHappyPath(t *testing.T) {
	rec := &fakeRecorder{}
	belt := staging.New(make([]byte, 256))
	mgr := New(rec, belt, alwaysZeroCompleted)

	token, err := mgr.UploadBuffer(1, []byte("hello world"), 0)
	if err != nil {
		t.Fatalf("UploadBuffer: %v", err)
	}
	if token != 1 {
		t.Fatalf("token = %d, want 1", token)
	}
	if len(rec.copies) != 1 {
		t.Fatalf("expected one recorded copy, got %d", len(rec.copies))
	}
}

func TestUploadBufferFallsBackToDedicatedWhenBeltFull(t *testing.T) {
	rec := &fakeRecorder{}
	belt := staging.New(make([]byte, 4)) // too small for any real payload
	mgr := New(rec, belt, alwaysZeroCompleted)

	_, err := mgr.UploadBuffer(1, []byte("this payload does not fit"), 0)
	if err != nil {
		t.Fatalf("UploadBuffer: %v", err)
	}
	if len(rec.dedicated) != 1 {
		t.Fatalf("expected fallback to dedicated staging buffer, got %d dedicated calls", len(rec.dedicated))
	}
	if len(rec.copies) != 0 {
		t.Fatalf("expected no belt-backed copy when falling back, got %d", len(rec.copies))
	}
}

func TestIsCompletedComparesAgainstGpuCounter(t *testing.T) {
	completed := uint64(0)
	rec := &fakeRecorder{}
	belt := staging.New(make([]byte, 256))
	mgr := New(rec, belt, func() uint64 { return completed })

	token, _ := mgr.UploadBuffer(1, []byte("x"), 0)
	if mgr.IsCompleted(token) {
		t.Fatalf("token reported complete before GPU counter advanced")
	}
	completed = uint64(token)
	if !mgr.IsCompleted(token) {
		t.Fatalf("token not reported complete once GPU counter reached it")
	}
}

func TestGarbageCollectRetiresBeltRegions(t *testing.T) {
	completed := uint64(0)
	rec := &fakeRecorder{}
	belt := staging.New(make([]byte, 256))
	mgr := New(rec, belt, func() uint64 { return completed })

	mgr.UploadBuffer(1, []byte("abc"), 0)
	completed = 1
	mgr.GarbageCollect()

	if len(mgr.inFlight) != 0 {
		t.Fatalf("GarbageCollect left %d in-flight entries, want 0", len(mgr.inFlight))
	}
}

func TestEnqueueUploadBufferReturnsFalseOnExhaustion(t *testing.T) {
	rec := &fakeRecorder{}
	belt := staging.New(make([]byte, 4))
	mgr := New(rec, belt, alwaysZeroCompleted)

	cmd, _ := mgr.BeginUploadBatch()
	_, ok := mgr.EnqueueUploadBuffer(cmd, 1, []byte("too big for the belt"), 0, 16)
	if ok {
		t.Fatalf("expected EnqueueUploadBuffer to report failure on belt exhaustion")
	}
}
