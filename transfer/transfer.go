// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package transfer implements the Transfer Manager (C4): an
// out-of-band async upload path backed by a dedicated transfer
// timeline semaphore, vending per-thread primary command buffers and
// handing callers a completion token. Grounded on the teacher's
// queue.go (Submit/fenceValue atomic pattern) and hal/vulkan/fence.go
// (the same timeline-semaphore discipline C1 uses for the graphics
// queue, here dedicated to transfers).
package transfer

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendercore/internal/ids"
	"github.com/gogpu/rendercore/internal/vkffi"
	"github.com/gogpu/rendercore/staging"
)

// CommandRecorder abstracts "begin a one-time-submit primary command
// buffer" / "end it" / "record a buffer copy" so this package never
// touches vkffi command recording directly; the device layer supplies
// an implementation backed by its per-thread command pools.
type CommandRecorder interface {
	Begin() (vkffi.CommandBuffer, error)
	End(cmd vkffi.CommandBuffer) error
	RecordCopyBuffer(cmd vkffi.CommandBuffer, srcStagingOffset uint64, dst vkffi.Buffer, dstOffset, size uint64)
	Submit(cmd vkffi.CommandBuffer, waitValue, signalValue uint64) error

	// RecordCopyFromDedicated records a copy sourced from a one-shot
	// dedicated staging buffer rather than the shared belt, used when
	// UploadBuffer falls back after belt exhaustion (spec.md §4.4).
	RecordCopyFromDedicated(cmd vkffi.CommandBuffer, src []byte, dst vkffi.Buffer, dstOffset uint64)
}

type inFlight struct {
	token   uint64
	staging []stagingRef
}

// stagingRef lets the manager release (or at least stop tracking) the
// staging allocation once its owning submission has completed.
type stagingRef struct {
	region staging.Region
}

// Manager owns the transfer queue's dedicated timeline and the belt
// it retires allocations against.
type Manager struct {
	recorder CommandRecorder
	belt     *staging.Belt
	getCompleted func() uint64

	lastSignaled atomic.Uint64

	mu       sync.Mutex
	inFlight []inFlight
}

// New constructs a Manager. getCompleted queries the current GPU-side
// value of the transfer timeline semaphore (device-layer concern,
// same shape as device.Device.CompletedTimeline but against a
// dedicated semaphore, per spec.md §4.4 "a dedicated timeline
// semaphore with initial value 0").
func New(recorder CommandRecorder, belt *staging.Belt, getCompleted func() uint64) *Manager {
	return &Manager{recorder: recorder, belt: belt, getCompleted: getCompleted}
}

// Begin allocates and begins a one-time-submit primary command
// buffer.
func (m *Manager) Begin() (vkffi.CommandBuffer, error) {
	return m.recorder.Begin()
}

// Submit ends cmd, atomically allocates a signal value, submits with a
// timeline signal, retires the staging belt against that value, and
// returns the resulting token.
func (m *Manager) Submit(cmd vkffi.CommandBuffer, ownedStaging []staging.Region) (ids.TransferToken, error) {
	if err := m.recorder.End(cmd); err != nil {
		return 0, err
	}

	signalValue := m.lastSignaled.Add(1)
	if err := m.recorder.Submit(cmd, 0, signalValue); err != nil {
		return 0, err
	}

	refs := make([]stagingRef, len(ownedStaging))
	for i, r := range ownedStaging {
		refs[i] = stagingRef{region: r}
	}

	m.mu.Lock()
	m.inFlight = append(m.inFlight, inFlight{token: signalValue, staging: refs})
	m.mu.Unlock()

	m.belt.Retire(signalValue)

	return ids.TransferToken(signalValue), nil
}

// IsCompleted reports whether the GPU counter has reached token's
// value.
func (m *Manager) IsCompleted(token ids.TransferToken) bool {
	return m.getCompleted() >= uint64(token)
}

// GarbageCollect queries the GPU counter, frees every in-flight entry
// whose value has completed, and forwards the counter to the staging
// belt's own garbage collection.
func (m *Manager) GarbageCollect() {
	completed := m.getCompleted()

	m.mu.Lock()
	i := 0
	for ; i < len(m.inFlight); i++ {
		if m.inFlight[i].token > completed {
			break
		}
	}
	m.inFlight = m.inFlight[i:]
	m.mu.Unlock()

	m.belt.GarbageCollect(completed)
}

// UploadBuffer is the one-shot high-level helper: allocate staging,
// copy bytes into it, record a buffer copy, and submit.
func (m *Manager) UploadBuffer(dst vkffi.Buffer, bytes []byte, dstOffset uint64) (ids.TransferToken, error) {
	const copyAlignment = 16

	alloc, ok := m.belt.Allocate(uint64(len(bytes)), copyAlignment)
	if !ok {
		// Belt exhausted: fall back to a dedicated one-shot staging
		// buffer rather than stall, per spec.md §4.4. The dedicated
		// buffer is not tracked by the belt, so there is no Region to
		// retire for it.
		cmd, err := m.Begin()
		if err != nil {
			return 0, err
		}
		m.recorder.RecordCopyFromDedicated(cmd, bytes, dst, dstOffset)
		return m.Submit(cmd, nil)
	}
	copy(alloc.Mapped, bytes)

	cmd, err := m.Begin()
	if err != nil {
		return 0, err
	}
	m.recorder.RecordCopyBuffer(cmd, alloc.Offset, dst, dstOffset, alloc.Size)

	return m.Submit(cmd, []staging.Region{{Start: alloc.Offset, End: alloc.Offset + alloc.Size}})
}

// BeginUploadBatch starts a batch upload recorded across multiple
// EnqueueUploadBuffer calls, ended by EndUploadBatch.
func (m *Manager) BeginUploadBatch() (vkffi.CommandBuffer, error) {
	return m.Begin()
}

// EnqueueUploadBuffer stages and records one copy within an open
// batch. Returns false (per spec.md §4.4) to let the caller decide
// what to do when staging is exhausted, rather than the manager
// choosing a fallback on the caller's behalf mid-batch.
func (m *Manager) EnqueueUploadBuffer(cmd vkffi.CommandBuffer, dst vkffi.Buffer, bytes []byte, dstOffset, alignment uint64) ([]staging.Region, bool) {
	alloc, ok := m.belt.Allocate(uint64(len(bytes)), alignment)
	if !ok {
		return nil, false
	}
	copy(alloc.Mapped, bytes)
	m.recorder.RecordCopyBuffer(cmd, alloc.Offset, dst, dstOffset, alloc.Size)
	return []staging.Region{{Start: alloc.Offset, End: alloc.Offset + alloc.Size}}, true
}

// EndUploadBatch ends and submits the batch command buffer accumulated
// across one or more EnqueueUploadBuffer calls.
func (m *Manager) EndUploadBatch(cmd vkffi.CommandBuffer, owned []staging.Region) (ids.TransferToken, error) {
	return m.Submit(cmd, owned)
}
