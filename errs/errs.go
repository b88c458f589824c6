// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package errs collects the sentinel errors shared across the rendering
// core, following spec.md §7's error-kind table.
package errs

import "errors"

var (
	// ErrDeviceLost is returned by any submit/present call after the GPU
	// device has been lost. It is fatal; the orchestrator must report it
	// rather than retry.
	ErrDeviceLost = errors.New("rendercore: device lost")

	// ErrOutOfMemory indicates host or device memory exhaustion from an
	// allocator (transient pages, staging belt, descriptor pools).
	ErrOutOfMemory = errors.New("rendercore: out of memory")

	// ErrStagingFull indicates the staging belt could not satisfy an
	// allocation without stalling. Callers must fall back to a
	// dedicated one-shot staging buffer.
	ErrStagingFull = errors.New("rendercore: staging belt full")

	// ErrTransientExhausted indicates the transient page allocator could
	// not place a resource for the current frame.
	ErrTransientExhausted = errors.New("rendercore: transient memory exhausted")

	// ErrSurfaceOutdated indicates the swapchain must be recreated
	// before the frame can continue (acquire/present OUT_OF_DATE or
	// SUBOPTIMAL).
	ErrSurfaceOutdated = errors.New("rendercore: surface outdated")

	// ErrSlotsExhausted indicates the GPU scene's fixed-capacity
	// instance slot pool has no free slot and cannot grow.
	ErrSlotsExhausted = errors.New("rendercore: slot pool exhausted")

	// ErrBindlessOutOfRange indicates a bindless update targeted an
	// index at or beyond the table's capacity.
	ErrBindlessOutOfRange = errors.New("rendercore: bindless index out of range")

	// ErrBindlessNullDescriptor indicates an enqueued bindless update
	// carried a null view or sampler.
	ErrBindlessNullDescriptor = errors.New("rendercore: bindless update has null view or sampler")

	// ErrGraphCycle indicates render graph compilation detected a
	// dependency cycle; the graph falls back to a single declaration-
	// order layer rather than failing the frame.
	ErrGraphCycle = errors.New("rendercore: render graph contains a cycle")

	// ErrInvalidHandle indicates a Handle's generation no longer matches
	// its slot (stale or freed handle).
	ErrInvalidHandle = errors.New("rendercore: stale or invalid handle")
)
