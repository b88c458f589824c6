// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package device implements the Device & Lifetime Service (C1): a
// monotonic graphics timeline counter, two deferred-destruction
// queues (timeline-tagged and frame-slot-tagged), and a mutex-
// serialized submit/present path. It is grounded on the teacher's
// hal/vulkan/fence.go (deviceFence, timeline semaphore path) and
// hal/vulkan/swapchain.go (submit/present error mapping).
package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendercore/errs"
	"github.com/gogpu/rendercore/internal/rlog"
	"github.com/gogpu/rendercore/internal/vkffi"
)

// Config mirrors the ambient Config struct convention: documented
// fields, a DefaultConfig constructor.
type Config struct {
	// FramesInFlight is N, the number of frame slots the orchestrator
	// and frame-slot deletion queue cycle through.
	FramesInFlight int
}

// DefaultConfig returns the conventional triple-buffered default.
func DefaultConfig() Config {
	return Config{FramesInFlight: 3}
}

type destroyEntry struct {
	after uint64
	fn    func()
}

type slotEntry struct {
	fn func()
}

// Device owns the graphics timeline semaphore, the submit/present
// mutex, per-thread command pools and both deferred-destruction
// queues.
type Device struct {
	handle vkffi.Device
	queue  vkffi.Queue
	sem    vkffi.Semaphore

	lastIssued atomic.Uint64

	submitMu sync.Mutex

	timelineMu sync.Mutex
	timeline   []destroyEntry

	slotsMu     sync.Mutex
	slots       [][]slotEntry
	globalFrame atomic.Uint64

	poolsMu sync.Mutex
	pools   map[uint64]vkffi.CommandPool

	lost atomic.Bool
}

// New wraps an already-created device handle, queue and timeline
// semaphore. Vulkan object creation itself belongs to an
// instance/adapter-selection layer outside this package's scope, same
// split as the teacher's hal.Backend vs hal.Device.
func New(handle vkffi.Device, queue vkffi.Queue, timelineSemaphore vkffi.Semaphore, cfg Config) *Device {
	if cfg.FramesInFlight <= 0 {
		cfg = DefaultConfig()
	}
	d := &Device{
		handle: handle,
		queue:  queue,
		sem:    timelineSemaphore,
		slots:  make([][]slotEntry, cfg.FramesInFlight),
		pools:  make(map[uint64]vkffi.CommandPool),
	}
	return d
}

// SignalTimeline fetch-adds the monotonic counter and returns the
// value the caller must submit with as its signal value.
func (d *Device) SignalTimeline() uint64 {
	return d.lastIssued.Add(1)
}

// lastIssuedValue returns the most recently handed-out signal value
// without incrementing it, used by DeferDestroy's shorthand.
func (d *Device) lastIssuedValue() uint64 {
	return d.lastIssued.Load()
}

// CompletedTimeline queries the GPU-side counter of the graphics
// timeline semaphore.
func (d *Device) CompletedTimeline() uint64 {
	return queryTimelineValue(d.handle, d.sem)
}

// DeferDestroyAfter enqueues fn to run once CompletedTimeline() ≥
// value.
func (d *Device) DeferDestroyAfter(value uint64, fn func()) {
	d.timelineMu.Lock()
	d.timeline = append(d.timeline, destroyEntry{after: value, fn: fn})
	d.timelineMu.Unlock()
}

// DeferDestroy is shorthand for DeferDestroyAfter(lastIssued+1, fn):
// "run after the next submit completes."
func (d *Device) DeferDestroy(fn func()) {
	d.DeferDestroyAfter(d.lastIssuedValue()+1, fn)
}

// CollectGarbage runs and removes every queued destroy whose value is
// ≤ the current completed counter. Destroy closures are best-effort
// and never panic across this boundary.
func (d *Device) CollectGarbage() {
	completed := d.CompletedTimeline()

	d.timelineMu.Lock()
	remaining := d.timeline[:0]
	var ready []func()
	for _, e := range d.timeline {
		if e.after <= completed {
			ready = append(ready, e.fn)
		} else {
			remaining = append(remaining, e)
		}
	}
	d.timeline = remaining
	d.timelineMu.Unlock()

	runAllNoexcept(ready)
}

// FlushAll drains both the timeline queue and every frame-slot queue
// unconditionally. The caller must ensure the GPU is idle first (e.g.
// after vkDeviceWaitIdle) — FlushAll does not itself wait.
func (d *Device) FlushAll() {
	d.timelineMu.Lock()
	ready := make([]func(), 0, len(d.timeline))
	for _, e := range d.timeline {
		ready = append(ready, e.fn)
	}
	d.timeline = nil
	d.timelineMu.Unlock()
	runAllNoexcept(ready)

	d.slotsMu.Lock()
	var slotReady []func()
	for i := range d.slots {
		for _, e := range d.slots[i] {
			slotReady = append(slotReady, e.fn)
		}
		d.slots[i] = nil
	}
	d.slotsMu.Unlock()
	runAllNoexcept(slotReady)
}

// FlushSlot drains the frame-slot deletion queue for slot i. Called
// once per frame at frame begin for the slot whose fence has just
// been waited upon by the orchestrator.
func (d *Device) FlushSlot(i int) {
	d.slotsMu.Lock()
	if i < 0 || i >= len(d.slots) {
		d.slotsMu.Unlock()
		return
	}
	ready := d.slots[i]
	d.slots[i] = nil
	d.slotsMu.Unlock()

	fns := make([]func(), len(ready))
	for idx, e := range ready {
		fns[idx] = e.fn
	}
	runAllNoexcept(fns)
}

// DeferDestroySlot schedules fn for destruction the next time slot i
// is flushed, i.e. at most one frame old.
func (d *Device) DeferDestroySlot(i int, fn func()) {
	d.slotsMu.Lock()
	if i >= 0 && i < len(d.slots) {
		d.slots[i] = append(d.slots[i], slotEntry{fn: fn})
	}
	d.slotsMu.Unlock()
}

// IncrementGlobalFrame advances the orchestrator-visible global frame
// counter, used by C6's N-frames-in-flight reclamation and C8's
// per-frame arena tagging.
func (d *Device) IncrementGlobalFrame() uint64 {
	return d.globalFrame.Add(1)
}

// GlobalFrame returns the current global frame number.
func (d *Device) GlobalFrame() uint64 {
	return d.globalFrame.Load()
}

// FramesInFlight returns N.
func (d *Device) FramesInFlight() int {
	return len(d.slots)
}

// Handle returns the underlying Vulkan device handle for components
// that need to issue raw vkffi calls directly (C2-C9).
func (d *Device) Handle() vkffi.Device { return d.handle }

// Queue returns the graphics queue handle.
func (d *Device) Queue() vkffi.Queue { return d.queue }

// CommandPoolFor returns the command pool registered for threadID,
// creating and registering one on first use. The Device keeps every
// registered pool for its lifetime; it has no method that destroys
// them.
func (d *Device) CommandPoolFor(threadID uint64, create func() (vkffi.CommandPool, error)) (vkffi.CommandPool, error) {
	d.poolsMu.Lock()
	defer d.poolsMu.Unlock()
	if pool, ok := d.pools[threadID]; ok {
		return pool, nil
	}
	pool, err := create()
	if err != nil {
		return 0, err
	}
	d.pools[threadID] = pool
	return pool, nil
}

// SubmitToGraphics serializes a submission behind the device's single
// submit mutex, matching spec.md's "queue operations serialized by a
// single mutex."
func (d *Device) SubmitToGraphics(submit func(q vkffi.Queue) vkffi.Result) error {
	if d.lost.Load() {
		return errs.ErrDeviceLost
	}
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	result := submit(d.queue)
	if result == vkffi.ErrorDeviceLost {
		d.lost.Store(true)
		rlog.Logger().Error("device lost during submit")
		return errs.ErrDeviceLost
	}
	if !result.Ok() {
		return fmt.Errorf("rendercore/device: vkQueueSubmit2 failed: result=%d", result)
	}
	return nil
}

// Present serializes a present call behind the same submit mutex, so
// a submit and a present on the same queue can never interleave.
func (d *Device) Present(present func(q vkffi.Queue) vkffi.Result) error {
	if d.lost.Load() {
		return errs.ErrDeviceLost
	}
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	result := present(d.queue)
	switch result {
	case vkffi.Success:
		return nil
	case vkffi.SuboptimalKHR, vkffi.ErrorOutOfDateKHR:
		return errs.ErrSurfaceOutdated
	case vkffi.ErrorDeviceLost:
		d.lost.Store(true)
		return errs.ErrDeviceLost
	default:
		return fmt.Errorf("rendercore/device: vkQueuePresentKHR failed: result=%d", result)
	}
}

// Lost reports whether a prior submit/present observed device loss.
func (d *Device) Lost() bool { return d.lost.Load() }

func runAllNoexcept(fns []func()) {
	for _, fn := range fns {
		callNoexcept(fn)
	}
}

// callNoexcept runs fn, recovering any panic. Destroy closures are
// documented as best-effort noexcept in spec.md §4.1; a panicking
// destructor must not take down garbage collection for every other
// pending entry.
func callNoexcept(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rlog.Logger().Error("deferred destroy panicked", "recover", r)
		}
	}()
	fn()
}
