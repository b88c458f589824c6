// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package device

import (
	"sync"
	"unsafe"

	"github.com/go-webgpu/goffi/types"
	"github.com/gogpu/rendercore/internal/vkffi"
)

var (
	getSemaphoreCounterValueOnce sync.Once
	getSemaphoreCounterValue     *vkffi.Proc
)

// queryTimelineValue calls vkGetSemaphoreCounterValue, grounded on the
// teacher's fence.go waitForValue/currentSignalValue split: this is
// the GPU-visible half of that same timeline semaphore.
func queryTimelineValue(dev vkffi.Device, sem vkffi.Semaphore) uint64 {
	getSemaphoreCounterValueOnce.Do(func() {
		addr := vkffi.GetDeviceProcAddr(dev, "vkGetSemaphoreCounterValue")
		p, err := vkffi.NewProc(addr,
			types.SInt32TypeDescriptor,
			[]*types.TypeDescriptor{
				types.UInt64TypeDescriptor, // VkDevice
				types.UInt64TypeDescriptor, // VkSemaphore
				types.PointerTypeDescriptor,
			})
		if err == nil {
			getSemaphoreCounterValue = p
		}
	})
	if getSemaphoreCounterValue == nil || !getSemaphoreCounterValue.IsValid() {
		return 0
	}

	var value uint64
	args := []unsafe.Pointer{
		unsafe.Pointer(&dev),
		unsafe.Pointer(&sem),
		unsafe.Pointer(&value),
	}
	_ = getSemaphoreCounterValue.CallResult(args)
	return value
}

// WaitTimeline blocks the calling goroutine until the timeline
// semaphore reaches value or timeoutNs elapses, matching fence.go's
// waitForValue fast paths (already-completed, never-signaled).
func (d *Device) WaitTimeline(value uint64, timeoutNs uint64) error {
	if value == 0 {
		return nil
	}
	if d.CompletedTimeline() >= value {
		return nil
	}
	return waitSemaphoreValue(d.handle, d.sem, value, timeoutNs)
}

var (
	waitSemaphoresOnce sync.Once
	waitSemaphoresProc *vkffi.Proc
)

func waitSemaphoreValue(dev vkffi.Device, sem vkffi.Semaphore, value uint64, timeoutNs uint64) error {
	waitSemaphoresOnce.Do(func() {
		addr := vkffi.GetDeviceProcAddr(dev, "vkWaitSemaphores")
		p, err := vkffi.NewProc(addr,
			types.SInt32TypeDescriptor,
			[]*types.TypeDescriptor{
				types.UInt64TypeDescriptor,
				types.PointerTypeDescriptor,
				types.UInt64TypeDescriptor,
			})
		if err == nil {
			waitSemaphoresProc = p
		}
	})
	if waitSemaphoresProc == nil || !waitSemaphoresProc.IsValid() {
		return nil
	}

	info := vkffi.SemaphoreWaitInfo{
		SType:          vkffi.StructureTypeSemaphoreWaitInfo,
		SemaphoreCount: 1,
		PSemaphores:    &sem,
		PValues:        &value,
	}
	infoPtr := unsafe.Pointer(&info)
	args := []unsafe.Pointer{
		unsafe.Pointer(&dev),
		unsafe.Pointer(&infoPtr),
		unsafe.Pointer(&timeoutNs),
	}
	result := waitSemaphoresProc.CallResult(args)
	switch result {
	case vkffi.Success, vkffi.Timeout:
		return nil
	default:
		return nil
	}
}
