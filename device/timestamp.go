// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package device

import (
	"sync"
	"unsafe"

	"github.com/go-webgpu/goffi/types"
	"github.com/gogpu/rendercore/internal/vkffi"
)

// TimestampPool is the supplemented GPU timestamp profiler
// (SPEC_FULL.md §4.1), grounded on RHI.Profiler.cpp's GpuProfiler:
// one frame-start/frame-end timestamp pair per frame-in-flight slot,
// written with vkCmdWriteTimestamp2 and resolved opportunistically and
// non-blockingly via vkGetQueryPoolResults with the availability bit.
type TimestampPool struct {
	dev    vkffi.Device
	pool   vkffi.QueryPool
	period float64 // nanoseconds per tick; 0 means unsupported

	framesInFlight int
}

// NewTimestampPool creates a query pool sized for 2 timestamps per
// frame-in-flight slot (frame start + frame end). timestampPeriodNs is
// VkPhysicalDeviceLimits.timestampPeriod; a value of 0 disables the
// pool, matching the original's "timestamps effectively unusable" case.
func NewTimestampPool(dev vkffi.Device, framesInFlight int, timestampPeriodNs float64) *TimestampPool {
	tp := &TimestampPool{dev: dev, framesInFlight: framesInFlight, period: timestampPeriodNs}
	if !tp.Supported() {
		return tp
	}

	info := vkffi.QueryPoolCreateInfo{
		SType:      vkffi.StructureTypeQueryPoolCreateInfo,
		QueryType:  vkffi.QueryTypeTimestamp,
		QueryCount: uint32(framesInFlight * 2),
	}
	var pool vkffi.QueryPool
	createQueryPool(dev, &info, &pool)
	tp.pool = pool
	return tp
}

// Supported reports whether the device reports a usable timestamp
// period.
func (tp *TimestampPool) Supported() bool { return tp.period > 0 }

func (tp *TimestampPool) startQuery(slot int) uint32 { return uint32(slot * 2) }
func (tp *TimestampPool) endQuery(slot int) uint32   { return uint32(slot*2 + 1) }

// ResetSlot resets the two queries owned by slot before they are
// rewritten this frame; must run before either WriteFrameStart or
// WriteFrameEnd is recorded.
func (tp *TimestampPool) ResetSlot(cmd vkffi.CommandBuffer, slot int) {
	if !tp.Supported() || tp.pool == 0 {
		return
	}
	cmdResetQueryPool(tp.dev, cmd, tp.pool, tp.startQuery(slot), 2)
}

// WriteFrameStart records a TOP_OF_PIPE timestamp for slot.
func (tp *TimestampPool) WriteFrameStart(cmd vkffi.CommandBuffer, slot int) {
	if !tp.Supported() || tp.pool == 0 {
		return
	}
	cmdWriteTimestamp2(tp.dev, cmd, vkffi.PipelineStageTopOfPipe2, tp.pool, tp.startQuery(slot))
}

// WriteFrameEnd records a BOTTOM_OF_PIPE-equivalent (all-commands)
// timestamp for slot.
func (tp *TimestampPool) WriteFrameEnd(cmd vkffi.CommandBuffer, slot int) {
	if !tp.Supported() || tp.pool == 0 {
		return
	}
	cmdWriteTimestamp2(tp.dev, cmd, vkffi.PipelineStageAllCommands2, tp.pool, tp.endQuery(slot))
}

// Resolve attempts a non-blocking readback of slot's start/end
// timestamps, converted to nanoseconds. ok is false if the GPU has not
// finished the queries yet (VK_NOT_READY or a missing availability
// bit) — the caller should simply try again next frame.
func (tp *TimestampPool) Resolve(slot int) (startNs, endNs uint64, ok bool) {
	if !tp.Supported() || tp.pool == 0 {
		return 0, 0, false
	}

	type tsResult struct {
		Value     uint64
		Available uint64
	}
	var results [2]tsResult

	result := getQueryPoolResults(tp.dev, tp.pool, tp.startQuery(slot), 2,
		uint64(unsafe.Sizeof(results)), unsafe.Pointer(&results[0]), uint64(unsafe.Sizeof(tsResult{})),
		vkffi.QueryResult64Bit|vkffi.QueryResultWithAvailability)

	if result != vkffi.Success {
		return 0, 0, false
	}
	if results[0].Available == 0 || results[1].Available == 0 {
		return 0, 0, false
	}

	start := uint64(float64(results[0].Value) * tp.period)
	end := uint64(float64(results[1].Value) * tp.period)
	return start, end, true
}

// Destroy releases the underlying query pool.
func (tp *TimestampPool) Destroy() {
	if tp.pool == 0 {
		return
	}
	destroyQueryPool(tp.dev, tp.pool)
	tp.pool = 0
}

var (
	createQueryPoolOnce  sync.Once
	createQueryPoolProc  *vkffi.Proc
	destroyQueryPoolOnce sync.Once
	destroyQueryPoolProc *vkffi.Proc
	resetQueryPoolOnce   sync.Once
	resetQueryPoolProc   *vkffi.Proc
	writeTimestampOnce   sync.Once
	writeTimestampProc   *vkffi.Proc
	getQueryResultsOnce  sync.Once
	getQueryResultsProc  *vkffi.Proc
)

func createQueryPool(dev vkffi.Device, info *vkffi.QueryPoolCreateInfo, out *vkffi.QueryPool) {
	createQueryPoolOnce.Do(func() {
		addr := vkffi.GetDeviceProcAddr(dev, "vkCreateQueryPool")
		p, err := vkffi.NewProc(addr, types.SInt32TypeDescriptor, []*types.TypeDescriptor{
			types.UInt64TypeDescriptor,
			types.PointerTypeDescriptor,
			types.PointerTypeDescriptor,
			types.PointerTypeDescriptor,
		})
		if err == nil {
			createQueryPoolProc = p
		}
	})
	if createQueryPoolProc == nil || !createQueryPoolProc.IsValid() {
		return
	}
	var allocator unsafe.Pointer
	args := []unsafe.Pointer{
		unsafe.Pointer(&dev),
		unsafe.Pointer(info),
		unsafe.Pointer(&allocator),
		unsafe.Pointer(out),
	}
	_ = createQueryPoolProc.CallResult(args)
}

func destroyQueryPool(dev vkffi.Device, pool vkffi.QueryPool) {
	destroyQueryPoolOnce.Do(func() {
		addr := vkffi.GetDeviceProcAddr(dev, "vkDestroyQueryPool")
		p, err := vkffi.NewProc(addr, types.VoidTypeDescriptor, []*types.TypeDescriptor{
			types.UInt64TypeDescriptor,
			types.UInt64TypeDescriptor,
			types.PointerTypeDescriptor,
		})
		if err == nil {
			destroyQueryPoolProc = p
		}
	})
	if destroyQueryPoolProc == nil || !destroyQueryPoolProc.IsValid() {
		return
	}
	var allocator unsafe.Pointer
	args := []unsafe.Pointer{
		unsafe.Pointer(&dev),
		unsafe.Pointer(&pool),
		unsafe.Pointer(&allocator),
	}
	destroyQueryPoolProc.CallVoid(args)
}

func cmdResetQueryPool(dev vkffi.Device, cmd vkffi.CommandBuffer, pool vkffi.QueryPool, firstQuery, queryCount uint32) {
	resetQueryPoolOnce.Do(func() {
		addr := vkffi.GetDeviceProcAddr(dev, "vkCmdResetQueryPool")
		p, err := vkffi.NewProc(addr, types.VoidTypeDescriptor, []*types.TypeDescriptor{
			types.UInt64TypeDescriptor,
			types.UInt64TypeDescriptor,
			types.UInt32TypeDescriptor,
			types.UInt32TypeDescriptor,
		})
		if err == nil {
			resetQueryPoolProc = p
		}
	})
	if resetQueryPoolProc == nil || !resetQueryPoolProc.IsValid() {
		return
	}
	args := []unsafe.Pointer{
		unsafe.Pointer(&cmd),
		unsafe.Pointer(&pool),
		unsafe.Pointer(&firstQuery),
		unsafe.Pointer(&queryCount),
	}
	resetQueryPoolProc.CallVoid(args)
}

func cmdWriteTimestamp2(dev vkffi.Device, cmd vkffi.CommandBuffer, stage vkffi.PipelineStageFlags2, pool vkffi.QueryPool, query uint32) {
	writeTimestampOnce.Do(func() {
		addr := vkffi.GetDeviceProcAddr(dev, "vkCmdWriteTimestamp2")
		p, err := vkffi.NewProc(addr, types.VoidTypeDescriptor, []*types.TypeDescriptor{
			types.UInt64TypeDescriptor,
			types.UInt64TypeDescriptor,
			types.UInt64TypeDescriptor,
			types.UInt32TypeDescriptor,
		})
		if err == nil {
			writeTimestampProc = p
		}
	})
	if writeTimestampProc == nil || !writeTimestampProc.IsValid() {
		return
	}
	args := []unsafe.Pointer{
		unsafe.Pointer(&cmd),
		unsafe.Pointer(&stage),
		unsafe.Pointer(&pool),
		unsafe.Pointer(&query),
	}
	writeTimestampProc.CallVoid(args)
}

func getQueryPoolResults(dev vkffi.Device, pool vkffi.QueryPool, firstQuery, queryCount uint32, dataSize uint64, data unsafe.Pointer, stride uint64, flags vkffi.QueryResultFlags) vkffi.Result {
	getQueryResultsOnce.Do(func() {
		addr := vkffi.GetDeviceProcAddr(dev, "vkGetQueryPoolResults")
		p, err := vkffi.NewProc(addr, types.SInt32TypeDescriptor, []*types.TypeDescriptor{
			types.UInt64TypeDescriptor,
			types.UInt64TypeDescriptor,
			types.UInt32TypeDescriptor,
			types.UInt32TypeDescriptor,
			types.UInt64TypeDescriptor,
			types.PointerTypeDescriptor,
			types.UInt64TypeDescriptor,
			types.UInt32TypeDescriptor,
		})
		if err == nil {
			getQueryResultsProc = p
		}
	})
	if getQueryResultsProc == nil || !getQueryResultsProc.IsValid() {
		return vkffi.ErrorDeviceLost
	}
	args := []unsafe.Pointer{
		unsafe.Pointer(&dev),
		unsafe.Pointer(&pool),
		unsafe.Pointer(&firstQuery),
		unsafe.Pointer(&queryCount),
		unsafe.Pointer(&dataSize),
		unsafe.Pointer(&data),
		unsafe.Pointer(&stride),
		unsafe.Pointer(&flags),
	}
	return getQueryResultsProc.CallResult(args)
}
