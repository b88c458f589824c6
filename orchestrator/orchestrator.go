// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package orchestrator implements the Frame Orchestrator (C9): the
// acquire/record/submit/present loop that owns per-frame fences,
// semaphores, and the primary command buffer, and drives C1's timeline
// and deferred-destroy GC at frame boundaries. It is grounded on the
// teacher's hal/vulkan/swapchain.go (acquire/present, OUT_OF_DATE and
// SUBOPTIMAL handling) and hal/vulkan/fence.go (per-slot fence wait and
// reset around a rotating ring of frame state).
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/gogpu/rendercore/device"
	"github.com/gogpu/rendercore/errs"
	"github.com/gogpu/rendercore/internal/rlog"
	"github.com/gogpu/rendercore/internal/vkffi"
)

// Swapchain is the device-layer surface the orchestrator drives to
// acquire and present images. Implementations map VK_ERROR_OUT_OF_DATE_KHR
// to errs.ErrSurfaceOutdated; VK_SUBOPTIMAL_KHR is treated as a usable
// image, matching hal/vulkan/swapchain.go's acquireNextImage.
type Swapchain interface {
	AcquireNextImage(imageAvailable vkffi.Semaphore) (image vkffi.Image, view vkffi.ImageView, extent vkffi.Extent2D, imageIndex uint32, err error)
	Recreate() error
}

// CommandRecorder records the small amount of orchestrator-owned work
// into the primary command buffer: lifecycle and the acquire/present
// image layout transitions. Pass recording itself belongs to
// rendergraph.Graph.Execute, called by the consumer between BeginFrame
// and EndFrame.
type CommandRecorder interface {
	Reset(cmd vkffi.CommandBuffer) error
	Begin(cmd vkffi.CommandBuffer) error
	End(cmd vkffi.CommandBuffer) error
	TransitionImage(cmd vkffi.CommandBuffer, barrier vkffi.ImageMemoryBarrier2)
}

// FenceOps waits on and resets a frame slot's in-flight fence.
type FenceOps interface {
	Wait(fence vkffi.Fence) error
	Reset(fence vkffi.Fence) error
}

// Submitter issues the frame's single vkQueueSubmit2, waiting on the
// acquire semaphore at TOP_OF_PIPE and signaling the render-finished
// semaphore and in-flight fence.
type Submitter interface {
	Submit(queue vkffi.Queue, primary vkffi.CommandBuffer, wait vkffi.Semaphore, waitStage vkffi.PipelineStageFlags2, signal vkffi.Semaphore, fence vkffi.Fence) vkffi.Result
}

// Presenter issues vkQueuePresentKHR waiting on the render-finished
// semaphore.
type Presenter interface {
	Present(queue vkffi.Queue, wait vkffi.Semaphore, imageIndex uint32) vkffi.Result
}

// FrameSlot is the per-frame-in-flight state spec.md §4.9 calls for:
// an image-available semaphore, a render-finished semaphore, an
// in-flight fence, and the primary command buffer recorded into this
// slot. Construction (semaphore/fence/command-buffer allocation) is
// the consumer's responsibility, matching the DI style used by every
// other component that takes its Vulkan objects pre-built.
type FrameSlot struct {
	ImageAvailable vkffi.Semaphore
	RenderFinished vkffi.Semaphore
	Fence          vkffi.Fence
	Primary        vkffi.CommandBuffer
}

// FrameContext is what BeginFrame hands the consumer: the acquired
// swapchain image, the primary command buffer to record into, and the
// bookkeeping EndFrame needs back.
type FrameContext struct {
	Slot        int
	GlobalFrame uint64
	Image       vkffi.Image
	View        vkffi.ImageView
	Extent      vkffi.Extent2D
	ImageIndex  uint32
	Primary     vkffi.CommandBuffer
}

// Orchestrator is C9. It owns nothing about pass content; it only
// drives the acquire/begin/submit/present sequence and the image
// layout transitions that bracket it.
type Orchestrator struct {
	dev       *device.Device
	swapchain Swapchain
	cmds      CommandRecorder
	fences    FenceOps
	submitter Submitter
	presenter Presenter

	timestamps *device.TimestampPool

	// OnFrameTimestamps, if set, is called from EndFrame whenever an
	// older frame's GPU timestamps resolve without blocking.
	OnFrameTimestamps func(startNs, endNs uint64)

	slots []FrameSlot
	cur   int

	pending    FrameContext
	hasPending bool
}

// New constructs an Orchestrator over a pre-built ring of frame slots.
// timestamps may be nil to disable GPU frame timing.
func New(dev *device.Device, swapchain Swapchain, cmds CommandRecorder, fences FenceOps, submitter Submitter, presenter Presenter, timestamps *device.TimestampPool, slots []FrameSlot) *Orchestrator {
	return &Orchestrator{
		dev:        dev,
		swapchain:  swapchain,
		cmds:       cmds,
		fences:     fences,
		submitter:  submitter,
		presenter:  presenter,
		timestamps: timestamps,
		slots:      slots,
	}
}

// BeginFrame implements spec.md §4.9's begin_frame: wait the slot's
// fence, flush its deferred-destroy queue, advance the global frame
// counter, acquire a swapchain image, reset and begin the primary
// command buffer, write the GPU-frame-start timestamp, and transition
// the acquired image to COLOR_ATTACHMENT_OPTIMAL.
//
// On errs.ErrSurfaceOutdated the swapchain has already been recreated
// and no frame was started; the caller must skip this tick.
func (o *Orchestrator) BeginFrame() (FrameContext, error) {
	if len(o.slots) == 0 {
		return FrameContext{}, fmt.Errorf("rendercore/orchestrator: no frame slots configured")
	}
	slot := o.cur
	fs := o.slots[slot]

	if err := o.fences.Wait(fs.Fence); err != nil {
		return FrameContext{}, err
	}

	o.dev.FlushSlot(slot)
	global := o.dev.IncrementGlobalFrame()

	image, view, extent, imageIndex, err := o.swapchain.AcquireNextImage(fs.ImageAvailable)
	if errors.Is(err, errs.ErrSurfaceOutdated) {
		if rerr := o.swapchain.Recreate(); rerr != nil {
			rlog.Logger().Error("swapchain recreate failed after OUT_OF_DATE acquire", "error", rerr)
		}
		return FrameContext{}, err
	}
	if err != nil {
		return FrameContext{}, err
	}

	if err := o.fences.Reset(fs.Fence); err != nil {
		return FrameContext{}, err
	}
	if err := o.cmds.Reset(fs.Primary); err != nil {
		return FrameContext{}, err
	}
	if err := o.cmds.Begin(fs.Primary); err != nil {
		return FrameContext{}, err
	}

	if o.timestamps != nil {
		o.timestamps.ResetSlot(fs.Primary, slot)
		o.timestamps.WriteFrameStart(fs.Primary, slot)
	}

	o.cmds.TransitionImage(fs.Primary, vkffi.ImageMemoryBarrier2{
		SType:         vkffi.StructureTypeImageMemoryBarrier2,
		SrcStageMask:  vkffi.PipelineStageTopOfPipe2,
		SrcAccessMask: vkffi.AccessNone2,
		DstStageMask:  vkffi.PipelineStageColorAttachmentOutput2,
		DstAccessMask: vkffi.AccessColorAttachmentWrite2,
		OldLayout:     vkffi.ImageLayoutUndefined,
		NewLayout:     vkffi.ImageLayoutColorAttachmentOptimal,
		Image:         image,
		SubresourceRange: vkffi.ImageSubresourceRange{
			AspectMask: 1, // VK_IMAGE_ASPECT_COLOR_BIT
			LevelCount: 1,
			LayerCount: 1,
		},
	})

	fc := FrameContext{
		Slot:        slot,
		GlobalFrame: global,
		Image:       image,
		View:        view,
		Extent:      extent,
		ImageIndex:  imageIndex,
		Primary:     fs.Primary,
	}
	o.pending = fc
	o.hasPending = true
	return fc, nil
}

// EndFrame implements spec.md §4.9's end_frame: transition the
// acquired image to PRESENT_SRC, write the GPU-frame-end timestamp,
// end and submit the primary command buffer, opportunistically resolve
// an older frame's GPU timestamps, present, and advance the slot.
func (o *Orchestrator) EndFrame(fc FrameContext) error {
	if !o.hasPending || fc.Slot != o.pending.Slot {
		return fmt.Errorf("rendercore/orchestrator: EndFrame called without a matching BeginFrame")
	}
	o.hasPending = false
	fs := o.slots[fc.Slot]

	o.cmds.TransitionImage(fc.Primary, vkffi.ImageMemoryBarrier2{
		SType:         vkffi.StructureTypeImageMemoryBarrier2,
		SrcStageMask:  vkffi.PipelineStageColorAttachmentOutput2,
		SrcAccessMask: vkffi.AccessColorAttachmentWrite2,
		DstStageMask:  vkffi.PipelineStageBottomOfPipe2,
		DstAccessMask: vkffi.AccessNone2,
		OldLayout:     vkffi.ImageLayoutColorAttachmentOptimal,
		NewLayout:     vkffi.ImageLayoutPresentSrcKHR,
		Image:         fc.Image,
		SubresourceRange: vkffi.ImageSubresourceRange{
			AspectMask: 1,
			LevelCount: 1,
			LayerCount: 1,
		},
	})

	if o.timestamps != nil {
		o.timestamps.WriteFrameEnd(fc.Primary, fc.Slot)
	}

	if err := o.cmds.End(fc.Primary); err != nil {
		return err
	}

	if err := o.dev.SubmitToGraphics(func(q vkffi.Queue) vkffi.Result {
		return o.submitter.Submit(q, fc.Primary, fs.ImageAvailable, vkffi.PipelineStageTopOfPipe2, fs.RenderFinished, fs.Fence)
	}); err != nil {
		return err
	}

	o.resolveOlderTimestamps(fc.Slot)

	presentErr := o.dev.Present(func(q vkffi.Queue) vkffi.Result {
		return o.presenter.Present(q, fs.RenderFinished, fc.ImageIndex)
	})
	if errors.Is(presentErr, errs.ErrSurfaceOutdated) {
		if rerr := o.swapchain.Recreate(); rerr != nil {
			rlog.Logger().Error("swapchain recreate failed after present OUT_OF_DATE/SUBOPTIMAL", "error", rerr)
		}
	} else if presentErr != nil {
		return presentErr
	}

	o.cur = (fc.Slot + 1) % len(o.slots)
	return nil
}

// resolveOlderTimestamps opportunistically reads back the slot that is
// next in rotation: its queries were written len(slots)-1 frames ago,
// the oldest frame still in the ring. The read is non-blocking;
// Resolve reports !ok when the GPU has not finished them yet.
func (o *Orchestrator) resolveOlderTimestamps(completedSlot int) {
	if o.timestamps == nil {
		return
	}
	target := (completedSlot + 1) % len(o.slots)
	start, end, ok := o.timestamps.Resolve(target)
	if !ok {
		return
	}
	if o.OnFrameTimestamps != nil {
		o.OnFrameTimestamps(start, end)
	}
}

// CurrentSlot reports the slot BeginFrame will use next.
func (o *Orchestrator) CurrentSlot() int { return o.cur }
