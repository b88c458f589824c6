// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"testing"

	"github.com/gogpu/rendercore/device"
	"github.com/gogpu/rendercore/errs"
	"github.com/gogpu/rendercore/internal/vkffi"
)

type fakeSwapchain struct {
	outOfDate   bool
	recreated   int
	nextImage   vkffi.Image
	nextView    vkffi.ImageView
	nextIndex   uint32
	extent      vkffi.Extent2D
	acquireErr  error
}

func (f *fakeSwapchain) AcquireNextImage(imageAvailable vkffi.Semaphore) (vkffi.Image, vkffi.ImageView, vkffi.Extent2D, uint32, error) {
	if f.outOfDate {
		return 0, 0, vkffi.Extent2D{}, 0, errs.ErrSurfaceOutdated
	}
	if f.acquireErr != nil {
		return 0, 0, vkffi.Extent2D{}, 0, f.acquireErr
	}
	return f.nextImage, f.nextView, f.extent, f.nextIndex, nil
}

func (f *fakeSwapchain) Recreate() error {
	f.recreated++
	f.outOfDate = false
	return nil
}

type fakeCommands struct {
	resetCount int
	beginCount int
	endCount   int
	barriers   []vkffi.ImageMemoryBarrier2
}

func (f *fakeCommands) Reset(cmd vkffi.CommandBuffer) error { f.resetCount++; return nil }
func (f *fakeCommands) Begin(cmd vkffi.CommandBuffer) error { f.beginCount++; return nil }
func (f *fakeCommands) End(cmd vkffi.CommandBuffer) error   { f.endCount++; return nil }
func (f *fakeCommands) TransitionImage(cmd vkffi.CommandBuffer, barrier vkffi.ImageMemoryBarrier2) {
	f.barriers = append(f.barriers, barrier)
}

type fakeFences struct {
	waited  []vkffi.Fence
	reset   []vkffi.Fence
	waitErr error
}

func (f *fakeFences) Wait(fence vkffi.Fence) error {
	f.waited = append(f.waited, fence)
	return f.waitErr
}
func (f *fakeFences) Reset(fence vkffi.Fence) error {
	f.reset = append(f.reset, fence)
	return nil
}

type fakeSubmitter struct {
	calls int
}

func (f *fakeSubmitter) Submit(queue vkffi.Queue, primary vkffi.CommandBuffer, wait vkffi.Semaphore, waitStage vkffi.PipelineStageFlags2, signal vkffi.Semaphore, fence vkffi.Fence) vkffi.Result {
	f.calls++
	return vkffi.Success
}

type fakePresenter struct {
	calls  int
	result vkffi.Result
}

func (f *fakePresenter) Present(queue vkffi.Queue, wait vkffi.Semaphore, imageIndex uint32) vkffi.Result {
	f.calls++
	if f.result == 0 {
		return vkffi.Success
	}
	return f.result
}

func newTestOrchestrator(n int) (*Orchestrator, *fakeSwapchain, *fakeCommands, *fakeFences, *fakeSubmitter, *fakePresenter) {
	dev := device.New(1, 1, 1, device.Config{FramesInFlight: n})
	sc := &fakeSwapchain{nextImage: 7, nextView: 8, nextIndex: 0, extent: vkffi.Extent2D{Width: 640, Height: 480}}
	cmds := &fakeCommands{}
	fences := &fakeFences{}
	sub := &fakeSubmitter{}
	pres := &fakePresenter{}

	slots := make([]FrameSlot, n)
	for i := range slots {
		slots[i] = FrameSlot{
			ImageAvailable: vkffi.Semaphore(i + 1),
			RenderFinished: vkffi.Semaphore(i + 100),
			Fence:          vkffi.Fence(i + 200),
			Primary:        vkffi.CommandBuffer(i + 1),
		}
	}

	o := New(dev, sc, cmds, fences, sub, pres, nil, slots)
	return o, sc, cmds, fences, sub, pres
}

func TestBeginFrameWaitsFenceAndAcquiresImage(t *testing.T) {
	o, _, cmds, fences, _, _ := newTestOrchestrator(2)

	fc, err := o.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if fc.Image != 7 || fc.View != 8 {
		t.Fatalf("FrameContext image/view = %d/%d, want 7/8", fc.Image, fc.View)
	}
	if len(fences.waited) != 1 || fences.waited[0] != vkffi.Fence(200) {
		t.Fatalf("fences.waited = %v, want [200]", fences.waited)
	}
	if cmds.resetCount != 1 || cmds.beginCount != 1 {
		t.Fatalf("cmds reset/begin = %d/%d, want 1/1", cmds.resetCount, cmds.beginCount)
	}
	if len(cmds.barriers) != 1 {
		t.Fatalf("cmds.barriers = %d, want 1 (acquire transition)", len(cmds.barriers))
	}
	b := cmds.barriers[0]
	if b.OldLayout != vkffi.ImageLayoutUndefined || b.NewLayout != vkffi.ImageLayoutColorAttachmentOptimal {
		t.Fatalf("acquire barrier layouts = %v -> %v, want Undefined -> ColorAttachmentOptimal", b.OldLayout, b.NewLayout)
	}
}

func TestBeginFrameReturnsSurfaceOutdatedAndRecreates(t *testing.T) {
	o, sc, _, _, _, _ := newTestOrchestrator(2)
	sc.outOfDate = true

	_, err := o.BeginFrame()
	if err != errs.ErrSurfaceOutdated {
		t.Fatalf("BeginFrame error = %v, want ErrSurfaceOutdated", err)
	}
	if sc.recreated != 1 {
		t.Fatalf("swapchain.recreated = %d, want 1", sc.recreated)
	}
}

func TestEndFrameSubmitsAndPresentsThenAdvancesSlot(t *testing.T) {
	o, _, cmds, _, sub, pres := newTestOrchestrator(2)

	fc, err := o.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := o.EndFrame(fc); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	if sub.calls != 1 {
		t.Fatalf("submitter.calls = %d, want 1", sub.calls)
	}
	if pres.calls != 1 {
		t.Fatalf("presenter.calls = %d, want 1", pres.calls)
	}
	if cmds.endCount != 1 {
		t.Fatalf("cmds.endCount = %d, want 1", cmds.endCount)
	}
	if len(cmds.barriers) != 2 {
		t.Fatalf("cmds.barriers = %d, want 2 (acquire + present transitions)", len(cmds.barriers))
	}
	present := cmds.barriers[1]
	if present.OldLayout != vkffi.ImageLayoutColorAttachmentOptimal || present.NewLayout != vkffi.ImageLayoutPresentSrcKHR {
		t.Fatalf("present barrier layouts = %v -> %v, want ColorAttachmentOptimal -> PresentSrcKHR", present.OldLayout, present.NewLayout)
	}
	if o.CurrentSlot() != 1 {
		t.Fatalf("CurrentSlot = %d, want 1 after one frame of a 2-slot ring", o.CurrentSlot())
	}
}

func TestEndFrameRecreatesSwapchainOnOutOfDatePresent(t *testing.T) {
	o, sc, _, _, _, pres := newTestOrchestrator(2)
	pres.result = vkffi.ErrorOutOfDateKHR

	fc, err := o.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := o.EndFrame(fc); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if sc.recreated != 1 {
		t.Fatalf("swapchain.recreated = %d, want 1 after OUT_OF_DATE present", sc.recreated)
	}
}

func TestEndFrameWithoutMatchingBeginFrameErrors(t *testing.T) {
	o, _, _, _, _, _ := newTestOrchestrator(2)
	if err := o.EndFrame(FrameContext{Slot: 0}); err == nil {
		t.Fatalf("EndFrame without a BeginFrame = nil error, want an error")
	}
}

func TestEndFrameSkipsTimestampCallbackWithoutTimestampPool(t *testing.T) {
	o, _, _, _, _, _ := newTestOrchestrator(2)

	var gotStart, gotEnd uint64
	var called bool
	o.OnFrameTimestamps = func(startNs, endNs uint64) {
		called = true
		gotStart, gotEnd = startNs, endNs
	}

	// No TimestampPool configured: resolveOlderTimestamps must be a no-op.
	fc, err := o.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := o.EndFrame(fc); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if called {
		t.Fatalf("OnFrameTimestamps fired with no TimestampPool configured; got %d..%d", gotStart, gotEnd)
	}
}
