// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import (
	"sync"

	"github.com/gogpu/rendercore/internal/vkffi"
)

// SecondaryRecorder begins/ends a secondary command buffer with
// dynamic-rendering inheritance, reusing thread-local pools keyed by
// CPU frame epoch, per spec.md §4.8's execution step 2. Supplied by
// the device/orchestrator layer.
type SecondaryRecorder interface {
	BeginSecondary(hasAttachments bool, colorFormats []uint32, depthFormat uint32) (vkffi.CommandBuffer, error)
	EndSecondary(cmd vkffi.CommandBuffer) error
}

// PrimaryRecorder issues the primary-buffer-side operations: the
// synchronization-2 dependency, dynamic rendering begin/end, and
// executing a recorded secondary.
type PrimaryRecorder interface {
	EmitBarriers(primary vkffi.CommandBuffer, images []vkffi.ImageMemoryBarrier2, buffers []vkffi.BufferMemoryBarrier2)
	BeginRendering(primary vkffi.CommandBuffer, colors []vkffi.RenderingAttachmentInfo, depth *vkffi.RenderingAttachmentInfo, width, height uint32)
	ExecuteSecondary(primary vkffi.CommandBuffer, secondary vkffi.CommandBuffer)
	EndRendering(primary vkffi.CommandBuffer)
}

// Execute runs every compiled layer in order: within a layer, every
// pass's secondary command buffer is recorded concurrently; between
// layers, execution is strictly sequential on the primary buffer.
func (g *Graph) Execute(primary vkffi.CommandBuffer, secondaries SecondaryRecorder, prim PrimaryRecorder) error {
	for _, layer := range g.layers {
		recorded := make([]vkffi.CommandBuffer, len(layer))
		errs := make([]error, len(layer))

		var wg sync.WaitGroup
		for li, pi := range layer {
			wg.Add(1)
			go func(li int, pi PassIndex) {
				defer wg.Done()
				recorded[li], errs[li] = g.recordPass(pi, secondaries)
			}(li, pi)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}

		for li, pi := range layer {
			p := &g.passes[pi]
			if len(p.imageBarriers) > 0 || len(p.bufferBarriers) > 0 {
				prim.EmitBarriers(primary, p.imageBarriers, p.bufferBarriers)
			}

			hasAttachments := g.passHasAttachments(pi)
			if hasAttachments {
				colors, depth, width, height := g.attachmentInfosFor(pi)
				prim.BeginRendering(primary, colors, depth, width, height)
			}

			prim.ExecuteSecondary(primary, recorded[li])

			if hasAttachments {
				prim.EndRendering(primary)
			}
		}
	}
	return nil
}

func (g *Graph) recordPass(pi PassIndex, secondaries SecondaryRecorder) (vkffi.CommandBuffer, error) {
	p := &g.passes[pi]
	hasAttachments := g.passHasAttachments(pi)
	colorFormats, depthFormat := g.inheritanceFormatsFor(pi)

	cmd, err := secondaries.BeginSecondary(hasAttachments, colorFormats, depthFormat)
	if err != nil {
		return 0, err
	}
	if p.execute != nil {
		p.execute(&Registry{g: g}, cmd)
	}
	if err := secondaries.EndSecondary(cmd); err != nil {
		return 0, err
	}
	return cmd, nil
}

func (g *Graph) passHasAttachments(pi PassIndex) bool {
	for ri := range g.resources {
		for _, a := range g.resources[ri].attachments {
			if a.pass == pi {
				return true
			}
		}
	}
	return false
}

func (g *Graph) inheritanceFormatsFor(pi PassIndex) (colorFormats []uint32, depthFormat uint32) {
	for ri := range g.resources {
		r := &g.resources[ri]
		for _, a := range r.attachments {
			if a.pass != pi {
				continue
			}
			if a.isDepth {
				depthFormat = r.texture.Format
			} else {
				colorFormats = append(colorFormats, r.texture.Format)
			}
		}
	}
	return colorFormats, depthFormat
}

// attachmentInfosFor builds the RenderingAttachmentInfo list for
// BeginRendering: color attachments in declaration order with layout
// forced to COLOR_ATTACHMENT_OPTIMAL, depth forced to
// DEPTH_STENCIL_ATTACHMENT_OPTIMAL — not the resource's tracked
// current layout, which may have moved on by the time this executes.
// Render area is the extent of the first attachment encountered.
func (g *Graph) attachmentInfosFor(pi PassIndex) (colors []vkffi.RenderingAttachmentInfo, depth *vkffi.RenderingAttachmentInfo, width, height uint32) {
	for ri := range g.resources {
		r := &g.resources[ri]
		for _, a := range r.attachments {
			if a.pass != pi {
				continue
			}
			if width == 0 && height == 0 {
				width, height = r.texture.Width, r.texture.Height
			}
			info := vkffi.RenderingAttachmentInfo{
				SType:      vkffi.StructureTypeRenderingAttachmentInfo,
				ImageView:  r.view,
				LoadOp:     a.info.LoadOp,
				StoreOp:    a.info.StoreOp,
				ClearValue: a.info.Clear,
			}
			if a.isDepth {
				info.ImageLayout = vkffi.ImageLayoutDepthStencilAttachmentOptimal
				depth = &info
			} else {
				info.ImageLayout = vkffi.ImageLayoutColorAttachmentOptimal
				colors = append(colors, info)
			}
		}
	}
	return colors, depth, width, height
}
