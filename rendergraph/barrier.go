// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import "github.com/gogpu/rendercore/internal/vkffi"

// isWriteAccess reports whether access includes any write bit. The
// core only needs to distinguish "any write" from "pure read" for
// barrier necessity, per spec.md §4.8's common image-barrier helper.
func isWriteAccess(access vkffi.AccessFlags2) bool {
	const accessMemoryWrite2 vkffi.AccessFlags2 = 1 << 16 // VK_ACCESS_2_MEMORY_WRITE_BIT
	const writeMask = vkffi.AccessTransferWrite2 |
		vkffi.AccessShaderWrite2 |
		vkffi.AccessColorAttachmentWrite2 |
		vkffi.AccessDepthStencilAttachmentWrite2 |
		accessMemoryWrite2
	return access&writeMask != 0
}

// pickTargetLayout applies spec.md §4.8's first-matching-rule table
// for an explicit (non-attachment) access node.
func pickTargetLayout(access vkffi.AccessFlags2, current vkffi.ImageLayout) vkffi.ImageLayout {
	switch {
	case access&vkffi.AccessColorAttachmentWrite2 != 0 || access&vkffi.AccessColorAttachmentRead2 != 0:
		return vkffi.ImageLayoutColorAttachmentOptimal
	case access&vkffi.AccessDepthStencilAttachmentWrite2 != 0 || access&vkffi.AccessDepthStencilAttachmentRead2 != 0:
		return vkffi.ImageLayoutDepthStencilAttachmentOptimal
	case access&vkffi.AccessTransferWrite2 != 0:
		return vkffi.ImageLayoutTransferDstOptimal
	case access&vkffi.AccessTransferRead2 != 0:
		// This rule only picks the layout. A TRANSFER_READ mask that
		// also carries a write bit (e.g. MEMORY_WRITE) still gets a
		// barrier even when the image is already TRANSFER_SRC_OPTIMAL,
		// because isWriteAccess counts that bit and emitImageBarrier
		// then always emits one (the SPEC_FULL.md §5 decision).
		return vkffi.ImageLayoutTransferSrcOptimal
	case access&vkffi.AccessShaderStorageRead2 != 0 || access&vkffi.AccessShaderWrite2 != 0:
		// Rule 7: storage read/write always targets GENERAL, checked
		// ahead of the sampled-read rule below since both otherwise
		// share no bits with it — order only matters for storage vs.
		// sampled, not for rules 5 and 6 between themselves.
		return vkffi.ImageLayoutGeneral
	case access&vkffi.AccessShaderRead2 != 0:
		return vkffi.ImageLayoutShaderReadOnlyOptimal
	default:
		return current
	}
}

// emitImageBarrier implements the common image-barrier helper from
// spec.md §4.8: compute prev_write/curr_write/layout_mismatch/
// is_initial, decide whether a barrier is needed, and either append
// one or merge dst stage/access into the resource's last-use state.
func emitImageBarrier(r *resource, dstStage vkffi.PipelineStageFlags2, dstAccess vkffi.AccessFlags2, targetLayout vkffi.ImageLayout) *vkffi.ImageMemoryBarrier2 {
	prevWrite := isWriteAccess(r.lastAccess)
	currWrite := isWriteAccess(dstAccess)
	layoutMismatch := r.currentLayout != targetLayout
	isInitial := r.currentLayout == vkffi.ImageLayoutUndefined && r.lastStage == vkffi.PipelineStageTopOfPipe2 && r.lastAccess == vkffi.AccessNone2

	needed := layoutMismatch || prevWrite || currWrite
	if isInitial {
		needed = layoutMismatch
	}

	if !needed {
		r.lastStage |= dstStage
		r.lastAccess |= dstAccess
		return nil
	}

	srcStage := r.lastStage
	srcAccess := r.lastAccess
	if r.currentLayout == vkffi.ImageLayoutUndefined {
		srcStage = vkffi.PipelineStageTopOfPipe2
		srcAccess = vkffi.AccessNone2
	}

	barrier := &vkffi.ImageMemoryBarrier2{
		SType:         vkffi.StructureTypeImageMemoryBarrier2,
		SrcStageMask:  srcStage,
		SrcAccessMask: srcAccess,
		DstStageMask:  dstStage,
		DstAccessMask: dstAccess,
		OldLayout:     r.currentLayout,
		NewLayout:     targetLayout,
		Image:         r.image,
		SubresourceRange: vkffi.ImageSubresourceRange{
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	r.currentLayout = targetLayout
	r.lastStage = dstStage
	r.lastAccess = dstAccess
	return barrier
}

// emitBufferBarrier: for buffers (explicit access nodes only), a
// barrier is emitted iff any write is involved and the resource's
// last stage is not TOP_OF_PIPE; last stage/access always update to
// dst regardless.
func emitBufferBarrier(r *resource, dstStage vkffi.PipelineStageFlags2, dstAccess vkffi.AccessFlags2) *vkffi.BufferMemoryBarrier2 {
	prevWrite := isWriteAccess(r.lastAccess)
	currWrite := isWriteAccess(dstAccess)
	anyWrite := prevWrite || currWrite
	needed := anyWrite && r.lastStage != vkffi.PipelineStageTopOfPipe2

	var barrier *vkffi.BufferMemoryBarrier2
	if needed {
		barrier = &vkffi.BufferMemoryBarrier2{
			SType:         vkffi.StructureTypeBufferMemoryBarrier2,
			SrcStageMask:  r.lastStage,
			SrcAccessMask: r.lastAccess,
			DstStageMask:  dstStage,
			DstAccessMask: dstAccess,
			Buffer:        r.vkBuf,
			Size:          ^uint64(0), // VK_WHOLE_SIZE
		}
	}

	r.lastStage = dstStage
	r.lastAccess = dstAccess
	return barrier
}

// synthesizeBarriers is Compile step 2. Attachment usages are
// resolved first (they dictate begin_rendering's layout), then every
// explicit access node in declaration order.
func (g *Graph) synthesizeBarriers() {
	for pi := range g.passes {
		p := &g.passes[pi]
		p.imageBarriers = p.imageBarriers[:0]
		p.bufferBarriers = p.bufferBarriers[:0]

		for ri := range g.resources {
			r := &g.resources[ri]
			for _, a := range r.attachments {
				if a.pass != PassIndex(pi) {
					continue
				}
				var stage vkffi.PipelineStageFlags2
				var access vkffi.AccessFlags2
				var layout vkffi.ImageLayout
				if a.isDepth {
					stage = vkffi.PipelineStageEarlyFragmentTests2 | vkffi.PipelineStageLateFragmentTests2
					access = vkffi.AccessDepthStencilAttachmentWrite2
					layout = vkffi.ImageLayoutDepthStencilAttachmentOptimal
				} else {
					stage = vkffi.PipelineStageColorAttachmentOutput2
					access = vkffi.AccessColorAttachmentWrite2
					layout = vkffi.ImageLayoutColorAttachmentOptimal
				}
				if b := emitImageBarrier(r, stage, access, layout); b != nil {
					p.imageBarriers = append(p.imageBarriers, *b)
				}
			}
		}

		for ri := range g.resources {
			r := &g.resources[ri]
			for _, a := range r.accesses {
				if a.pass != PassIndex(pi) {
					continue
				}
				switch r.kind {
				case KindTexture:
					target := pickTargetLayout(a.access, r.currentLayout)
					if b := emitImageBarrier(r, a.stage, a.access, target); b != nil {
						p.imageBarriers = append(p.imageBarriers, *b)
					}
				case KindBuffer:
					if b := emitBufferBarrier(r, a.stage, a.access); b != nil {
						p.bufferBarriers = append(p.bufferBarriers, *b)
					}
				}
			}
		}
	}
}
