// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import (
	"fmt"

	"github.com/gogpu/rendercore/internal/vkffi"
)

// Builder is the per-pass setup surface passed to a pass's setup
// callback; it is scoped to the current pass index so every
// read/write it records is attributed to that pass.
type Builder struct {
	g    *Graph
	pass PassIndex
}

// AddPass registers a new pass, invokes setup with a Builder scoped to
// it, and records execute to run when the compiled graph is executed
// (Graph.Execute).
func (g *Graph) AddPass(name string, setup func(b *Builder), execute func(reg *Registry, cmd vkffi.CommandBuffer)) PassIndex {
	idx := PassIndex(len(g.passes))
	g.passes = append(g.passes, pass{
		name:        name,
		accessStart: -1, accessEnd: -1,
		attachmentStart: -1, attachmentEnd: -1,
		execute: execute,
	})
	b := &Builder{g: g, pass: idx}
	if setup != nil {
		setup(b)
	}
	return idx
}

func (g *Graph) newResource(name string, kind ResourceKind) ResourceID {
	id := ResourceID(len(g.resources))
	g.resources = append(g.resources, resource{name: name, kind: kind, startPass: invalidPass, endPass: invalidPass})
	g.nameToID[name] = id
	return id
}

// CreateTexture registers a graph-owned (not imported) texture.
func (b *Builder) CreateTexture(name string, desc TextureDesc) ResourceID {
	id := b.g.newResource(name, KindTexture)
	b.g.resources[id].texture = desc
	return id
}

// CreateBuffer registers a graph-owned buffer.
func (b *Builder) CreateBuffer(name string, desc BufferDesc) ResourceID {
	id := b.g.newResource(name, KindBuffer)
	b.g.resources[id].buffer = desc
	return id
}

// ImportTexture registers an externally-owned image/view at the
// given current layout.
func (b *Builder) ImportTexture(name string, image vkffi.Image, view vkffi.ImageView, format uint32, extent TextureDesc, currentLayout vkffi.ImageLayout) ResourceID {
	id := b.g.newResource(name, KindTexture)
	r := &b.g.resources[id]
	r.imported = true
	r.importedImg = image
	r.importedView = view
	r.texture = extent
	r.texture.Format = format
	r.currentLayout = currentLayout
	return id
}

// ImportBuffer registers an externally-owned buffer.
func (b *Builder) ImportBuffer(name string, buf vkffi.Buffer) ResourceID {
	id := b.g.newResource(name, KindBuffer)
	r := &b.g.resources[id]
	r.imported = true
	r.importedBuf = buf
	return id
}

func (b *Builder) touch(id ResourceID) *resource {
	r := &b.g.resources[id]
	if r.startPass == invalidPass {
		r.startPass = b.pass
	}
	r.endPass = b.pass
	return r
}

// Read records a read access node and extends the resource's
// [start_pass, end_pass] interval.
func (b *Builder) Read(id ResourceID, stage vkffi.PipelineStageFlags2, access vkffi.AccessFlags2) ResourceID {
	r := b.touch(id)
	r.accesses = append(r.accesses, accessNode{pass: b.pass, stage: stage, access: access})
	return id
}

// Write records a write access node and extends the interval.
func (b *Builder) Write(id ResourceID, stage vkffi.PipelineStageFlags2, access vkffi.AccessFlags2) ResourceID {
	r := b.touch(id)
	r.accesses = append(r.accesses, accessNode{pass: b.pass, stage: stage, access: access})
	return id
}

// WriteColor appends a color attachment node (implied stage/access:
// color-attachment-output write) in addition to extending the
// interval.
func (b *Builder) WriteColor(id ResourceID, info AttachmentInfo) ResourceID {
	r := b.touch(id)
	r.attachments = append(r.attachments, attachmentNode{pass: b.pass, isDepth: false, info: info})
	return id
}

// WriteDepth appends a depth attachment node (implied stage: early +
// late fragment tests; access: depth-stencil-attachment write).
func (b *Builder) WriteDepth(id ResourceID, info AttachmentInfo) ResourceID {
	r := b.touch(id)
	r.attachments = append(r.attachments, attachmentNode{pass: b.pass, isDepth: true, info: info})
	return id
}

// GetTextureExtent returns (w, h) for a texture resource.
func (b *Builder) GetTextureExtent(id ResourceID) (uint32, uint32, error) {
	if int(id) >= len(b.g.resources) {
		return 0, 0, fmt.Errorf("rendergraph: resource %d out of range", id)
	}
	r := &b.g.resources[id]
	if r.kind != KindTexture {
		return 0, 0, fmt.Errorf("rendergraph: resource %q is not a texture", r.name)
	}
	return r.texture.Width, r.texture.Height, nil
}
