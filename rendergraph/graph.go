// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package rendergraph implements the Render Graph (C8): a per-frame
// DAG of passes and resources, compiled through resource resolution,
// barrier synthesis, DAG construction and a layered topological sort,
// then executed with per-layer parallel secondary command buffer
// recording. Grounded directly on
// original_source/src/Runtime/Graphics/Graphics.RenderGraph.cpp
// (RGBuilder/RGRegistry/RenderGraph::Compile/BuildAdjacencyList/
// TopologicalSortIntoLayers/Execute), generalized from the original's
// manual arena-allocated linked lists to Go slices appended once per
// frame and reset in O(1) at frame end (spec.md §4.8 "Reset").
package rendergraph

import "github.com/gogpu/rendercore/internal/vkffi"

// PassIndex and ResourceID are plain 32-bit indices into graph-owned
// vectors that grow but never shrink during a frame, per spec.md
// §4.8's identifiers section — unlike the generational Handle used
// elsewhere, graph identifiers are valid only within the frame that
// produced them and are never recycled mid-frame.
type PassIndex uint32
type ResourceID uint32

const invalidPass = ^PassIndex(0)

// ResourceKind distinguishes texture/buffer resource nodes.
type ResourceKind int

const (
	KindTexture ResourceKind = iota
	KindBuffer
)

// TextureDesc describes a graph-created (not imported) texture.
type TextureDesc struct {
	Width, Height uint32
	Format        uint32
	Usage         uint32
	Aspect        uint32
}

// BufferDesc describes a graph-created buffer.
type BufferDesc struct {
	Size  uint64
	Usage uint32
}

// AttachmentInfo describes a color/depth attachment write.
type AttachmentInfo struct {
	LoadOp  uint32
	StoreOp uint32
	Clear   [4]float32
}

type accessNode struct {
	pass   PassIndex
	stage  vkffi.PipelineStageFlags2
	access vkffi.AccessFlags2
}

type attachmentNode struct {
	pass    PassIndex
	isDepth bool
	info    AttachmentInfo
}

// resource is one graph resource node: either created, imported, or a
// reused pooled buffer, tracked across the frame for barrier state.
type resource struct {
	name    string
	kind    ResourceKind
	texture TextureDesc
	buffer  BufferDesc

	imported     bool
	importedImg  vkffi.Image
	importedView vkffi.ImageView
	importedBuf  vkffi.Buffer

	// physical handles, resolved during Compile step 1.
	image  vkffi.Image
	view   vkffi.ImageView
	vkBuf  vkffi.Buffer
	memory uint64
	offset uint64

	currentLayout vkffi.ImageLayout
	lastStage     vkffi.PipelineStageFlags2
	lastAccess    vkffi.AccessFlags2

	startPass, endPass PassIndex
	touched            bool

	accesses    []accessNode
	attachments []attachmentNode
}

// pass is one graph pass: its callback plus the spans of barrier and
// attachment state Compile fills in.
type pass struct {
	name string

	accessStart, accessEnd         int
	attachmentStart, attachmentEnd int

	imageBarriers  []vkffi.ImageMemoryBarrier2
	bufferBarriers []vkffi.BufferMemoryBarrier2

	execute func(reg *Registry, cmd vkffi.CommandBuffer)
}

// Graph is the per-frame render graph. One Graph instance is reused
// frame over frame; Reset clears it back to empty between frames.
type Graph struct {
	resources []resource
	passes    []pass
	nameToID  map[string]ResourceID

	layers   [][]PassIndex
	cycleErr error
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{nameToID: make(map[string]ResourceID)}
}

// Reset clears every pass's state and the registry, ready for the
// next frame. It does not touch the transient.Pool passed to Compile:
// that pool's cursors are reset only by a call to its own Reset, which
// neither this method nor the orchestrator makes.
func (g *Graph) Reset() {
	g.resources = g.resources[:0]
	g.passes = g.passes[:0]
	for k := range g.nameToID {
		delete(g.nameToID, k)
	}
	g.layers = nil
	g.cycleErr = nil
}

// ActivePassCount and ActiveResourceCount expose the current frame's
// counts for telemetry and tests.
func (g *Graph) ActivePassCount() int    { return len(g.passes) }
func (g *Graph) ActiveResourceCount() int { return len(g.resources) }
