// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import "github.com/gogpu/rendercore/transient"

// Compile runs all four Compile steps described in spec.md §4.8:
// resource resolution, barrier synthesis, DAG construction, and the
// layered topological sort (falling back to a single layer on cycle).
func (g *Graph) Compile(frameIndex uint64, images ImageAllocator, pages *transient.Pool, buffers BufferPool) error {
	if err := g.resolveResources(frameIndex, images, pages, buffers); err != nil {
		return err
	}
	g.synthesizeBarriers()
	g.buildDAGAndLayers()
	return nil
}
