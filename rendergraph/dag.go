// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import (
	"sort"

	"github.com/gogpu/rendercore/errs"
	"github.com/gogpu/rendercore/internal/rlog"
)

// buildDAGAndLayers is Compile steps 3 and 4: scan passes in
// declaration order tracking per-resource last_writer/last_readers to
// build an adjacency list, then run Kahn's algorithm layered by level.
// If a cycle is detected, falls back to a single declaration-order
// layer rather than failing the frame, matching
// RenderGraph::TopologicalSortIntoLayers.
func (g *Graph) buildDAGAndLayers() {
	n := len(g.passes)
	successors := make([][]PassIndex, n)
	indegree := make([]int, n)

	addEdge := func(from, to PassIndex) {
		if from == invalidPass || from == to {
			return
		}
		successors[from] = append(successors[from], to)
		indegree[to]++
	}

	lastWriter := make([]PassIndex, len(g.resources))
	for i := range lastWriter {
		lastWriter[i] = invalidPass
	}
	lastReaders := make([][]PassIndex, len(g.resources))

	// Merge accesses and attachments per resource, in declaration
	// order, treating attachments as writes for dependency purposes.
	type event struct {
		pass  PassIndex
		write bool
	}
	for ri := range g.resources {
		r := &g.resources[ri]
		events := make([]event, 0, len(r.accesses)+len(r.attachments))
		for _, a := range r.accesses {
			events = append(events, event{pass: a.pass, write: isWriteAccess(a.access)})
		}
		for _, a := range r.attachments {
			events = append(events, event{pass: a.pass, write: true})
		}
		sort.SliceStable(events, func(i, j int) bool { return events[i].pass < events[j].pass })

		for _, e := range events {
			if e.write {
				addEdge(lastWriter[ri], e.pass)
				for _, reader := range lastReaders[ri] {
					addEdge(reader, e.pass)
				}
				lastReaders[ri] = lastReaders[ri][:0]
				lastWriter[ri] = e.pass
			} else {
				addEdge(lastWriter[ri], e.pass)
				lastReaders[ri] = append(lastReaders[ri], e.pass)
			}
		}
	}

	g.layers, g.cycleErr = layeredTopoSort(successors, indegree, n)
}

func layeredTopoSort(successors [][]PassIndex, indegree []int, n int) ([][]PassIndex, error) {
	remaining := make([]int, n)
	copy(remaining, indegree)

	var layers [][]PassIndex
	processed := 0

	for {
		var layer []PassIndex
		for i := 0; i < n; i++ {
			if remaining[i] == 0 {
				layer = append(layer, PassIndex(i))
			}
		}
		if len(layer) == 0 {
			break
		}
		for _, p := range layer {
			remaining[p] = -1 // mark consumed
			processed++
		}
		for _, p := range layer {
			for _, succ := range successors[p] {
				remaining[succ]--
			}
		}
		layers = append(layers, layer)
	}

	if processed != n {
		rlog.Logger().Error("rendergraph: cycle detected, falling back to single declaration-order layer",
			"processed", processed, "total", n)
		fallback := make([]PassIndex, n)
		for i := range fallback {
			fallback[i] = PassIndex(i)
		}
		return [][]PassIndex{fallback}, errs.ErrGraphCycle
	}

	return layers, nil
}

// Layers exposes the compiled layering for execution and tests.
func (g *Graph) Layers() [][]PassIndex { return g.layers }

// CycleError reports errs.ErrGraphCycle if the most recent Compile
// detected a dependency cycle and fell back to a single declaration-
// order layer, nil otherwise. Compile itself does not fail the frame
// on a cycle (the fallback layer still executes), so callers that want
// to surface or log the condition must check this explicitly.
func (g *Graph) CycleError() error { return g.cycleErr }
