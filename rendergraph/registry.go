// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import (
	"fmt"

	"github.com/gogpu/rendercore/internal/vkffi"
)

// Registry is the read-only view of resolved physical resources
// handed to a pass's execute callback, grounded on RGRegistry in
// Graphics.RenderGraph.cpp (GetImage/GetImageView/GetBuffer).
type Registry struct {
	g *Graph
}

// GetImage returns the resolved VkImage for a texture resource.
func (r *Registry) GetImage(id ResourceID) (vkffi.Image, error) {
	res, err := r.get(id, KindTexture)
	if err != nil {
		return 0, err
	}
	return res.image, nil
}

// GetImageView returns the resolved VkImageView for a texture
// resource.
func (r *Registry) GetImageView(id ResourceID) (vkffi.ImageView, error) {
	res, err := r.get(id, KindTexture)
	if err != nil {
		return 0, err
	}
	return res.view, nil
}

// GetBuffer returns the resolved VkBuffer for a buffer resource.
func (r *Registry) GetBuffer(id ResourceID) (vkffi.Buffer, error) {
	res, err := r.get(id, KindBuffer)
	if err != nil {
		return 0, err
	}
	return res.vkBuf, nil
}

func (r *Registry) get(id ResourceID, kind ResourceKind) (*resource, error) {
	if int(id) >= len(r.g.resources) {
		return nil, fmt.Errorf("rendergraph: resource %d out of range", id)
	}
	res := &r.g.resources[id]
	if res.kind != kind {
		return nil, fmt.Errorf("rendergraph: resource %q is the wrong kind", res.name)
	}
	return res, nil
}
