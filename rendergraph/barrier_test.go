// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package rendergraph

import (
	"testing"

	"github.com/gogpu/rendercore/internal/vkffi"
)

func TestPickTargetLayoutStorageReadIsGeneralNotSampled(t *testing.T) {
	got := pickTargetLayout(vkffi.AccessShaderStorageRead2, vkffi.ImageLayoutGeneral)
	if got != vkffi.ImageLayoutGeneral {
		t.Fatalf("pickTargetLayout(storage read) = %v, want GENERAL", got)
	}
}

func TestPickTargetLayoutSampledReadIsStillShaderReadOnly(t *testing.T) {
	got := pickTargetLayout(vkffi.AccessShaderRead2, vkffi.ImageLayoutColorAttachmentOptimal)
	if got != vkffi.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("pickTargetLayout(sampled read) = %v, want SHADER_READ_ONLY_OPTIMAL", got)
	}
}

func TestCompileTransitionsStorageImageReadToGeneral(t *testing.T) {
	g, images, pages, buffers := newTestGraph()

	var scratch ResourceID
	g.AddPass("producer", func(b *Builder) {
		scratch = b.CreateTexture("scratch", TextureDesc{Width: 64, Height: 64, Format: 37})
		b.Read(scratch, vkffi.PipelineStageComputeShader2, vkffi.AccessShaderStorageRead2)
	}, func(reg *Registry, cmd vkffi.CommandBuffer) {})

	g.AddPass("consumer", func(b *Builder) {
		b.Read(scratch, vkffi.PipelineStageComputeShader2, vkffi.AccessShaderStorageRead2)
	}, func(reg *Registry, cmd vkffi.CommandBuffer) {})

	if err := g.Compile(0, images, pages, buffers); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	producer := &g.passes[0]
	if len(producer.imageBarriers) != 1 {
		t.Fatalf("producer pass has %d image barriers, want 1 (UNDEFINED -> GENERAL)", len(producer.imageBarriers))
	}
	b := producer.imageBarriers[0]
	if b.NewLayout != vkffi.ImageLayoutGeneral {
		t.Fatalf("barrier NewLayout = %v, want GENERAL for a storage-image read", b.NewLayout)
	}
}
