// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package shaderbin is the domain-stack supplement grounded on
// Graphics.PipelineLibrary.cpp/Graphics.ShaderLibrary.cpp: a content-
// hash-keyed cache of compiled shader modules so the GPU Scene's
// compute-scatter shader and user-supplied pass shaders are not
// re-validated and re-lowered to SPIR-V across passes that share
// identical source. It is the core's one point of contact with shader
// bytecode (spec.md §6, "Shader blobs"), using naga (the pack's WGSL
// front end, following hal/gles/shader.go's and
// hal/dx12/device.go's compileWGSLModule's Parse→Lower→Compile
// pipeline) to validate and reflect the source before caching.
package shaderbin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// Stage mirrors the naga IR shader stage a module's entry point runs
// at.
type Stage uint32

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func stageFromIR(s ir.ShaderStage) Stage {
	switch s {
	case ir.StageVertex:
		return StageVertex
	case ir.StageFragment:
		return StageFragment
	case ir.StageCompute:
		return StageCompute
	default:
		return StageVertex
	}
}

// EntryPoint is one reflected entry point of a compiled module.
type EntryPoint struct {
	Name  string
	Stage Stage
}

// Module is a cached, validated shader: its compiled SPIR-V blob, its
// content-hash cache key, and its reflected entry points.
type Module struct {
	Key         string
	SPIRV       []byte
	EntryPoints []EntryPoint
}

// Library is a content-hash-keyed cache of Modules. The zero value is
// not usable; construct with NewLibrary.
type Library struct {
	mu      sync.Mutex
	modules map[string]*Module
}

// NewLibrary constructs an empty Library.
func NewLibrary() *Library {
	return &Library{modules: make(map[string]*Module)}
}

// HashKey returns the content-hash cache key naga source would be
// stored under, without compiling it.
func HashKey(wgslSource string) string {
	sum := sha256.Sum256([]byte(wgslSource))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached Module for key, if present.
func (l *Library) Get(key string) (*Module, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.modules[key]
	return m, ok
}

// Compile validates and lowers wgslSource through naga, compiles it to
// SPIR-V, and caches the result under its content hash. A second call
// with identical source returns the cached Module without touching
// naga again, matching ShaderLibrary's "avoid rebuilding identical
// modules across passes."
func (l *Library) Compile(wgslSource string) (*Module, error) {
	key := HashKey(wgslSource)

	l.mu.Lock()
	if cached, ok := l.modules[key]; ok {
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	ast, err := naga.Parse(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("shaderbin: WGSL parse: %w", err)
	}

	irModule, err := naga.LowerWithSource(ast, wgslSource)
	if err != nil {
		return nil, fmt.Errorf("shaderbin: WGSL lower: %w", err)
	}
	if len(irModule.EntryPoints) == 0 {
		return nil, fmt.Errorf("shaderbin: module has no entry points")
	}

	spirv, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("shaderbin: SPIR-V compile: %w", err)
	}

	entryPoints := make([]EntryPoint, len(irModule.EntryPoints))
	for i, ep := range irModule.EntryPoints {
		entryPoints[i] = EntryPoint{Name: ep.Name, Stage: stageFromIR(ep.Stage)}
	}

	m := &Module{Key: key, SPIRV: spirv, EntryPoints: entryPoints}

	l.mu.Lock()
	l.modules[key] = m
	l.mu.Unlock()

	return m, nil
}

// Len reports the number of distinct modules currently cached.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.modules)
}

// Evict removes key's cached module, if any, forcing the next Compile
// with matching source to re-validate and re-lower it.
func (l *Library) Evict(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.modules, key)
}
