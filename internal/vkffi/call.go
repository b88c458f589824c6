// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vkffi

import (
	"sync"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/go-webgpu/goffi/types"
)

// This file implements the portable calling convention the teacher
// uses in hal/vulkan/vk/commands_manual.go: a prepared
// types.CallInterface plus ffi.CallFunction, rather than the
// Windows-only syscall.SyscallN path used in hal/vulkan/swapchain.go
// (which the Go runtime restricts to GOOS=windows). The core targets
// Linux as its primary platform, so every wrapper in this package goes
// through CallInterface.

var (
	cifGetProcAddr types.CallInterface
	cifInit        sync.Once
)

func rawGetProcAddr(getter uintptr, handle uint64, name string) uintptr {
	cifInit.Do(func() {
		_ = ffi.PrepareCallInterface(&cifGetProcAddr, types.DefaultCall,
			types.PointerTypeDescriptor,
			[]*types.TypeDescriptor{
				types.UInt64TypeDescriptor,
				types.PointerTypeDescriptor,
			})
	})

	cname := make([]byte, len(name)+1)
	copy(cname, name)
	namePtr := unsafe.Pointer(&cname[0])

	var result unsafe.Pointer
	args := [2]unsafe.Pointer{
		unsafe.Pointer(&handle),
		unsafe.Pointer(&namePtr),
	}
	_ = ffi.CallFunction(&cifGetProcAddr, unsafe.Pointer(getter), unsafe.Pointer(&result), args[:])
	return uintptr(result)
}

// Proc is a resolved, callable Vulkan entry point paired with a
// prepared call signature. Each component package that needs a new
// entry point builds one of these once (typically in an init or a
// lazy sync.Once) and reuses it for every call.
type Proc struct {
	addr uintptr
	cif  types.CallInterface
}

// IsValid reports whether the entry point resolved to a non-null
// address (drivers omit extensions/entry points they don't support).
func (p *Proc) IsValid() bool { return p.addr != 0 }

// NewProc prepares a callable wrapper around a resolved proc address.
// ret and params describe the C signature using goffi's type
// descriptors, matching the convention in hal/vulkan/vk/signatures.go.
func NewProc(addr uintptr, ret *types.TypeDescriptor, params []*types.TypeDescriptor) (*Proc, error) {
	p := &Proc{addr: addr}
	if addr == 0 {
		return p, nil
	}
	if err := ffi.PrepareCallInterface(&p.cif, types.DefaultCall, ret, params); err != nil {
		return nil, err
	}
	return p, nil
}

// CallResult invokes the proc with already-boxed argument pointers
// (goffi's pointer-to-value-storage convention) and decodes a VkResult
// return value.
func (p *Proc) CallResult(args []unsafe.Pointer) Result {
	if !p.IsValid() {
		return ErrorDeviceLost
	}
	var result int32
	_ = ffi.CallFunction(&p.cif, unsafe.Pointer(p.addr), unsafe.Pointer(&result), args)
	return Result(result)
}

// CallVoid invokes a void-returning proc.
func (p *Proc) CallVoid(args []unsafe.Pointer) {
	if !p.IsValid() {
		return
	}
	_ = ffi.CallFunction(&p.cif, unsafe.Pointer(p.addr), nil, args)
}
