// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vkffi

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
)

var (
	vulkanLib             unsafe.Pointer
	vkGetInstanceProcAddr uintptr
	vkGetDeviceProcAddr   uintptr

	initOnce sync.Once
	initErr  error
)

func libraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "vulkan-1.dll"
	case "darwin":
		return "libvulkan.dylib"
	default:
		return "libvulkan.so.1"
	}
}

// Init loads the platform Vulkan loader and resolves
// vkGetInstanceProcAddr from it. Safe to call repeatedly; only the first call does
// work, matching hal/vulkan/vk.Init's sync.Once idiom.
func Init() error {
	initOnce.Do(func() {
		lib, err := ffi.LoadLibrary(libraryName())
		if err != nil {
			initErr = fmt.Errorf("vkffi: load %s: %w", libraryName(), err)
			return
		}
		vulkanLib = lib

		sym, err := ffi.GetSymbol(lib, "vkGetInstanceProcAddr")
		if err != nil {
			initErr = fmt.Errorf("vkffi: resolve vkGetInstanceProcAddr: %w", err)
			return
		}
		vkGetInstanceProcAddr = uintptr(sym)
	})
	return initErr
}

// Close releases the loaded Vulkan library.
func Close() error {
	if vulkanLib == nil {
		return nil
	}
	err := ffi.FreeLibrary(vulkanLib)
	vulkanLib = nil
	vkGetInstanceProcAddr = 0
	vkGetDeviceProcAddr = 0
	return err
}

// GetInstanceProcAddr resolves an instance-level (or global, with
// instance==0) Vulkan entry point. Returns 0 if unresolved, matching
// swapchain.go's "proc == 0 means unsupported" convention.
func GetInstanceProcAddr(instance Instance, name string) uintptr {
	if vkGetInstanceProcAddr == 0 {
		return 0
	}
	return rawGetProcAddr(vkGetInstanceProcAddr, uint64(instance), name)
}

// SetDeviceProcAddr resolves vkGetDeviceProcAddr through the instance.
// Some drivers refuse to resolve it with a null instance, mirroring the
// Intel quirk the teacher documents in hal/vulkan/vk/loader.go.
func SetDeviceProcAddr(instance Instance) {
	if vkGetDeviceProcAddr == 0 {
		vkGetDeviceProcAddr = GetInstanceProcAddr(instance, "vkGetDeviceProcAddr")
	}
}

// GetDeviceProcAddr resolves a device-level Vulkan entry point.
func GetDeviceProcAddr(device Device, name string) uintptr {
	if vkGetDeviceProcAddr == 0 {
		vkGetDeviceProcAddr = GetInstanceProcAddr(0, "vkGetDeviceProcAddr")
		if vkGetDeviceProcAddr == 0 {
			return 0
		}
	}
	return rawGetProcAddr(vkGetDeviceProcAddr, uint64(device), name)
}
