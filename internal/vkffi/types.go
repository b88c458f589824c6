// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package vkffi is the raw Vulkan FFI surface used by every rendercore
// component. It is adapted from the teacher's hal/vulkan/vk package:
// same goffi-backed proc-address loading, but self-contained — it
// defines the handle and struct types the retrieved teacher fragment
// never did, and standardizes every wrapper on the portable
// types.CallInterface + ffi.CallFunction convention from
// hal/vulkan/vk/commands_manual.go rather than the Windows-only
// syscall.SyscallN path used in hal/vulkan/swapchain.go (see
// call.go and DESIGN.md).
package vkffi

// Handle types. Vulkan dispatchable and non-dispatchable handles are
// both opaque 64-bit values from Go's point of view.
type (
	Instance       uintptr
	PhysicalDevice uintptr
	Device         uintptr
	Queue          uintptr
	CommandBuffer  uintptr

	Semaphore     uint64
	Fence         uint64
	DeviceMemory  uint64
	Buffer        uint64
	Image         uint64
	ImageView     uint64
	Sampler       uint64
	ShaderModule  uint64
	Pipeline      uint64
	PipelineLayout uint64
	DescriptorSet  uint64
	DescriptorPool uint64
	DescriptorSetLayout uint64
	RenderPass    uint64
	Framebuffer   uint64
	CommandPool   uint64
	QueryPool     uint64
	SurfaceKHR    uint64
	SwapchainKHR  uint64
)

// Result mirrors VkResult.
type Result int32

const (
	Success        Result = 0
	NotReady       Result = 1
	Timeout        Result = 2
	EventSet       Result = 3
	EventReset     Result = 4
	Incomplete     Result = 5
	ErrorOutOfHostMemory   Result = -1
	ErrorOutOfDeviceMemory Result = -2
	ErrorDeviceLost        Result = -4
	ErrorSurfaceLostKHR    Result = -1000000000
	ErrorOutOfDateKHR      Result = -1000001004
	SuboptimalKHR          Result = 1000001003
)

func (r Result) Ok() bool { return r >= 0 }

// StructureType mirrors VkStructureType for the subset of structs this
// package defines.
type StructureType uint32

const (
	StructureTypeSemaphoreTypeCreateInfo    StructureType = 1000207002
	StructureTypeTimelineSemaphoreSubmitInfo StructureType = 1000207003
	StructureTypeSemaphoreWaitInfo          StructureType = 1000207004
	StructureTypeSemaphoreSignalInfo        StructureType = 1000207005
	StructureTypeDependencyInfo             StructureType = 1000314003
	StructureTypeImageMemoryBarrier2        StructureType = 1000314002
	StructureTypeBufferMemoryBarrier2       StructureType = 1000314001
	StructureTypeMemoryBarrier2             StructureType = 1000314000
	StructureTypeSubmitInfo2                StructureType = 1000314004
	StructureTypeCommandBufferSubmitInfo    StructureType = 1000314006
	StructureTypeSemaphoreSubmitInfo        StructureType = 1000314005
	StructureTypeRenderingInfo              StructureType = 1000044000
	StructureTypeRenderingAttachmentInfo    StructureType = 1000044001
	StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo StructureType = 1000161000
	StructureTypeDescriptorSetVariableDescriptorCountAllocateInfo StructureType = 1000161003
	StructureTypeQueryPoolCreateInfo StructureType = 11
)

// QueryType mirrors VkQueryType (subset).
type QueryType uint32

const QueryTypeTimestamp QueryType = 2

// QueryResultFlags mirrors VkQueryResultFlagBits.
type QueryResultFlags uint32

const (
	QueryResult64Bit             QueryResultFlags = 1
	QueryResultWithAvailability  QueryResultFlags = 1 << 2
)

// QueryPoolCreateInfo mirrors VkQueryPoolCreateInfo.
type QueryPoolCreateInfo struct {
	SType      StructureType
	PNext      uintptr
	Flags      uint32
	QueryType  QueryType
	QueryCount uint32
}

// PipelineStageFlags2 mirrors VkPipelineStageFlagBits2 (subset used by
// the render graph's barrier synthesis).
type PipelineStageFlags2 uint64

const (
	PipelineStageNone2          PipelineStageFlags2 = 0
	PipelineStageTopOfPipe2     PipelineStageFlags2 = 1
	PipelineStageBottomOfPipe2  PipelineStageFlags2 = 1 << 13
	PipelineStageTransfer2      PipelineStageFlags2 = 1 << 12
	PipelineStageComputeShader2 PipelineStageFlags2 = 1 << 11
	PipelineStageFragmentShader2 PipelineStageFlags2 = 1 << 7
	PipelineStageColorAttachmentOutput2 PipelineStageFlags2 = 1 << 10
	PipelineStageEarlyFragmentTests2    PipelineStageFlags2 = 1 << 8
	PipelineStageLateFragmentTests2     PipelineStageFlags2 = 1 << 9
	PipelineStageAllCommands2   PipelineStageFlags2 = 1 << 16
)

// AccessFlags2 mirrors VkAccessFlagBits2.
type AccessFlags2 uint64

const (
	AccessNone2                  AccessFlags2 = 0
	AccessTransferRead2          AccessFlags2 = 1 << 11
	AccessTransferWrite2         AccessFlags2 = 1 << 12
	AccessShaderRead2            AccessFlags2 = 1 << 5
	AccessShaderWrite2           AccessFlags2 = 1 << 6
	// AccessShaderStorageRead2 is distinct from AccessShaderRead2: a
	// sampled-image read (rule 5/6) targets SHADER_READ_ONLY_OPTIMAL,
	// but a storage-image read (rule 7) targets GENERAL like its write
	// counterpart. Sharing one bit between the two would force every
	// storage-image read into the sampled layout.
	AccessShaderStorageRead2     AccessFlags2 = 1 << 33
	AccessColorAttachmentRead2   AccessFlags2 = 1 << 7
	AccessColorAttachmentWrite2  AccessFlags2 = 1 << 8
	AccessDepthStencilAttachmentRead2  AccessFlags2 = 1 << 9
	AccessDepthStencilAttachmentWrite2 AccessFlags2 = 1 << 10
)

// ImageLayout mirrors VkImageLayout (subset).
type ImageLayout uint32

const (
	ImageLayoutUndefined                ImageLayout = 0
	ImageLayoutGeneral                  ImageLayout = 1
	ImageLayoutColorAttachmentOptimal   ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutShaderReadOnlyOptimal    ImageLayout = 5
	ImageLayoutTransferSrcOptimal       ImageLayout = 6
	ImageLayoutTransferDstOptimal       ImageLayout = 7
	ImageLayoutPresentSrcKHR            ImageLayout = 1000001002
)

// SemaphoreType mirrors VkSemaphoreType.
type SemaphoreType uint32

const (
	SemaphoreTypeBinary    SemaphoreType = 0
	SemaphoreTypeTimeline  SemaphoreType = 1
)

// ImageSubresourceRange mirrors VkImageSubresourceRange.
type ImageSubresourceRange struct {
	AspectMask     uint32
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// ImageMemoryBarrier2 mirrors VkImageMemoryBarrier2.
type ImageMemoryBarrier2 struct {
	SType               StructureType
	PNext               uintptr
	SrcStageMask        PipelineStageFlags2
	SrcAccessMask       AccessFlags2
	DstStageMask        PipelineStageFlags2
	DstAccessMask       AccessFlags2
	OldLayout           ImageLayout
	NewLayout           ImageLayout
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Image               Image
	SubresourceRange    ImageSubresourceRange
}

// BufferMemoryBarrier2 mirrors VkBufferMemoryBarrier2.
type BufferMemoryBarrier2 struct {
	SType               StructureType
	PNext               uintptr
	SrcStageMask        PipelineStageFlags2
	SrcAccessMask       AccessFlags2
	DstStageMask        PipelineStageFlags2
	DstAccessMask       AccessFlags2
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Buffer              Buffer
	Offset              uint64
	Size                uint64
}

// DependencyInfo mirrors VkDependencyInfo.
type DependencyInfo struct {
	SType                    StructureType
	PNext                    uintptr
	DependencyFlags          uint32
	MemoryBarrierCount       uint32
	PMemoryBarriers          uintptr
	BufferMemoryBarrierCount uint32
	PBufferMemoryBarriers    *BufferMemoryBarrier2
	ImageMemoryBarrierCount  uint32
	PImageMemoryBarriers     *ImageMemoryBarrier2
}

// SemaphoreSubmitInfo mirrors VkSemaphoreSubmitInfo.
type SemaphoreSubmitInfo struct {
	SType       StructureType
	PNext       uintptr
	Semaphore   Semaphore
	Value       uint64
	StageMask   PipelineStageFlags2
	DeviceIndex uint32
}

// CommandBufferSubmitInfo mirrors VkCommandBufferSubmitInfo.
type CommandBufferSubmitInfo struct {
	SType         StructureType
	PNext         uintptr
	CommandBuffer CommandBuffer
	DeviceMask    uint32
}

// SubmitInfo2 mirrors VkSubmitInfo2.
type SubmitInfo2 struct {
	SType                     StructureType
	PNext                     uintptr
	Flags                     uint32
	WaitSemaphoreInfoCount    uint32
	PWaitSemaphoreInfos       *SemaphoreSubmitInfo
	CommandBufferInfoCount    uint32
	PCommandBufferInfos       *CommandBufferSubmitInfo
	SignalSemaphoreInfoCount  uint32
	PSignalSemaphoreInfos     *SemaphoreSubmitInfo
}

// SemaphoreTypeCreateInfo mirrors VkSemaphoreTypeCreateInfo, used to
// create a timeline semaphore (device.go's deviceFence).
type SemaphoreTypeCreateInfo struct {
	SType         StructureType
	PNext         uintptr
	SemaphoreType SemaphoreType
	InitialValue  uint64
}

// SemaphoreWaitInfo mirrors VkSemaphoreWaitInfo.
type SemaphoreWaitInfo struct {
	SType          StructureType
	PNext          uintptr
	Flags          uint32
	SemaphoreCount uint32
	PSemaphores    *Semaphore
	PValues        *uint64
}

// Extent2D / Extent3D / Offset2D / Offset3D mirror the Vulkan basic structs.
type Extent2D struct{ Width, Height uint32 }
type Extent3D struct{ Width, Height, Depth uint32 }
type Offset2D struct{ X, Y int32 }
type Offset3D struct{ X, Y, Z int32 }

// RenderingAttachmentInfo mirrors VkRenderingAttachmentInfo (dynamic
// rendering), used by rendergraph/execute.go.
type RenderingAttachmentInfo struct {
	SType       StructureType
	PNext       uintptr
	ImageView   ImageView
	ImageLayout ImageLayout
	ResolveMode        uint32
	ResolveImageView   ImageView
	ResolveImageLayout ImageLayout
	LoadOp      uint32
	StoreOp     uint32
	ClearValue  [4]float32
}

// RenderingInfo mirrors VkRenderingInfo.
type RenderingInfo struct {
	SType                StructureType
	PNext                uintptr
	Flags                uint32
	RenderAreaOffset     Offset2D
	RenderAreaExtent     Extent2D
	LayerCount           uint32
	ViewMask             uint32
	ColorAttachmentCount uint32
	PColorAttachments    *RenderingAttachmentInfo
	PDepthAttachment     *RenderingAttachmentInfo
	PStencilAttachment   *RenderingAttachmentInfo
}
