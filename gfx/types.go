// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "fmt"

// Format is a texel or vertex element format.
type Format int

// Formats understood by the backends
const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR32G32B32A32Float
	FormatR32G32B32Float
	FormatR32G32Float
)

// Size returns the size of one element in bytes, or 0 if unknown.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm:
		return 4
	case FormatR32G32B32A32Float:
		return 16
	case FormatR32G32B32Float:
		return 12
	case FormatR32G32Float:
		return 8
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatR32G32B32A32Float:
		return "R32G32B32A32_FLOAT"
	case FormatR32G32B32Float:
		return "R32G32B32_FLOAT"
	case FormatR32G32Float:
		return "R32G32_FLOAT"
	}
	return "UNKNOWN"
}

// ResourceState is the usage a resource is prepared for.
// StatePresent and StateCommon share a value.
type ResourceState uint32

// Resource states
const (
	StateCommon              ResourceState = 0
	StatePresent             ResourceState = 0
	StateRenderTarget        ResourceState = 0x4
	StatePixelShaderResource ResourceState = 0x80
	StateCopyDest            ResourceState = 0x400
	StateCopySource          ResourceState = 0x800
)

func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "PRESENT"
	case StateRenderTarget:
		return "RENDER_TARGET"
	case StatePixelShaderResource:
		return "PIXEL_SHADER_RESOURCE"
	case StateCopyDest:
		return "COPY_DEST"
	case StateCopySource:
		return "COPY_SOURCE"
	}
	return fmt.Sprintf("ResourceState(%#x)", uint32(s))
}

// AllSubresources addresses every subresource of a resource in a barrier.
const AllSubresources = 0xffffffff

// ResourceBarrier is a state transition of a resource.
type ResourceBarrier struct {
	Resource    Resource
	Subresource uint32
	StateBefore ResourceState
	StateAfter  ResourceState
}

// TransitionBarrier returns a barrier moving every subresource of r
// from before to after.
func TransitionBarrier(r Resource, before, after ResourceState) ResourceBarrier {
	return ResourceBarrier{
		Resource:    r,
		Subresource: AllSubresources,
		StateBefore: before,
		StateAfter:  after,
	}
}

// CommandListType selects the queue family a list or allocator serves.
type CommandListType int

// Command list types
const (
	CommandListDirect CommandListType = iota
	CommandListCompute
	CommandListCopy
)

// CommandQueueDesc describes a command queue.
type CommandQueueDesc struct {
	Type     CommandListType
	Priority int
}

// DescriptorHeapType is the kind of descriptors a heap holds.
type DescriptorHeapType int

// Descriptor heap types
const (
	DescriptorHeapCBVSRVUAV DescriptorHeapType = iota
	DescriptorHeapSampler
	DescriptorHeapRTV
	DescriptorHeapDSV
)

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	Type           DescriptorHeapType
	NumDescriptors int
	ShaderVisible  bool
}

// CPUDescriptorHandle addresses one descriptor in a heap.
type CPUDescriptorHandle struct {
	Ptr uintptr
}

// Offset returns the handle n descriptors further, where size is the
// increment returned by Device.DescriptorHandleIncrementSize.
func (h CPUDescriptorHandle) Offset(n int, size uint32) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: uintptr(int64(h.Ptr) + int64(n)*int64(size))}
}

// ResourceDesc describes a texture resource.
type ResourceDesc struct {
	Width  int
	Height int
	Format Format
}

// Usage flags for swap chain buffers
const (
	UsageRenderTargetOutput = 1 << iota
	UsageShaderInput
)

// SwapEffect selects the presentation model.
type SwapEffect int

// Swap effects
const (
	SwapEffectFlipDiscard SwapEffect = iota
	SwapEffectFlipSequential
)

// Scaling selects how back buffers map onto a differently sized window.
type Scaling int

// Scaling modes
const (
	ScalingStretch Scaling = iota
	ScalingNone
)

// SampleDesc describes multisampling.
type SampleDesc struct {
	Count   int
	Quality int
}

// SwapChainDesc describes a swap chain.
type SwapChainDesc struct {
	Width       int
	Height      int
	Format      Format
	Stereo      bool
	SampleDesc  SampleDesc
	BufferUsage int
	BufferCount int
	Scaling     Scaling
	SwapEffect  SwapEffect
}

// PresentFlags modify a present call.
type PresentFlags uint32

// WindowAssociation flags
type WindowAssociation uint32

// Window association flags
const (
	NoWindowChanges WindowAssociation = 1 << iota
	NoAltEnter
	NoPrintScreen
)

// Viewport maps normalized device coordinates to the render target.
type Viewport struct {
	TopLeftX float32
	TopLeftY float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

// NewViewport returns a viewport with the full [0, 1] depth range.
func NewViewport(x, y, width, height float32) Viewport {
	return Viewport{
		TopLeftX: x,
		TopLeftY: y,
		Width:    width,
		Height:   height,
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// Rect is a pixel rectangle, right and bottom exclusive.
type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}
