// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the explicit GPU API that rendering backends must implement.
//
// The model follows a command-list driven API: a Device creates every object,
// CPU-recorded CommandLists are submitted to a CommandQueue, and the CPU learns
// about GPU progress only through Fences. Nothing in this package synchronizes
// on behalf of the caller.
package gfx

import "errors"

// Sentinel errors wrapped by backend implementations.
var (
	// ErrDeviceRemoved is returned once a device has hit invalid usage or
	// has been lost. It is sticky: every later call fails with it too.
	ErrDeviceRemoved = errors.New("gfx: device removed")

	// ErrInvalidCall reports an API call made in the wrong state.
	ErrInvalidCall = errors.New("gfx: invalid call")

	// ErrAllocatorInUse is returned by CommandAllocator.Reset when work
	// recorded from the allocator has not yet completed on the GPU.
	ErrAllocatorInUse = errors.New("gfx: command allocator in use by the GPU")

	// ErrNoAdapter is returned when no adapter can be selected.
	ErrNoAdapter = errors.New("gfx: no adapter available")

	// ErrUnsupported reports a request the backend cannot honour.
	ErrUnsupported = errors.New("gfx: unsupported")
)

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Window is the host surface a swap chain presents into.
type Window interface {
	// Size returns the current client area size in pixels.
	Size() (width, height int)
}

// Event is signalled by a fence when it reaches a requested value.
type Event interface {
	Set() error
}

// Factory enumerates adapters and creates devices and swap chains.
type Factory interface {
	Releasable

	// Adapters returns the adapters in a stable order.
	Adapters() ([]Adapter, error)

	// CreateDevice creates a logical device on the adapter.
	CreateDevice(adapter Adapter) (Device, error)

	// CreateSwapChainForWindow creates a swap chain that presents
	// through the queue into the window.
	CreateSwapChainForWindow(queue CommandQueue, window Window, desc SwapChainDesc) (SwapChain, error)

	// MakeWindowAssociation controls which window messages the
	// factory is allowed to handle on its own.
	MakeWindowAssociation(window Window, flags WindowAssociation) error
}

// Adapter is a physical rendering device.
type Adapter interface {
	Info() AdapterInfo
}

// Device owns every GPU object created through it.
type Device interface {
	Releasable

	CreateCommandQueue(desc CommandQueueDesc) (CommandQueue, error)
	CreateCommandAllocator(kind CommandListType) (CommandAllocator, error)

	// CreateCommandList creates a list in the recording state,
	// recording into allocator with initial bound.
	CreateCommandList(kind CommandListType, allocator CommandAllocator, initial PipelineState) (CommandList, error)

	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)

	// DescriptorHandleIncrementSize is the distance between two
	// consecutive handles of a heap of the given type.
	DescriptorHandleIncrementSize(kind DescriptorHeapType) uint32

	CreateRenderTargetView(resource Resource, handle CPUDescriptorHandle) error

	// CreateRootSignature creates a root signature from a blob
	// produced by SerializeRootSignature.
	CreateRootSignature(blob []byte) (RootSignature, error)

	CreateGraphicsPipelineState(desc GraphicsPipelineStateDesc) (PipelineState, error)
	CreateFence(initial uint64) (Fence, error)
}

// CommandQueue executes command lists and fence signals in submission order.
type CommandQueue interface {
	Releasable

	// ExecuteCommandLists submits closed lists for execution.
	ExecuteCommandLists(lists ...CommandList) error

	// Signal sets fence to value once all previously submitted
	// work has completed.
	Signal(fence Fence, value uint64) error
}

// CommandAllocator is the backing memory for recorded commands.
type CommandAllocator interface {
	Releasable

	// Reset reclaims the memory. It fails with ErrAllocatorInUse while
	// the GPU may still execute commands recorded from it.
	Reset() error
}

// CommandList records commands on the CPU. After Close it is read-only
// until the next Reset. Recording methods do not return errors; the first
// recording failure is reported by Close.
type CommandList interface {
	Releasable

	Reset(allocator CommandAllocator, initial PipelineState) error
	Close() error

	SetGraphicsRootSignature(signature RootSignature)
	RSSetViewports(viewports ...Viewport)
	RSSetScissorRects(rects ...Rect)
	ResourceBarrier(barriers ...ResourceBarrier)
	OMSetRenderTargets(targets []CPUDescriptorHandle, depthStencil *CPUDescriptorHandle)
	ClearRenderTargetView(target CPUDescriptorHandle, color [4]float32, rects ...Rect)
}

// Fence is a monotonic 64-bit counter advanced by the GPU.
type Fence interface {
	Releasable

	// CompletedValue returns the last value the GPU has reached.
	CompletedValue() uint64

	// SetEventOnCompletion arranges for e to be set when the
	// fence reaches value. If it already has, e is set immediately.
	SetEventOnCompletion(value uint64, e Event) error
}

// SwapChain is a ring of presentable back buffers.
type SwapChain interface {
	Releasable

	Desc() SwapChainDesc

	// Buffer returns the back buffer at index.
	Buffer(index int) (Resource, error)

	// CurrentBackBufferIndex returns the buffer the next frame renders to.
	CurrentBackBufferIndex() int

	// Present queues the current back buffer for display and
	// advances the buffer index.
	Present(syncInterval int, flags PresentFlags) error
}

// Resource is a GPU memory object.
type Resource interface {
	Releasable

	Desc() ResourceDesc
	SetName(name string)
	Name() string
}

// DescriptorHeap is a CPU-visible array of descriptors.
type DescriptorHeap interface {
	Releasable

	Desc() DescriptorHeapDesc
	CPUDescriptorHandleForHeapStart() CPUDescriptorHandle
}

// RootSignature describes the resources a pipeline binds.
type RootSignature interface {
	Releasable

	Desc() RootSignatureDesc
}

// PipelineState is a compiled graphics pipeline.
type PipelineState interface {
	Releasable
}
