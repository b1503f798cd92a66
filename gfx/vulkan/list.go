// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
)

// CommandAllocator implements gfx.CommandAllocator with a command pool.
type CommandAllocator struct {
	dev       *Device
	kind      gfx.CommandListType
	pool      vk.CommandPool
	recording *CommandList

	// pending counts submissions not yet retired.
	pending atomic.Int32
}

// Reset implements gfx.CommandAllocator.
func (a *CommandAllocator) Reset() error {
	if err := a.dev.Err(); err != nil {
		return err
	}
	if err := a.dev.retire(); err != nil {
		return err
	}
	if n := a.pending.Load(); n > 0 {
		return fmt.Errorf("%w: %d submissions outstanding", gfx.ErrAllocatorInUse, n)
	}
	if a.recording != nil {
		return fmt.Errorf("%w: allocator reset while a command list records into it", gfx.ErrInvalidCall)
	}
	return a.dev.result("vk.ResetCommandPool()", vk.ResetCommandPool(a.dev.device, a.pool, 0))
}

// InFlight reports whether the GPU may still read from the allocator.
func (a *CommandAllocator) InFlight() bool {
	a.dev.retire()
	return a.pending.Load() > 0
}

// Release implements gfx.Releasable. Command buffers allocated from the
// pool are freed with it.
func (a *CommandAllocator) Release() {
	if a.pool != nil {
		vk.DestroyCommandPool(a.dev.device, a.pool, nil)
		a.pool = nil
	}
}

// CommandList implements gfx.CommandList. It keeps one command buffer
// per allocator it was reset with.
type CommandList struct {
	dev     *Device
	kind    gfx.CommandListType
	alloc   *CommandAllocator
	buffers map[*CommandAllocator]vk.CommandBuffer
	closed  bool
	err     error

	rootSignature *RootSignature
	targets       []*Resource
}

func (l *CommandList) buffer() vk.CommandBuffer {
	return l.buffers[l.alloc]
}

// Reset implements gfx.CommandList.
func (l *CommandList) Reset(allocator gfx.CommandAllocator, initial gfx.PipelineState) error {
	if err := l.dev.Err(); err != nil {
		return err
	}
	if !l.closed {
		return fmt.Errorf("%w: reset of a command list that is still recording", gfx.ErrInvalidCall)
	}
	a, ok := allocator.(*CommandAllocator)
	if !ok || a.dev != l.dev {
		return fmt.Errorf("%w: foreign command allocator", gfx.ErrInvalidCall)
	}
	if a.kind != l.kind {
		return fmt.Errorf("%w: allocator type does not match the list", gfx.ErrInvalidCall)
	}
	if a.recording != nil {
		return fmt.Errorf("%w: allocator already has a recording command list", gfx.ErrInvalidCall)
	}
	var pso *PipelineState
	if initial != nil {
		if pso, ok = initial.(*PipelineState); !ok || pso.dev != l.dev {
			return fmt.Errorf("%w: foreign pipeline state", gfx.ErrInvalidCall)
		}
	}

	cb, ok := l.buffers[a]
	if !ok {
		cbai := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        a.pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}
		buffers := make([]vk.CommandBuffer, 1)
		if err := l.dev.result("vk.AllocateCommandBuffers()", vk.AllocateCommandBuffers(l.dev.device, &cbai, buffers)); err != nil {
			return err
		}
		cb = buffers[0]
		l.buffers[a] = cb
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := l.dev.result("vk.BeginCommandBuffer()", vk.BeginCommandBuffer(cb, &cbbi)); err != nil {
		return err
	}

	l.alloc = a
	a.recording = l
	l.closed = false
	l.err = nil
	l.rootSignature = nil
	l.targets = nil
	if pso != nil {
		vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, pso.pipeline)
	}
	return nil
}

// Close implements gfx.CommandList.
func (l *CommandList) Close() error {
	if l.closed {
		return fmt.Errorf("%w: command list already closed", gfx.ErrInvalidCall)
	}
	l.closed = true
	l.alloc.recording = nil
	if err := l.dev.result("vk.EndCommandBuffer()", vk.EndCommandBuffer(l.buffer())); err != nil && l.err == nil {
		l.err = err
	}
	return l.err
}

// Closed reports whether the list is closed.
func (l *CommandList) Closed() bool {
	return l.closed
}

// recording reports whether op may be recorded, failing the list if not.
func (l *CommandList) recording(op string) bool {
	if l.closed {
		l.fail(fmt.Errorf("%w: %s on a closed command list", gfx.ErrInvalidCall, op))
		return false
	}
	return l.err == nil
}

func (l *CommandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

// SetGraphicsRootSignature implements gfx.CommandList.
func (l *CommandList) SetGraphicsRootSignature(signature gfx.RootSignature) {
	if !l.recording("SetGraphicsRootSignature") {
		return
	}
	rs, ok := signature.(*RootSignature)
	if !ok || rs.dev != l.dev {
		l.fail(fmt.Errorf("%w: foreign root signature", gfx.ErrInvalidCall))
		return
	}
	l.rootSignature = rs
}

// RSSetViewports implements gfx.CommandList.
func (l *CommandList) RSSetViewports(viewports ...gfx.Viewport) {
	if !l.recording("RSSetViewports") || len(viewports) == 0 {
		return
	}
	vps := make([]vk.Viewport, len(viewports))
	for i, v := range viewports {
		vps[i] = vk.Viewport{
			X:        v.TopLeftX,
			Y:        v.TopLeftY,
			Width:    v.Width,
			Height:   v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		}
	}
	vk.CmdSetViewport(l.buffer(), 0, uint32(len(vps)), vps)
}

// RSSetScissorRects implements gfx.CommandList.
func (l *CommandList) RSSetScissorRects(rects ...gfx.Rect) {
	if !l.recording("RSSetScissorRects") || len(rects) == 0 {
		return
	}
	scissors := make([]vk.Rect2D, len(rects))
	for i, r := range rects {
		scissors[i] = vk.Rect2D{
			Offset: vk.Offset2D{X: r.Left, Y: r.Top},
			Extent: vk.Extent2D{Width: uint32(r.Right - r.Left), Height: uint32(r.Bottom - r.Top)},
		}
	}
	vk.CmdSetScissor(l.buffer(), 0, uint32(len(scissors)), scissors)
}

// ResourceBarrier implements gfx.CommandList with image memory barriers.
func (l *CommandList) ResourceBarrier(barriers ...gfx.ResourceBarrier) {
	if !l.recording("ResourceBarrier") {
		return
	}
	imbs := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		r, ok := b.Resource.(*Resource)
		if !ok || r.dev != l.dev {
			l.fail(fmt.Errorf("%w: barrier on a foreign resource", gfx.ErrInvalidCall))
			return
		}
		if b.StateBefore == b.StateAfter {
			l.fail(fmt.Errorf("%w: barrier with identical before and after states", gfx.ErrInvalidCall))
			return
		}
		_, srcAccess, okBefore := imageLayout(b.StateBefore)
		newLayout, dstAccess, okAfter := imageLayout(b.StateAfter)
		if !okBefore || !okAfter {
			l.fail(fmt.Errorf("%w: transition %s -> %s", gfx.ErrUnsupported, b.StateBefore, b.StateAfter))
			return
		}
		imbs = append(imbs, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           r.oldLayout(b.StateBefore),
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               r.image,
			SubresourceRange:    colorRange,
		})
	}
	if len(imbs) == 0 {
		return
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	vk.CmdPipelineBarrier(l.buffer(), stages, stages, 0, 0, nil, 0, nil, uint32(len(imbs)), imbs)
}

// OMSetRenderTargets implements gfx.CommandList. Targets are bound for
// the clears that follow; no render pass is started.
func (l *CommandList) OMSetRenderTargets(targets []gfx.CPUDescriptorHandle, depthStencil *gfx.CPUDescriptorHandle) {
	if !l.recording("OMSetRenderTargets") {
		return
	}
	if depthStencil != nil {
		l.fail(fmt.Errorf("%w: depth stencil targets", gfx.ErrUnsupported))
		return
	}
	resources := make([]*Resource, len(targets))
	for i, t := range targets {
		d, err := l.renderTarget(t)
		if err != nil {
			l.fail(err)
			return
		}
		resources[i] = d.resource
	}
	l.targets = resources
}

// ClearRenderTargetView implements gfx.CommandList. The target must be
// in the render target state. Partial clears are not supported.
func (l *CommandList) ClearRenderTargetView(target gfx.CPUDescriptorHandle, color [4]float32, rects ...gfx.Rect) {
	if !l.recording("ClearRenderTargetView") {
		return
	}
	if len(rects) > 0 {
		l.fail(fmt.Errorf("%w: clear rectangles", gfx.ErrUnsupported))
		return
	}
	d, err := l.renderTarget(target)
	if err != nil {
		l.fail(err)
		return
	}

	var cv vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&cv)) = color
	layout, _, _ := imageLayout(gfx.StateRenderTarget)
	vk.CmdClearColorImage(l.buffer(), d.resource.image, layout, &cv, 1, []vk.ImageSubresourceRange{colorRange})
}

func (l *CommandList) renderTarget(handle gfx.CPUDescriptorHandle) (descriptor, error) {
	h, i, err := l.dev.resolve(handle)
	if err != nil {
		return descriptor{}, err
	}
	if h.desc.Type != gfx.DescriptorHeapRTV {
		return descriptor{}, fmt.Errorf("%w: handle is not a render target view", gfx.ErrInvalidCall)
	}
	d := h.get(i)
	if d.resource == nil {
		return descriptor{}, fmt.Errorf("%w: render target view %d was never created", gfx.ErrInvalidCall, i)
	}
	return d, nil
}

// Release implements gfx.Releasable.
func (l *CommandList) Release() {
	if !l.closed && l.alloc != nil {
		vk.EndCommandBuffer(l.buffer())
		l.alloc.recording = nil
	}
	l.closed = true
	for a, cb := range l.buffers {
		if a.pool != nil {
			vk.FreeCommandBuffers(l.dev.device, a.pool, 1, []vk.CommandBuffer{cb})
		}
	}
	l.buffers = nil
}
