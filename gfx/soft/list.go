// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync/atomic"

	"github.com/devblok/triangle/gfx"
)

// Op names a recorded command.
type Op string

// Recorded operations
const (
	OpSetPipelineState         Op = "SetPipelineState"
	OpSetGraphicsRootSignature Op = "SetGraphicsRootSignature"
	OpRSSetViewports           Op = "RSSetViewports"
	OpRSSetScissorRects        Op = "RSSetScissorRects"
	OpResourceBarrier          Op = "ResourceBarrier"
	OpOMSetRenderTargets       Op = "OMSetRenderTargets"
	OpClearRenderTargetView    Op = "ClearRenderTargetView"
)

// Command is one recorded command.
type Command struct {
	Op        Op
	Resource  *Resource
	Before    gfx.ResourceState
	After     gfx.ResourceState
	Color     [4]float32
	Rects     []gfx.Rect
	Viewports []gfx.Viewport
	Targets   []*Resource
}

// CommandAllocator implements gfx.CommandAllocator. It owns the memory
// commands are recorded into.
type CommandAllocator struct {
	dev       *Device
	kind      gfx.CommandListType
	cmds      []Command
	recording *CommandList

	// pending counts executions still reading cmds.
	pending atomic.Int32
}

// Reset implements gfx.CommandAllocator.
func (a *CommandAllocator) Reset() error {
	if err := a.dev.Err(); err != nil {
		return err
	}
	if n := a.pending.Load(); n > 0 {
		return fmt.Errorf("%w: %d executions outstanding", gfx.ErrAllocatorInUse, n)
	}
	if a.recording != nil {
		return fmt.Errorf("%w: allocator reset while a command list records into it", gfx.ErrInvalidCall)
	}
	a.cmds = a.cmds[:0]
	return nil
}

// InFlight reports whether the GPU may still read from the allocator.
func (a *CommandAllocator) InFlight() bool {
	return a.pending.Load() > 0
}

// Release implements gfx.Releasable.
func (a *CommandAllocator) Release() {
	a.cmds = nil
}

// CommandList implements gfx.CommandList.
type CommandList struct {
	dev    *Device
	kind   gfx.CommandListType
	alloc  *CommandAllocator
	start  int
	end    int
	closed bool
	err    error
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

	l.alloc = a
	a.recording = l
	l.start = len(a.cmds)
	l.end = l.start
	l.closed = false
	l.err = nil
	if pso != nil {
		l.record(Command{Op: OpSetPipelineState})
	}
	return nil
}

// Close implements gfx.CommandList.
func (l *CommandList) Close() error {
	if l.closed {
		return fmt.Errorf("%w: command list already closed", gfx.ErrInvalidCall)
	}
	l.closed = true
	l.end = len(l.alloc.cmds)
	l.alloc.recording = nil
	return l.err
}

// Closed reports whether the list is closed.
func (l *CommandList) Closed() bool {
	return l.closed
}

// Recorded returns the commands of the last recording.
func (l *CommandList) Recorded() []Command {
	if l.alloc == nil {
		return nil
	}
	end := l.end
	if !l.closed {
		end = len(l.alloc.cmds)
	}
	return append([]Command(nil), l.alloc.cmds[l.start:end]...)
}

func (l *CommandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *CommandList) record(cmd Command) {
	if l.closed {
		l.fail(fmt.Errorf("%w: %s on a closed command list", gfx.ErrInvalidCall, cmd.Op))
		return
	}
	l.alloc.cmds = append(l.alloc.cmds, cmd)
}

// SetGraphicsRootSignature implements gfx.CommandList.
func (l *CommandList) SetGraphicsRootSignature(signature gfx.RootSignature) {
	if rs, ok := signature.(*RootSignature); !ok || rs.dev != l.dev {
		l.fail(fmt.Errorf("%w: foreign root signature", gfx.ErrInvalidCall))
		return
	}
	l.record(Command{Op: OpSetGraphicsRootSignature})
}

// RSSetViewports implements gfx.CommandList.
func (l *CommandList) RSSetViewports(viewports ...gfx.Viewport) {
	l.record(Command{Op: OpRSSetViewports, Viewports: append([]gfx.Viewport(nil), viewports...)})
}

// RSSetScissorRects implements gfx.CommandList.
func (l *CommandList) RSSetScissorRects(rects ...gfx.Rect) {
	l.record(Command{Op: OpRSSetScissorRects, Rects: append([]gfx.Rect(nil), rects...)})
}

// ResourceBarrier implements gfx.CommandList. Each barrier is recorded
// as its own command.
func (l *CommandList) ResourceBarrier(barriers ...gfx.ResourceBarrier) {
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
		l.record(Command{Op: OpResourceBarrier, Resource: r, Before: b.StateBefore, After: b.StateAfter})
	}
}

// OMSetRenderTargets implements gfx.CommandList.
func (l *CommandList) OMSetRenderTargets(targets []gfx.CPUDescriptorHandle, depthStencil *gfx.CPUDescriptorHandle) {
	if depthStencil != nil {
		l.fail(fmt.Errorf("%w: depth stencil targets", gfx.ErrUnsupported))
		return
	}
	resources := make([]*Resource, len(targets))
	for i, t := range targets {
		r, err := l.renderTarget(t)
		if err != nil {
			l.fail(err)
			return
		}
		resources[i] = r
	}
	l.record(Command{Op: OpOMSetRenderTargets, Targets: resources})
}

// ClearRenderTargetView implements gfx.CommandList.
func (l *CommandList) ClearRenderTargetView(target gfx.CPUDescriptorHandle, color [4]float32, rects ...gfx.Rect) {
	r, err := l.renderTarget(target)
	if err != nil {
		l.fail(err)
		return
	}
	l.record(Command{Op: OpClearRenderTargetView, Resource: r, Color: color, Rects: append([]gfx.Rect(nil), rects...)})
}

func (l *CommandList) renderTarget(handle gfx.CPUDescriptorHandle) (*Resource, error) {
	h, i, err := l.dev.resolve(handle)
	if err != nil {
		return nil, err
	}
	if h.desc.Type != gfx.DescriptorHeapRTV {
		return nil, fmt.Errorf("%w: handle is not a render target view", gfx.ErrInvalidCall)
	}
	r := h.get(i)
	if r == nil {
		return nil, fmt.Errorf("%w: render target view %d was never created", gfx.ErrInvalidCall, i)
	}
	return r, nil
}

// Release implements gfx.Releasable.
func (l *CommandList) Release() {
	if !l.closed && l.alloc != nil {
		l.alloc.recording = nil
	}
	l.closed = true
}

// execute runs one command on the queue worker.
func (d *Device) execute(cmd Command) error {
	switch cmd.Op {
	case OpResourceBarrier:
		return cmd.Resource.transition(cmd.Before, cmd.After)
	case OpClearRenderTargetView:
		return cmd.Resource.clear(cmd.Color, cmd.Rects)
	case OpOMSetRenderTargets:
		for _, r := range cmd.Targets {
			if s := r.State(); s != gfx.StateRenderTarget {
				return fmt.Errorf("%w: %q bound as render target in state %s", gfx.ErrInvalidCall, r.Name(), s)
			}
		}
	}
	return nil
}
