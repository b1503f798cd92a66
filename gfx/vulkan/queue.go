// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"fmt"
	"math"
	"sync"

	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
)

type submission struct {
	fence  vk.Fence
	allocs []*CommandAllocator
}

// Queue implements gfx.CommandQueue.
type Queue struct {
	dev   *Device
	desc  gfx.CommandQueueDesc
	queue vk.Queue

	mu       sync.Mutex
	inflight []submission

	// renderDone is signalled by the next execution when a swap chain
	// waits on it in Present.
	renderDone    vk.Semaphore
	renderPending bool
}

func (q *Queue) attach() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.renderDone != nil {
		return nil
	}
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	return q.dev.result("vk.CreateSemaphore()", vk.CreateSemaphore(q.dev.device, &sci, nil, &q.renderDone))
}

// takeRenderDone returns the semaphore Present must wait on, if any.
func (q *Queue) takeRenderDone() []vk.Semaphore {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.renderPending {
		return nil
	}
	q.renderPending = false
	return []vk.Semaphore{q.renderDone}
}

// ExecuteCommandLists implements gfx.CommandQueue. Executing a list that
// is still recording, or that failed to record, removes the device.
func (q *Queue) ExecuteCommandLists(lists ...gfx.CommandList) error {
	if err := q.dev.Err(); err != nil {
		return err
	}

	buffers := make([]vk.CommandBuffer, 0, len(lists))
	allocs := make([]*CommandAllocator, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok || cl.dev != q.dev {
			return q.dev.remove(fmt.Errorf("%w: foreign command list", gfx.ErrInvalidCall))
		}
		if !cl.closed {
			return q.dev.remove(fmt.Errorf("%w: executing a command list that is still recording", gfx.ErrInvalidCall))
		}
		if cl.err != nil {
			return q.dev.remove(fmt.Errorf("%w: executing a command list that failed to close", gfx.ErrInvalidCall))
		}
		buffers = append(buffers, cl.buffers[cl.alloc])
		allocs = append(allocs, cl.alloc)
	}

	fence, err := q.dev.acquireFence()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	signalRender := q.renderDone != nil && !q.renderPending
	if signalRender {
		si.SignalSemaphoreCount = 1
		si.PSignalSemaphores = []vk.Semaphore{q.renderDone}
	}
	if err := q.dev.result("vk.QueueSubmit()", vk.QueueSubmit(q.queue, 1, []vk.SubmitInfo{si}, fence)); err != nil {
		q.dev.recycleFence(fence)
		return err
	}
	if signalRender {
		q.renderPending = true
	}
	for _, a := range allocs {
		a.pending.Add(1)
	}
	q.inflight = append(q.inflight, submission{fence: fence, allocs: allocs})
	return nil
}

// retire drops finished submissions in submission order.
func (q *Queue) retire() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.inflight) > 0 {
		s := q.inflight[0]
		done, err := q.dev.signalled(s.fence)
		if err != nil {
			return err
		}
		if !done {
			break
		}
		for _, a := range s.allocs {
			a.pending.Add(-1)
		}
		q.dev.recycleFence(s.fence)
		q.inflight = q.inflight[1:]
	}
	return nil
}

// Signal implements gfx.CommandQueue. An empty submission carries a
// fresh binary fence that signals once all prior work completes.
func (q *Queue) Signal(fence gfx.Fence, value uint64) error {
	if err := q.dev.Err(); err != nil {
		return err
	}
	f, ok := fence.(*Fence)
	if !ok || f.dev != q.dev {
		return fmt.Errorf("%w: foreign fence", gfx.ErrInvalidCall)
	}

	vf, err := q.dev.acquireFence()
	if err != nil {
		return err
	}
	q.mu.Lock()
	ret := vk.QueueSubmit(q.queue, 0, nil, vf)
	q.mu.Unlock()
	if err := q.dev.result("vk.QueueSubmit()", ret); err != nil {
		q.dev.recycleFence(vf)
		return err
	}
	f.push(value, vf)
	return nil
}

// Release waits for the queue to drain.
func (q *Queue) Release() {
	if q.dev.device == nil {
		return
	}
	vk.QueueWaitIdle(q.queue)
	q.retire()
	q.dev.forgetQueue(q)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.renderDone != nil {
		vk.DestroySemaphore(q.dev.device, q.renderDone, nil)
		q.renderDone = nil
	}
}

type fencePoint struct {
	value   uint64
	fence   vk.Fence
	waiters int
	done    bool
}

// Fence implements gfx.Fence with a queue of binary fences, one per
// signalled value.
type Fence struct {
	dev *Device

	mu        sync.Mutex
	completed uint64
	pending   []*fencePoint
	events    []fenceEvent
}

// fenceEvent waits for a value no submission signals yet.
type fenceEvent struct {
	value uint64
	event gfx.Event
}

func (f *Fence) push(value uint64, fence vk.Fence) {
	p := &fencePoint{value: value, fence: fence}

	f.mu.Lock()
	f.pending = append(f.pending, p)
	var ready []gfx.Event
	waiting := f.events[:0]
	for _, fe := range f.events {
		if fe.value <= value {
			ready = append(ready, fe.event)
			p.waiters++
		} else {
			waiting = append(waiting, fe)
		}
	}
	f.events = waiting
	f.mu.Unlock()

	for _, e := range ready {
		go f.wait(p, e)
	}
}

// poll advances the completed value past every signalled point.
func (f *Fence) poll() {
	f.mu.Lock()
	ret := vk.Success
	for len(f.pending) > 0 {
		p := f.pending[0]
		if ret = vk.GetFenceStatus(f.dev.device, p.fence); ret != vk.Success {
			break
		}
		f.completed = p.value
		p.done = true
		if p.waiters == 0 {
			f.dev.recycleFence(p.fence)
		}
		f.pending = f.pending[1:]
	}
	f.mu.Unlock()

	if ret != vk.Success && ret != vk.NotReady {
		f.dev.result("vk.GetFenceStatus()", ret)
	}
}

// CompletedValue implements gfx.Fence. A removed device reports the
// maximum value so that no caller waits forever.
func (f *Fence) CompletedValue() uint64 {
	if f.dev.Err() != nil {
		return math.MaxUint64
	}
	f.poll()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// SetEventOnCompletion implements gfx.Fence. The wait for the binary
// fence of value runs on its own goroutine.
func (f *Fence) SetEventOnCompletion(value uint64, e gfx.Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", gfx.ErrInvalidCall)
	}
	if f.CompletedValue() >= value {
		return e.Set()
	}

	f.mu.Lock()
	var point *fencePoint
	for _, p := range f.pending {
		if p.value >= value {
			point = p
			break
		}
	}
	if point == nil {
		// Set by the Signal that reaches value, or on device removal.
		f.events = append(f.events, fenceEvent{value: value, event: e})
		f.mu.Unlock()
		return nil
	}
	point.waiters++
	f.mu.Unlock()

	go f.wait(point, e)
	return nil
}

func (f *Fence) wait(p *fencePoint, e gfx.Event) {
	ret := vk.WaitForFences(f.dev.device, 1, []vk.Fence{p.fence}, vk.True, math.MaxUint64)
	if err := f.dev.result("vk.WaitForFences()", ret); err != nil {
		f.dev.log.WithError(err).Warn("Fence wait failed")
	}

	f.mu.Lock()
	p.waiters--
	if p.done && p.waiters == 0 {
		f.dev.recycleFence(p.fence)
	}
	f.mu.Unlock()

	f.poll()
	if err := e.Set(); err != nil {
		f.dev.log.WithError(err).Warn("Fence event could not be set")
	}
}

func (f *Fence) wakeAll() {
	f.mu.Lock()
	events := f.events
	f.events = nil
	f.mu.Unlock()
	for _, fe := range events {
		fe.event.Set()
	}
}

// Release implements gfx.Releasable.
func (f *Fence) Release() {
	f.dev.forgetFence(f)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		if p.waiters == 0 {
			vk.DestroyFence(f.dev.device, p.fence, nil)
		}
	}
	f.pending = nil
}
