// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/devblok/triangle/event"
	"github.com/devblok/triangle/gfx"
	qt "github.com/frankban/quicktest"
)

type testWindow struct {
	w, h int

	mu     sync.Mutex
	frames []*image.RGBA
}

func (w *testWindow) Size() (int, int) { return w.w, w.h }

func (w *testWindow) PresentImage(img *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, img)
	return nil
}

func (w *testWindow) last() *image.RGBA {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) == 0 {
		return nil
	}
	return w.frames[len(w.frames)-1]
}

type fixture struct {
	factory *Factory
	device  gfx.Device
	queue   gfx.CommandQueue
	swap    gfx.SwapChain
	heap    gfx.DescriptorHeap
	alloc   gfx.CommandAllocator
	list    gfx.CommandList
	fence   gfx.Fence
	window  *testWindow
}

func newFixture(c *qt.C, opts ...Option) *fixture {
	f := &fixture{factory: NewFactory(opts...), window: &testWindow{w: 8, h: 4}}

	adapters, err := f.factory.Adapters()
	c.Assert(err, qt.IsNil)
	f.device, err = f.factory.CreateDevice(adapters[0])
	c.Assert(err, qt.IsNil)
	f.queue, err = f.device.CreateCommandQueue(gfx.CommandQueueDesc{Type: gfx.CommandListDirect})
	c.Assert(err, qt.IsNil)
	f.swap, err = f.factory.CreateSwapChainForWindow(f.queue, f.window, gfx.SwapChainDesc{
		Width:       8,
		Height:      4,
		Format:      gfx.FormatR8G8B8A8Unorm,
		SampleDesc:  gfx.SampleDesc{Count: 1},
		BufferCount: 2,
	})
	c.Assert(err, qt.IsNil)
	f.heap, err = f.device.CreateDescriptorHeap(gfx.DescriptorHeapDesc{Type: gfx.DescriptorHeapRTV, NumDescriptors: 2})
	c.Assert(err, qt.IsNil)
	inc := f.device.DescriptorHandleIncrementSize(gfx.DescriptorHeapRTV)
	for i := 0; i < 2; i++ {
		buf, err := f.swap.Buffer(i)
		c.Assert(err, qt.IsNil)
		c.Assert(f.device.CreateRenderTargetView(buf, f.heap.CPUDescriptorHandleForHeapStart().Offset(i, inc)), qt.IsNil)
	}
	f.alloc, err = f.device.CreateCommandAllocator(gfx.CommandListDirect)
	c.Assert(err, qt.IsNil)
	f.list, err = f.device.CreateCommandList(gfx.CommandListDirect, f.alloc, nil)
	c.Assert(err, qt.IsNil)
	f.fence, err = f.device.CreateFence(0)
	c.Assert(err, qt.IsNil)

	c.Cleanup(func() {
		f.queue.Release()
		f.device.Release()
	})
	return f
}

func (f *fixture) rtv(i int) gfx.CPUDescriptorHandle {
	return f.heap.CPUDescriptorHandleForHeapStart().Offset(i, f.device.DescriptorHandleIncrementSize(gfx.DescriptorHeapRTV))
}

func (f *fixture) recordClear(c *qt.C, index int, color [4]float32) {
	buf, err := f.swap.Buffer(index)
	c.Assert(err, qt.IsNil)
	f.list.ResourceBarrier(gfx.TransitionBarrier(buf, gfx.StatePresent, gfx.StateRenderTarget))
	f.list.OMSetRenderTargets([]gfx.CPUDescriptorHandle{f.rtv(index)}, nil)
	f.list.ClearRenderTargetView(f.rtv(index), color)
	f.list.ResourceBarrier(gfx.TransitionBarrier(buf, gfx.StateRenderTarget, gfx.StatePresent))
	c.Assert(f.list.Close(), qt.IsNil)
}

func (f *fixture) sync(c *qt.C, value uint64) {
	e, err := event.New()
	c.Assert(err, qt.IsNil)
	defer e.Close()
	c.Assert(f.queue.Signal(f.fence, value), qt.IsNil)
	c.Assert(f.fence.SetEventOnCompletion(value, e), qt.IsNil)
	c.Assert(e.Wait(), qt.IsNil)
}

func TestClearAndPresent(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	f.recordClear(c, 0, [4]float32{1, 0, 0, 1})
	c.Assert(f.queue.ExecuteCommandLists(f.list), qt.IsNil)
	c.Assert(f.swap.Present(1, 0), qt.IsNil)
	c.Assert(f.swap.CurrentBackBufferIndex(), qt.Equals, 1)
	f.sync(c, 1)

	c.Assert(f.fence.CompletedValue(), qt.Equals, uint64(1))
	c.Assert(f.swap.(*SwapChain).Presented(), qt.Equals, uint64(1))
	frame := f.window.last()
	c.Assert(frame, qt.Not(qt.IsNil))
	c.Assert(frame.Pix[:4], qt.DeepEquals, []byte{255, 0, 0, 255})
}

func TestPresentStretchesToWindow(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	f.window.w, f.window.h = 16, 8

	f.recordClear(c, 0, [4]float32{0, 0, 1, 1})
	c.Assert(f.queue.ExecuteCommandLists(f.list), qt.IsNil)
	c.Assert(f.swap.Present(0, 0), qt.IsNil)
	f.sync(c, 1)

	frame := f.window.last()
	c.Assert(frame.Rect, qt.Equals, image.Rect(0, 0, 16, 8))
	px := frame.RGBAAt(15, 7)
	c.Assert(px.R < 4 && px.G < 4, qt.IsTrue)
	c.Assert(px.B > 251 && px.A > 251, qt.IsTrue)
}

func TestRecordedCommands(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	f.recordClear(c, 1, [4]float32{0, 0, 0, 1})
	var ops []Op
	for _, cmd := range f.list.(*CommandList).Recorded() {
		ops = append(ops, cmd.Op)
	}
	c.Assert(ops, qt.DeepEquals, []Op{OpResourceBarrier, OpOMSetRenderTargets, OpClearRenderTargetView, OpResourceBarrier})
}

func TestAllocatorResetWhileInFlight(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, WithLatency(50*time.Millisecond))

	f.recordClear(c, 0, [4]float32{0, 0, 0, 1})
	c.Assert(f.queue.ExecuteCommandLists(f.list), qt.IsNil)

	err := f.alloc.Reset()
	c.Assert(errors.Is(err, gfx.ErrAllocatorInUse), qt.IsTrue)

	f.sync(c, 1)
	c.Assert(f.alloc.Reset(), qt.IsNil)
}

func TestAllocatorResetWhileRecording(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	err := f.alloc.Reset()
	c.Assert(errors.Is(err, gfx.ErrInvalidCall), qt.IsTrue)
	c.Assert(f.list.Close(), qt.IsNil)
	c.Assert(f.alloc.Reset(), qt.IsNil)
}

func TestExecuteOpenListRemovesDevice(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	err := f.queue.ExecuteCommandLists(f.list)
	c.Assert(errors.Is(err, gfx.ErrDeviceRemoved), qt.IsTrue)
	c.Assert(errors.Is(err, gfx.ErrInvalidCall), qt.IsTrue)
	c.Assert(f.fence.CompletedValue(), qt.Equals, uint64(math.MaxUint64))

	_, err = f.device.CreateFence(0)
	c.Assert(errors.Is(err, gfx.ErrDeviceRemoved), qt.IsTrue)
}

func TestBarrierStateMismatchRemovesDevice(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	e, err := event.New()
	c.Assert(err, qt.IsNil)
	defer e.Close()
	c.Assert(f.fence.SetEventOnCompletion(1, e), qt.IsNil)

	buf, err := f.swap.Buffer(0)
	c.Assert(err, qt.IsNil)
	f.list.ResourceBarrier(gfx.TransitionBarrier(buf, gfx.StateRenderTarget, gfx.StatePresent))
	c.Assert(f.list.Close(), qt.IsNil)
	c.Assert(f.queue.ExecuteCommandLists(f.list), qt.IsNil)

	// Removal wakes waiters that will never be signalled.
	c.Assert(e.Wait(), qt.IsNil)
	c.Assert(errors.Is(f.device.(*Device).Err(), gfx.ErrDeviceRemoved), qt.IsTrue)
}

func TestPresentInRenderTargetStateRemovesDevice(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	e, err := event.New()
	c.Assert(err, qt.IsNil)
	defer e.Close()
	c.Assert(f.fence.SetEventOnCompletion(1, e), qt.IsNil)

	buf, err := f.swap.Buffer(0)
	c.Assert(err, qt.IsNil)
	f.list.ResourceBarrier(gfx.TransitionBarrier(buf, gfx.StatePresent, gfx.StateRenderTarget))
	c.Assert(f.list.Close(), qt.IsNil)
	c.Assert(f.queue.ExecuteCommandLists(f.list), qt.IsNil)
	c.Assert(f.swap.Present(1, 0), qt.IsNil)
	c.Assert(e.Wait(), qt.IsNil)

	err = f.swap.Present(1, 0)
	c.Assert(errors.Is(err, gfx.ErrDeviceRemoved), qt.IsTrue)
}

func TestRecordingIntoClosedList(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	c.Assert(f.list.Close(), qt.IsNil)
	c.Assert(errors.Is(f.list.Close(), gfx.ErrInvalidCall), qt.IsTrue)

	c.Assert(f.list.Reset(f.alloc, nil), qt.IsNil)
	f.list.ClearRenderTargetView(gfx.CPUDescriptorHandle{Ptr: 1}, [4]float32{})
	c.Assert(errors.Is(f.list.Close(), gfx.ErrInvalidCall), qt.IsTrue)
}

func TestFenceEventAlreadyReached(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	f.sync(c, 5)
	e, err := event.New()
	c.Assert(err, qt.IsNil)
	defer e.Close()

	c.Assert(f.fence.SetEventOnCompletion(3, e), qt.IsNil)
	c.Assert(e.Wait(), qt.IsNil)
}

func TestWindowAssociation(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	c.Assert(f.factory.MakeWindowAssociation(f.window, gfx.NoAltEnter), qt.IsNil)
	c.Assert(f.factory.WindowAssociation(f.window), qt.Equals, gfx.NoAltEnter)
}

func TestSwapChainValidation(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	_, err := f.factory.CreateSwapChainForWindow(f.queue, f.window, gfx.SwapChainDesc{
		Format:      gfx.FormatR8G8B8A8Unorm,
		SampleDesc:  gfx.SampleDesc{Count: 1},
		BufferCount: 1,
	})
	c.Assert(errors.Is(err, gfx.ErrInvalidCall), qt.IsTrue)

	sc, err := f.factory.CreateSwapChainForWindow(f.queue, f.window, gfx.SwapChainDesc{
		Format:      gfx.FormatR8G8B8A8Unorm,
		SampleDesc:  gfx.SampleDesc{Count: 1},
		BufferCount: 3,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(sc.Desc().Width, qt.Equals, 8)
	c.Assert(sc.Desc().Height, qt.Equals, 4)
}

func BenchmarkFrame(b *testing.B) {
	c := qt.New(b)
	f := newFixture(c)
	e, _ := event.New()
	defer e.Close()

	fenceValue := uint64(1)
	for i := 0; i < b.N; i++ {
		idx := f.swap.CurrentBackBufferIndex()
		f.alloc.Reset()
		f.list.Reset(f.alloc, nil)
		buf, _ := f.swap.Buffer(idx)
		f.list.ResourceBarrier(gfx.TransitionBarrier(buf, gfx.StatePresent, gfx.StateRenderTarget))
		f.list.ClearRenderTargetView(f.rtv(idx), [4]float32{0, 0, 0, 1})
		f.list.ResourceBarrier(gfx.TransitionBarrier(buf, gfx.StateRenderTarget, gfx.StatePresent))
		f.list.Close()
		f.queue.ExecuteCommandLists(f.list)
		f.swap.Present(0, 0)
		f.queue.Signal(f.fence, fenceValue)
		f.fence.SetEventOnCompletion(fenceValue, e)
		e.Wait()
		fenceValue++
	}
}
