// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package session

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/event"
	"github.com/devblok/triangle/gfx"
	"github.com/devblok/triangle/gfx/soft"
	"github.com/devblok/triangle/shader"
	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus/hooks/test"
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

func (w *testWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

type compilerFunc func(name, entry, target string) ([]byte, error)

func (f compilerFunc) Compile(name, entry, target string) ([]byte, error) {
	return f(name, entry, target)
}

var vertexShader = compilerFunc(func(name, entry, target string) ([]byte, error) {
	return []byte(name + ":" + entry + ":" + target), nil
})

var renderer = config.RendererConfiguration{
	Backend:      config.BackendSoft,
	ScreenWidth:  16,
	ScreenHeight: 8,
}

func newSession(c *qt.C, opts ...soft.Option) (*Session, *soft.Factory, *testWindow) {
	logger, _ := test.NewNullLogger()
	factory := soft.NewFactory(append([]soft.Option{soft.WithLogger(logger)}, opts...)...)
	window := &testWindow{w: 16, h: 8}
	s := New(factory, window, vertexShader, renderer, WithLogger(logger))
	c.Cleanup(func() {
		s.Destroy()
		factory.Release()
	})
	return s, factory, window
}

func TestInitSynchronizesOnce(t *testing.T) {
	c := qt.New(t)
	s, _, _ := newSession(c)

	c.Assert(s.State(), qt.Equals, StateCreated)
	c.Assert(s.Init(), qt.IsNil)
	c.Assert(s.State(), qt.Equals, StateReady)
	c.Assert(s.Fence().CompletedValue(), qt.Equals, uint64(1))
	c.Assert(s.FenceValue(), qt.Equals, uint64(2))
	c.Assert(s.FrameIndex(), qt.Equals, 0)
	c.Assert(s.commandList.(*soft.CommandList).Closed(), qt.IsTrue)

	err := s.Init()
	c.Assert(errors.Is(err, gfx.ErrInvalidCall), qt.IsTrue)
}

func TestRenderAdvancesFenceAndFrame(t *testing.T) {
	c := qt.New(t)
	s, _, window := newSession(c)
	c.Assert(s.Init(), qt.IsNil)

	for n := 1; n <= 5; n++ {
		before := s.FenceValue()
		c.Assert(s.Render(), qt.IsNil)
		c.Assert(s.FenceValue(), qt.Equals, before+1)
		c.Assert(s.Fence().CompletedValue(), qt.Equals, before)
		c.Assert(s.FrameIndex(), qt.Equals, s.SwapChain().CurrentBackBufferIndex())
		c.Assert(s.FrameIndex(), qt.Equals, n%FrameCount)
		c.Assert(s.SwapChain().(*soft.SwapChain).Presented(), qt.Equals, uint64(n))
	}
	c.Assert(window.count(), qt.Equals, 5)
}

func TestRenderLeavesNothingInFlight(t *testing.T) {
	c := qt.New(t)
	s, _, _ := newSession(c, soft.WithLatency(20*time.Millisecond))
	c.Assert(s.Init(), qt.IsNil)

	for n := 0; n < 3; n++ {
		c.Assert(s.Render(), qt.IsNil)
		c.Assert(s.commandList.(*soft.CommandList).Closed(), qt.IsTrue)
		c.Assert(s.commandAllocator.(*soft.CommandAllocator).InFlight(), qt.IsFalse)
		for i, rt := range s.renderTargets {
			c.Assert(rt.(*soft.Resource).State(), qt.Equals, gfx.StatePresent, qt.Commentf("buffer %d", i))
		}
	}
}

func TestFillCommandListOrder(t *testing.T) {
	c := qt.New(t)
	s, _, _ := newSession(c)
	c.Assert(s.Init(), qt.IsNil)

	for n := 0; n < 2; n++ {
		index := s.FrameIndex()
		c.Assert(s.Render(), qt.IsNil)

		cmds := s.commandList.(*soft.CommandList).Recorded()
		var ops []soft.Op
		for _, cmd := range cmds {
			ops = append(ops, cmd.Op)
		}
		c.Assert(ops, qt.DeepEquals, []soft.Op{
			soft.OpSetPipelineState,
			soft.OpSetGraphicsRootSignature,
			soft.OpRSSetViewports,
			soft.OpRSSetScissorRects,
			soft.OpResourceBarrier,
			soft.OpOMSetRenderTargets,
			soft.OpClearRenderTargetView,
			soft.OpResourceBarrier,
		})

		target := s.renderTargets[index].(*soft.Resource)
		c.Assert(cmds[2].Viewports, qt.DeepEquals, []gfx.Viewport{gfx.NewViewport(0, 0, 16, 8)})
		c.Assert(cmds[3].Rects, qt.DeepEquals, []gfx.Rect{{Right: 16, Bottom: 8}})
		c.Assert(cmds[4].Resource, qt.Equals, target)
		c.Assert(cmds[4].Before, qt.Equals, gfx.StatePresent)
		c.Assert(cmds[4].After, qt.Equals, gfx.StateRenderTarget)
		c.Assert(cmds[5].Targets, qt.HasLen, 1)
		c.Assert(cmds[5].Targets[0], qt.Equals, target)
		c.Assert(cmds[6].Resource, qt.Equals, target)
		c.Assert(cmds[6].Color, qt.Equals, [4]float32{0, 0, 0, 1})
		c.Assert(cmds[7].Resource, qt.Equals, target)
		c.Assert(cmds[7].Before, qt.Equals, gfx.StateRenderTarget)
		c.Assert(cmds[7].After, qt.Equals, gfx.StatePresent)
	}
}

func TestFramesAreCleared(t *testing.T) {
	c := qt.New(t)
	s, _, window := newSession(c)
	c.Assert(s.Init(), qt.IsNil)
	c.Assert(s.Render(), qt.IsNil)
	c.Assert(s.Render(), qt.IsNil)

	window.mu.Lock()
	defer window.mu.Unlock()
	for _, frame := range window.frames {
		c.Assert(frame.Rect, qt.Equals, image.Rect(0, 0, 16, 8))
		for i := 0; i < len(frame.Pix); i += 4 {
			c.Assert(frame.Pix[i:i+4], qt.DeepEquals, []byte{0, 0, 0, 255})
		}
	}
}

func TestRenderTargetsAndWindow(t *testing.T) {
	c := qt.New(t)
	s, factory, window := newSession(c)
	c.Assert(s.Init(), qt.IsNil)

	for _, rt := range s.renderTargets {
		c.Assert(rt.Name(), qt.Equals, RenderTargetName)
		c.Assert(rt.Desc().Format, qt.Equals, RenderTargetFormat)
	}
	c.Assert(factory.WindowAssociation(window), qt.Equals, gfx.NoAltEnter)

	desc := s.SwapChain().Desc()
	c.Assert(desc.BufferCount, qt.Equals, FrameCount)
	c.Assert(desc.SwapEffect, qt.Equals, gfx.SwapEffectFlipDiscard)
}

func TestDestroy(t *testing.T) {
	c := qt.New(t)
	s, _, _ := newSession(c)

	c.Assert(s.Destroy(), qt.IsNil)
	c.Assert(s.State(), qt.Equals, StateCreated)

	c.Assert(s.Init(), qt.IsNil)
	c.Assert(s.Render(), qt.IsNil)
	ev := s.fenceEvent

	c.Assert(s.Destroy(), qt.IsNil)
	c.Assert(s.State(), qt.Equals, StateDestroyed)
	c.Assert(s.Fence(), qt.IsNil)
	c.Assert(s.SwapChain(), qt.IsNil)
	c.Assert(ev.Set(), qt.Equals, event.ErrClosed)

	c.Assert(s.Destroy(), qt.IsNil)
	err := s.Render()
	c.Assert(errors.Is(err, gfx.ErrInvalidCall), qt.IsTrue)
}

func TestUpdateDoesNothing(t *testing.T) {
	c := qt.New(t)
	s, _, _ := newSession(c)
	c.Assert(s.Init(), qt.IsNil)

	value, index := s.FenceValue(), s.FrameIndex()
	s.Update(16 * time.Millisecond)
	c.Assert(s.FenceValue(), qt.Equals, value)
	c.Assert(s.FrameIndex(), qt.Equals, index)
}

func TestShaderFailureReleases(t *testing.T) {
	c := qt.New(t)
	logger, _ := test.NewNullLogger()
	factory := soft.NewFactory(soft.WithLogger(logger))
	failing := compilerFunc(func(name, entry, target string) ([]byte, error) {
		return nil, shader.ErrCompile
	})
	s := New(factory, &testWindow{w: 16, h: 8}, failing, renderer, WithLogger(logger))

	err := s.Init()
	c.Assert(errors.Is(err, shader.ErrCompile), qt.IsTrue)
	c.Assert(s.State(), qt.Equals, StateDestroyed)
	c.Assert(s.device, qt.IsNil)
	c.Assert(s.commandQueue, qt.IsNil)
	c.Assert(s.Destroy(), qt.IsNil)
}

func TestNoAdapter(t *testing.T) {
	c := qt.New(t)
	logger, _ := test.NewNullLogger()
	factory := soft.NewFactory(soft.WithLogger(logger), soft.WithAdapters())
	s := New(factory, &testWindow{w: 16, h: 8}, vertexShader, renderer, WithLogger(logger))

	err := s.Init()
	c.Assert(errors.Is(err, gfx.ErrNoAdapter), qt.IsTrue)
}

func TestEmbeddedShader(t *testing.T) {
	c := qt.New(t)
	logger, hook := test.NewNullLogger()
	factory := soft.NewFactory(soft.WithLogger(logger))
	library := shader.NewLibrary(shader.Embedded(), shader.Reference{}, logger)
	s := New(factory, &testWindow{w: 16, h: 8}, library, renderer, WithLogger(logger))
	c.Cleanup(func() { s.Destroy() })

	c.Assert(s.Init(), qt.IsNil)
	c.Assert(s.Render(), qt.IsNil)

	var compiled bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Compiled main vertex shader" {
			compiled = true
		}
	}
	c.Assert(compiled, qt.IsTrue)
}
