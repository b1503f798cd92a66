// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"image"
	"image/draw"
	"sync/atomic"
	"time"

	"github.com/devblok/triangle/gfx"
	xdraw "golang.org/x/image/draw"
)

// SwapChain implements gfx.SwapChain with the flip model: the back
// buffer index advances as soon as Present is called on the CPU.
type SwapChain struct {
	factory *Factory
	queue   *Queue
	window  gfx.Window
	desc    gfx.SwapChainDesc
	buffers []*Resource

	current   atomic.Int32
	presented atomic.Uint64

	// worker only
	lastVBlank time.Time
}

// Desc implements gfx.SwapChain.
func (sc *SwapChain) Desc() gfx.SwapChainDesc {
	return sc.desc
}

// Buffer implements gfx.SwapChain.
func (sc *SwapChain) Buffer(index int) (gfx.Resource, error) {
	if index < 0 || index >= len(sc.buffers) {
		return nil, fmt.Errorf("%w: back buffer %d of %d", gfx.ErrInvalidCall, index, len(sc.buffers))
	}
	return sc.buffers[index], nil
}

// CurrentBackBufferIndex implements gfx.SwapChain.
func (sc *SwapChain) CurrentBackBufferIndex() int {
	return int(sc.current.Load())
}

// Presented returns the number of frames the queue has displayed.
func (sc *SwapChain) Presented() uint64 {
	return sc.presented.Load()
}

// Present implements gfx.SwapChain.
func (sc *SwapChain) Present(syncInterval int, flags gfx.PresentFlags) error {
	if err := sc.queue.dev.Err(); err != nil {
		return err
	}
	if syncInterval < 0 || syncInterval > 4 {
		return fmt.Errorf("%w: sync interval %d", gfx.ErrInvalidCall, syncInterval)
	}

	idx := sc.CurrentBackBufferIndex()
	buf := sc.buffers[idx]
	err := sc.queue.submit(func() {
		if s := buf.State(); s != gfx.StatePresent {
			sc.queue.dev.remove(fmt.Errorf("%w: presenting back buffer %d in state %s", gfx.ErrInvalidCall, idx, s))
			return
		}
		sc.display(buf)
		sc.vsync(syncInterval)
		sc.presented.Add(1)
	})
	if err != nil {
		return err
	}
	sc.current.Store(int32((idx + 1) % len(sc.buffers)))
	return nil
}

func (sc *SwapChain) display(buf *Resource) {
	p, ok := sc.window.(Presenter)
	if !ok {
		return
	}

	src := buf.Image()
	w, h := sc.window.Size()
	if w <= 0 || h <= 0 {
		return
	}
	frame := src
	if w != src.Rect.Dx() || h != src.Rect.Dy() {
		frame = image.NewRGBA(image.Rect(0, 0, w, h))
		switch sc.desc.Scaling {
		case gfx.ScalingStretch:
			xdraw.ApproxBiLinear.Scale(frame, frame.Rect, src, src.Rect, draw.Src, nil)
		default:
			draw.Draw(frame, frame.Rect, src, image.Point{}, draw.Src)
		}
	}
	if err := p.PresentImage(frame); err != nil {
		sc.queue.dev.log.WithError(err).Warn("Window rejected presented frame")
	}
}

func (sc *SwapChain) vsync(interval int) {
	period := sc.factory.refresh
	if interval == 0 || period == 0 {
		return
	}
	next := sc.lastVBlank.Add(time.Duration(interval) * period)
	if wait := time.Until(next); wait > 0 {
		time.Sleep(wait)
	}
	sc.lastVBlank = time.Now()
}

// Release implements gfx.Releasable.
func (sc *SwapChain) Release() {
	sc.buffers = nil
}
