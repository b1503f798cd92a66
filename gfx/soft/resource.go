// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/devblok/triangle/gfx"
	"github.com/go-gl/mathgl/mgl32"
)

// Resource implements gfx.Resource as a CPU image.
type Resource struct {
	dev  *Device
	desc gfx.ResourceDesc

	mu    sync.Mutex
	name  string
	state gfx.ResourceState
	img   *image.RGBA
}

func newResource(d *Device, desc gfx.ResourceDesc, state gfx.ResourceState) *Resource {
	return &Resource{
		dev:   d,
		desc:  desc,
		state: state,
		img:   image.NewRGBA(image.Rect(0, 0, desc.Width, desc.Height)),
	}
}

// Desc implements gfx.Resource.
func (r *Resource) Desc() gfx.ResourceDesc {
	return r.desc
}

// SetName implements gfx.Resource.
func (r *Resource) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// Name implements gfx.Resource.
func (r *Resource) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// State returns the state the GPU last left the resource in.
func (r *Resource) State() gfx.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Image returns a copy of the resource contents.
func (r *Resource) Image() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := image.NewRGBA(r.img.Rect)
	copy(img.Pix, r.img.Pix)
	return img
}

func (r *Resource) transition(before, after gfx.ResourceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != before {
		return fmt.Errorf("%w: barrier on %q expects %s but resource is %s", gfx.ErrInvalidCall, r.name, before, r.state)
	}
	r.state = after
	return nil
}

func (r *Resource) clear(c [4]float32, rects []gfx.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != gfx.StateRenderTarget {
		return fmt.Errorf("%w: clear of %q in state %s", gfx.ErrInvalidCall, r.name, r.state)
	}

	px := color.RGBA{
		R: unorm8(c[0]),
		G: unorm8(c[1]),
		B: unorm8(c[2]),
		A: unorm8(c[3]),
	}
	areas := []image.Rectangle{r.img.Rect}
	if len(rects) > 0 {
		areas = areas[:0]
		for _, rc := range rects {
			areas = append(areas, image.Rect(int(rc.Left), int(rc.Top), int(rc.Right), int(rc.Bottom)).Intersect(r.img.Rect))
		}
	}
	for _, area := range areas {
		for y := area.Min.Y; y < area.Max.Y; y++ {
			row := r.img.Pix[r.img.PixOffset(area.Min.X, y):r.img.PixOffset(area.Max.X, y)]
			for i := 0; i < len(row); i += 4 {
				row[i], row[i+1], row[i+2], row[i+3] = px.R, px.G, px.B, px.A
			}
		}
	}
	return nil
}

func unorm8(v float32) uint8 {
	return uint8(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}

// Release implements gfx.Releasable.
func (r *Resource) Release() {}

// DescriptorHeap implements gfx.DescriptorHeap.
type DescriptorHeap struct {
	dev  *Device
	desc gfx.DescriptorHeapDesc
	base uintptr

	mu    sync.Mutex
	slots []*Resource
}

// Desc implements gfx.DescriptorHeap.
func (h *DescriptorHeap) Desc() gfx.DescriptorHeapDesc {
	return h.desc
}

// CPUDescriptorHandleForHeapStart implements gfx.DescriptorHeap.
func (h *DescriptorHeap) CPUDescriptorHandleForHeapStart() gfx.CPUDescriptorHandle {
	return gfx.CPUDescriptorHandle{Ptr: h.base}
}

func (h *DescriptorHeap) set(i int, r *Resource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots[i] = r
}

func (h *DescriptorHeap) get(i int) *Resource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[i]
}

// Release implements gfx.Releasable.
func (h *DescriptorHeap) Release() {
	h.dev.forgetHeap(h)
}

// RootSignature implements gfx.RootSignature.
type RootSignature struct {
	dev  *Device
	desc gfx.RootSignatureDesc
}

// Desc implements gfx.RootSignature.
func (rs *RootSignature) Desc() gfx.RootSignatureDesc {
	return rs.desc
}

// Release implements gfx.Releasable.
func (rs *RootSignature) Release() {}

// PipelineState implements gfx.PipelineState.
type PipelineState struct {
	dev  *Device
	desc gfx.GraphicsPipelineStateDesc
}

// Desc returns the description the pipeline was created from.
func (p *PipelineState) Desc() gfx.GraphicsPipelineStateDesc {
	return p.desc
}

// Release implements gfx.Releasable.
func (p *PipelineState) Release() {}
