// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"sync"

	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
)

var colorRange = vk.ImageSubresourceRange{
	AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// Resource implements gfx.Resource over a swap chain image.
type Resource struct {
	dev   *Device
	desc  gfx.ResourceDesc
	image vk.Image

	mu   sync.Mutex
	name string

	// recorded is set once a barrier for the image was recorded. Until
	// then the image contents are undefined.
	recorded bool
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

// oldLayout returns the layout a transition out of state starts from.
func (r *Resource) oldLayout(state gfx.ResourceState) vk.ImageLayout {
	r.mu.Lock()
	defer r.mu.Unlock()
	first := !r.recorded
	r.recorded = true
	if first && state == gfx.StatePresent {
		return vk.ImageLayoutUndefined
	}
	layout, _, _ := imageLayout(state)
	return layout
}

// Release implements gfx.Releasable. Images belong to the swap chain.
func (r *Resource) Release() {}

type descriptor struct {
	resource *Resource
	view     vk.ImageView
}

// DescriptorHeap implements gfx.DescriptorHeap.
type DescriptorHeap struct {
	dev  *Device
	desc gfx.DescriptorHeapDesc
	base uintptr

	mu    sync.Mutex
	slots []descriptor
}

// Desc implements gfx.DescriptorHeap.
func (h *DescriptorHeap) Desc() gfx.DescriptorHeapDesc {
	return h.desc
}

// CPUDescriptorHandleForHeapStart implements gfx.DescriptorHeap.
func (h *DescriptorHeap) CPUDescriptorHandleForHeapStart() gfx.CPUDescriptorHandle {
	return gfx.CPUDescriptorHandle{Ptr: h.base}
}

func (h *DescriptorHeap) set(i int, d descriptor) {
	h.mu.Lock()
	old := h.slots[i]
	h.slots[i] = d
	h.mu.Unlock()
	if old.view != nil {
		vk.DestroyImageView(h.dev.device, old.view, nil)
	}
}

func (h *DescriptorHeap) get(i int) descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[i]
}

// Release implements gfx.Releasable.
func (h *DescriptorHeap) Release() {
	h.dev.forgetHeap(h)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, d := range h.slots {
		if d.view != nil {
			vk.DestroyImageView(h.dev.device, d.view, nil)
		}
		h.slots[i] = descriptor{}
	}
}

// RootSignature implements gfx.RootSignature as a descriptor set layout
// inside a pipeline layout.
type RootSignature struct {
	dev       *Device
	desc      gfx.RootSignatureDesc
	setLayout vk.DescriptorSetLayout
	layout    vk.PipelineLayout
	samplers  []vk.Sampler
}

// Desc implements gfx.RootSignature.
func (rs *RootSignature) Desc() gfx.RootSignatureDesc {
	return rs.desc
}

// Release implements gfx.Releasable.
func (rs *RootSignature) Release() {
	dev := rs.dev.device
	if rs.layout != nil {
		vk.DestroyPipelineLayout(dev, rs.layout, nil)
	}
	if rs.setLayout != nil {
		vk.DestroyDescriptorSetLayout(dev, rs.setLayout, nil)
	}
	for _, s := range rs.samplers {
		vk.DestroySampler(dev, s, nil)
	}
	rs.layout, rs.setLayout, rs.samplers = nil, nil, nil
}

// PipelineState implements gfx.PipelineState.
type PipelineState struct {
	dev        *Device
	desc       gfx.GraphicsPipelineStateDesc
	renderPass vk.RenderPass
	pipeline   vk.Pipeline
	modules    []vk.ShaderModule
}

// Desc returns the description the pipeline was created from.
func (p *PipelineState) Desc() gfx.GraphicsPipelineStateDesc {
	return p.desc
}

// Release implements gfx.Releasable.
func (p *PipelineState) Release() {
	dev := p.dev.device
	if p.pipeline != nil {
		vk.DestroyPipeline(dev, p.pipeline, nil)
	}
	if p.renderPass != nil {
		vk.DestroyRenderPass(dev, p.renderPass, nil)
	}
	for _, m := range p.modules {
		vk.DestroyShaderModule(dev, m, nil)
	}
	p.pipeline, p.renderPass, p.modules = nil, nil, nil
}
