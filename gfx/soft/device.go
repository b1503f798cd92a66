// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync"

	"github.com/devblok/triangle/gfx"
	log "github.com/sirupsen/logrus"
)

// Descriptor increments, in bytes
const (
	rtvDescriptorSize     = 32
	samplerDescriptorSize = 32
	viewDescriptorSize    = 64

	heapAddressBits = 20
)

// Device implements gfx.Device.
type Device struct {
	factory *Factory
	adapter gfx.AdapterInfo
	log     log.FieldLogger

	mu       sync.Mutex
	removed  error
	nextHeap uintptr
	heaps    map[uintptr]*DescriptorHeap
	fences   []*Fence
}

// Err returns the removal reason, or nil while the device is healthy.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// remove marks the device removed and wakes every fence waiter.
func (d *Device) remove(reason error) error {
	d.mu.Lock()
	if d.removed != nil {
		err := d.removed
		d.mu.Unlock()
		return err
	}
	d.removed = fmt.Errorf("%w: %w", gfx.ErrDeviceRemoved, reason)
	fences := append([]*Fence(nil), d.fences...)
	err := d.removed
	d.mu.Unlock()

	d.log.WithError(reason).Error("Device removed")
	for _, f := range fences {
		f.wakeAll()
	}
	return err
}

// CreateCommandQueue implements gfx.Device.
func (d *Device) CreateCommandQueue(desc gfx.CommandQueueDesc) (gfx.CommandQueue, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	q := &Queue{
		dev:  d,
		desc: desc,
		ops:  make(chan func(), 64),
		done: make(chan struct{}),
	}
	go q.run()
	return q, nil
}

// CreateCommandAllocator implements gfx.Device.
func (d *Device) CreateCommandAllocator(kind gfx.CommandListType) (gfx.CommandAllocator, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	return &CommandAllocator{dev: d, kind: kind}, nil
}

// CreateCommandList implements gfx.Device.
func (d *Device) CreateCommandList(kind gfx.CommandListType, allocator gfx.CommandAllocator, initial gfx.PipelineState) (gfx.CommandList, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	l := &CommandList{dev: d, kind: kind, closed: true}
	if err := l.Reset(allocator, initial); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateDescriptorHeap implements gfx.Device.
func (d *Device) CreateDescriptorHeap(desc gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	if desc.NumDescriptors <= 0 {
		return nil, fmt.Errorf("%w: empty descriptor heap", gfx.ErrInvalidCall)
	}
	if desc.ShaderVisible && (desc.Type == gfx.DescriptorHeapRTV || desc.Type == gfx.DescriptorHeapDSV) {
		return nil, fmt.Errorf("%w: render target heaps cannot be shader visible", gfx.ErrInvalidCall)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHeap++
	h := &DescriptorHeap{
		dev:   d,
		desc:  desc,
		base:  d.nextHeap << heapAddressBits,
		slots: make([]*Resource, desc.NumDescriptors),
	}
	d.heaps[h.base] = h
	return h, nil
}

// DescriptorHandleIncrementSize implements gfx.Device.
func (d *Device) DescriptorHandleIncrementSize(kind gfx.DescriptorHeapType) uint32 {
	switch kind {
	case gfx.DescriptorHeapRTV, gfx.DescriptorHeapDSV:
		return rtvDescriptorSize
	case gfx.DescriptorHeapSampler:
		return samplerDescriptorSize
	}
	return viewDescriptorSize
}

// resolve finds the heap slot a handle addresses.
func (d *Device) resolve(handle gfx.CPUDescriptorHandle) (*DescriptorHeap, int, error) {
	base := handle.Ptr &^ (1<<heapAddressBits - 1)

	d.mu.Lock()
	h, ok := d.heaps[base]
	d.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: descriptor handle %#x is not in a live heap", gfx.ErrInvalidCall, handle.Ptr)
	}

	inc := uintptr(d.DescriptorHandleIncrementSize(h.desc.Type))
	off := handle.Ptr - base
	if off%inc != 0 || int(off/inc) >= len(h.slots) {
		return nil, 0, fmt.Errorf("%w: descriptor handle %#x out of heap bounds", gfx.ErrInvalidCall, handle.Ptr)
	}
	return h, int(off / inc), nil
}

// CreateRenderTargetView implements gfx.Device.
func (d *Device) CreateRenderTargetView(resource gfx.Resource, handle gfx.CPUDescriptorHandle) error {
	if err := d.Err(); err != nil {
		return err
	}
	r, ok := resource.(*Resource)
	if !ok || r.dev != d {
		return fmt.Errorf("%w: foreign resource", gfx.ErrInvalidCall)
	}
	h, i, err := d.resolve(handle)
	if err != nil {
		return err
	}
	if h.desc.Type != gfx.DescriptorHeapRTV {
		return fmt.Errorf("%w: render target view in a non-RTV heap", gfx.ErrInvalidCall)
	}
	h.set(i, r)
	return nil
}

// CreateRootSignature implements gfx.Device.
func (d *Device) CreateRootSignature(blob []byte) (gfx.RootSignature, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	desc, err := gfx.DeserializeRootSignature(blob)
	if err != nil {
		return nil, err
	}
	return &RootSignature{dev: d, desc: desc}, nil
}

// CreateGraphicsPipelineState implements gfx.Device.
func (d *Device) CreateGraphicsPipelineState(desc gfx.GraphicsPipelineStateDesc) (gfx.PipelineState, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	rs, ok := desc.RootSignature.(*RootSignature)
	if !ok || rs.dev != d {
		return nil, fmt.Errorf("%w: pipeline needs a root signature from this device", gfx.ErrInvalidCall)
	}
	if len(desc.VS) == 0 {
		return nil, fmt.Errorf("%w: pipeline has no vertex shader", gfx.ErrInvalidCall)
	}
	for i, e := range desc.InputLayout {
		if e.SemanticName == "" || e.Format.Size() == 0 {
			return nil, fmt.Errorf("%w: input element %d is malformed", gfx.ErrInvalidCall, i)
		}
	}
	if desc.PrimitiveTopologyType == gfx.TopologyTypeUndefined {
		return nil, fmt.Errorf("%w: undefined primitive topology", gfx.ErrInvalidCall)
	}
	if desc.NumRenderTargets < 0 || desc.NumRenderTargets > len(desc.RTVFormats) {
		return nil, fmt.Errorf("%w: %d render targets", gfx.ErrInvalidCall, desc.NumRenderTargets)
	}
	for i := 0; i < desc.NumRenderTargets; i++ {
		if desc.RTVFormats[i] == gfx.FormatUnknown {
			return nil, fmt.Errorf("%w: render target %d has no format", gfx.ErrInvalidCall, i)
		}
	}
	if desc.SampleDesc.Count != 1 {
		return nil, fmt.Errorf("%w: sample count %d", gfx.ErrUnsupported, desc.SampleDesc.Count)
	}
	return &PipelineState{dev: d, desc: desc}, nil
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence(initial uint64) (gfx.Fence, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	f := &Fence{dev: d}
	f.completed.Store(initial)

	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *Device) forgetFence(f *Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, other := range d.fences {
		if other == f {
			d.fences = append(d.fences[:i], d.fences[i+1:]...)
			return
		}
	}
}

func (d *Device) forgetHeap(h *DescriptorHeap) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.heaps, h.base)
}

// Release implements gfx.Releasable.
func (d *Device) Release() {
	d.log.Debug("Released soft device")
}
