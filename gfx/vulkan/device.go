// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"fmt"
	"sync"

	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
)

// Descriptor handle layout, see resolve.
const (
	rtvDescriptorSize     = 32
	samplerDescriptorSize = 32
	viewDescriptorSize    = 64

	heapAddressBits = 20
)

// Device implements gfx.Device.
type Device struct {
	factory  *Factory
	physical vk.PhysicalDevice
	device   vk.Device
	family   uint32
	info     gfx.AdapterInfo
	log      log.FieldLogger

	mu         sync.Mutex
	removed    error
	queues     []*Queue
	fences     []*Fence
	freeFences []vk.Fence
	nextHeap   uintptr
	heaps      map[uintptr]*DescriptorHeap
}

// Err returns the removal reason, or nil while the device is healthy.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

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

// acquireFence takes an unsignalled binary fence from the pool.
func (d *Device) acquireFence() (vk.Fence, error) {
	d.mu.Lock()
	if n := len(d.freeFences); n > 0 {
		fence := d.freeFences[n-1]
		d.freeFences = d.freeFences[:n-1]
		d.mu.Unlock()
		if err := d.result("vk.ResetFences()", vk.ResetFences(d.device, 1, []vk.Fence{fence})); err != nil {
			return nil, err
		}
		return fence, nil
	}
	d.mu.Unlock()

	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := d.result("vk.CreateFence()", vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return nil, err
	}
	return fence, nil
}

func (d *Device) recycleFence(fence vk.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freeFences = append(d.freeFences, fence)
}

// signalled polls a binary fence.
func (d *Device) signalled(fence vk.Fence) (bool, error) {
	switch ret := vk.GetFenceStatus(d.device, fence); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, d.result("vk.GetFenceStatus()", ret)
	}
}

// retire releases command allocators whose submissions finished.
func (d *Device) retire() error {
	d.mu.Lock()
	queues := append([]*Queue(nil), d.queues...)
	d.mu.Unlock()
	for _, q := range queues {
		if err := q.retire(); err != nil {
			return err
		}
	}
	return nil
}

// CreateCommandQueue implements gfx.Device. Only direct queues exist;
// every queue of a device shares its single Vulkan queue.
func (d *Device) CreateCommandQueue(desc gfx.CommandQueueDesc) (gfx.CommandQueue, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	if desc.Type != gfx.CommandListDirect {
		return nil, fmt.Errorf("%w: %v command queues", gfx.ErrUnsupported, desc.Type)
	}
	var queue vk.Queue
	vk.GetDeviceQueue(d.device, d.family, 0, &queue)

	q := &Queue{dev: d, desc: desc, queue: queue}
	d.mu.Lock()
	d.queues = append(d.queues, q)
	d.mu.Unlock()
	return q, nil
}

// CreateCommandAllocator implements gfx.Device.
func (d *Device) CreateCommandAllocator(kind gfx.CommandListType) (gfx.CommandAllocator, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if err := d.result("vk.CreateCommandPool()", vk.CreateCommandPool(d.device, &cpci, nil, &pool)); err != nil {
		return nil, err
	}
	return &CommandAllocator{dev: d, kind: kind, pool: pool}, nil
}

// CreateCommandList implements gfx.Device.
func (d *Device) CreateCommandList(kind gfx.CommandListType, allocator gfx.CommandAllocator, initial gfx.PipelineState) (gfx.CommandList, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	l := &CommandList{
		dev:     d,
		kind:    kind,
		closed:  true,
		buffers: make(map[*CommandAllocator]vk.CommandBuffer),
	}
	if err := l.Reset(allocator, initial); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateDescriptorHeap implements gfx.Device. Heaps are CPU tables;
// views are created when a descriptor is written.
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
		slots: make([]descriptor, desc.NumDescriptors),
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

	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    r.image,
		ViewType: vk.ImageViewType2d,
		Format:   vkFormat(r.desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: colorRange,
	}
	var view vk.ImageView
	if err := d.result("vk.CreateImageView()", vk.CreateImageView(d.device, &ivci, nil, &view)); err != nil {
		return err
	}
	h.set(i, descriptor{resource: r, view: view})
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
	return d.createRootSignature(desc)
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence(initial uint64) (gfx.Fence, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	f := &Fence{dev: d, completed: initial}

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

func (d *Device) forgetQueue(q *Queue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, other := range d.queues {
		if other == q {
			d.queues = append(d.queues[:i], d.queues[i+1:]...)
			return
		}
	}
}

// Release implements gfx.Releasable. Every object created from the
// device must be released first.
func (d *Device) Release() {
	if d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)

	d.mu.Lock()
	for _, fence := range d.freeFences {
		vk.DestroyFence(d.device, fence, nil)
	}
	d.freeFences = nil
	d.mu.Unlock()

	vk.DestroyDevice(d.device, nil)
	d.device = nil
	d.log.Debug("Released Vulkan device")
}
