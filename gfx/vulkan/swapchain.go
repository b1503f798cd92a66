// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
)

// SwapChain implements gfx.SwapChain with a FIFO swapchain. The next
// image is acquired inside Present, which blocks until it is available,
// so CurrentBackBufferIndex is valid as soon as Present returns.
type SwapChain struct {
	queue     *Queue
	window    gfx.Window
	surface   vk.Surface
	swapchain vk.Swapchain
	desc      gfx.SwapChainDesc
	buffers   []*Resource
	acquired  vk.Fence

	current   atomic.Uint32
	presented atomic.Uint64
}

func surfaceFormat(dev *Device, surface vk.Surface, want vk.Format) (vk.SurfaceFormat, error) {
	var count uint32
	if err := dev.result("vk.GetPhysicalDeviceSurfaceFormats()", vk.GetPhysicalDeviceSurfaceFormats(dev.physical, surface, &count, nil)); err != nil {
		return vk.SurfaceFormat{}, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := dev.result("vk.GetPhysicalDeviceSurfaceFormats()", vk.GetPhysicalDeviceSurfaceFormats(dev.physical, surface, &count, formats)); err != nil {
		return vk.SurfaceFormat{}, err
	}
	if count == 0 {
		return vk.SurfaceFormat{}, fmt.Errorf("%w: surface reports no formats", gfx.ErrUnsupported)
	}
	for i := range formats[:count] {
		formats[i].Deref()
		if formats[i].Format == want {
			return formats[i], nil
		}
	}
	for i := range formats[:count] {
		if formats[i].Format == vk.FormatB8g8r8a8Unorm {
			return formats[i], nil
		}
	}
	return vk.SurfaceFormat{}, fmt.Errorf("%w: surface supports neither %v nor B8G8R8A8", gfx.ErrUnsupported, gfxFormat(want))
}

func newSwapChain(q *Queue, window gfx.Window, surface vk.Surface, desc gfx.SwapChainDesc) (*SwapChain, error) {
	dev := q.dev

	var supported vk.Bool32
	if err := dev.result("vk.GetPhysicalDeviceSurfaceSupport()", vk.GetPhysicalDeviceSurfaceSupport(dev.physical, dev.family, surface, &supported)); err != nil {
		return nil, err
	}
	if !supported.B() {
		return nil, fmt.Errorf("%w: queue family %d cannot present to the window", gfx.ErrUnsupported, dev.family)
	}

	format, err := surfaceFormat(dev, surface, vkFormat(desc.Format))
	if err != nil {
		return nil, err
	}
	if got := gfxFormat(format.Format); got != desc.Format {
		dev.log.WithFields(log.Fields{
			"requested": desc.Format,
			"using":     got,
		}).Debug("Swap chain format not supported by surface")
		desc.Format = got
	}

	var caps vk.SurfaceCapabilities
	if err := dev.result("vk.GetPhysicalDeviceSurfaceCapabilities()", vk.GetPhysicalDeviceSurfaceCapabilities(dev.physical, surface, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   uint32(desc.BufferCount),
		ImageFormat:     format.Format,
		ImageColorSpace: format.ColorSpace,
		ImageExtent: vk.Extent2D{
			Width:  uint32(desc.Width),
			Height: uint32(desc.Height),
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		scci.ImageExtent = caps.CurrentExtent
		desc.Width, desc.Height = int(caps.CurrentExtent.Width), int(caps.CurrentExtent.Height)
	}

	sc := &SwapChain{queue: q, window: window, surface: surface, desc: desc}
	if err := dev.result("vk.CreateSwapchain()", vk.CreateSwapchain(dev.device, &scci, nil, &sc.swapchain)); err != nil {
		return nil, err
	}

	var count uint32
	if err := dev.result("vk.GetSwapchainImages()", vk.GetSwapchainImages(dev.device, sc.swapchain, &count, nil)); err != nil {
		sc.destroy()
		return nil, err
	}
	if int(count) != desc.BufferCount {
		sc.destroy()
		return nil, fmt.Errorf("%w: driver created %d images for %d back buffers", gfx.ErrUnsupported, count, desc.BufferCount)
	}
	images := make([]vk.Image, count)
	if err := dev.result("vk.GetSwapchainImages()", vk.GetSwapchainImages(dev.device, sc.swapchain, &count, images)); err != nil {
		sc.destroy()
		return nil, err
	}
	for _, img := range images {
		sc.buffers = append(sc.buffers, &Resource{
			dev:   dev,
			image: img,
			desc: gfx.ResourceDesc{
				Width:  desc.Width,
				Height: desc.Height,
				Format: desc.Format,
			},
		})
	}

	if err := q.attach(); err != nil {
		sc.destroy()
		return nil, err
	}
	if sc.acquired, err = dev.acquireFence(); err != nil {
		sc.destroy()
		return nil, err
	}
	if err := sc.acquire(); err != nil {
		sc.destroy()
		return nil, err
	}

	dev.log.WithFields(log.Fields{
		"width":   desc.Width,
		"height":  desc.Height,
		"buffers": desc.BufferCount,
		"format":  desc.Format,
	}).Debug("Created swap chain")
	return sc, nil
}

// acquire blocks until the next image is available and makes it current.
func (sc *SwapChain) acquire() error {
	dev := sc.queue.dev
	var index uint32
	ret := vk.AcquireNextImage(dev.device, sc.swapchain, math.MaxUint64, nil, sc.acquired, &index)
	if ret != vk.Success && ret != vk.Suboptimal {
		return dev.result("vk.AcquireNextImage()", ret)
	}
	if err := dev.result("vk.WaitForFences()", vk.WaitForFences(dev.device, 1, []vk.Fence{sc.acquired}, vk.True, math.MaxUint64)); err != nil {
		return err
	}
	if err := dev.result("vk.ResetFences()", vk.ResetFences(dev.device, 1, []vk.Fence{sc.acquired})); err != nil {
		return err
	}
	sc.current.Store(index)
	return nil
}

// Desc implements gfx.SwapChain. The format is the one the surface
// accepted, which may differ from the requested one.
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

// Presented returns the number of successful presents.
func (sc *SwapChain) Presented() uint64 {
	return sc.presented.Load()
}

// Present implements gfx.SwapChain. The sync interval is validated but
// the FIFO present mode always waits for a vertical blank.
func (sc *SwapChain) Present(syncInterval int, flags gfx.PresentFlags) error {
	dev := sc.queue.dev
	if err := dev.Err(); err != nil {
		return err
	}
	if syncInterval < 0 || syncInterval > 4 {
		return fmt.Errorf("%w: sync interval %d", gfx.ErrInvalidCall, syncInterval)
	}

	wait := sc.queue.takeRenderDone()
	pi := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{sc.current.Load()},
	}
	sc.queue.mu.Lock()
	ret := vk.QueuePresent(sc.queue.queue, &pi)
	sc.queue.mu.Unlock()
	if ret != vk.Success && ret != vk.Suboptimal {
		return dev.result("vk.QueuePresent()", ret)
	}
	sc.presented.Add(1)
	return sc.acquire()
}

func (sc *SwapChain) destroy() {
	dev := sc.queue.dev
	if sc.acquired != nil {
		dev.recycleFence(sc.acquired)
		sc.acquired = nil
	}
	if sc.swapchain != nil {
		vk.DestroySwapchain(dev.device, sc.swapchain, nil)
		sc.swapchain = nil
	}
}

// Release implements gfx.Releasable. The queue must be idle.
func (sc *SwapChain) Release() {
	dev := sc.queue.dev
	vk.QueueWaitIdle(sc.queue.queue)
	sc.destroy()
	if sc.surface != nil {
		vk.DestroySurface(dev.factory.instance, sc.surface, nil)
		sc.surface = nil
	}
	sc.buffers = nil
}
