// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vulkan implements gfx on top of Vulkan.
//
// Command allocators are command pools and command lists are command
// buffers. Counter fences are built from one binary fence per signalled
// value. Render targets live in the general layout so clears are
// recorded outside of render passes.
package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/devblok/triangle/core"
	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
)

// DefaultApplicationInfo describes the application to the driver.
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   core.SafeString("Triangle"),
	PEngineName:        core.SafeString("Triangle"),
}

const validationLayer = "VK_LAYER_KHRONOS_validation"

// SurfaceCreator is a window able to create a Vulkan surface for an
// instance, like an SDL window.
type SurfaceCreator interface {
	gfx.Window
	VulkanCreateSurface(instance interface{}) (unsafe.Pointer, error)
}

// Config configures the instance behind a Factory.
type Config struct {
	// ProcAddr is vkGetInstanceProcAddr. Nil loads the system loader.
	ProcAddr unsafe.Pointer

	// Extensions are instance extensions, usually the ones the window
	// system needs.
	Extensions []string

	// Debug enables the validation layer.
	Debug bool

	Logger log.FieldLogger
}

// Factory implements gfx.Factory with a Vulkan instance.
type Factory struct {
	log      log.FieldLogger
	instance vk.Instance
	physical []vk.PhysicalDevice

	mu           sync.Mutex
	associations map[gfx.Window]gfx.WindowAssociation
}

// NewFactory loads Vulkan and creates an instance.
func NewFactory(cfg Config) (*Factory, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	layers := []string{}
	extensions := append([]string(nil), cfg.Extensions...)
	if cfg.Debug {
		layers = append(layers, validationLayer)
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	if cfg.ProcAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, fmt.Errorf("vk.SetDefaultGetInstanceProcAddr(): %w", err)
		}
	} else {
		vk.SetGetInstanceProcAddr(cfg.ProcAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vk.Init(): %w", err)
	}

	ici := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        DefaultApplicationInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: core.SafeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     core.SafeStrings(layers),
	}
	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&ici, nil, &instance)); err != nil {
		return nil, fmt.Errorf("vk.CreateInstance(): %w", err)
	}
	vk.InitInstance(instance)

	physical, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	logger.WithFields(log.Fields{
		"devices": len(physical),
		"debug":   cfg.Debug,
	}).Debug("Created Vulkan instance")
	return &Factory{
		log:          logger,
		instance:     instance,
		physical:     physical,
		associations: make(map[gfx.Window]gfx.WindowAssociation),
	}, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %w", err)
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &count, devices)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %w", err)
	}
	return devices[:count], nil
}

// Instance returns the Vulkan instance, for surface creation.
func (f *Factory) Instance() vk.Instance {
	return f.instance
}

type adapter struct {
	factory  *Factory
	physical vk.PhysicalDevice
	info     gfx.AdapterInfo
}

func (a *adapter) Info() gfx.AdapterInfo {
	return a.info
}

// Adapters implements gfx.Factory.
func (f *Factory) Adapters() ([]gfx.Adapter, error) {
	adapters := make([]gfx.Adapter, len(f.physical))
	for i, pd := range f.physical {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		var mem vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &mem)
		mem.Deref()
		var local uint64
		for h := uint32(0); h < mem.MemoryHeapCount; h++ {
			mem.MemoryHeaps[h].Deref()
			if mem.MemoryHeaps[h].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
				local += uint64(mem.MemoryHeaps[h].Size)
			}
		}

		adapters[i] = &adapter{
			factory:  f,
			physical: pd,
			info: gfx.AdapterInfo{
				ID:                   i,
				Name:                 vk.ToString(props.DeviceName[:]),
				VendorID:             int(props.VendorID),
				DeviceID:             int(props.DeviceID),
				DriverVersion:        int(props.DriverVersion),
				DedicatedVideoMemory: local,
				Software:             props.DeviceType == vk.PhysicalDeviceTypeCpu,
			},
		}
	}
	return adapters, nil
}

// CreateDevice implements gfx.Factory. The device gets one queue from
// the first family that supports graphics.
func (f *Factory) CreateDevice(a gfx.Adapter) (gfx.Device, error) {
	ad, ok := a.(*adapter)
	if !ok || ad.factory != f {
		return nil, fmt.Errorf("%w: adapter does not belong to this factory", gfx.ErrInvalidCall)
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(ad.physical, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(ad.physical, &familyCount, families)

	family := -1
	for i := range families[:familyCount] {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			family = i
			break
		}
	}
	if family < 0 {
		return nil, fmt.Errorf("%w: %s has no graphics queue family", gfx.ErrUnsupported, ad.info.Name)
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	dci := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(family),
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: core.SafeStrings(extensions),
	}
	var device vk.Device
	if err := vk.Error(vk.CreateDevice(ad.physical, &dci, nil, &device)); err != nil {
		return nil, fmt.Errorf("vk.CreateDevice(): %w", err)
	}

	d := &Device{
		factory:  f,
		physical: ad.physical,
		device:   device,
		family:   uint32(family),
		info:     ad.info,
		log:      f.log.WithField("adapter", ad.info.Name),
		heaps:    make(map[uintptr]*DescriptorHeap),
	}
	d.log.WithField("family", family).Debug("Created Vulkan device")
	return d, nil
}

// CreateSwapChainForWindow implements gfx.Factory. The window must be a
// SurfaceCreator and the queue a direct queue of this factory. The chain
// must get exactly desc.BufferCount images.
func (f *Factory) CreateSwapChainForWindow(q gfx.CommandQueue, window gfx.Window, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	queue, ok := q.(*Queue)
	if !ok || queue.dev.factory != f {
		return nil, fmt.Errorf("%w: queue does not belong to this factory", gfx.ErrInvalidCall)
	}
	sc, ok := window.(SurfaceCreator)
	if !ok {
		return nil, fmt.Errorf("%w: window cannot create Vulkan surfaces", gfx.ErrUnsupported)
	}
	if desc.BufferCount < 2 || desc.BufferCount > 16 {
		return nil, fmt.Errorf("%w: %d back buffers", gfx.ErrInvalidCall, desc.BufferCount)
	}
	if desc.SampleDesc.Count > 1 {
		return nil, fmt.Errorf("%w: multisampled swap chains", gfx.ErrUnsupported)
	}
	if desc.Width == 0 || desc.Height == 0 {
		w, h := window.Size()
		desc.Width, desc.Height = w, h
	}

	ptr, err := sc.VulkanCreateSurface(f.instance)
	if err != nil {
		return nil, fmt.Errorf("VulkanCreateSurface(): %w", err)
	}
	surface := vk.SurfaceFromPointer(uintptr(ptr))

	chain, err := newSwapChain(queue, window, surface, desc)
	if err != nil {
		vk.DestroySurface(f.instance, surface, nil)
		return nil, err
	}
	return chain, nil
}

// MakeWindowAssociation implements gfx.Factory. Vulkan never watches the
// window message queue, so the flags are only recorded.
func (f *Factory) MakeWindowAssociation(window gfx.Window, flags gfx.WindowAssociation) error {
	if window == nil {
		return fmt.Errorf("%w: nil window", gfx.ErrInvalidCall)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.associations[window] = flags
	return nil
}

// WindowAssociation returns the flags last associated with window.
func (f *Factory) WindowAssociation(window gfx.Window) gfx.WindowAssociation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.associations[window]
}

// Release destroys the instance. Every device must be released first.
func (f *Factory) Release() {
	if f.instance != nil {
		vk.DestroyInstance(f.instance, nil)
		f.instance = nil
	}
}

// result converts a Vulkan result, marking the device removed when it
// was lost.
func (d *Device) result(call string, ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	err := fmt.Errorf("%s: %w", call, vk.Error(ret))
	if ret == vk.ErrorDeviceLost {
		return d.remove(err)
	}
	return err
}

var errNotSPIRV = errors.New("vulkan: shader is not SPIR-V")
