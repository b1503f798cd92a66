// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package soft is a pure Go implementation of gfx.
//
// Command lists execute on a per-queue worker goroutine against image.RGBA
// back buffers, so GPU work really does run asynchronously to the caller.
// Misuse that a hardware driver would leave undefined (wrong barrier
// before-states, resetting an allocator the GPU still reads, presenting a
// buffer that is not in the present state) removes the device instead.
package soft

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/devblok/triangle/gfx"
	log "github.com/sirupsen/logrus"
)

// Presenter receives presented frames. Windows implementing it are handed
// a copy of every presented back buffer, scaled to the window size.
// PresentImage is called from the queue worker goroutine.
type Presenter interface {
	PresentImage(img *image.RGBA) error
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger used by every object of the factory.
func WithLogger(logger log.FieldLogger) Option {
	return func(f *Factory) {
		f.log = logger
	}
}

// WithLatency makes every executed command list take at least d.
func WithLatency(d time.Duration) Option {
	return func(f *Factory) {
		f.latency = d
	}
}

// WithRefreshRate throttles presents with a non-zero sync interval to hz.
func WithRefreshRate(hz int) Option {
	return func(f *Factory) {
		if hz > 0 {
			f.refresh = time.Second / time.Duration(hz)
		}
	}
}

// WithAdapters replaces the default adapter list.
func WithAdapters(infos ...gfx.AdapterInfo) Option {
	return func(f *Factory) {
		f.adapters = infos
	}
}

// DefaultAdapter is the single adapter a factory reports unless
// configured otherwise.
var DefaultAdapter = gfx.AdapterInfo{
	Name:     "Soft Rasterizer",
	VendorID: 0x1414,
	DeviceID: 0x8c,
	Software: true,
}

// Factory implements gfx.Factory.
type Factory struct {
	log      log.FieldLogger
	latency  time.Duration
	refresh  time.Duration
	adapters []gfx.AdapterInfo

	mu           sync.Mutex
	associations map[gfx.Window]gfx.WindowAssociation
}

// NewFactory creates a factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		log:          log.StandardLogger(),
		adapters:     []gfx.AdapterInfo{DefaultAdapter},
		associations: make(map[gfx.Window]gfx.WindowAssociation),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type adapter struct {
	factory *Factory
	info    gfx.AdapterInfo
}

func (a *adapter) Info() gfx.AdapterInfo {
	return a.info
}

// Adapters implements gfx.Factory.
func (f *Factory) Adapters() ([]gfx.Adapter, error) {
	adapters := make([]gfx.Adapter, len(f.adapters))
	for i, info := range f.adapters {
		info.ID = i
		adapters[i] = &adapter{factory: f, info: info}
	}
	return adapters, nil
}

// CreateDevice implements gfx.Factory.
func (f *Factory) CreateDevice(a gfx.Adapter) (gfx.Device, error) {
	ad, ok := a.(*adapter)
	if !ok || ad.factory != f {
		return nil, fmt.Errorf("%w: adapter does not belong to this factory", gfx.ErrInvalidCall)
	}

	d := &Device{
		factory: f,
		adapter: ad.info,
		log:     f.log.WithField("adapter", ad.info.Name),
		heaps:   make(map[uintptr]*DescriptorHeap),
	}
	d.log.Debug("Created soft device")
	return d, nil
}

// CreateSwapChainForWindow implements gfx.Factory.
func (f *Factory) CreateSwapChainForWindow(q gfx.CommandQueue, window gfx.Window, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	queue, ok := q.(*Queue)
	if !ok {
		return nil, fmt.Errorf("%w: foreign command queue", gfx.ErrInvalidCall)
	}
	if window == nil {
		return nil, fmt.Errorf("%w: nil window", gfx.ErrInvalidCall)
	}
	if err := queue.dev.Err(); err != nil {
		return nil, err
	}
	if desc.BufferCount < 2 || desc.BufferCount > 16 {
		return nil, fmt.Errorf("%w: flip model needs 2 to 16 buffers, got %d", gfx.ErrInvalidCall, desc.BufferCount)
	}
	if desc.SampleDesc.Count != 1 {
		return nil, fmt.Errorf("%w: flip model swap chains cannot be multisampled", gfx.ErrInvalidCall)
	}
	switch desc.Format {
	case gfx.FormatR8G8B8A8Unorm, gfx.FormatB8G8R8A8Unorm:
	default:
		return nil, fmt.Errorf("%w: swap chain format %s", gfx.ErrUnsupported, desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		desc.Width, desc.Height = window.Size()
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: window has no area", gfx.ErrInvalidCall)
	}

	sc := &SwapChain{
		factory: f,
		queue:   queue,
		window:  window,
		desc:    desc,
		buffers: make([]*Resource, desc.BufferCount),
	}
	for i := range sc.buffers {
		sc.buffers[i] = newResource(queue.dev, gfx.ResourceDesc{
			Width:  desc.Width,
			Height: desc.Height,
			Format: desc.Format,
		}, gfx.StatePresent)
	}
	queue.dev.log.WithFields(log.Fields{
		"width":   desc.Width,
		"height":  desc.Height,
		"buffers": desc.BufferCount,
	}).Debug("Created swap chain")
	return sc, nil
}

// MakeWindowAssociation implements gfx.Factory. Windows must be comparable.
func (f *Factory) MakeWindowAssociation(window gfx.Window, flags gfx.WindowAssociation) error {
	if window == nil {
		return fmt.Errorf("%w: nil window", gfx.ErrInvalidCall)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.associations[window] = flags
	return nil
}

// WindowAssociation returns the flags last set for window.
func (f *Factory) WindowAssociation(window gfx.Window) gfx.WindowAssociation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.associations[window]
}

// Release implements gfx.Releasable.
func (f *Factory) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.associations = make(map[gfx.Window]gfx.WindowAssociation)
}
