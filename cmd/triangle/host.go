// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/gfx"
	"github.com/devblok/triangle/gfx/soft"
	"github.com/devblok/triangle/gfx/vulkan"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

// RGBA byte order on little endian machines
const (
	maskR = 0x000000ff
	maskG = 0x0000ff00
	maskB = 0x00ff0000
	maskA = 0xff000000
)

// window adapts an SDL window to gfx.Window. The embedded window makes
// it a vulkan.SurfaceCreator.
type window struct {
	*sdl.Window

	width  atomic.Int32
	height atomic.Int32

	mu    sync.Mutex
	frame *image.RGBA
}

func (w *window) Size() (int, int) {
	return int(w.width.Load()), int(w.height.Load())
}

func (w *window) resized(width, height int32) {
	w.width.Store(width)
	w.height.Store(height)
}

// PresentImage keeps the latest frame of the soft backend until the
// event loop blits it.
func (w *window) PresentImage(img *image.RGBA) error {
	w.mu.Lock()
	w.frame = img
	w.mu.Unlock()
	return nil
}

func (w *window) takeFrame() *image.RGBA {
	w.mu.Lock()
	defer w.mu.Unlock()
	img := w.frame
	w.frame = nil
	return img
}

type host struct {
	log     log.FieldLogger
	window  *window
	factory gfx.Factory
	soft    bool
}

func newHost(cfg config.Configuration, logger log.FieldLogger) (*host, error) {
	flags := uint32(sdl.WINDOW_RESIZABLE)
	if cfg.Renderer.Backend == config.BackendVulkan {
		if err := sdl.VulkanLoadLibrary(""); err != nil {
			return nil, err
		}
		flags |= sdl.WINDOW_VULKAN
	}

	sdlWindow, err := sdl.CreateWindow("Triangle",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		flags)
	if err != nil {
		return nil, err
	}
	h := &host{
		log:    logger,
		window: &window{Window: sdlWindow},
	}
	h.window.resized(sdlWindow.GetSize())

	switch cfg.Renderer.Backend {
	case config.BackendVulkan:
		var f *vulkan.Factory
		f, err = vulkan.NewFactory(vulkan.Config{
			ProcAddr:   sdl.VulkanGetVkGetInstanceProcAddr(),
			Extensions: sdlWindow.VulkanGetInstanceExtensions(),
			Debug:      cfg.Debug,
			Logger:     logger,
		})
		if err == nil {
			h.factory = f
		}
	case config.BackendSoft:
		h.soft = true
		h.factory = soft.NewFactory(soft.WithLogger(logger))
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Renderer.Backend)
	}
	if err != nil {
		h.destroy()
		return nil, err
	}
	logger.WithField("backend", cfg.Renderer.Backend).Info("Created window")
	return h, nil
}

func (h *host) toggleFullscreen() {
	var mode uint32
	if h.window.GetFlags()&sdl.WINDOW_FULLSCREEN_DESKTOP == 0 {
		mode = sdl.WINDOW_FULLSCREEN_DESKTOP
	}
	if err := h.window.SetFullscreen(mode); err != nil {
		h.log.WithError(err).Warn("Fullscreen toggle failed")
	}
}

// blit copies the latest soft frame to the window surface. It must run
// on the main thread.
func (h *host) blit() {
	if !h.soft {
		return
	}
	img := h.window.takeFrame()
	if img == nil {
		return
	}

	dst, err := h.window.GetSurface()
	if err != nil {
		h.log.WithError(err).Warn("No window surface")
		return
	}
	src, err := sdl.CreateRGBSurfaceFrom(unsafe.Pointer(&img.Pix[0]),
		int32(img.Rect.Dx()), int32(img.Rect.Dy()), 32, img.Stride,
		maskR, maskG, maskB, maskA)
	if err != nil {
		h.log.WithError(err).Warn("Wrapping frame failed")
		return
	}
	defer src.Free()

	if err := src.BlitScaled(nil, dst, nil); err != nil {
		h.log.WithError(err).Warn("Blit failed")
		return
	}
	if err := h.window.UpdateSurface(); err != nil {
		h.log.WithError(err).Warn("Window update failed")
	}
}

func (h *host) destroy() {
	if h.factory != nil {
		h.factory.Release()
	}
	h.window.Destroy()
	if !h.soft {
		sdl.VulkanUnloadLibrary()
	}
}
