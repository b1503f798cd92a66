// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"path/filepath"
	"testing"

	"github.com/devblok/triangle/capture"
	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/gfx/soft"
	"github.com/devblok/triangle/utility/kar"
	qt "github.com/frankban/quicktest"
)

func TestPrintAdapters(t *testing.T) {
	c := qt.New(t)
	factory := soft.NewFactory()
	defer factory.Release()
	c.Assert(printAdapters(factory), qt.IsNil)
}

func TestHeadlessRenderWithCapture(t *testing.T) {
	c := qt.New(t)

	cfg := config.Default()
	cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight = 8, 4
	cfg.Capture.File = filepath.Join(c.TempDir(), "frames.kar")

	factory, err := newFactory(cfg)
	c.Assert(err, qt.IsNil)
	defer factory.Release()
	c.Assert(render(factory, cfg, 2), qt.IsNil)

	ar, err := kar.OpenFile(cfg.Capture.File)
	c.Assert(err, qt.IsNil)
	defer ar.Close()
	c.Assert(ar.Files(), qt.HasLen, 2)
	img, err := capture.ReadFrame(ar, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(img.Bounds().Dx(), qt.Equals, 8)
}

func TestUnknownBackend(t *testing.T) {
	c := qt.New(t)
	cfg := config.Default()
	cfg.Renderer.Backend = "d3d9"
	_, err := newFactory(cfg)
	c.Assert(err, qt.ErrorMatches, `unknown backend "d3d9"`)
}
