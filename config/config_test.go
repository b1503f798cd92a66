// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"
)

func TestDefaults(t *testing.T) {
	c := qt.New(t)

	envy.Temp(func() {
		cfg, err := FromEnv()
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(800))
		c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(600))
		c.Assert(cfg.Renderer.Backend, qt.Equals, BackendSoft)
		c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 60)
		c.Assert(cfg.LogLevel, qt.Equals, log.InfoLevel)
	})
}

func TestOverrides(t *testing.T) {
	c := qt.New(t)

	envy.Temp(func() {
		envy.Set(EnvWidth, "1280")
		envy.Set(EnvHeight, "720")
		envy.Set(EnvBackend, BackendVulkan)
		envy.Set(EnvFPS, "0")
		envy.Set(EnvShaderBundle, "shaders.kar")
		envy.Set(EnvDebug, "true")

		cfg, err := FromEnv()
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1280))
		c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(720))
		c.Assert(cfg.Renderer.Backend, qt.Equals, BackendVulkan)
		c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 0)
		c.Assert(cfg.Shader.Bundle, qt.Equals, "shaders.kar")
		c.Assert(cfg.Debug, qt.IsTrue)
		c.Assert(cfg.LogLevel, qt.Equals, log.DebugLevel)
	})
}

func TestInvalidValues(t *testing.T) {
	c := qt.New(t)

	for _, test := range []struct {
		key, value string
	}{
		{EnvWidth, "wide"},
		{EnvHeight, "0"},
		{EnvWidth, "16385"},
		{EnvHeight, "4294967295"},
		{EnvBackend, "d3d9"},
		{EnvFPS, "-1"},
		{EnvDebug, "maybe"},
		{EnvLogLevel, "loud"},
	} {
		envy.Temp(func() {
			envy.Set(test.key, test.value)
			_, err := FromEnv()
			c.Assert(err, qt.Not(qt.IsNil), qt.Commentf("%s=%s", test.key, test.value))
		})
	}
}

func TestLargestScreen(t *testing.T) {
	c := qt.New(t)

	envy.Temp(func() {
		envy.Set(EnvWidth, "16384")
		envy.Set(EnvHeight, "16384")
		cfg, err := FromEnv()
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(MaxScreenSize))
		c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(MaxScreenSize))
	})
}

func TestExclusiveShaderSources(t *testing.T) {
	c := qt.New(t)

	envy.Temp(func() {
		envy.Set(EnvShaderDir, "./shaders")
		envy.Set(EnvShaderBundle, "shaders.kar")
		_, err := FromEnv()
		c.Assert(err, qt.ErrorMatches, ".*mutually exclusive")
	})
}

func TestLoadDotEnv(t *testing.T) {
	c := qt.New(t)

	file := filepath.Join(c.TempDir(), "triangle.env")
	c.Assert(os.WriteFile(file, []byte("TRIANGLE_WIDTH=640\nTRIANGLE_LOG_LEVEL=warn\n"), 0o644), qt.IsNil)
	c.Cleanup(func() {
		os.Unsetenv(EnvWidth)
		os.Unsetenv(EnvLogLevel)
		envy.Reload()
	})

	cfg, err := Load(file)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(640))
	c.Assert(cfg.LogLevel, qt.Equals, log.WarnLevel)

	_, err = Load(filepath.Join(c.TempDir(), "missing.env"))
	c.Assert(err, qt.Not(qt.IsNil))
}
