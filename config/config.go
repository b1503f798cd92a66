// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config holds the configuration of the triangle hosts and the
// loading of it from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// MaxScreenSize bounds each screen dimension.
const MaxScreenSize = 16384

// Backend names
const (
	BackendSoft   = "soft"
	BackendVulkan = "vulkan"
)

// Environment variables read by Load
const (
	EnvWidth          = "TRIANGLE_WIDTH"
	EnvHeight         = "TRIANGLE_HEIGHT"
	EnvBackend        = "TRIANGLE_BACKEND"
	EnvFPS            = "TRIANGLE_FPS"
	EnvShaderDir      = "TRIANGLE_SHADER_DIR"
	EnvShaderBundle   = "TRIANGLE_SHADER_BUNDLE"
	EnvShaderCompiler = "TRIANGLE_SHADER_COMPILER"
	EnvCapture        = "TRIANGLE_CAPTURE"
	EnvDebug          = "TRIANGLE_DEBUG"
	EnvLogLevel       = "TRIANGLE_LOG_LEVEL"
)

// Configuration defines a global configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Shader   ShaderConfiguration
	Capture  CaptureConfiguration

	Debug    bool
	LogLevel log.Level
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the event polling interval in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	Backend string

	ScreenWidth  uint32
	ScreenHeight uint32
}

// ShaderConfiguration tells where shader sources come from and how
// they are compiled. An empty Directory and Bundle selects the
// embedded sources.
type ShaderConfiguration struct {
	Directory string
	Bundle    string

	// Compiler is an external compiler executable. Empty selects
	// the built-in compiler for the backend.
	Compiler string
}

// CaptureConfiguration enables writing presented frames to an archive.
type CaptureConfiguration struct {
	// File is the archive path. Empty disables capture.
	File string
}

// Default returns the built-in configuration.
func Default() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  5,
		},
		Renderer: RendererConfiguration{
			Backend:      BackendSoft,
			ScreenWidth:  800,
			ScreenHeight: 600,
		},
		LogLevel: log.InfoLevel,
	}
}

// Load reads the given .env files, or ./.env when present and none are
// given, and overrides the defaults with TRIANGLE_* variables.
func Load(files ...string) (Configuration, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, fmt.Errorf("godotenv.Load(): %w", err)
		}
	}
	envy.Reload()
	return FromEnv()
}

// FromEnv builds a configuration from the current environment.
func FromEnv() (Configuration, error) {
	cfg := Default()

	var err error
	if cfg.Renderer.ScreenWidth, err = envUint32(EnvWidth, cfg.Renderer.ScreenWidth); err != nil {
		return cfg, err
	}
	if cfg.Renderer.ScreenHeight, err = envUint32(EnvHeight, cfg.Renderer.ScreenHeight); err != nil {
		return cfg, err
	}
	if cfg.Renderer.ScreenWidth == 0 || cfg.Renderer.ScreenHeight == 0 {
		return cfg, errors.New("config: screen size must be non-zero")
	}
	if cfg.Renderer.ScreenWidth > MaxScreenSize || cfg.Renderer.ScreenHeight > MaxScreenSize {
		return cfg, fmt.Errorf("config: screen size %dx%d exceeds %d", cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight, MaxScreenSize)
	}

	cfg.Renderer.Backend = envy.Get(EnvBackend, cfg.Renderer.Backend)
	switch cfg.Renderer.Backend {
	case BackendSoft, BackendVulkan:
	default:
		return cfg, fmt.Errorf("config: unknown backend %q", cfg.Renderer.Backend)
	}

	if cfg.Time.FramesPerSecond, err = envInt(EnvFPS, cfg.Time.FramesPerSecond); err != nil {
		return cfg, err
	}
	if cfg.Time.FramesPerSecond < 0 {
		return cfg, fmt.Errorf("config: %s must not be negative", EnvFPS)
	}

	cfg.Shader.Directory = envy.Get(EnvShaderDir, "")
	cfg.Shader.Bundle = envy.Get(EnvShaderBundle, "")
	cfg.Shader.Compiler = envy.Get(EnvShaderCompiler, "")
	if cfg.Shader.Directory != "" && cfg.Shader.Bundle != "" {
		return cfg, fmt.Errorf("config: %s and %s are mutually exclusive", EnvShaderDir, EnvShaderBundle)
	}
	cfg.Capture.File = envy.Get(EnvCapture, "")

	if v := envy.Get(EnvDebug, ""); v != "" {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", EnvDebug, err)
		}
	}
	if v := envy.Get(EnvLogLevel, ""); v != "" {
		if cfg.LogLevel, err = log.ParseLevel(v); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", EnvLogLevel, err)
		}
	} else if cfg.Debug {
		cfg.LogLevel = log.DebugLevel
	}
	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	v := envy.Get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envUint32(key string, def uint32) (uint32, error) {
	v := envy.Get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return uint32(n), nil
}
