// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os/user"

	"github.com/devblok/triangle/capture"
	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/core"
	"github.com/devblok/triangle/gfx"
	"github.com/devblok/triangle/gfx/soft"
	"github.com/devblok/triangle/gfx/vulkan"
	"github.com/devblok/triangle/session"
	"github.com/devblok/triangle/shader"
	log "github.com/sirupsen/logrus"
)

var (
	adapters    = flag.Bool("adapters", false, "Print the adapters of the backend as JSON and exit")
	frames      = flag.Int("frames", 3, "Number of frames to render")
	captureFile = flag.String("capture", "", "Write rendered frames to this kar archive")
	envFile     = flag.String("env", "", "Load configuration from this .env file")
)

// headless is a fixed size window nobody looks at.
type headless struct{ w, h int }

func (h headless) Size() (int, int) { return h.w, h.h }

func main() {
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	configuration, err := config.Load(files...)
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	log.SetLevel(configuration.LogLevel)
	if *captureFile != "" {
		configuration.Capture.File = *captureFile
	}

	factory, err := newFactory(configuration)
	if err != nil {
		log.WithError(err).Fatal("Creating factory")
	}
	defer factory.Release()

	if *adapters {
		if err := printAdapters(factory); err != nil {
			log.WithError(err).Fatal("Listing adapters")
		}
		return
	}

	if configuration.Renderer.Backend != config.BackendSoft {
		log.Fatal("Headless rendering needs the soft backend")
	}
	if err := render(factory, configuration, *frames); err != nil {
		log.WithError(err).Fatal("Rendering failed")
	}
}

func newFactory(cfg config.Configuration) (gfx.Factory, error) {
	switch cfg.Renderer.Backend {
	case config.BackendVulkan:
		f, err := vulkan.NewFactory(vulkan.Config{Debug: cfg.Debug})
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.BackendSoft:
		return soft.NewFactory(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Renderer.Backend)
}

func printAdapters(factory gfx.Factory) error {
	list, err := factory.Adapters()
	if err != nil {
		return err
	}
	infos := make([]gfx.AdapterInfo, 0, len(list))
	for _, a := range list {
		infos = append(infos, a.Info())
	}
	bytes, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", bytes)
	return nil
}

func render(factory gfx.Factory, cfg config.Configuration, n int) error {
	logger := log.StandardLogger()

	shaders, vertexShader, releaseShaders, err := shader.Load(cfg, logger)
	if err != nil {
		return err
	}
	defer releaseShaders()

	var window gfx.Window = headless{int(cfg.Renderer.ScreenWidth), int(cfg.Renderer.ScreenHeight)}
	var recorder *capture.Recorder
	if cfg.Capture.File != "" {
		if recorder, err = capture.NewRecorder(currentUser(), n, logger); err != nil {
			return err
		}
		defer recorder.Close()
		window = capture.NewWindow(window, recorder)
	}

	s := session.New(factory, window, shaders, cfg.Renderer,
		session.WithLogger(logger),
		session.WithVertexShader(vertexShader))
	if err := s.Init(); err != nil {
		return err
	}

	timeService := core.NewTime(config.TimeConfiguration{})
	defer timeService.Stop()

	var renderErr error
	for i := 0; i < n; i++ {
		if renderErr = core.Frame(s, timeService.Tick()); renderErr != nil {
			break
		}
	}
	logger.WithFields(log.Fields{
		"frames":     timeService.Frames(),
		"fence":      s.FenceValue(),
		"averageFps": timeService.AverageFps(),
	}).Info("Rendered")

	if err := errors.Join(renderErr, s.Destroy()); err != nil {
		return err
	}
	if recorder != nil {
		return recorder.Save(cfg.Capture.File)
	}
	return nil
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Name
}
