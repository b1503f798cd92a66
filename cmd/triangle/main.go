// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"os/user"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblok/triangle/capture"
	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/core"
	"github.com/devblok/triangle/gfx"
	"github.com/devblok/triangle/session"
	"github.com/devblok/triangle/shader"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	envFile      = flag.String("env", "", "Load configuration from this .env file")
)

var frameCounter int64

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

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			panic(err)
		}
		if err := trace.Start(f); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}

	if err := run(configuration); err != nil {
		log.WithError(err).Error("Triangle exited")
		os.Exit(1)
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			panic(err)
		}
	}
}

func run(configuration config.Configuration) error {
	logger := log.StandardLogger()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return err
	}
	defer sdl.Quit()

	host, err := newHost(configuration, logger)
	if err != nil {
		return err
	}
	defer host.destroy()

	shaders, vertexShader, releaseShaders, err := shader.Load(configuration, logger)
	if err != nil {
		return err
	}
	defer releaseShaders()

	var window gfx.Window = host.window
	var recorder *capture.Recorder
	if configuration.Capture.File != "" {
		if configuration.Renderer.Backend != config.BackendSoft {
			logger.Warn("Frame capture needs the soft backend, ignoring")
		} else {
			recorder, err = capture.NewRecorder(currentUser(), 0, logger)
			if err != nil {
				return err
			}
			defer recorder.Close()
			window = capture.NewWindow(host.window, recorder)
		}
	}

	s := session.New(host.factory, window, shaders, configuration.Renderer,
		session.WithLogger(logger),
		session.WithVertexShader(vertexShader))
	if err := s.Init(); err != nil {
		return err
	}

	timeService := core.NewTime(configuration.Time)
	defer timeService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	programSync := sync.WaitGroup{}

	/* Frame counter loop */
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.WithFields(log.Fields{
					"fps":      atomic.SwapInt64(&frameCounter, 0),
					"cgoCalls": runtime.NumCgoCall(),
				}).Debug("Frame count")
			}
		}
	}(ctx, &programSync)

	/* Renderer loop */
	var renderErr error
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("Render loop exited")
				return
			case <-timeService.FpsTicker().C:
				if err := core.Frame(s, timeService.Tick()); err != nil {
					renderErr = err
					cancel()
					return
				}
				atomic.AddInt64(&frameCounter, 1)
			}
		}
	}(ctx, &programSync)

	/* Event loop */
EventLoop:
	for {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Type != sdl.KEYDOWN {
						continue
					}
					switch {
					case et.Keysym.Sym == sdl.K_ESCAPE:
						cancel()
						continue EventLoop
					case et.Keysym.Sym == sdl.K_RETURN && et.Keysym.Mod&uint16(sdl.KMOD_ALT) != 0:
						host.toggleFullscreen()
					}
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						host.window.resized(et.Data1, et.Data2)
					}
				case *sdl.QuitEvent:
					cancel()
					continue EventLoop
				}
			}
			host.blit()
		}
	}

	programSync.Wait()

	logger.WithFields(log.Fields{
		"frames":     timeService.Frames(),
		"averageFps": timeService.AverageFps(),
	}).Info("Stopped rendering")

	destroyErr := s.Destroy()
	if recorder != nil {
		if err := recorder.Save(configuration.Capture.File); err != nil {
			logger.WithError(err).Error("Saving capture")
		}
	}
	if renderErr != nil {
		return renderErr
	}
	return destroyErr
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Name
}
