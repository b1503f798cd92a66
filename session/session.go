// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package session drives a gfx device through its lifecycle: setup, asset
// load, the per-frame record, submit, present and synchronize cycle, and
// teardown.
//
// Exactly one frame is in flight. Every frame ends in WaitForPreviousFrame,
// which blocks until the GPU has finished with it, so the single command
// allocator and command list can be reused by the next frame.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/event"
	"github.com/devblok/triangle/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
)

// FrameCount is the number of swap chain back buffers.
const FrameCount = 2

// Fixed pipeline parameters
const (
	RenderTargetFormat = gfx.FormatR8G8B8A8Unorm
	RenderTargetName   = "Render Target"
	SyncInterval       = 1

	VertexShaderEntry  = "main"
	VertexShaderTarget = "vs_5_1"
)

// ClearColor is what every back buffer is cleared to.
var ClearColor = glm.Vec4{0, 0, 0, 1}

// ShaderCompiler compiles a named shader for the device.
type ShaderCompiler interface {
	Compile(name, entry, target string) ([]byte, error)
}

// State of a Session
type State int

// Session states
const (
	StateCreated State = iota
	StateReady
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithVertexShader sets the name of the vertex shader to compile.
func WithVertexShader(name string) Option {
	return func(s *Session) {
		s.vertexShader = name
	}
}

// Session is a renderer bound to one window. It is not safe for
// concurrent use.
type Session struct {
	factory      gfx.Factory
	window       gfx.Window
	shaders      ShaderCompiler
	vertexShader string
	log          log.FieldLogger
	state        State

	width       int
	height      int
	viewport    gfx.Viewport
	scissorRect gfx.Rect

	device            gfx.Device
	commandQueue      gfx.CommandQueue
	swapChain         gfx.SwapChain
	rtvHeap           gfx.DescriptorHeap
	rtvDescriptorSize uint32
	renderTargets     [FrameCount]gfx.Resource
	commandAllocator  gfx.CommandAllocator
	rootSignature     gfx.RootSignature
	pipelineState     gfx.PipelineState
	commandList       gfx.CommandList

	frameIndex int
	fence      gfx.Fence
	fenceValue uint64
	fenceEvent *event.Event
}

// New creates a session. Nothing touches the device until Init.
func New(factory gfx.Factory, window gfx.Window, shaders ShaderCompiler, cfg config.RendererConfiguration, opts ...Option) *Session {
	width, height := int(cfg.ScreenWidth), int(cfg.ScreenHeight)
	s := &Session{
		factory:      factory,
		window:       window,
		shaders:      shaders,
		vertexShader: "BaseVS.hlsl",
		log:          log.StandardLogger(),
		width:        width,
		height:       height,
		viewport:     gfx.NewViewport(0, 0, float32(width), float32(height)),
		scissorRect:  gfx.Rect{Left: 0, Top: 0, Right: int32(width), Bottom: int32(height)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the device objects and loads the pipeline. On failure
// everything created so far is released and the session is unusable.
func (s *Session) Init() (err error) {
	if s.state != StateCreated {
		return fmt.Errorf("%w: Init on a %s session", gfx.ErrInvalidCall, s.state)
	}
	defer func() {
		if err != nil {
			s.state = StateDestroyed
			if rerr := s.release(); rerr != nil {
				s.log.WithError(rerr).Warn("Release after failed init")
			}
		}
	}()

	if err := s.loadPipeline(); err != nil {
		return err
	}
	if err := s.loadAssets(); err != nil {
		return err
	}
	s.state = StateReady
	s.log.WithFields(log.Fields{
		"width":  s.width,
		"height": s.height,
		"frame":  s.frameIndex,
	}).Info("Session initialised")
	return nil
}

// Update is called by hosts once per frame before Render.
// Frame state is fixed, so it does nothing.
func (s *Session) Update(dt time.Duration) {}

// Render records, submits and presents one frame, then waits for it.
func (s *Session) Render() error {
	if s.state != StateReady {
		return fmt.Errorf("%w: Render on a %s session", gfx.ErrInvalidCall, s.state)
	}

	if err := s.FillCommandList(); err != nil {
		return err
	}
	if err := s.commandQueue.ExecuteCommandLists(s.commandList); err != nil {
		return fmt.Errorf("ExecuteCommandLists(): %w", err)
	}
	if err := s.swapChain.Present(SyncInterval, 0); err != nil {
		return fmt.Errorf("Present(): %w", err)
	}
	return s.WaitForPreviousFrame()
}

// Destroy drains the GPU and releases every object. Calling it again,
// or before a successful Init, does nothing.
func (s *Session) Destroy() error {
	if s.state != StateReady {
		return nil
	}
	s.state = StateDestroyed

	waitErr := s.WaitForPreviousFrame()
	releaseErr := s.release()
	s.log.Info("Session destroyed")
	return errors.Join(waitErr, releaseErr)
}

// release frees objects in reverse creation order. It tolerates
// partially initialised sessions.
func (s *Session) release() error {
	var err error
	if s.fenceEvent != nil {
		if cerr := s.fenceEvent.Close(); cerr != nil {
			err = fmt.Errorf("close fence event: %w", cerr)
		}
	}

	for _, r := range []gfx.Releasable{
		s.fence,
		s.commandList,
		s.pipelineState,
		s.rootSignature,
		s.commandAllocator,
		s.renderTargets[1],
		s.renderTargets[0],
		s.rtvHeap,
		s.swapChain,
		s.commandQueue,
		s.device,
	} {
		if r != nil {
			r.Release()
		}
	}

	s.fence = nil
	s.commandList = nil
	s.pipelineState = nil
	s.rootSignature = nil
	s.commandAllocator = nil
	s.renderTargets = [FrameCount]gfx.Resource{}
	s.rtvHeap = nil
	s.swapChain = nil
	s.commandQueue = nil
	s.device = nil
	return err
}

// FrameIndex returns the back buffer the next frame renders to.
func (s *Session) FrameIndex() int {
	return s.frameIndex
}

// FenceValue returns the value the next synchronization will signal.
func (s *Session) FenceValue() uint64 {
	return s.fenceValue
}

// Fence returns the frame fence, nil outside the ready state.
func (s *Session) Fence() gfx.Fence {
	return s.fence
}

// SwapChain returns the swap chain, nil outside the ready state.
func (s *Session) SwapChain() gfx.SwapChain {
	return s.swapChain
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}
