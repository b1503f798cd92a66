// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core contains the pieces hosts share: the renderer lifecycle
// they drive and the time services that pace it.
package core

import "time"

// Renderer describes the rendering machinery a host drives.
// It's created only with internal values set,
// it needs to be initialised with Init() before use.
type Renderer interface {
	// Init sets up the device and the rendering pipeline
	Init() error

	// Update advances per-frame state, called before Render
	Update(dt time.Duration)

	// Render records, submits and presents one frame
	Render() error

	// Destroy waits for the GPU and releases every object
	Destroy() error
}

// Frame runs one update and render of r, returning the render error.
func Frame(r Renderer, dt time.Duration) error {
	r.Update(dt)
	return r.Render()
}
