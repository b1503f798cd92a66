// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package event provides an auto-reset synchronization event backed by
// the operating system, suitable for fence completion notifications.
//
// Set wakes exactly one Wait; a Set with no waiter is remembered until the
// next Wait, after which the event is unsignalled again.
package event

import (
	"errors"
	"sync"
)

// ErrClosed is returned when using an event after Close.
var ErrClosed = errors.New("event: closed")

// Event is an auto-reset event. The zero value is not usable, create one with New.
type Event struct {
	mu     sync.RWMutex
	closed bool
	h      handle
}

// New creates an unsignalled event.
func New() (*Event, error) {
	h, err := newHandle()
	if err != nil {
		return nil, err
	}
	return &Event{h: h}, nil
}

// Set signals the event.
func (e *Event) Set() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return e.h.set()
}

// Wait blocks until the event is signalled, then resets it.
func (e *Event) Wait() error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	h := e.h
	e.mu.RUnlock()
	return h.wait()
}

// Close releases the OS handle. Closing twice is a no-op.
func (e *Event) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.h.close()
}
