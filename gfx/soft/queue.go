// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblok/triangle/gfx"
)

// Queue implements gfx.CommandQueue. Submitted work runs in order on a
// dedicated worker goroutine.
type Queue struct {
	dev  *Device
	desc gfx.CommandQueueDesc

	mu     sync.Mutex
	closed bool
	ops    chan func()
	done   chan struct{}
}

func (q *Queue) run() {
	defer close(q.done)
	for op := range q.ops {
		op()
	}
}

func (q *Queue) submit(op func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("%w: queue released", gfx.ErrInvalidCall)
	}
	q.ops <- op
	return nil
}

// ExecuteCommandLists implements gfx.CommandQueue.
func (q *Queue) ExecuteCommandLists(lists ...gfx.CommandList) error {
	if err := q.dev.Err(); err != nil {
		return err
	}

	type batch struct {
		alloc *CommandAllocator
		cmds  []Command
	}
	batches := make([]batch, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok || cl.dev != q.dev {
			return q.dev.remove(fmt.Errorf("%w: foreign command list", gfx.ErrInvalidCall))
		}
		if !cl.closed {
			return q.dev.remove(fmt.Errorf("%w: executing a command list that is still recording", gfx.ErrInvalidCall))
		}
		if cl.err != nil {
			return q.dev.remove(fmt.Errorf("%w: executing a command list that failed to close", gfx.ErrInvalidCall))
		}
		batches = append(batches, batch{alloc: cl.alloc, cmds: cl.alloc.cmds[cl.start:cl.end:cl.end]})
	}

	for _, b := range batches {
		b.alloc.pending.Add(1)
	}
	latency := q.dev.factory.latency
	err := q.submit(func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		for _, b := range batches {
			if q.dev.Err() == nil {
				for _, cmd := range b.cmds {
					if err := q.dev.execute(cmd); err != nil {
						q.dev.remove(err)
						break
					}
				}
			}
			b.alloc.pending.Add(-1)
		}
	})
	if err != nil {
		for _, b := range batches {
			b.alloc.pending.Add(-1)
		}
	}
	return err
}

// Signal implements gfx.CommandQueue.
func (q *Queue) Signal(fence gfx.Fence, value uint64) error {
	if err := q.dev.Err(); err != nil {
		return err
	}
	f, ok := fence.(*Fence)
	if !ok || f.dev != q.dev {
		return fmt.Errorf("%w: foreign fence", gfx.ErrInvalidCall)
	}
	return q.submit(func() {
		f.signal(value)
	})
}

// Release waits for submitted work to drain and stops the worker.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ops)
	q.mu.Unlock()
	<-q.done
}

type fenceWaiter struct {
	value uint64
	event gfx.Event
}

// Fence implements gfx.Fence.
type Fence struct {
	dev       *Device
	completed atomic.Uint64

	mu      sync.Mutex
	waiters []fenceWaiter
}

// CompletedValue implements gfx.Fence. A removed device reports the
// maximum value so that no caller waits forever.
func (f *Fence) CompletedValue() uint64 {
	if f.dev.Err() != nil {
		return math.MaxUint64
	}
	return f.completed.Load()
}

// SetEventOnCompletion implements gfx.Fence.
func (f *Fence) SetEventOnCompletion(value uint64, e gfx.Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", gfx.ErrInvalidCall)
	}
	f.mu.Lock()
	if f.CompletedValue() >= value {
		f.mu.Unlock()
		return e.Set()
	}
	f.waiters = append(f.waiters, fenceWaiter{value: value, event: e})
	f.mu.Unlock()
	return nil
}

// signal runs on the queue worker.
func (f *Fence) signal(value uint64) {
	f.mu.Lock()
	f.completed.Store(value)
	var ready []gfx.Event
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= value {
			ready = append(ready, w.event)
		} else {
			kept = append(kept, w)
		}
	}
	f.waiters = kept
	f.mu.Unlock()

	for _, e := range ready {
		if err := e.Set(); err != nil {
			f.dev.log.WithError(err).Warn("Fence event could not be set")
		}
	}
}

func (f *Fence) wakeAll() {
	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, w := range waiters {
		w.event.Set()
	}
}

// Release implements gfx.Releasable.
func (f *Fence) Release() {
	f.dev.forgetFence(f)
}
