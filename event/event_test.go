// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package event

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestSetBeforeWait(t *testing.T) {
	c := qt.New(t)

	e, err := New()
	c.Assert(err, qt.IsNil)
	defer e.Close()

	c.Assert(e.Set(), qt.IsNil)
	c.Assert(e.Set(), qt.IsNil)
	c.Assert(e.Wait(), qt.IsNil)
}

func TestWaitBlocksUntilSet(t *testing.T) {
	c := qt.New(t)

	e, err := New()
	c.Assert(err, qt.IsNil)
	defer e.Close()

	done := make(chan error)
	go func() {
		done <- e.Wait()
	}()

	select {
	case <-done:
		c.Fatal("Wait returned before Set")
	case <-time.After(20 * time.Millisecond):
	}

	c.Assert(e.Set(), qt.IsNil)
	select {
	case err := <-done:
		c.Assert(err, qt.IsNil)
	case <-time.After(5 * time.Second):
		c.Fatal("Wait did not return after Set")
	}
}

func TestAutoReset(t *testing.T) {
	c := qt.New(t)

	e, err := New()
	c.Assert(err, qt.IsNil)
	defer e.Close()

	c.Assert(e.Set(), qt.IsNil)
	c.Assert(e.Wait(), qt.IsNil)

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.Fatal("event stayed signalled after Wait")
	case <-time.After(20 * time.Millisecond):
	}
	e.Set()
	<-done
}

func TestCloseTwice(t *testing.T) {
	c := qt.New(t)

	e, err := New()
	c.Assert(err, qt.IsNil)
	c.Assert(e.Close(), qt.IsNil)
	c.Assert(e.Close(), qt.IsNil)
	c.Assert(e.Set(), qt.Equals, ErrClosed)
	c.Assert(e.Wait(), qt.Equals, ErrClosed)
}
