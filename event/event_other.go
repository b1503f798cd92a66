// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

//go:build !linux && !windows

package event

type handle struct {
	c chan struct{}
}

func newHandle() (handle, error) {
	return handle{c: make(chan struct{}, 1)}, nil
}

func (h handle) set() error {
	select {
	case h.c <- struct{}{}:
	default:
	}
	return nil
}

func (h handle) wait() error {
	<-h.c
	return nil
}

func (h handle) close() error {
	return nil
}
