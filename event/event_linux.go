// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package event

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// handle is an eventfd in counter mode: a read returns the count and
// zeroes it, which gives auto-reset semantics.
type handle struct {
	fd int
}

func newHandle() (handle, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return handle{}, fmt.Errorf("unix.Eventfd(): %w", err)
	}
	return handle{fd: fd}, nil
}

func (h handle) set() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(h.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("eventfd write: %w", err)
		}
		return nil
	}
}

func (h handle) wait() error {
	var buf [8]byte
	for {
		_, err := unix.Read(h.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("eventfd read: %w", err)
		}
		return nil
	}
}

func (h handle) close() error {
	return unix.Close(h.fd)
}
