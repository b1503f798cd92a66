// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package event

import (
	"fmt"

	"golang.org/x/sys/windows"
)

type handle struct {
	h windows.Handle
}

func newHandle() (handle, error) {
	h, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return handle{}, fmt.Errorf("CreateEvent(): %w", err)
	}
	return handle{h: h}, nil
}

func (h handle) set() error {
	if err := windows.SetEvent(h.h); err != nil {
		return fmt.Errorf("SetEvent(): %w", err)
	}
	return nil
}

func (h handle) wait() error {
	if _, err := windows.WaitForSingleObject(h.h, windows.INFINITE); err != nil {
		return fmt.Errorf("WaitForSingleObject(): %w", err)
	}
	return nil
}

func (h handle) close() error {
	return windows.CloseHandle(h.h)
}
