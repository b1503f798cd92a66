// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// AdapterInfo describes available physical properties of a rendering device
type AdapterInfo struct {
	ID                   int    `json:"id"`
	Name                 string `json:"name"`
	VendorID             int    `json:"vendorId"`
	DeviceID             int    `json:"deviceId"`
	DriverVersion        int    `json:"driverVersion"`
	DedicatedVideoMemory uint64 `json:"dedicatedVideoMemory"`
	Software             bool   `json:"software"`
}

// SelectAdapter picks the first hardware adapter, falling back
// to the first adapter when only software ones exist.
func SelectAdapter(adapters []Adapter) (Adapter, error) {
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	for _, a := range adapters {
		if !a.Info().Software {
			return a, nil
		}
	}
	return adapters[0], nil
}
