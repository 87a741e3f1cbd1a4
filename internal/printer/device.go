// Package printer drives a paired dot-matrix line printer over a
// serial-over-radio link.
package printer

import (
	"errors"
	"strings"
)

var (
	ErrNotConnected   = errors.New("printer not connected")
	ErrDeviceNotFound = errors.New("printer device not found")
)

// DefaultNameFilters match the printer models the host ships pairing
// profiles for.
var DefaultNameFilters = []string{"honeywell", "6824", "pc42", "printer"}

// Device is a paired printer.
type Device struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
	Model   string `json:"model" yaml:"model"`
}

// Discover returns the paired devices whose names contain any filter,
// case-insensitively. Devices without a name are skipped.
func Discover(paired []Device, filters []string) []Device {
	if len(filters) == 0 {
		filters = DefaultNameFilters
	}
	var out []Device
	for _, d := range paired {
		name := strings.ToLower(d.Name)
		if name == "" {
			continue
		}
		for _, f := range filters {
			if f != "" && strings.Contains(name, strings.ToLower(f)) {
				if d.Model == "" {
					d.Model = d.Name
				}
				out = append(out, d)
				break
			}
		}
	}
	return out
}
