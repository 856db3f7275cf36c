//go:build nogpu

package gpu

import "errors"

// NewHALDevice is a stub on nogpu builds. Callers fall back to a
// MemDevice paired with a CPU kernel.
func NewHALDevice() (Device, error) {
	return nil, errors.New("gpu: built without GPU support")
}
