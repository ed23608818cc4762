//go:build !windows
// +build !windows

package activation

import "github.com/go-kit/kit/log"

// NewRegistrar returns the dispatcher itself: off windows, activations arrive
// in-process from the notification backend.
func NewRegistrar(logger log.Logger, d *Dispatcher) (Registrar, func() error) {
	return d, func() error { return nil }
}
