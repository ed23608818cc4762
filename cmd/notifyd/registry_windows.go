//go:build windows
// +build windows

package main

import (
	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/kolide/localnotify/ee/notify/registration"
)

func newRegistry(types.GetterSetterDeleter) registration.Registry {
	return registration.NewCurrentUserRegistry()
}

// doctorRegistry reads the windows registry whether or not the database is
// available.
func doctorRegistry(types.GetterSetterDeleter) registration.Registry {
	return registration.NewCurrentUserRegistry()
}
