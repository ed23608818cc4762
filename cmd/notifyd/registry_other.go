//go:build !windows
// +build !windows

package main

import (
	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/kolide/localnotify/ee/notify/registration"
)

// newRegistry keeps registration in the daemon database, so doctor can check
// it the same way it checks the windows registry.
func newRegistry(store types.GetterSetterDeleter) registration.Registry {
	return registration.NewStoreRegistry(store)
}

func doctorRegistry(store types.GetterSetterDeleter) registration.Registry {
	if store == nil {
		return nil
	}
	return registration.NewStoreRegistry(store)
}
