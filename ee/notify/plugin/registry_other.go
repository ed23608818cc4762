//go:build !windows
// +build !windows

package plugin

import (
	"github.com/kolide/localnotify/ee/agent/storage/inmemory"
	"github.com/kolide/localnotify/ee/notify/registration"
)

func defaultRegistry() registration.Registry {
	return registration.NewStoreRegistry(inmemory.NewStore())
}
