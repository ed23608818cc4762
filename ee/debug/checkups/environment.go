package checkups

import (
	"context"

	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/registration"
)

// Environment is what the checkups inspect. Nil fields skip the checkups that
// need them.
type Environment struct {
	AUMID          string
	PackageChecker identity.PackageChecker
	Registry       registration.Registry
	ScheduleStore  types.Iterator
	// Ping reaches the running daemon.
	Ping func() error
	// Probe pushes a test notification and describes the backend that showed it.
	Probe func(ctx context.Context) (string, error)
}
