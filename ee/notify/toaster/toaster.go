// Package toaster talks to the operating system's notification service. Each
// backend shows, updates, removes and lists notifications addressed by a
// (tag, group) pair within an application id.
package toaster

import (
	"context"
	"errors"

	"github.com/kolide/localnotify/ee/notify/activation"
)

// ErrUnsupportedPlatform is returned where no OS backend exists.
var ErrUnsupportedPlatform = errors.New("no notification backend for this platform")

// UpdateResult is the outcome of a data update, as reported by the OS.
type UpdateResult int

const (
	UpdateSucceeded UpdateResult = 0
	UpdateFailed    UpdateResult = 1
	UpdateNotFound  UpdateResult = 2
)

func (u UpdateResult) String() string {
	switch u {
	case UpdateSucceeded:
		return "success"
	case UpdateFailed:
		return "failed"
	case UpdateNotFound:
		return "notFound"
	default:
		return "unknown"
	}
}

// Toast is a notification ready to hand to the OS. An empty AppID addresses the
// application the backend was created for.
type Toast struct {
	AppID  string
	Tag    string
	Group  string
	Markup string
	Data   map[string]string
}

// Entry is a notification currently visible in the notification center.
type Entry struct {
	Tag   string
	Group string
}

// Event is a user interaction the backend observed itself, rather than one
// delivered by the OS through an activator.
type Event struct {
	Tag       string
	Group     string
	Arguments *string
	Inputs    []activation.UserInput
}

// EventHandler receives events from backends that observe interactions.
type EventHandler func(Event)

type Toaster interface {
	Show(ctx context.Context, t Toast) error
	Update(ctx context.Context, appID, tag, group string, data map[string]string) (UpdateResult, error)
	Remove(ctx context.Context, appID, tag, group string) error
	Clear(ctx context.Context, appID string) error
	History(ctx context.Context, appID string) ([]Entry, error)
	Close() error
}

func entryKey(group, tag string) string {
	return group + "\x00" + tag
}

func mergeData(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
