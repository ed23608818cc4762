// Package launchdetails holds the notification that launched or resumed the app
// until the method channel asks for it or can receive it as an event.
package launchdetails

import (
	"fmt"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/notify/activation"
)

type Mode int

const (
	// ClearOnRead reports a launch once; later queries see no launch.
	ClearOnRead Mode = iota
	// Persist keeps reporting the last launch until another one replaces it.
	Persist
)

func (m Mode) String() string {
	switch m {
	case ClearOnRead:
		return "clear_on_read"
	case Persist:
		return "persist"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "clear_on_read":
		return ClearOnRead, nil
	case "persist":
		return Persist, nil
	default:
		return ClearOnRead, fmt.Errorf("unknown launch details mode %q", s)
	}
}

// Sink receives activations while a method channel is connected.
type Sink func(activation.LaunchDetails)

// Bridge is safe for use from activation threads and method-call handlers at once.
type Bridge struct {
	logger log.Logger
	mode   Mode

	lock    sync.Mutex
	pending *activation.LaunchDetails
	sink    Sink
}

type bridgeOption func(*Bridge)

func WithLogger(logger log.Logger) bridgeOption {
	return func(b *Bridge) {
		b.logger = log.With(logger, "component", "launch_details")
	}
}

func WithMode(mode Mode) bridgeOption {
	return func(b *Bridge) {
		b.mode = mode
	}
}

func New(opts ...bridgeOption) *Bridge {
	b := &Bridge{
		logger: log.NewNopLogger(),
		mode:   ClearOnRead,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Deliver records an activation. With a sink attached the app is already
// running, so the details are pushed as an event. Otherwise this is a launch,
// and the details wait for the first Get.
func (b *Bridge) Deliver(details activation.LaunchDetails) {
	b.lock.Lock()
	sink := b.sink
	if sink == nil {
		d := details
		b.pending = &d
	}
	b.lock.Unlock()

	if sink != nil {
		level.Debug(b.logger).Log("msg", "pushing activation to attached sink", "launch_type", details.LaunchType.String())
		sink(details)
		return
	}

	level.Debug(b.logger).Log("msg", "buffering launch details until queried", "launch_type", details.LaunchType.String())
}

// Attach sets the sink for later activations. A nil sink detaches.
func (b *Bridge) Attach(sink Sink) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.sink = sink
}

// Get returns the launch details, if the app was launched by a notification.
func (b *Bridge) Get() (activation.LaunchDetails, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.pending == nil {
		return activation.LaunchDetails{}, false
	}

	details := *b.pending
	if b.mode == ClearOnRead {
		b.pending = nil
	}

	return details, true
}
