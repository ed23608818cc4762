package activation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/notify/identity"
)

var (
	// ErrNoHandler is returned when an activation arrives for a guid nothing registered.
	ErrNoHandler = errors.New("no activation handler registered")

	// ErrAlreadyRegistered is returned on a second registration of the same guid.
	ErrAlreadyRegistered = errors.New("activation handler already registered")
)

// Callback receives decoded launch details. It may run on an OS thread that is
// not the one serving method calls.
type Callback func(LaunchDetails)

// Registrar binds an activator guid to a callback for the life of the process.
// There is no unregister; a guid is registered at most once.
type Registrar interface {
	RegisterActivationHandler(guid string, cb Callback) error
}

// Dispatcher is the table of registered activation handlers. It is used
// directly where activations arrive in-process, and behind the COM class
// factory on windows.
type Dispatcher struct {
	logger   log.Logger
	lock     sync.RWMutex
	handlers map[string]Callback
}

type dispatcherOption func(*Dispatcher)

func WithLogger(logger log.Logger) dispatcherOption {
	return func(d *Dispatcher) {
		d.logger = log.With(logger, "component", "activation_dispatcher")
	}
}

func NewDispatcher(opts ...dispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logger:   log.NewNopLogger(),
		handlers: make(map[string]Callback),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dispatcher) RegisterActivationHandler(guid string, cb Callback) error {
	if err := identity.ValidateGUID(guid); err != nil {
		return err
	}
	if cb == nil {
		return errors.New("activation callback is nil")
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	key := strings.ToLower(guid)
	if _, found := d.handlers[key]; found {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, guid)
	}
	d.handlers[key] = cb

	return nil
}

// Unregister drops the handler for guid. It is used to roll back a
// registration whose OS binding failed.
func (d *Dispatcher) Unregister(guid string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	delete(d.handlers, strings.ToLower(guid))
}

// Registered reports whether guid has a handler.
func (d *Dispatcher) Registered(guid string) bool {
	d.lock.RLock()
	defer d.lock.RUnlock()
	_, found := d.handlers[strings.ToLower(guid)]
	return found
}

// Activate decodes an activation and hands it to the handler for guid. A panic
// in decoding or in the handler is recovered and returned as an error, since
// the caller may be an OS activation host that must not crash.
func (d *Dispatcher) Activate(guid string, args *string, inputs []UserInput) (err error) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(d.logger).Log("msg", "recovered from panic during activation", "guid", guid, "panic", r)
			err = fmt.Errorf("activation handler panicked: %v", r)
		}
	}()

	d.lock.RLock()
	cb, found := d.handlers[strings.ToLower(guid)]
	d.lock.RUnlock()

	if !found {
		level.Debug(d.logger).Log("msg", "activation for unknown guid", "guid", guid)
		return fmt.Errorf("%w: %s", ErrNoHandler, guid)
	}

	details := Decode(args, inputs)
	level.Debug(d.logger).Log(
		"msg", "delivering activation",
		"guid", guid,
		"launch_type", details.LaunchType.String(),
		"input_count", len(details.Inputs),
	)
	cb(details)

	return nil
}
