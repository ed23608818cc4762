package plugin

import (
	"github.com/go-kit/kit/log"
	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/launchdetails"
	"github.com/kolide/localnotify/ee/notify/registration"
	"github.com/mixer/clock"
)

type Option func(*Plugin)

func WithLogger(logger log.Logger) Option {
	return func(p *Plugin) {
		p.logger = log.With(logger, "component", "notify_plugin")
	}
}

// WithRegistry overrides where app registration is written.
func WithRegistry(reg registration.Registry) Option {
	return func(p *Plugin) {
		p.registry = reg
	}
}

func WithPackageChecker(checker identity.PackageChecker) Option {
	return func(p *Plugin) {
		p.packageChecker = checker
	}
}

func WithToasterFactory(f ToasterFactory) Option {
	return func(p *Plugin) {
		p.newToaster = f
	}
}

// WithRegistrar overrides how activators are bound, e.g. to skip COM in tests.
func WithRegistrar(f func(log.Logger, *activation.Dispatcher) (activation.Registrar, func() error)) Option {
	return func(p *Plugin) {
		p.newRegistrar = f
	}
}

// WithExecutablePath sets the command registered for COM activation. It
// defaults to the running executable.
func WithExecutablePath(path string) Option {
	return func(p *Plugin) {
		p.executablePath = path
	}
}

// WithActivationArgs adds arguments to the command registered for COM
// activation, after the activation flag.
func WithActivationArgs(args ...string) Option {
	return func(p *Plugin) {
		p.activationArgs = args
	}
}

// WithScheduleStore persists scheduled notifications across restarts.
func WithScheduleStore(store types.KVStore) Option {
	return func(p *Plugin) {
		p.scheduleStore = store
	}
}

func WithClock(c clock.Clock) Option {
	return func(p *Plugin) {
		p.clock = c
	}
}

func WithFixedPeriodRearm(fixed bool) Option {
	return func(p *Plugin) {
		p.fixedPeriodRearm = fixed
	}
}

func WithLaunchDetailsMode(mode launchdetails.Mode) Option {
	return func(p *Plugin) {
		p.launchMode = mode
	}
}

// WithConfigStore saves the config of each successful Initialize; see LoadConfig.
func WithConfigStore(store types.KVStore) Option {
	return func(p *Plugin) {
		p.configStore = store
	}
}
