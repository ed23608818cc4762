// Package plugin is the notification core shared by the method channel and the
// C ABI. It owns the app identity, registration, activation handling, the
// notifier and the scheduler.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/content"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/launchdetails"
	"github.com/kolide/localnotify/ee/notify/notifier"
	"github.com/kolide/localnotify/ee/notify/registration"
	"github.com/kolide/localnotify/ee/notify/scheduler"
	"github.com/kolide/localnotify/ee/notify/toaster"
	"github.com/mixer/clock"
	"github.com/tevino/abool"
)

// ErrNotInitialized is returned by every operation before Initialize succeeds.
var ErrNotInitialized = errors.New("plugin is not initialized")

// Core is implemented by Plugin and consumed by the bindings.
type Core interface {
	Initialize(ctx context.Context, cfg Config) error
	Show(ctx context.Context, id int64, c Content) error
	ScheduleAt(ctx context.Context, id int64, c Content, at time.Time) error
	ZonedSchedule(ctx context.Context, id int64, c Content, at time.Time, match *scheduler.Match) error
	PeriodicallyShow(ctx context.Context, id int64, c Content, repeatInterval int) error
	CancelPeriodic(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64, group string) error
	CancelAll(ctx context.Context) error
	Update(ctx context.Context, id int64, bindings map[string]string, group string) (toaster.UpdateResult, error)
	Active(ctx context.Context) ([]int64, error)
	Pending(ctx context.Context) ([]int64, error)
	LaunchDetails() (activation.LaunchDetails, bool)
	OnNotificationResponse(sink launchdetails.Sink)
	Close() error
}

// Config identifies the app to the OS.
type Config struct {
	AppName   string `json:"app_name"`
	AUMID     string `json:"aumid"`
	GUID      string `json:"guid"`
	IconPath  string `json:"icon_path,omitempty"`
	IconColor string `json:"icon_color,omitempty"`
}

// Content is either raw toast markup, or a title and body to build markup from.
type Content struct {
	RawXML   string
	Title    string
	Body     string
	Payload  string
	Group    string
	Bindings map[string]string
}

// ToasterFactory creates the OS toaster once the identity is known. Events it
// observes must be passed to handler.
type ToasterFactory func(id identity.AppIdentity, logger log.Logger, handler toaster.EventHandler) (toaster.Toaster, error)

type Plugin struct {
	logger           log.Logger
	registry         registration.Registry
	packageChecker   identity.PackageChecker
	newToaster       ToasterFactory
	newRegistrar     func(log.Logger, *activation.Dispatcher) (activation.Registrar, func() error)
	executablePath   string
	activationArgs   []string
	scheduleStore    types.KVStore
	configStore      types.KVStore
	clock            clock.Clock
	fixedPeriodRearm bool
	launchMode       launchdetails.Mode

	dispatcher *activation.Dispatcher
	bridge     *launchdetails.Bridge
	ready      *abool.AtomicBool

	lock       sync.RWMutex
	registrar  activation.Registrar
	activators map[string]struct{}
	revoke     func() error
	identity   identity.AppIdentity
	toaster    toaster.Toaster
	scheduler  *scheduler.Scheduler
	notifier   *notifier.Notifier
}

var _ Core = (*Plugin)(nil)

func New(opts ...Option) *Plugin {
	p := &Plugin{
		logger:         log.NewNopLogger(),
		packageChecker: identity.NewPackageChecker(),
		newToaster:     defaultToaster,
		newRegistrar:   activation.NewRegistrar,
		clock:          clock.DefaultClock{},
		launchMode:     launchdetails.ClearOnRead,
		ready:          abool.New(),
		activators:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.registry == nil {
		p.registry = defaultRegistry()
	}

	p.dispatcher = activation.NewDispatcher(activation.WithLogger(p.logger))
	p.bridge = launchdetails.New(
		launchdetails.WithLogger(p.logger),
		launchdetails.WithMode(p.launchMode),
	)

	return p
}

func (p *Plugin) buildSchedulerOptions() []scheduler.Option {
	opts := []scheduler.Option{
		scheduler.WithLogger(p.logger),
		scheduler.WithClock(p.clock),
		scheduler.WithFixedPeriodRearm(p.fixedPeriodRearm),
	}
	if p.scheduleStore != nil {
		opts = append(opts, scheduler.WithStore(p.scheduleStore))
	}
	return opts
}

func defaultToaster(id identity.AppIdentity, logger log.Logger, handler toaster.EventHandler) (toaster.Toaster, error) {
	t, err := toaster.New(
		toaster.WithLogger(logger),
		toaster.WithAUMID(id.AUMID),
		toaster.WithIconPath(id.IconPath),
		toaster.WithEventHandler(handler),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Initialize resolves the app identity, registers the app when it has no
// package identity, binds the activator and restores the schedule. Calling it
// again is allowed; the activator is only ever registered once per guid, and
// notifications already scheduled stay armed.
func (p *Plugin) Initialize(ctx context.Context, cfg Config) error {
	if cfg.AUMID == "" {
		return errors.New("aumid is required")
	}
	if err := identity.ValidateGUID(cfg.GUID); err != nil {
		return err
	}

	id, err := identity.AppIdentity{
		AUMID:         cfg.AUMID,
		DisplayName:   cfg.AppName,
		IconPath:      cfg.IconPath,
		IconColor:     cfg.IconColor,
		ActivatorGUID: cfg.GUID,
	}.Check(p.packageChecker)
	if err != nil {
		return fmt.Errorf("checking package identity: %w", err)
	}

	if !id.HasPackageIdentity {
		exe, err := p.executable()
		if err != nil {
			return fmt.Errorf("finding executable path: %w", err)
		}
		if err := registration.RegisterApp(p.registry, id, exe, p.activationArgs...); err != nil {
			return fmt.Errorf("registering app: %w", err)
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if p.registrar == nil {
		p.registrar, p.revoke = p.newRegistrar(p.logger, p.dispatcher)
	}
	guidKey := strings.ToLower(id.ActivatorGUID)
	if _, bound := p.activators[guidKey]; !bound {
		if err := p.registrar.RegisterActivationHandler(id.ActivatorGUID, p.bridge.Deliver); err != nil {
			p.dispatcher.Unregister(id.ActivatorGUID)
			return fmt.Errorf("registering activation handler: %w", err)
		}
		p.activators[guidKey] = struct{}{}
	}

	if p.toaster != nil {
		if err := p.toaster.Close(); err != nil {
			level.Warn(p.logger).Log("msg", "could not close previous toaster", "err", err)
		}
		p.toaster, p.notifier = nil, nil
	}

	guid := id.ActivatorGUID
	t, err := p.newToaster(id, p.logger, func(e toaster.Event) {
		if err := p.dispatcher.Activate(guid, e.Arguments, e.Inputs); err != nil {
			level.Error(p.logger).Log("msg", "could not dispatch notification event", "tag", e.Tag, "err", err)
		}
	})
	if err != nil {
		p.ready.UnSet()
		return fmt.Errorf("creating toaster: %w", err)
	}

	// The scheduler outlives re-initialization, so entries armed earlier keep
	// their timers whether or not they are persisted.
	s := p.scheduler
	restore := s == nil
	if restore {
		s = scheduler.New(nil, p.buildSchedulerOptions()...)
	}
	n := notifier.New(id, t, s, notifier.WithLogger(p.logger))
	s.SetFireFunc(n.Fire)

	if restore {
		if _, err := s.Restore(); err != nil {
			level.Error(p.logger).Log("msg", "could not restore scheduled notifications", "err", err)
		}
	}

	p.identity = id
	p.toaster = t
	p.scheduler = s
	p.notifier = n
	p.ready.Set()

	if err := p.saveConfig(cfg); err != nil {
		level.Warn(p.logger).Log("msg", "could not save configuration for relaunch", "err", err)
	}

	level.Info(p.logger).Log(
		"msg", "initialized notifications",
		"aumid", id.AUMID,
		"guid", id.ActivatorGUID,
		"package_identity", id.HasPackageIdentity,
	)
	return nil
}

func (p *Plugin) executable() (string, error) {
	if p.executablePath != "" {
		return p.executablePath, nil
	}
	return os.Executable()
}

func (p *Plugin) teardownLocked() error {
	var err error
	if p.scheduler != nil {
		err = p.scheduler.Close()
	}
	if p.toaster != nil {
		if closeErr := p.toaster.Close(); closeErr != nil {
			err = closeErr
		}
	}
	p.scheduler, p.toaster, p.notifier = nil, nil, nil
	return err
}

func (p *Plugin) current() (*notifier.Notifier, *scheduler.Scheduler, error) {
	if !p.ready.IsSet() {
		return nil, nil, ErrNotInitialized
	}
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.notifier == nil {
		return nil, nil, ErrNotInitialized
	}
	return p.notifier, p.scheduler, nil
}

// Identity returns the identity from the last successful Initialize.
func (p *Plugin) Identity() (identity.AppIdentity, error) {
	if !p.ready.IsSet() {
		return identity.AppIdentity{}, ErrNotInitialized
	}
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.identity, nil
}

func (p *Plugin) markup(c Content) (string, error) {
	if c.RawXML != "" {
		return c.RawXML, content.Validate(c.RawXML)
	}

	p.lock.RLock()
	icon := p.identity.IconPath
	p.lock.RUnlock()

	return content.Build(content.Fields{
		Title:    c.Title,
		Body:     c.Body,
		Payload:  c.Payload,
		IconPath: icon,
	})
}

func (p *Plugin) Show(ctx context.Context, id int64, c Content) error {
	n, _, err := p.current()
	if err != nil {
		return err
	}

	markup, err := p.markup(c)
	if err != nil {
		return err
	}

	return n.Show(ctx, id, markup, c.Bindings, c.Group)
}

func (p *Plugin) schedule(id int64, c Content, e scheduler.Entry) error {
	_, s, err := p.current()
	if err != nil {
		return err
	}

	markup, err := p.markup(c)
	if err != nil {
		return err
	}

	e.ID = id
	e.Notification = scheduler.Notification{Markup: markup, Group: c.Group, Data: c.Bindings}
	_, err = s.Schedule(e)
	return err
}

// ScheduleAt shows c once at an absolute time. A time in the past fires
// immediately.
func (p *Plugin) ScheduleAt(ctx context.Context, id int64, c Content, at time.Time) error {
	return p.schedule(id, c, scheduler.Entry{Kind: scheduler.KindOneShot, FireAt: at})
}

// ZonedSchedule shows c at a wall-clock time. With a match it recurs daily or
// weekly; without one it fires once.
func (p *Plugin) ZonedSchedule(ctx context.Context, id int64, c Content, at time.Time, match *scheduler.Match) error {
	if match == nil {
		return p.ScheduleAt(ctx, id, c, at)
	}
	return p.schedule(id, c, scheduler.Entry{
		Kind:     scheduler.KindCalendar,
		FireAt:   at,
		TimeZone: at.Location().String(),
		Match:    *match,
	})
}

// PeriodicallyShow shows c every repeat interval, the first time one interval
// from now. The interval is validated before anything is scheduled.
func (p *Plugin) PeriodicallyShow(ctx context.Context, id int64, c Content, repeatInterval int) error {
	period, err := scheduler.Period(repeatInterval)
	if err != nil {
		return err
	}
	return p.schedule(id, c, scheduler.Entry{Kind: scheduler.KindRepeat, Period: period})
}

// CancelPeriodic stops a scheduled notification. Unknown ids are reported with
// scheduler.ErrNotFound.
func (p *Plugin) CancelPeriodic(ctx context.Context, id int64) error {
	_, s, err := p.current()
	if err != nil {
		return err
	}
	return s.Cancel(id)
}

func (p *Plugin) Cancel(ctx context.Context, id int64, group string) error {
	n, _, err := p.current()
	if err != nil {
		return err
	}
	return n.Cancel(ctx, id, group)
}

func (p *Plugin) CancelAll(ctx context.Context) error {
	n, _, err := p.current()
	if err != nil {
		return err
	}
	return n.CancelAll(ctx)
}

func (p *Plugin) Update(ctx context.Context, id int64, bindings map[string]string, group string) (toaster.UpdateResult, error) {
	n, _, err := p.current()
	if err != nil {
		return toaster.UpdateFailed, err
	}
	return n.Update(ctx, id, bindings, group)
}

func (p *Plugin) Active(ctx context.Context) ([]int64, error) {
	n, _, err := p.current()
	if err != nil {
		return nil, err
	}
	return n.Active(ctx)
}

func (p *Plugin) Pending(ctx context.Context) ([]int64, error) {
	n, _, err := p.current()
	if err != nil {
		return nil, err
	}
	return n.Pending(), nil
}

// LaunchDetails is available before Initialize, since a launch activation can
// arrive before the method channel is set up.
func (p *Plugin) LaunchDetails() (activation.LaunchDetails, bool) {
	return p.bridge.Get()
}

// OnNotificationResponse delivers later activations to sink as they happen.
func (p *Plugin) OnNotificationResponse(sink launchdetails.Sink) {
	p.bridge.Attach(sink)
}

// Close stops timers and the toaster, and revokes the activator. Scheduled
// entries stay persisted.
func (p *Plugin) Close() error {
	p.ready.UnSet()

	p.lock.Lock()
	defer p.lock.Unlock()

	err := p.teardownLocked()
	if p.revoke != nil {
		if revokeErr := p.revoke(); revokeErr != nil {
			err = revokeErr
		}
		p.revoke = nil
	}
	return err
}
