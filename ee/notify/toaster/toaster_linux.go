//go:build linux
// +build linux

package toaster

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/godbus/dbus/v5"
	"github.com/kolide/localnotify/ee/notify/content"
)

const (
	notificationServiceObj       = "/org/freedesktop/Notifications"
	notificationServiceInterface = "org.freedesktop.Notifications"
	signalActionInvoked          = "org.freedesktop.Notifications.ActionInvoked"
	signalNotificationClosed     = "org.freedesktop.Notifications.NotificationClosed"

	defaultActionKey = "default"
)

// dbusNotification is a shown notification. id is the server's id, and is
// zero when the notification went out through notify-send.
type dbusNotification struct {
	id    uint32
	toast Toast
	seq   int
}

// dbusToaster shows notifications through org.freedesktop.Notifications.
// The notification server has no history or data binding, so both are kept
// here, keyed the same way the OS keys toasts. Without a session bus it falls
// back to notify-send, which can neither replace nor close a notification, but
// the bookkeeping is the same.
type dbusToaster struct {
	cfg        *config
	logger     log.Logger
	conn       *dbus.Conn
	signal     chan *dbus.Signal
	interrupt  chan struct{}
	notifySend func(ctx context.Context, args ...string) error

	lock  sync.RWMutex
	seq   int
	shown map[string]*dbusNotification
	byID  map[uint32]string
}

// New connects to the session bus and starts listening for interactions with
// the notifications it sends.
func New(opts ...Option) (*dbusToaster, error) {
	cfg := newConfig(opts)

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		level.Warn(cfg.logger).Log("msg", "couldn't connect to dbus, falling back to notify-send", "err", err)
	}

	d := newDBusToaster(cfg, conn)

	if conn != nil {
		if err := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(notificationServiceObj),
			dbus.WithMatchInterface(notificationServiceInterface),
		); err != nil {
			level.Error(d.logger).Log("msg", "couldn't add match signal", "err", err)
			return nil, fmt.Errorf("couldn't register to listen to signals in dbus: %w", err)
		}
		conn.Signal(d.signal)
		go d.listen()
	}

	return d, nil
}

func newDBusToaster(cfg *config, conn *dbus.Conn) *dbusToaster {
	d := &dbusToaster{
		cfg:       cfg,
		logger:    cfg.logger,
		conn:      conn,
		signal:    make(chan *dbus.Signal, 10),
		interrupt: make(chan struct{}),
		shown:     make(map[string]*dbusNotification),
		byID:      make(map[uint32]string),
	}
	d.notifySend = d.runNotifySend
	return d
}

func (d *dbusToaster) listen() {
	for {
		select {
		case signal := <-d.signal:
			if signal == nil {
				continue
			}
			switch signal.Name {
			case signalActionInvoked:
				d.handleActionInvoked(signal)
			case signalNotificationClosed:
				d.handleNotificationClosed(signal)
			}
		case <-d.interrupt:
			return
		}
	}
}

func (d *dbusToaster) handleActionInvoked(signal *dbus.Signal) {
	if len(signal.Body) < 2 {
		return
	}
	notificationId, ok := signal.Body[0].(uint32)
	if !ok {
		return
	}
	actionKey, ok := signal.Body[1].(string)
	if !ok {
		return
	}

	d.lock.RLock()
	key, found := d.byID[notificationId]
	var n dbusNotification
	if found {
		n = *d.shown[key]
	}
	d.lock.RUnlock()

	// This notification didn't come from us -- ignore it
	if !found {
		return
	}

	args := actionKey
	if actionKey == defaultActionKey {
		parsed, err := content.Parse(n.toast.Markup)
		if err != nil {
			level.Error(d.logger).Log("msg", "could not parse markup of invoked notification", "tag", n.toast.Tag, "err", err)
			return
		}
		args = parsed.Launch
	}

	if d.cfg.eventHandler != nil {
		d.cfg.eventHandler(Event{Tag: n.toast.Tag, Group: n.toast.Group, Arguments: &args})
	}
}

func (d *dbusToaster) handleNotificationClosed(signal *dbus.Signal) {
	if len(signal.Body) < 1 {
		return
	}
	notificationId, ok := signal.Body[0].(uint32)
	if !ok {
		return
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	if key, found := d.byID[notificationId]; found {
		delete(d.shown, key)
		delete(d.byID, notificationId)
	}
}

func (d *dbusToaster) Show(ctx context.Context, t Toast) error {
	t.Data = mergeData(nil, t.Data)
	return d.send(ctx, t)
}

func (d *dbusToaster) send(ctx context.Context, t Toast) error {
	parsed, err := content.Parse(content.ApplyBindings(t.Markup, t.Data))
	if err != nil {
		return err
	}

	key := entryKey(t.Group, t.Tag)

	d.lock.RLock()
	var replacesId uint32
	if existing, ok := d.shown[key]; ok {
		replacesId = existing.id
	}
	d.lock.RUnlock()

	if d.conn == nil {
		if err := d.sendViaNotifySend(ctx, parsed); err != nil {
			return err
		}
		d.record(key, 0, t)
		return nil
	}

	// Action keys come back in ActionInvoked; "default" is a click on the body
	actions := []string{defaultActionKey, ""}
	for _, a := range parsed.Actions {
		actions = append(actions, a.Arguments, a.Content)
	}

	appName := t.AppID
	if appName == "" {
		appName = d.cfg.aumid
	}

	// See: https://specifications.freedesktop.org/notification-spec/notification-spec-latest.html
	notificationsService := d.conn.Object(notificationServiceInterface, notificationServiceObj)
	call := notificationsService.CallWithContext(ctx, "org.freedesktop.Notifications.Notify",
		0,                         // no flags
		appName,                   // app_name
		replacesId,                // replaces_id -- 0 means a new notification
		d.cfg.iconPath,            // app_icon
		parsed.Title(),            // summary
		parsed.Body(),             // body
		actions,                   // actions
		map[string]dbus.Variant{}, // hints
		int32(-1))                 // expire_timeout -- -1 lets the server decide

	if call.Err != nil {
		level.Error(d.logger).Log("msg", "could not send notification via dbus", "err", call.Err)
		return fmt.Errorf("could not send notification via dbus: %w", call.Err)
	}

	var notificationId uint32
	if err := call.Store(&notificationId); err != nil {
		return fmt.Errorf("could not get notification ID from dbus call: %w", err)
	}

	d.record(key, notificationId, t)
	return nil
}

// record stores t as the notification shown under key, replacing any earlier one.
func (d *dbusToaster) record(key string, id uint32, t Toast) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if existing, ok := d.shown[key]; ok {
		delete(d.byID, existing.id)
	}
	d.seq++
	d.shown[key] = &dbusNotification{id: id, toast: t, seq: d.seq}
	if id != 0 {
		d.byID[id] = key
	}
}

func (d *dbusToaster) sendViaNotifySend(ctx context.Context, parsed content.Toast) error {
	args := []string{parsed.Title(), parsed.Body()}
	if d.cfg.iconPath != "" {
		args = append(args, "-i", d.cfg.iconPath)
	}
	return d.notifySend(ctx, args...)
}

func (d *dbusToaster) runNotifySend(ctx context.Context, args ...string) error {
	notifySend, err := exec.LookPath("notify-send")
	if err != nil {
		level.Debug(d.logger).Log("msg", "notify-send not installed", "err", err)
		return fmt.Errorf("notify-send not installed: %w", err)
	}

	cmd := exec.CommandContext(ctx, notifySend, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		level.Error(d.logger).Log("msg", "could not send notification via notify-send", "output", string(out), "err", err)
		return fmt.Errorf("could not send notification via notify-send: %s: %w", string(out), err)
	}

	return nil
}

func (d *dbusToaster) Update(ctx context.Context, appID, tag, group string, data map[string]string) (UpdateResult, error) {
	d.lock.RLock()
	existing, ok := d.shown[entryKey(group, tag)]
	var t Toast
	if ok {
		t = existing.toast
		t.Data = mergeData(mergeData(nil, existing.toast.Data), data)
	}
	d.lock.RUnlock()

	if !ok {
		return UpdateNotFound, nil
	}

	if err := d.send(ctx, t); err != nil {
		level.Debug(d.logger).Log("msg", "could not resend updated notification", "tag", tag, "err", err)
		return UpdateFailed, nil
	}

	return UpdateSucceeded, nil
}

func (d *dbusToaster) Remove(ctx context.Context, appID, tag, group string) error {
	key := entryKey(group, tag)

	d.lock.Lock()
	existing, ok := d.shown[key]
	if ok {
		delete(d.shown, key)
		delete(d.byID, existing.id)
	}
	d.lock.Unlock()

	if !ok || d.conn == nil || existing.id == 0 {
		return nil
	}

	return d.close(ctx, existing.id)
}

func (d *dbusToaster) close(ctx context.Context, id uint32) error {
	call := d.conn.Object(notificationServiceInterface, notificationServiceObj).
		CallWithContext(ctx, "org.freedesktop.Notifications.CloseNotification", 0, id)
	if call.Err != nil {
		return fmt.Errorf("closing notification %d: %w", id, call.Err)
	}
	return nil
}

func (d *dbusToaster) Clear(ctx context.Context, appID string) error {
	d.lock.Lock()
	ids := make([]uint32, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	d.shown = make(map[string]*dbusNotification)
	d.byID = make(map[uint32]string)
	d.lock.Unlock()

	if d.conn == nil {
		return nil
	}

	var lastErr error
	for _, id := range ids {
		if err := d.close(ctx, id); err != nil {
			level.Debug(d.logger).Log("msg", "could not close notification", "id", id, "err", err)
			lastErr = err
		}
	}
	return lastErr
}

func (d *dbusToaster) History(_ context.Context, appID string) ([]Entry, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	ordered := make([]*dbusNotification, 0, len(d.shown))
	for _, n := range d.shown {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	entries := make([]Entry, 0, len(ordered))
	for _, n := range ordered {
		entries = append(entries, Entry{Tag: n.toast.Tag, Group: n.toast.Group})
	}
	return entries, nil
}

func (d *dbusToaster) Close() error {
	if d.conn == nil {
		return nil
	}

	d.interrupt <- struct{}{}

	d.conn.RemoveSignal(d.signal)
	if err := d.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(notificationServiceObj),
		dbus.WithMatchInterface(notificationServiceInterface),
	); err != nil {
		level.Debug(d.logger).Log("msg", "couldn't remove match signal", "err", err)
	}

	return d.conn.Close()
}

// Probe asks the notification server to identify itself.
func Probe(ctx context.Context, logger log.Logger, aumid string) (string, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return "", fmt.Errorf("connecting to session bus: %w", err)
	}
	defer conn.Close()

	var name, vendor, version, specVersion string
	if err := conn.Object(notificationServiceInterface, notificationServiceObj).
		CallWithContext(ctx, "org.freedesktop.Notifications.GetServerInformation", 0).
		Store(&name, &vendor, &version, &specVersion); err != nil {
		return "", fmt.Errorf("querying notification server: %w", err)
	}

	level.Debug(logger).Log("msg", "notification server found", "name", name, "vendor", vendor)
	return fmt.Sprintf("%s %s (%s), notification spec %s", name, version, vendor, specVersion), nil
}
