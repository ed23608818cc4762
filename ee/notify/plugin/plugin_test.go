package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/kolide/localnotify/ee/agent/storage/inmemory"
	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/content"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/registration"
	"github.com/kolide/localnotify/ee/notify/scheduler"
	"github.com/kolide/localnotify/ee/notify/toaster"
	"github.com/mixer/clock"
	"github.com/stretchr/testify/require"
)

const (
	testAUMID = "com.example.app"
	testGUID  = "b2f1d3c4-5e6f-4a1b-9c8d-7e6f5a4b3c2d"
)

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type testHarness struct {
	plugin     *Plugin
	toaster    *toaster.MemoryToaster
	store      *registryRecorder
	clock      *clock.MockClock
	registered int
}

type registryRecorder struct {
	registration.Registry
	lock   sync.Mutex
	writes int
}

func (r *registryRecorder) SetStringValue(path, name, value string) error {
	r.lock.Lock()
	r.writes++
	r.lock.Unlock()
	return r.Registry.SetStringValue(path, name, value)
}

func (r *registryRecorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.writes
}

func newHarness(t *testing.T, packaged bool, opts ...Option) *testHarness {
	h := &testHarness{
		store: &registryRecorder{Registry: registration.NewStoreRegistry(inmemory.NewStore())},
		clock: clock.NewMockClock(testNow),
	}

	base := []Option{
		WithLogger(log.NewNopLogger()),
		WithRegistry(h.store),
		WithExecutablePath(`C:\app\app.exe`),
		WithClock(h.clock),
		WithPackageChecker(identity.PackageCheckerFunc(func() (bool, error) { return packaged, nil })),
		WithRegistrar(func(_ log.Logger, d *activation.Dispatcher) (activation.Registrar, func() error) {
			return registrarFunc(func(guid string, cb activation.Callback) error {
				h.registered++
				return d.RegisterActivationHandler(guid, cb)
			}), func() error { return nil }
		}),
		WithToasterFactory(func(id identity.AppIdentity, _ log.Logger, handler toaster.EventHandler) (toaster.Toaster, error) {
			h.toaster = toaster.NewMemory(toaster.WithAUMID(id.AUMID), toaster.WithEventHandler(handler))
			return h.toaster, nil
		}),
	}

	h.plugin = New(append(base, opts...)...)
	t.Cleanup(func() { require.NoError(t, h.plugin.Close()) })
	return h
}

type registrarFunc func(guid string, cb activation.Callback) error

func (f registrarFunc) RegisterActivationHandler(guid string, cb activation.Callback) error {
	return f(guid, cb)
}

func (h *testHarness) init(t *testing.T) {
	require.NoError(t, h.plugin.Initialize(context.Background(), Config{
		AppName:  "Example",
		AUMID:    testAUMID,
		GUID:     testGUID,
		IconPath: `C:\app\icon.png`,
	}))
}

func TestNotInitialized(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	ctx := context.Background()

	require.ErrorIs(t, h.plugin.Show(ctx, 1, Content{Title: "x"}), ErrNotInitialized)
	require.ErrorIs(t, h.plugin.CancelAll(ctx), ErrNotInitialized)
	_, err := h.plugin.Pending(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, launched := h.plugin.LaunchDetails()
	require.False(t, launched)
}

func TestInitialize_Unpackaged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	h.init(t)

	guid, err := registration.Verify(h.store, testAUMID)
	require.NoError(t, err)
	require.Equal(t, testGUID, guid)

	cmd, err := h.store.GetStringValue(registration.LocalServerKey(testGUID), "")
	require.NoError(t, err)
	require.Equal(t, `"C:\app\app.exe" -ToastActivated`, cmd)

	id, err := h.plugin.Identity()
	require.NoError(t, err)
	require.False(t, id.HasPackageIdentity)
}

func TestInitialize_PackagedSkipsRegistration(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.init(t)

	require.Equal(t, 0, h.store.count())
}

func TestInitialize_Twice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	h.init(t)
	h.init(t)

	require.Equal(t, 1, h.registered, "the activator is registered once per guid")
}

func TestInitialize_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	ctx := context.Background()

	err := h.plugin.Initialize(ctx, Config{AppName: "x", AUMID: testAUMID, GUID: "{" + testGUID + "}"})
	require.ErrorIs(t, err, identity.ErrInvalidGUID)
	require.Equal(t, 0, h.store.count(), "nothing is written for a bad guid")

	unknown := newHarness(t, false, WithPackageChecker(identity.PackageCheckerFunc(func() (bool, error) {
		return false, identity.ErrIdentityUnknown
	})))
	err = unknown.plugin.Initialize(ctx, Config{AppName: "x", AUMID: testAUMID, GUID: testGUID})
	require.ErrorIs(t, err, identity.ErrIdentityUnknown)
	require.ErrorIs(t, unknown.plugin.Show(ctx, 1, Content{Title: "x"}), ErrNotInitialized)
}

func TestInitialize_RequiresGUID(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	err := h.plugin.Initialize(context.Background(), Config{AppName: "x", AUMID: testAUMID})
	require.ErrorIs(t, err, identity.ErrInvalidGUID)
	require.Equal(t, 0, h.store.count())
	require.Equal(t, 0, h.registered)
}

func TestInitialize_RetriesFailedActivatorBinding(t *testing.T) {
	t.Parallel()

	var attempts int
	h := newHarness(t, true, WithRegistrar(func(_ log.Logger, d *activation.Dispatcher) (activation.Registrar, func() error) {
		return registrarFunc(func(guid string, cb activation.Callback) error {
			attempts++
			if err := d.RegisterActivationHandler(guid, cb); err != nil {
				return err
			}
			if attempts == 1 {
				return errors.New("CoRegisterClassObject failed")
			}
			return nil
		}), func() error { return nil }
	}))

	err := h.plugin.Initialize(context.Background(), Config{AUMID: testAUMID, GUID: testGUID})
	require.Error(t, err)
	require.Contains(t, err.Error(), "CoRegisterClassObject failed")

	h.init(t)
	require.Equal(t, 2, attempts, "a failed binding is attempted again")

	h.init(t)
	require.Equal(t, 2, attempts, "a successful binding is not repeated")
}

func TestInitialize_KeepsUnpersistedSchedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	require.NoError(t, h.plugin.ScheduleAt(ctx, 7, Content{Title: "later"}, testNow.Add(time.Hour)))

	h.init(t)
	replacement := h.toaster

	pending, err := h.plugin.Pending(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, pending)

	h.clock.AddTime(time.Hour)
	require.Eventually(t, func() bool {
		_, ok := replacement.Get("", "7", testAUMID)
		return ok
	}, time.Second, 10*time.Millisecond, "the entry fires through the current toaster")
}

func TestInitialize_SavesConfig(t *testing.T) {
	t.Parallel()

	store := inmemory.NewStore()
	h := newHarness(t, false, WithConfigStore(store))

	_, found, err := LoadConfig(store)
	require.NoError(t, err)
	require.False(t, found)

	require.Error(t, h.plugin.Initialize(context.Background(), Config{AUMID: testAUMID, GUID: "bad"}))
	_, found, err = LoadConfig(store)
	require.NoError(t, err)
	require.False(t, found, "a failed initialize saves nothing")

	h.init(t)

	cfg, found, err := LoadConfig(store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Config{
		AppName:  "Example",
		AUMID:    testAUMID,
		GUID:     testGUID,
		IconPath: `C:\app\icon.png`,
	}, cfg)
}

func TestShow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	require.NoError(t, h.plugin.Show(ctx, 5, Content{Title: "Hello", Body: "World", Payload: "p"}))

	shown, ok := h.toaster.Get("", "5", testAUMID)
	require.True(t, ok)
	parsed, err := content.Parse(shown.Markup)
	require.NoError(t, err)
	require.Equal(t, "Hello", parsed.Title())
	require.Equal(t, "notification:p", parsed.Launch)

	err = h.plugin.Show(ctx, 6, Content{RawXML: "<toast"})
	require.ErrorIs(t, err, content.ErrInvalidXML)

	active, err := h.plugin.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{5}, active)
}

func TestSchedulingAndCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	require.NoError(t, h.plugin.ScheduleAt(ctx, 1, Content{Title: "one"}, testNow.Add(time.Hour)))
	require.NoError(t, h.plugin.PeriodicallyShow(ctx, 2, Content{Title: "two"}, 1))
	match := scheduler.MatchDayOfWeekAndTime
	require.NoError(t, h.plugin.ZonedSchedule(ctx, 3, Content{Title: "three"}, testNow.Add(-time.Hour), &match))

	require.ErrorIs(t, h.plugin.PeriodicallyShow(ctx, 4, Content{Title: "four"}, 4), scheduler.ErrInvalidRepeatInterval)
	require.ErrorIs(t, h.plugin.ScheduleAt(ctx, 5, Content{RawXML: "nope"}, testNow), content.ErrInvalidXML)

	pending, err := h.plugin.Pending(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, pending)

	require.NoError(t, h.plugin.CancelPeriodic(ctx, 2))
	require.ErrorIs(t, h.plugin.CancelPeriodic(ctx, 2), scheduler.ErrNotFound)

	require.NoError(t, h.plugin.Cancel(ctx, 3, ""))
	pending, err = h.plugin.Pending(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, pending)

	h.clock.AddTime(time.Hour)
	require.Eventually(t, func() bool {
		_, ok := h.toaster.Get("", "1", testAUMID)
		return ok
	}, time.Second, 10*time.Millisecond, "a due entry is shown")
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	result, err := h.plugin.Update(ctx, 9, map[string]string{"progress": "0.5"}, "")
	require.NoError(t, err)
	require.Equal(t, toaster.UpdateNotFound, result)

	require.NoError(t, h.plugin.Show(ctx, 9, Content{Title: "{progress}"}))
	result, err = h.plugin.Update(ctx, 9, map[string]string{"progress": "0.5"}, "")
	require.NoError(t, err)
	require.Equal(t, toaster.UpdateSucceeded, result)
}

func TestActivation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.init(t)

	// Launched by a notification before anything subscribed
	args := "notification:cold"
	h.toaster.Activate("1", testAUMID, &args, nil)

	details, launched := h.plugin.LaunchDetails()
	require.True(t, launched)
	require.Equal(t, activation.LaunchTypeNotification, details.LaunchType)
	require.Equal(t, "cold", details.Payload)

	_, launched = h.plugin.LaunchDetails()
	require.False(t, launched, "launch details clear after the first read by default")

	var (
		lock     sync.Mutex
		received []activation.LaunchDetails
	)
	h.plugin.OnNotificationResponse(func(d activation.LaunchDetails) {
		lock.Lock()
		defer lock.Unlock()
		received = append(received, d)
	})

	args = "action:snooze"
	h.toaster.Activate("1", testAUMID, &args, []activation.UserInput{{Key: "minutes", Value: "10"}})

	lock.Lock()
	defer lock.Unlock()
	require.Len(t, received, 1)
	require.Equal(t, activation.LaunchTypeAction, received[0].LaunchType)
	require.Equal(t, "snooze", received[0].Payload)
	require.Equal(t, map[string]string{"minutes": "10"}, received[0].Inputs)
}

func TestScheduleSurvivesRestart(t *testing.T) {
	t.Parallel()

	store := inmemory.NewStore()

	first := newHarness(t, true, WithScheduleStore(store))
	first.init(t)
	require.NoError(t, first.plugin.PeriodicallyShow(context.Background(), 77, Content{Title: "hourly"}, 1))
	require.NoError(t, first.plugin.Close())

	second := newHarness(t, true, WithScheduleStore(store))
	second.init(t)

	pending, err := second.plugin.Pending(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{77}, pending)
}

func TestToasterFactoryError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, WithToasterFactory(func(identity.AppIdentity, log.Logger, toaster.EventHandler) (toaster.Toaster, error) {
		return nil, errors.New("no notification server")
	}))

	err := h.plugin.Initialize(context.Background(), Config{AUMID: testAUMID, GUID: testGUID})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no notification server")
}
