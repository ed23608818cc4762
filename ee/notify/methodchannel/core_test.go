package methodchannel

import (
	"context"
	"sync"
	"time"

	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/launchdetails"
	"github.com/kolide/localnotify/ee/notify/plugin"
	"github.com/kolide/localnotify/ee/notify/scheduler"
	"github.com/kolide/localnotify/ee/notify/toaster"
)

type call struct {
	method  string
	id      int64
	content plugin.Content
	at      time.Time
	match   *scheduler.Match
	extra   interface{}
}

// fakeCore records calls and returns canned results.
type fakeCore struct {
	lock  sync.Mutex
	calls []call
	err   error

	config       plugin.Config
	active       []int64
	pending      []int64
	updateResult toaster.UpdateResult
	launch       *activation.LaunchDetails
	sink         launchdetails.Sink
	sinkSet      chan struct{}
}

var _ plugin.Core = (*fakeCore)(nil)

func newFakeCore() *fakeCore {
	return &fakeCore{sinkSet: make(chan struct{}, 8)}
}

func (f *fakeCore) record(c call) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeCore) last() call {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeCore) Initialize(ctx context.Context, cfg plugin.Config) error {
	f.lock.Lock()
	f.config = cfg
	f.lock.Unlock()
	return f.record(call{method: "initialize"})
}

func (f *fakeCore) Show(ctx context.Context, id int64, c plugin.Content) error {
	return f.record(call{method: "show", id: id, content: c})
}

func (f *fakeCore) ScheduleAt(ctx context.Context, id int64, c plugin.Content, at time.Time) error {
	return f.record(call{method: "scheduleAt", id: id, content: c, at: at})
}

func (f *fakeCore) ZonedSchedule(ctx context.Context, id int64, c plugin.Content, at time.Time, match *scheduler.Match) error {
	return f.record(call{method: "zonedSchedule", id: id, content: c, at: at, match: match})
}

func (f *fakeCore) PeriodicallyShow(ctx context.Context, id int64, c plugin.Content, repeatInterval int) error {
	return f.record(call{method: "periodicallyShow", id: id, content: c, extra: repeatInterval})
}

func (f *fakeCore) CancelPeriodic(ctx context.Context, id int64) error {
	return f.record(call{method: "cancelPeriodic", id: id})
}

func (f *fakeCore) Cancel(ctx context.Context, id int64, group string) error {
	return f.record(call{method: "cancel", id: id, extra: group})
}

func (f *fakeCore) CancelAll(ctx context.Context) error {
	return f.record(call{method: "cancelAll"})
}

func (f *fakeCore) Update(ctx context.Context, id int64, bindings map[string]string, group string) (toaster.UpdateResult, error) {
	err := f.record(call{method: "update", id: id, extra: bindings})
	return f.updateResult, err
}

func (f *fakeCore) Active(ctx context.Context) ([]int64, error) {
	return f.active, f.record(call{method: "active"})
}

func (f *fakeCore) Pending(ctx context.Context) ([]int64, error) {
	return f.pending, f.record(call{method: "pending"})
}

func (f *fakeCore) LaunchDetails() (activation.LaunchDetails, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.launch == nil {
		return activation.LaunchDetails{}, false
	}
	return *f.launch, true
}

func (f *fakeCore) OnNotificationResponse(sink launchdetails.Sink) {
	f.lock.Lock()
	f.sink = sink
	f.lock.Unlock()
	f.sinkSet <- struct{}{}
}

func (f *fakeCore) currentSink() launchdetails.Sink {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.sink
}

func (f *fakeCore) Close() error { return nil }
