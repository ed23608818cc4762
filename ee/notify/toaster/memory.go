package toaster

import (
	"context"
	"sort"
	"sync"

	"github.com/kolide/localnotify/ee/notify/activation"
)

type memoryNotification struct {
	toast Toast
	seq   int
}

// MemoryToaster keeps notifications in process. It backs headless runs and tests,
// and can simulate user interaction with Activate.
type MemoryToaster struct {
	cfg   *config
	lock  sync.Mutex
	seq   int
	shown map[string]map[string]*memoryNotification
}

func NewMemory(opts ...Option) *MemoryToaster {
	return &MemoryToaster{
		cfg:   newConfig(opts),
		shown: make(map[string]map[string]*memoryNotification),
	}
}

func (m *MemoryToaster) app(appID string) map[string]*memoryNotification {
	if appID == "" {
		appID = m.cfg.aumid
	}
	if _, ok := m.shown[appID]; !ok {
		m.shown[appID] = make(map[string]*memoryNotification)
	}
	return m.shown[appID]
}

func (m *MemoryToaster) Show(_ context.Context, t Toast) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	t.Data = mergeData(nil, t.Data)
	m.seq++
	m.app(t.AppID)[entryKey(t.Group, t.Tag)] = &memoryNotification{toast: t, seq: m.seq}
	return nil
}

func (m *MemoryToaster) Update(_ context.Context, appID, tag, group string, data map[string]string) (UpdateResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	n, ok := m.app(appID)[entryKey(group, tag)]
	if !ok {
		return UpdateNotFound, nil
	}
	n.toast.Data = mergeData(n.toast.Data, data)
	return UpdateSucceeded, nil
}

func (m *MemoryToaster) Remove(_ context.Context, appID, tag, group string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.app(appID), entryKey(group, tag))
	return nil
}

func (m *MemoryToaster) Clear(_ context.Context, appID string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if appID == "" {
		appID = m.cfg.aumid
	}
	delete(m.shown, appID)
	return nil
}

// History lists entries in the order they were shown.
func (m *MemoryToaster) History(_ context.Context, appID string) ([]Entry, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	notifications := m.app(appID)
	ordered := make([]*memoryNotification, 0, len(notifications))
	for _, n := range notifications {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	entries := make([]Entry, 0, len(ordered))
	for _, n := range ordered {
		entries = append(entries, Entry{Tag: n.toast.Tag, Group: n.toast.Group})
	}
	return entries, nil
}

// Get returns the toast shown under (tag, group), with any updates applied.
func (m *MemoryToaster) Get(appID, tag, group string) (Toast, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	n, ok := m.app(appID)[entryKey(group, tag)]
	if !ok {
		return Toast{}, false
	}
	return n.toast, true
}

// Activate simulates a user interacting with a shown notification.
func (m *MemoryToaster) Activate(tag, group string, args *string, inputs []activation.UserInput) {
	if m.cfg.eventHandler == nil {
		return
	}
	m.cfg.eventHandler(Event{Tag: tag, Group: group, Arguments: args, Inputs: inputs})
}

func (m *MemoryToaster) Close() error {
	return nil
}
