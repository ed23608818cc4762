// Package scheduler arms timers for deferred and recurring notifications and
// hands each due entry to a fire function.
package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/mixer/clock"
)

var (
	ErrInvalidRepeatInterval = errors.New("invalid repeat interval")
	ErrInvalidMatch          = errors.New("invalid date time components")
	ErrNotFound              = errors.New("no scheduled notification with that id")
)

type Kind string

const (
	KindOneShot  Kind = "one_shot"
	KindRepeat   Kind = "repeat"
	KindCalendar Kind = "calendar"
)

// Notification is what gets shown when an entry fires.
type Notification struct {
	Markup string            `json:"markup"`
	Group  string            `json:"group,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// Entry is a scheduled notification. FireAt is the absolute time for a one-shot
// and the target wall-clock time for a calendar entry. NextFire is maintained by
// the scheduler.
type Entry struct {
	ID           int64         `json:"id"`
	Kind         Kind          `json:"kind"`
	Notification Notification  `json:"notification"`
	FireAt       time.Time     `json:"fire_at,omitempty"`
	TimeZone     string        `json:"time_zone,omitempty"`
	Period       time.Duration `json:"period,omitempty"`
	Match        Match         `json:"match,omitempty"`
	NextFire     time.Time     `json:"next_fire"`
}

// FireFunc is called, outside any scheduler lock, each time an entry comes due.
type FireFunc func(Entry)

type armedEntry struct {
	entry Entry
	timer clock.Timer
	gen   uint64
}

type Scheduler struct {
	logger           log.Logger
	clock            clock.Clock
	store            types.KVStore
	fixedPeriodRearm bool

	lock  sync.Mutex
	gen   uint64
	armed map[int64]*armedEntry
	fire  FireFunc
}

type Option func(*Scheduler)

func WithLogger(logger log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = log.With(logger, "component", "scheduler")
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithStore persists entries so they can be restored after a restart.
func WithStore(store types.KVStore) Option {
	return func(s *Scheduler) {
		s.store = store
	}
}

// WithFixedPeriodRearm re-arms calendar entries a fixed day or week after each
// fire, measured from when the timer ran, instead of recomputing the next
// wall-clock match. Timer latency then accumulates across fires.
func WithFixedPeriodRearm(fixed bool) Option {
	return func(s *Scheduler) {
		s.fixedPeriodRearm = fixed
	}
}

func New(fire FireFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: log.NewNopLogger(),
		clock:  clock.DefaultClock{},
		armed:  make(map[int64]*armedEntry),
		fire:   fire,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetFireFunc replaces the fire function.
func (s *Scheduler) SetFireFunc(fire FireFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fire = fire
}

// Schedule validates and arms e, replacing any entry with the same id.
func (s *Scheduler) Schedule(e Entry) (Entry, error) {
	now := s.clock.Now()

	switch e.Kind {
	case KindOneShot:
		e.NextFire = e.FireAt
	case KindRepeat:
		if e.Period <= 0 {
			return e, fmt.Errorf("%w: period must be positive", ErrInvalidRepeatInterval)
		}
		e.NextFire = now.Add(e.Period)
	case KindCalendar:
		if _, err := ParseMatch(int(e.Match)); err != nil {
			return e, err
		}
		if e.TimeZone == "" {
			e.TimeZone = e.FireAt.Location().String()
		}
		if s.fixedPeriodRearm {
			e.NextFire = now.Add(InitialDelay(now, e.FireAt, e.Match))
		} else {
			e.NextFire = NextOccurrence(now, e.FireAt, e.Match, true)
		}
	default:
		return e, fmt.Errorf("unknown schedule kind %q", e.Kind)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.persist(e); err != nil {
		return e, err
	}
	s.armLocked(e)

	level.Debug(s.logger).Log(
		"msg", "scheduled notification",
		"id", e.ID,
		"kind", e.Kind,
		"next_fire", e.NextFire.Format(time.RFC3339),
	)
	return e, nil
}

// armLocked starts a timer for e and swaps it in for any existing one. Bumping
// the generation makes a callback of the replaced timer that is already running
// a no-op.
func (s *Scheduler) armLocked(e Entry) {
	s.gen++
	gen := s.gen

	if old, ok := s.armed[e.ID]; ok {
		old.stop()
	}

	a := &armedEntry{entry: e, gen: gen}
	s.armed[e.ID] = a

	// onTimer takes the lock held here, so it always runs on its own goroutine
	delay := e.NextFire.Sub(s.clock.Now())
	if delay <= 0 {
		go s.onTimer(e.ID, gen)
		return
	}

	a.timer = s.clock.AfterFunc(delay, func() {
		go s.onTimer(e.ID, gen)
	})
}

func (a *armedEntry) stop() {
	if a.timer != nil {
		a.timer.Stop()
	}
}

func (s *Scheduler) onTimer(id int64, gen uint64) {
	s.lock.Lock()
	a, ok := s.armed[id]
	if !ok || a.gen != gen {
		s.lock.Unlock()
		return
	}

	fired := a.entry
	now := s.clock.Now()

	switch fired.Kind {
	case KindOneShot:
		delete(s.armed, id)
		if err := s.unpersist(id); err != nil {
			level.Error(s.logger).Log("msg", "could not remove fired notification from store", "id", id, "err", err)
		}
	default:
		next := fired
		next.NextFire = s.nextFire(fired, now)
		if err := s.persist(next); err != nil {
			level.Error(s.logger).Log("msg", "could not persist rearmed notification", "id", id, "err", err)
		}
		s.armLocked(next)
	}

	fire := s.fire
	s.lock.Unlock()

	level.Debug(s.logger).Log("msg", "notification due", "id", id, "kind", fired.Kind)
	if fire != nil {
		fire(fired)
	}
}

// nextFire is the fire time following a fire of e observed at now.
func (s *Scheduler) nextFire(e Entry, now time.Time) time.Time {
	switch e.Kind {
	case KindRepeat:
		if s.fixedPeriodRearm {
			return now.Add(e.Period)
		}
		next := e.NextFire.Add(e.Period)
		for !next.After(now) {
			next = next.Add(e.Period)
		}
		return next
	case KindCalendar:
		if s.fixedPeriodRearm {
			return now.Add(e.Match.period())
		}
		from := e.NextFire
		if now.After(from) {
			from = now
		}
		return NextOccurrence(from, e.FireAt, e.Match, false)
	}
	return now
}

// Cancel disarms id. It returns ErrNotFound if nothing was scheduled under id.
func (s *Scheduler) Cancel(id int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	a, ok := s.armed[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	a.stop()
	delete(s.armed, id)

	if err := s.unpersist(id); err != nil {
		return fmt.Errorf("removing scheduled notification %d from store: %w", id, err)
	}
	return nil
}

// CancelAll disarms every entry.
func (s *Scheduler) CancelAll() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	ids := make([][]byte, 0, len(s.armed))
	for id, a := range s.armed {
		a.stop()
		ids = append(ids, storeKey(id))
	}
	s.armed = make(map[int64]*armedEntry)

	if s.store == nil || len(ids) == 0 {
		return nil
	}
	if err := s.store.Delete(ids...); err != nil {
		return fmt.Errorf("removing scheduled notifications from store: %w", err)
	}
	return nil
}

// Pending lists the armed entries ordered by id.
func (s *Scheduler) Pending() []Entry {
	s.lock.Lock()
	defer s.lock.Unlock()

	entries := make([]Entry, 0, len(s.armed))
	for _, a := range s.armed {
		entries = append(entries, a.entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Restore re-arms entries persisted by an earlier process. One-shots that came
// due while nothing was running fire right away; recurring entries skip the
// fires they missed.
func (s *Scheduler) Restore() (int, error) {
	if s.store == nil {
		return 0, nil
	}

	var entries []Entry
	if err := s.store.ForEach(func(k, v []byte) error {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			level.Warn(s.logger).Log("msg", "dropping unreadable scheduled notification", "key", string(k), "err", err)
			return nil
		}
		entries = append(entries, e)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("reading scheduled notifications: %w", err)
	}

	now := s.clock.Now()

	s.lock.Lock()
	defer s.lock.Unlock()

	restored := 0
	for _, e := range entries {
		if err := validateRestored(e); err != nil {
			level.Warn(s.logger).Log("msg", "dropping invalid scheduled notification", "id", e.ID, "err", err)
			if err := s.unpersist(e.ID); err != nil {
				level.Error(s.logger).Log("msg", "could not remove invalid scheduled notification from store", "id", e.ID, "err", err)
			}
			continue
		}

		if e.Kind == KindCalendar && e.TimeZone != "" {
			if loc, err := time.LoadLocation(e.TimeZone); err == nil {
				e.FireAt = e.FireAt.In(loc)
			}
		}

		if e.Kind != KindOneShot && e.NextFire.Before(now) {
			e.NextFire = s.nextFire(e, now)
		}

		s.armLocked(e)
		restored++
	}

	level.Info(s.logger).Log("msg", "restored scheduled notifications", "count", restored)
	return restored, nil
}

// validateRestored rejects stored entries that could never be re-armed.
func validateRestored(e Entry) error {
	switch e.Kind {
	case KindOneShot:
		return nil
	case KindRepeat:
		if e.Period <= 0 {
			return fmt.Errorf("%w: period must be positive", ErrInvalidRepeatInterval)
		}
		return nil
	case KindCalendar:
		_, err := ParseMatch(int(e.Match))
		return err
	default:
		return fmt.Errorf("unknown schedule kind %q", e.Kind)
	}
}

// Close stops every timer. Persisted entries are kept for Restore.
func (s *Scheduler) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for id, a := range s.armed {
		a.stop()
		delete(s.armed, id)
	}
	return nil
}

func storeKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

func (s *Scheduler) persist(e Entry) error {
	if s.store == nil {
		return nil
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling scheduled notification: %w", err)
	}

	if err := s.store.Set(storeKey(e.ID), raw); err != nil {
		return fmt.Errorf("storing scheduled notification: %w", err)
	}
	return nil
}

func (s *Scheduler) unpersist(id int64) error {
	if s.store == nil {
		return nil
	}
	return s.store.Delete(storeKey(id))
}
