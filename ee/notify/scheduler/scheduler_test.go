package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/kolide/localnotify/ee/agent/storage/inmemory"
	"github.com/mixer/clock"
	"github.com/stretchr/testify/require"
)

type fireRecorder struct {
	lock  sync.Mutex
	fired []Entry
}

func (f *fireRecorder) record(e Entry) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fired = append(f.fired, e)
}

func (f *fireRecorder) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.fired)
}

func (f *fireRecorder) ids() []int64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	ids := make([]int64, 0, len(f.fired))
	for _, e := range f.fired {
		ids = append(ids, e.ID)
	}
	return ids
}

func pendingIDs(s *Scheduler) []int64 {
	ids := make([]int64, 0)
	for _, e := range s.Pending() {
		ids = append(ids, e.ID)
	}
	return ids
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *clock.MockClock, *fireRecorder) {
	mockClock := clock.NewMockClock(monday10)
	rec := &fireRecorder{}
	s := New(rec.record, append([]Option{WithClock(mockClock)}, opts...)...)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, mockClock, rec
}

func TestScheduler_OneShot(t *testing.T) {
	t.Parallel()

	s, mockClock, rec := newTestScheduler(t)

	_, err := s.Schedule(Entry{
		ID:           1,
		Kind:         KindOneShot,
		FireAt:       monday10.Add(time.Hour),
		Notification: Notification{Markup: "<toast/>"},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, pendingIDs(s))

	mockClock.AddTime(59 * time.Minute)
	require.Never(t, func() bool { return rec.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	mockClock.AddTime(time.Minute)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(s.Pending()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestScheduler_PastOneShotFiresImmediately(t *testing.T) {
	t.Parallel()

	s, _, rec := newTestScheduler(t)

	_, err := s.Schedule(Entry{ID: 3, Kind: KindOneShot, FireAt: monday10.Add(-time.Hour)})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestScheduler_Repeat(t *testing.T) {
	t.Parallel()

	s, mockClock, rec := newTestScheduler(t)

	period, err := Period(0)
	require.NoError(t, err)

	_, err = s.Schedule(Entry{ID: 9, Kind: KindRepeat, Period: period})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		mockClock.AddTime(time.Minute)
		expected := i
		require.Eventually(t, func() bool { return rec.count() == expected }, time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool {
			p := s.Pending()
			return len(p) == 1 && p[0].NextFire.Equal(monday10.Add(time.Duration(expected+1)*time.Minute))
		}, time.Second, 10*time.Millisecond)
	}
}

func TestScheduler_RejectsInvalidRepeat(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t)

	_, err := s.Schedule(Entry{ID: 1, Kind: KindRepeat})
	require.ErrorIs(t, err, ErrInvalidRepeatInterval)
	require.Empty(t, s.Pending())

	_, err = s.Schedule(Entry{ID: 1, Kind: KindCalendar, Match: Match(7), FireAt: monday10})
	require.ErrorIs(t, err, ErrInvalidMatch)
	require.Empty(t, s.Pending())
}

func TestScheduler_Calendar(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name          string
		fixed         bool
		expectedAfter time.Time
	}{
		{
			name:          "recomputes the wall-clock match",
			fixed:         false,
			expectedAfter: time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC),
		},
		{
			name:          "fixed period from the time the timer ran",
			fixed:         true,
			expectedAfter: time.Date(2024, 1, 8, 9, 0, 30, 0, time.UTC).AddDate(0, 0, 1),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, mockClock, rec := newTestScheduler(t, WithFixedPeriodRearm(tt.fixed))

			e, err := s.Schedule(Entry{
				ID:     4,
				Kind:   KindCalendar,
				Match:  MatchTime,
				FireAt: time.Date(2023, 12, 25, 9, 0, 0, 0, time.UTC),
			})
			require.NoError(t, err)
			require.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), e.NextFire)

			// The timer is observed to run 30 seconds late on the 8th
			mockClock.SetTime(time.Date(2024, 1, 8, 9, 0, 30, 0, time.UTC))
			require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
			require.Eventually(t, func() bool {
				p := s.Pending()
				return len(p) == 1 && p[0].NextFire.Equal(tt.expectedAfter)
			}, time.Second, 10*time.Millisecond)
		})
	}
}

func TestScheduler_Cancel(t *testing.T) {
	t.Parallel()

	s, mockClock, rec := newTestScheduler(t)

	_, err := s.Schedule(Entry{ID: 1, Kind: KindOneShot, FireAt: monday10.Add(time.Minute)})
	require.NoError(t, err)
	_, err = s.Schedule(Entry{ID: 2, Kind: KindRepeat, Period: time.Minute})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(1))
	require.NoError(t, s.Cancel(2))
	require.ErrorIs(t, s.Cancel(2), ErrNotFound)
	require.ErrorIs(t, s.Cancel(404), ErrNotFound)

	mockClock.AddTime(10 * time.Minute)
	require.Never(t, func() bool { return rec.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	require.Empty(t, s.Pending())
}

func TestScheduler_ReplaceKeepsOneTimer(t *testing.T) {
	t.Parallel()

	s, mockClock, rec := newTestScheduler(t)

	_, err := s.Schedule(Entry{ID: 5, Kind: KindOneShot, FireAt: monday10.Add(time.Minute), Notification: Notification{Markup: "first"}})
	require.NoError(t, err)
	_, err = s.Schedule(Entry{ID: 5, Kind: KindOneShot, FireAt: monday10.Add(2 * time.Minute), Notification: Notification{Markup: "second"}})
	require.NoError(t, err)
	require.Equal(t, []int64{5}, pendingIDs(s))

	mockClock.AddTime(5 * time.Minute)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return rec.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	rec.lock.Lock()
	defer rec.lock.Unlock()
	require.Equal(t, "second", rec.fired[0].Notification.Markup)
}

func TestScheduler_PendingRoundTrip(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t)

	ids := []int64{42, 7, 19, 3}
	for _, id := range ids {
		_, err := s.Schedule(Entry{ID: id, Kind: KindOneShot, FireAt: monday10.Add(time.Hour)})
		require.NoError(t, err)
	}

	require.Equal(t, []int64{3, 7, 19, 42}, pendingIDs(s))

	require.NoError(t, s.CancelAll())
	require.Empty(t, s.Pending())
}

func TestScheduler_Restore(t *testing.T) {
	t.Parallel()

	store := inmemory.NewStore()
	mockClock := clock.NewMockClock(monday10)

	first := New(nil, WithClock(mockClock), WithStore(store))
	_, err := first.Schedule(Entry{ID: 1, Kind: KindOneShot, FireAt: monday10.Add(time.Hour)})
	require.NoError(t, err)
	_, err = first.Schedule(Entry{ID: 2, Kind: KindOneShot, FireAt: monday10.Add(3 * time.Hour)})
	require.NoError(t, err)
	_, err = first.Schedule(Entry{ID: 3, Kind: KindRepeat, Period: time.Hour})
	require.NoError(t, err)
	_, err = first.Schedule(Entry{ID: 4, Kind: KindOneShot, FireAt: monday10.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, first.Cancel(4))
	require.NoError(t, first.Close())

	// Two hours pass with nothing running
	mockClock.AddTime(2 * time.Hour)

	rec := &fireRecorder{}
	second := New(rec.record, WithClock(mockClock), WithStore(store))
	t.Cleanup(func() { require.NoError(t, second.Close()) })

	restored, err := second.Restore()
	require.NoError(t, err)
	require.Equal(t, 3, restored)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []int64{1}, rec.ids(), "the overdue one-shot fires on restore")
	require.Eventually(t, func() bool { return len(second.Pending()) == 2 }, time.Second, 10*time.Millisecond)

	for _, e := range second.Pending() {
		require.True(t, e.NextFire.After(mockClock.Now()), "pending entries are in the future")
	}
}

func TestScheduler_RestoreDropsInvalidEntries(t *testing.T) {
	t.Parallel()

	store := inmemory.NewStore()
	mockClock := clock.NewMockClock(monday10)

	stored := map[string]string{
		"1": `{"id":1,"kind":"repeat","period":0,"next_fire":"2023-01-02T09:00:00Z"}`,
		"2": `{"id":2,"kind":"repeat","period":-5,"next_fire":"2023-01-02T09:00:00Z"}`,
		"3": `{"id":3,"kind":"calendar","match":9,"next_fire":"2023-01-02T09:00:00Z"}`,
		"4": `{"id":4,"kind":"sometimes","next_fire":"2023-01-02T09:00:00Z"}`,
		"5": `{"id":5,"kind":"repeat","period":3600000000000,"next_fire":"2023-01-02T09:00:00Z"}`,
	}
	for k, v := range stored {
		require.NoError(t, store.Set([]byte(k), []byte(v)))
	}

	s := New(nil, WithClock(mockClock), WithStore(store))
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	restored, err := s.Restore()
	require.NoError(t, err)
	require.Equal(t, 1, restored)
	require.Equal(t, []int64{5}, pendingIDs(s))

	var keys []string
	require.NoError(t, store.ForEach(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	}))
	require.Equal(t, []string{"5"}, keys, "invalid entries are removed from the store")
}
