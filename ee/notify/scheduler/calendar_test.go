package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
var monday10 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestPeriod(t *testing.T) {
	t.Parallel()

	expected := []time.Duration{60 * time.Second, 3600 * time.Second, 86400 * time.Second, 604800 * time.Second}
	for i, want := range expected {
		got, err := Period(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	for _, bad := range []int{-1, 4, 100} {
		_, err := Period(bad)
		require.ErrorIs(t, err, ErrInvalidRepeatInterval)
	}
}

func TestParseMatch(t *testing.T) {
	t.Parallel()

	m, err := ParseMatch(1)
	require.NoError(t, err)
	require.Equal(t, MatchDayOfWeekAndTime, m)

	_, err = ParseMatch(2)
	require.ErrorIs(t, err, ErrInvalidMatch)
}

func TestInitialDelay(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name     string
		target   time.Time
		match    Match
		expected time.Duration
	}{
		{
			name:     "weekly target earlier today rolls to next week",
			target:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			match:    MatchDayOfWeekAndTime,
			expected: 6*24*time.Hour + 23*time.Hour,
		},
		{
			name:     "daily target later today",
			target:   time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
			match:    MatchTime,
			expected: time.Hour,
		},
		{
			name:     "daily target earlier today rolls to tomorrow",
			target:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			match:    MatchTime,
			expected: 23 * time.Hour,
		},
		{
			name:     "target months in the past",
			target:   time.Date(2023, 6, 14, 9, 30, 0, 0, time.UTC),
			match:    MatchTime,
			expected: 23*time.Hour + 30*time.Minute,
		},
		{
			name:     "target in the future on another weekday",
			target:   time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
			match:    MatchDayOfWeekAndTime,
			expected: 2 * 24 * time.Hour,
		},
		{
			name:     "target now",
			target:   monday10,
			match:    MatchTime,
			expected: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			delay := InitialDelay(monday10, tt.target, tt.match)
			require.Equal(t, tt.expected, delay)
			require.GreaterOrEqual(t, delay, time.Duration(0))

			// Wall-clock recomputation agrees when no DST change is involved
			require.Equal(t, monday10.Add(tt.expected), NextOccurrence(monday10, tt.target, tt.match, true))
		})
	}
}

func TestNextOccurrence_Exclusive(t *testing.T) {
	t.Parallel()

	next := NextOccurrence(monday10, monday10, MatchTime, false)
	require.Equal(t, monday10.Add(24*time.Hour), next)

	next = NextOccurrence(monday10, monday10, MatchDayOfWeekAndTime, false)
	require.Equal(t, monday10.AddDate(0, 0, 7), next)
}

func TestNextOccurrence_DST(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Clocks spring forward at 2024-03-10 02:00 in New York
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, ny)
	target := time.Date(2024, 3, 1, 9, 0, 0, 0, ny)

	next := NextOccurrence(now, target, MatchTime, true)
	require.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, ny), next)
	require.Equal(t, 22*time.Hour, next.Sub(now), "the day is an hour short")

	// Fixed elapsed-time arithmetic lands an hour late
	require.Equal(t, 23*time.Hour, InitialDelay(now, target, MatchTime))
}

func TestParseLocalDateTime(t *testing.T) {
	t.Parallel()

	parsed, err := ParseLocalDateTime("2024-05-06T07:08:09", "Europe/Berlin")
	require.NoError(t, err)
	require.Equal(t, "Europe/Berlin", parsed.Location().String())
	require.Equal(t, 7, parsed.Hour())
	require.Equal(t, time.Monday, parsed.Weekday())

	_, err = ParseLocalDateTime("2024-05-06 07:08", "")
	require.Error(t, err)

	_, err = ParseLocalDateTime("2024-05-06T07:08:09", "Not/AZone")
	require.Error(t, err)
}
