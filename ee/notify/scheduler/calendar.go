package scheduler

import (
	"fmt"
	"time"
)

// Repeat periods, selected by index.
var repeatPeriods = [...]time.Duration{
	time.Minute,
	time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
}

// Period maps a repeat interval index to its period: 0 every minute, 1 hourly,
// 2 daily, 3 weekly.
func Period(index int) (time.Duration, error) {
	if index < 0 || index >= len(repeatPeriods) {
		return 0, fmt.Errorf("%w: %d is not in [0, %d]", ErrInvalidRepeatInterval, index, len(repeatPeriods)-1)
	}
	return repeatPeriods[index], nil
}

// Match selects which components of a scheduled time recur.
type Match int

const (
	MatchTime             Match = 0
	MatchDayOfWeekAndTime Match = 1
)

func ParseMatch(v int) (Match, error) {
	switch Match(v) {
	case MatchTime, MatchDayOfWeekAndTime:
		return Match(v), nil
	}
	return 0, fmt.Errorf("%w: unknown date time components %d", ErrInvalidMatch, v)
}

func (m Match) period() time.Duration {
	if m == MatchDayOfWeekAndTime {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

func (m Match) String() string {
	switch m {
	case MatchTime:
		return "time"
	case MatchDayOfWeekAndTime:
		return "dayOfWeekAndTime"
	default:
		return "unknown"
	}
}

// InitialDelay is the delay until target next matches, measured in elapsed time:
// (target - now) mod period, normalized to be non-negative.
func InitialDelay(now, target time.Time, match Match) time.Duration {
	period := match.period()
	diff := target.Sub(now) % period
	if diff < 0 {
		diff += period
	}
	return diff
}

// NextOccurrence finds the next wall-clock time in target's location whose
// time of day, and weekday for MatchDayOfWeekAndTime, equal target's. The
// result is never before from, and equals from only when inclusive is set.
// Stepping by calendar days keeps the wall-clock time fixed across DST changes.
func NextOccurrence(from, target time.Time, match Match, inclusive bool) time.Time {
	loc := target.Location()
	f := from.In(loc)

	candidate := time.Date(f.Year(), f.Month(), f.Day(), target.Hour(), target.Minute(), target.Second(), target.Nanosecond(), loc)
	step := 1
	if match == MatchDayOfWeekAndTime {
		shift := (int(target.Weekday()) - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, shift)
		step = 7
	}

	for candidate.Before(f) || (!inclusive && candidate.Equal(f)) {
		candidate = candidate.AddDate(0, 0, step)
	}

	return candidate
}

// ParseLocalDateTime parses the yyyy-MM-ddTHH:mm:ss form used by zoned
// schedules, in the named IANA zone.
func ParseLocalDateTime(value, timeZoneName string) (time.Time, error) {
	loc := time.Local
	if timeZoneName != "" {
		var err error
		loc, err = time.LoadLocation(timeZoneName)
		if err != nil {
			return time.Time{}, fmt.Errorf("loading time zone %q: %w", timeZoneName, err)
		}
	}

	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing scheduled date time %q: %w", value, err)
	}
	return t, nil
}
