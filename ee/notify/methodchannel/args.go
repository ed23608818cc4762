package methodchannel

import (
	"fmt"
	"math"
)

// Reasons an argument is rejected.
const (
	ReasonAbsent     = "absent"
	ReasonWrongType  = "wrong_type"
	ReasonOutOfRange = "out_of_range"
	ReasonMalformed  = "malformed"
)

// ArgumentError reports one bad argument.
type ArgumentError struct {
	Argument string
	Reason   string
	Detail   string
}

func (e *ArgumentError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("argument %q is %s", e.Argument, e.Reason)
	}
	return fmt.Sprintf("argument %q is %s: %s", e.Argument, e.Reason, e.Detail)
}

func argError(name, reason, detail string) *ArgumentError {
	return &ArgumentError{Argument: name, Reason: reason, Detail: detail}
}

// Arguments wraps a decoded argument map. Numbers arrive as whatever width the
// sender's encoder chose, so integer accessors accept any integral value.
type Arguments map[string]interface{}

func (a Arguments) lookup(name string) (interface{}, bool) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func toInt64(v interface{}) (int64, bool, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true, true
	case int8:
		return int64(n), true, true
	case int16:
		return int64(n), true, true
	case int32:
		return int64(n), true, true
	case int64:
		return n, true, true
	case uint8:
		return int64(n), true, true
	case uint16:
		return int64(n), true, true
	case uint32:
		return int64(n), true, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, true, false
		}
		return int64(n), true, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, true, false
		}
		return int64(n), true, true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	}
	return 0, false, false
}

func floatToInt64(f float64) (int64, bool, bool) {
	if f != math.Trunc(f) || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit
	if f >= 9.223372036854775807e18 || f < math.MinInt64 {
		return 0, true, false
	}
	return int64(f), true, true
}

// Int64 returns a required integer argument.
func (a Arguments) Int64(name string) (int64, error) {
	v, ok := a.lookup(name)
	if !ok {
		return 0, argError(name, ReasonAbsent, "")
	}
	n, numeric, inRange := toInt64(v)
	if !numeric {
		return 0, argError(name, ReasonWrongType, fmt.Sprintf("expected integer, got %T", v))
	}
	if !inRange {
		return 0, argError(name, ReasonOutOfRange, "")
	}
	return n, nil
}

// OptionalInt64 returns an integer argument, or ok=false when it is absent.
func (a Arguments) OptionalInt64(name string) (n int64, ok bool, err error) {
	if _, present := a.lookup(name); !present {
		return 0, false, nil
	}
	n, err = a.Int64(name)
	return n, err == nil, err
}

// String returns a required string argument.
func (a Arguments) String(name string) (string, error) {
	v, ok := a.lookup(name)
	if !ok {
		return "", argError(name, ReasonAbsent, "")
	}
	s, ok := v.(string)
	if !ok {
		return "", argError(name, ReasonWrongType, fmt.Sprintf("expected string, got %T", v))
	}
	return s, nil
}

// OptionalString returns a string argument, or "" when it is absent.
func (a Arguments) OptionalString(name string) (string, error) {
	if _, present := a.lookup(name); !present {
		return "", nil
	}
	return a.String(name)
}

// Map returns a nested map argument, or nil when it is absent.
func (a Arguments) Map(name string) (Arguments, error) {
	v, ok := a.lookup(name)
	if !ok {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]interface{}:
		return Arguments(m), nil
	case Arguments:
		return m, nil
	case map[interface{}]interface{}:
		out := make(Arguments, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, argError(name, ReasonWrongType, fmt.Sprintf("map key %v is not a string", k))
			}
			out[ks] = val
		}
		return out, nil
	}
	return nil, argError(name, ReasonWrongType, fmt.Sprintf("expected map, got %T", v))
}

// StringMap returns a map argument whose values must all be strings, or nil
// when it is absent.
func (a Arguments) StringMap(name string) (map[string]string, error) {
	m, err := a.Map(name)
	if err != nil || m == nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, argError(name, ReasonWrongType, fmt.Sprintf("value for %q is %T, not string", k, v))
		}
		out[k] = s
	}
	return out, nil
}
