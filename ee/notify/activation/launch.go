// Package activation turns OS activation callbacks into LaunchDetails and routes
// them to the handler registered for an activator guid.
package activation

import (
	"sort"
	"strings"
)

type LaunchType int

const (
	// LaunchTypeNotification is a tap on the body of a notification.
	LaunchTypeNotification LaunchType = iota
	// LaunchTypeAction is a press on one of a notification's buttons.
	LaunchTypeAction
)

const (
	// NotificationArgPrefix and ActionArgPrefix mark the launch arguments
	// written by the content builder, so a body tap with an empty payload is
	// not mistaken for a button press.
	NotificationArgPrefix = "notification:"
	ActionArgPrefix       = "action:"
)

func (l LaunchType) String() string {
	switch l {
	case LaunchTypeNotification:
		return "notification"
	case LaunchTypeAction:
		return "action"
	default:
		return "unknown"
	}
}

// UserInput is one text box or selection value from an interactive notification.
type UserInput struct {
	Key   string `json:"key" msgpack:"key"`
	Value string `json:"value" msgpack:"value"`
}

// LaunchDetails describes how the app was launched or resumed by a notification.
type LaunchDetails struct {
	DidLaunch  bool              `json:"didLaunch" msgpack:"didLaunch"`
	LaunchType LaunchType        `json:"launchType" msgpack:"launchType"`
	Payload    string            `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Inputs     map[string]string `json:"inputs,omitempty" msgpack:"inputs,omitempty"`
}

// SortedInputs returns the inputs ordered by key.
func (l LaunchDetails) SortedInputs() []UserInput {
	out := make([]UserInput, 0, len(l.Inputs))
	for k, v := range l.Inputs {
		out = append(out, UserInput{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Decode builds LaunchDetails from the arguments the OS hands an activator.
// args is nil when the OS supplied no argument string at all. Arguments with
// an explicit prefix are classified by it; anything else is an action when
// non-empty.
func Decode(args *string, inputs []UserInput) LaunchDetails {
	details := LaunchDetails{
		DidLaunch:  true,
		LaunchType: LaunchTypeNotification,
	}

	if args != nil {
		switch {
		case strings.HasPrefix(*args, ActionArgPrefix):
			details.LaunchType = LaunchTypeAction
			details.Payload = strings.TrimPrefix(*args, ActionArgPrefix)
		case strings.HasPrefix(*args, NotificationArgPrefix):
			details.Payload = strings.TrimPrefix(*args, NotificationArgPrefix)
		case *args != "":
			details.LaunchType = LaunchTypeAction
			details.Payload = *args
		}
	}

	if len(inputs) > 0 {
		details.Inputs = make(map[string]string, len(inputs))
		for _, in := range inputs {
			details.Inputs[in.Key] = in.Value
		}
	}

	return details
}
