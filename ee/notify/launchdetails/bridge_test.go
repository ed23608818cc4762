package launchdetails

import (
	"testing"

	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ClearOnRead, m)

	m, err = ParseMode("persist")
	require.NoError(t, err)
	require.Equal(t, Persist, m)

	_, err = ParseMode("sometimes")
	require.Error(t, err)
}

func TestBridge_ColdLaunch(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name             string
		mode             Mode
		expectSecondRead bool
	}{
		{name: "clear on read", mode: ClearOnRead, expectSecondRead: false},
		{name: "persist", mode: Persist, expectSecondRead: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := New(WithMode(tt.mode))

			_, ok := b.Get()
			require.False(t, ok, "nothing launched yet")

			b.Deliver(activation.LaunchDetails{DidLaunch: true, LaunchType: activation.LaunchTypeAction, Payload: "p"})

			details, ok := b.Get()
			require.True(t, ok)
			require.Equal(t, "p", details.Payload)

			_, ok = b.Get()
			require.Equal(t, tt.expectSecondRead, ok)
		})
	}
}

func TestBridge_WarmResume(t *testing.T) {
	t.Parallel()

	b := New()

	var pushed []activation.LaunchDetails
	b.Attach(func(d activation.LaunchDetails) {
		pushed = append(pushed, d)
	})

	b.Deliver(activation.LaunchDetails{DidLaunch: true, Payload: "resume"})

	require.Len(t, pushed, 1)
	require.Equal(t, "resume", pushed[0].Payload)

	_, ok := b.Get()
	require.False(t, ok, "a resume is not a launch")

	b.Attach(nil)
	b.Deliver(activation.LaunchDetails{DidLaunch: true, Payload: "buffered"})
	require.Len(t, pushed, 1)

	details, ok := b.Get()
	require.True(t, ok)
	require.Equal(t, "buffered", details.Payload)
}
