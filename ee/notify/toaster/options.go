package toaster

import (
	"github.com/go-kit/kit/log"
)

type config struct {
	logger       log.Logger
	aumid        string
	iconPath     string
	eventHandler EventHandler
}

type Option func(*config)

func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = log.With(logger, "component", "toaster")
	}
}

// WithAUMID sets the application id used when a call does not name one.
func WithAUMID(aumid string) Option {
	return func(c *config) {
		c.aumid = aumid
	}
}

func WithIconPath(iconPath string) Option {
	return func(c *config) {
		c.iconPath = iconPath
	}
}

// WithEventHandler receives interactions observed by the backend itself.
func WithEventHandler(h EventHandler) Option {
	return func(c *config) {
		c.eventHandler = h
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
