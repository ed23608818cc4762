package checkups

import (
	"context"
	"errors"
	"fmt"

	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/registration"
)

type packageIdentityCheckup struct {
	env     Environment
	status  Status
	summary string
}

func (c *packageIdentityCheckup) Name() string {
	if c.env.PackageChecker == nil {
		return ""
	}
	return "Package identity"
}

func (c *packageIdentityCheckup) Run(_ context.Context) error {
	packaged, err := c.env.PackageChecker.HasPackageIdentity()
	switch {
	case errors.Is(err, identity.ErrIdentityUnknown):
		c.status = Failing
		c.summary = err.Error()
	case err != nil:
		return err
	case packaged:
		c.status = Informational
		c.summary = "running with package identity, no registration needed"
	default:
		c.status = Informational
		c.summary = "running without package identity, the app is addressed by its aumid"
	}
	return nil
}

func (c *packageIdentityCheckup) Status() Status  { return c.status }
func (c *packageIdentityCheckup) Summary() string { return c.summary }

type registrationCheckup struct {
	env     Environment
	status  Status
	summary string
}

func (c *registrationCheckup) Name() string {
	if c.env.Registry == nil || c.env.AUMID == "" {
		return ""
	}
	return "Registration"
}

func (c *registrationCheckup) Run(_ context.Context) error {
	if c.env.PackageChecker != nil {
		if packaged, err := c.env.PackageChecker.HasPackageIdentity(); err == nil && packaged {
			c.status = Passing
			c.summary = "not required with package identity"
			return nil
		}
	}

	guid, err := registration.Verify(c.env.Registry, c.env.AUMID)
	if err != nil {
		c.status = Failing
		c.summary = err.Error()
		return nil
	}

	command, err := c.env.Registry.GetStringValue(registration.LocalServerKey(guid), "")
	if err != nil {
		c.status = Warning
		c.summary = fmt.Sprintf("%s has activator %s but no local server command: %s", c.env.AUMID, guid, err)
		return nil
	}

	c.status = Passing
	c.summary = fmt.Sprintf("%s activates %s via %s", c.env.AUMID, identity.CLSID(guid), command)
	return nil
}

func (c *registrationCheckup) Status() Status  { return c.status }
func (c *registrationCheckup) Summary() string { return c.summary }

type scheduleStoreCheckup struct {
	env     Environment
	status  Status
	summary string
}

func (c *scheduleStoreCheckup) Name() string {
	if c.env.ScheduleStore == nil {
		return ""
	}
	return "Scheduled notifications"
}

func (c *scheduleStoreCheckup) Run(_ context.Context) error {
	count := 0
	if err := c.env.ScheduleStore.ForEach(func(_, _ []byte) error {
		count++
		return nil
	}); err != nil {
		c.status = Failing
		c.summary = fmt.Sprintf("reading schedule store: %s", err)
		return nil
	}

	c.status = Informational
	c.summary = fmt.Sprintf("%d pending", count)
	return nil
}

func (c *scheduleStoreCheckup) Status() Status  { return c.status }
func (c *scheduleStoreCheckup) Summary() string { return c.summary }

type daemonCheckup struct {
	env     Environment
	status  Status
	summary string
}

func (c *daemonCheckup) Name() string {
	if c.env.Ping == nil {
		return ""
	}
	return "Daemon"
}

func (c *daemonCheckup) Run(_ context.Context) error {
	if err := c.env.Ping(); err != nil {
		c.status = Warning
		c.summary = fmt.Sprintf("not reachable: %s", err)
		return nil
	}
	c.status = Passing
	c.summary = "reachable"
	return nil
}

func (c *daemonCheckup) Status() Status  { return c.status }
func (c *daemonCheckup) Summary() string { return c.summary }

type toastProbeCheckup struct {
	env     Environment
	status  Status
	summary string
}

func (c *toastProbeCheckup) Name() string {
	if c.env.Probe == nil {
		return ""
	}
	return "Toast probe"
}

func (c *toastProbeCheckup) Run(ctx context.Context) error {
	backend, err := c.env.Probe(ctx)
	if err != nil {
		c.status = Failing
		c.summary = err.Error()
		return nil
	}
	c.status = Passing
	c.summary = fmt.Sprintf("sent through %s", backend)
	return nil
}

func (c *toastProbeCheckup) Status() Status  { return c.status }
func (c *toastProbeCheckup) Summary() string { return c.summary }
