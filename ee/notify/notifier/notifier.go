// Package notifier shows, updates and removes notifications, hiding how an app
// with package identity is addressed differently from an unpackaged one.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/kolide/localnotify/ee/notify/content"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/scheduler"
	"github.com/kolide/localnotify/ee/notify/toaster"
)

type Notifier struct {
	logger    log.Logger
	identity  identity.AppIdentity
	toaster   toaster.Toaster
	scheduler *scheduler.Scheduler
}

type notifierOption func(*Notifier)

func WithLogger(logger log.Logger) notifierOption {
	return func(n *Notifier) {
		n.logger = log.With(logger, "component", "notifier")
	}
}

func New(id identity.AppIdentity, t toaster.Toaster, s *scheduler.Scheduler, opts ...notifierOption) *Notifier {
	n := &Notifier{
		logger:    log.NewNopLogger(),
		identity:  id,
		toaster:   t,
		scheduler: s,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Tag is the OS tag for a notification id.
func Tag(id int64) string {
	return strconv.FormatInt(id, 10)
}

// appID is empty for packaged apps, which the OS addresses through their
// manifest, and the AUMID otherwise.
func (n *Notifier) appID() string {
	if n.identity.HasPackageIdentity {
		return ""
	}
	return n.identity.AUMID
}

func (n *Notifier) group(group string) string {
	if group == "" {
		return n.identity.AUMID
	}
	return group
}

// Show validates markup and submits it under tag str(id). Showing an id again
// replaces the earlier notification.
func (n *Notifier) Show(ctx context.Context, id int64, markup string, bindings map[string]string, group string) error {
	if err := content.Validate(markup); err != nil {
		return err
	}

	if err := n.toaster.Show(ctx, toaster.Toast{
		AppID:  n.appID(),
		Tag:    Tag(id),
		Group:  n.group(group),
		Markup: markup,
		Data:   bindings,
	}); err != nil {
		return fmt.Errorf("showing notification %d: %w", id, err)
	}

	level.Debug(n.logger).Log("msg", "showed notification", "id", id)
	return nil
}

// Fire shows a scheduled entry that came due. Failures are logged, there being
// no caller to return them to.
func (n *Notifier) Fire(e scheduler.Entry) {
	ctx := context.Background()
	if err := n.Show(ctx, e.ID, e.Notification.Markup, e.Notification.Data, e.Notification.Group); err != nil {
		level.Error(n.logger).Log("msg", "could not show scheduled notification", "id", e.ID, "err", err)
	}
}

// Update pushes new binding values into a shown notification and returns the
// OS result unchanged.
func (n *Notifier) Update(ctx context.Context, id int64, bindings map[string]string, group string) (toaster.UpdateResult, error) {
	result, err := n.toaster.Update(ctx, n.appID(), Tag(id), n.group(group), bindings)
	if err != nil {
		return toaster.UpdateFailed, fmt.Errorf("updating notification %d: %w", id, err)
	}
	return result, nil
}

// Cancel removes id from the notification center and from the schedule. Both
// are attempted, and neither being present is not an error.
func (n *Notifier) Cancel(ctx context.Context, id int64, group string) error {
	var result *multierror.Error

	if err := n.toaster.Remove(ctx, n.appID(), Tag(id), n.group(group)); err != nil {
		result = multierror.Append(result, fmt.Errorf("removing notification %d from history: %w", id, err))
	}

	if err := n.scheduler.Cancel(id); err != nil && !errors.Is(err, scheduler.ErrNotFound) {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// CancelAll clears the app's notification center entries and the schedule.
func (n *Notifier) CancelAll(ctx context.Context) error {
	var result *multierror.Error

	if err := n.toaster.Clear(ctx, n.appID()); err != nil {
		result = multierror.Append(result, fmt.Errorf("clearing history: %w", err))
	}

	if err := n.scheduler.CancelAll(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// Active lists ids in the notification center. Unpackaged apps cannot read
// their history, so they always get an empty list.
func (n *Notifier) Active(ctx context.Context) ([]int64, error) {
	if !n.identity.HasPackageIdentity {
		return []int64{}, nil
	}

	entries, err := n.toaster.History(ctx, n.appID())
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		id, err := strconv.ParseInt(e.Tag, 10, 64)
		if err != nil {
			level.Debug(n.logger).Log("msg", "skipping notification with non numeric tag", "tag", e.Tag)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Pending lists ids waiting in the schedule.
func (n *Notifier) Pending() []int64 {
	entries := n.scheduler.Pending()
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func (n *Notifier) Identity() identity.AppIdentity {
	return n.identity
}
