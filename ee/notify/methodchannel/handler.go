package methodchannel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/content"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/plugin"
	"github.com/kolide/localnotify/ee/notify/scheduler"
)

// errNotImplemented marks a method name the handler does not know.
var errNotImplemented = errors.New("method not implemented")

type methodFunc func(ctx context.Context, args Arguments) (interface{}, error)

// Handler dispatches decoded method calls to a plugin.Core.
type Handler struct {
	logger  log.Logger
	core    plugin.Core
	methods map[string]methodFunc
}

type handlerOption func(*Handler)

func WithHandlerLogger(logger log.Logger) handlerOption {
	return func(h *Handler) {
		h.logger = log.With(logger, "component", "method_channel")
	}
}

func NewHandler(core plugin.Core, opts ...handlerOption) *Handler {
	h := &Handler{
		logger: log.NewNopLogger(),
		core:   core,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.methods = map[string]methodFunc{
		"initialize":                      h.initialize,
		"show":                            h.show,
		"zonedSchedule":                   h.zonedSchedule,
		"scheduleNotification":            h.scheduleNotification,
		"periodicallyShow":                h.periodicallyShow,
		"cancel":                          h.cancel,
		"cancelAll":                       h.cancelAll,
		"cancelPeriodicNotification":      h.cancelPeriodic,
		"getActiveNotifications":          h.active,
		"getPendingNotifications":         h.pending,
		"pendingNotificationRequests":     h.pending,
		"update":                          h.update,
		"getNotificationAppLaunchDetails": h.launchDetails,
	}

	return h
}

// Handle runs one request. It never panics and never returns a nil Response.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	fn, ok := h.methods[req.Method]
	if !ok {
		return Response{Error: toError(fmt.Errorf("%w: %s", errNotImplemented, req.Method))}
	}

	defer func() {
		if r := recover(); r != nil {
			level.Error(h.logger).Log("msg", "panic handling method", "method", req.Method, "panic", r)
			resp = Response{Error: &Error{Code: CodeInternal, Message: fmt.Sprintf("panic: %v", r)}}
		}
	}()

	result, err := fn(ctx, Arguments(req.Args))
	if err != nil {
		level.Debug(h.logger).Log("msg", "method failed", "method", req.Method, "err", err)
		return Response{Error: toError(err)}
	}
	return Response{Result: result}
}

func toError(err error) *Error {
	var argErr *ArgumentError
	switch {
	case errors.As(err, &argErr):
		return &Error{
			Code:    CodeInvalidArgument,
			Message: err.Error(),
			Details: map[string]interface{}{"argument": argErr.Argument, "reason": argErr.Reason},
		}
	case errors.Is(err, content.ErrInvalidXML):
		return &Error{Code: CodeInvalidXML, Message: err.Error()}
	case errors.Is(err, identity.ErrInvalidGUID),
		errors.Is(err, scheduler.ErrInvalidRepeatInterval),
		errors.Is(err, scheduler.ErrInvalidMatch):
		return &Error{Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, scheduler.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, plugin.ErrNotInitialized):
		return &Error{Code: CodeNotInitialized, Message: err.Error()}
	case errors.Is(err, errNotImplemented):
		return &Error{Code: CodeNotImplemented, Message: err.Error()}
	default:
		return &Error{Code: CodeInternal, Message: err.Error()}
	}
}

func (h *Handler) initialize(ctx context.Context, args Arguments) (interface{}, error) {
	var cfg plugin.Config
	var err error

	if cfg.AppName, err = args.String("appName"); err != nil {
		return nil, err
	}
	if cfg.AUMID, err = args.String("aumid"); err != nil {
		return nil, err
	}
	if cfg.AUMID == "" {
		return nil, argError("aumid", ReasonMalformed, "must not be empty")
	}
	if cfg.GUID, err = args.String("guid"); err != nil {
		return nil, err
	}
	if cfg.IconPath, err = args.OptionalString("iconPath"); err != nil {
		return nil, err
	}
	if cfg.IconColor, err = args.OptionalString("iconBgColor"); err != nil {
		return nil, err
	}

	if err := h.core.Initialize(ctx, cfg); err != nil {
		return nil, err
	}
	return true, nil
}

// notificationContent reads the content fields shared by show and the
// scheduling methods. Raw markup and group may be given at the top level or
// inside platformSpecifics.
func notificationContent(args Arguments) (plugin.Content, error) {
	var c plugin.Content

	specifics, err := args.Map("platformSpecifics")
	if err != nil {
		return c, err
	}
	if specifics == nil {
		specifics = Arguments{}
	}

	for _, src := range []Arguments{specifics, args} {
		if c.RawXML == "" {
			if c.RawXML, err = src.OptionalString("rawXml"); err != nil {
				return c, err
			}
		}
		if c.Group == "" {
			if c.Group, err = src.OptionalString("group"); err != nil {
				return c, err
			}
		}
	}

	if c.Title, err = args.OptionalString("title"); err != nil {
		return c, err
	}
	if c.Body, err = args.OptionalString("body"); err != nil {
		return c, err
	}
	if c.Payload, err = args.OptionalString("payload"); err != nil {
		return c, err
	}
	if c.Bindings, err = args.StringMap("data"); err != nil {
		return c, err
	}

	if c.RawXML == "" && c.Title == "" && c.Body == "" {
		return c, argError("rawXml", ReasonAbsent, "rawXml or title/body is required")
	}
	return c, nil
}

func (h *Handler) show(ctx context.Context, args Arguments) (interface{}, error) {
	id, err := args.Int64("id")
	if err != nil {
		return nil, err
	}
	c, err := notificationContent(args)
	if err != nil {
		return nil, err
	}
	return nil, h.core.Show(ctx, id, c)
}

func (h *Handler) zonedSchedule(ctx context.Context, args Arguments) (interface{}, error) {
	id, err := args.Int64("id")
	if err != nil {
		return nil, err
	}
	c, err := notificationContent(args)
	if err != nil {
		return nil, err
	}

	value, err := args.String("scheduledDateTime")
	if err != nil {
		return nil, err
	}
	tz, err := args.String("timeZoneName")
	if err != nil {
		return nil, err
	}
	at, err := scheduler.ParseLocalDateTime(value, tz)
	if err != nil {
		return nil, argError("scheduledDateTime", ReasonMalformed, err.Error())
	}

	var match *scheduler.Match
	raw, ok, err := args.OptionalInt64("matchDateTimeComponents")
	if err != nil {
		return nil, err
	}
	if ok {
		m, err := scheduler.ParseMatch(int(raw))
		if err != nil {
			return nil, argError("matchDateTimeComponents", ReasonOutOfRange, err.Error())
		}
		match = &m
	}

	return nil, h.core.ZonedSchedule(ctx, id, c, at, match)
}

func (h *Handler) scheduleNotification(ctx context.Context, args Arguments) (interface{}, error) {
	id, err := args.Int64("id")
	if err != nil {
		return nil, err
	}
	c, err := notificationContent(args)
	if err != nil {
		return nil, err
	}
	unix, err := args.Int64("time")
	if err != nil {
		return nil, err
	}
	return nil, h.core.ScheduleAt(ctx, id, c, time.Unix(unix, 0))
}

func (h *Handler) periodicallyShow(ctx context.Context, args Arguments) (interface{}, error) {
	id, err := args.Int64("id")
	if err != nil {
		return nil, err
	}
	interval, err := args.Int64("repeatInterval")
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Period(int(interval)); err != nil {
		return nil, argError("repeatInterval", ReasonOutOfRange, err.Error())
	}
	c, err := notificationContent(args)
	if err != nil {
		return nil, err
	}
	return nil, h.core.PeriodicallyShow(ctx, id, c, int(interval))
}

func (h *Handler) cancel(ctx context.Context, args Arguments) (interface{}, error) {
	id, err := args.Int64("id")
	if err != nil {
		return nil, err
	}
	group, err := args.OptionalString("group")
	if err != nil {
		return nil, err
	}
	return nil, h.core.Cancel(ctx, id, group)
}

func (h *Handler) cancelAll(ctx context.Context, _ Arguments) (interface{}, error) {
	return nil, h.core.CancelAll(ctx)
}

func (h *Handler) cancelPeriodic(ctx context.Context, args Arguments) (interface{}, error) {
	id, err := args.Int64("id")
	if err != nil {
		return nil, err
	}
	return nil, h.core.CancelPeriodic(ctx, id)
}

func idList(ids []int64) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]interface{}{"id": id})
	}
	return out
}

func (h *Handler) active(ctx context.Context, _ Arguments) (interface{}, error) {
	ids, err := h.core.Active(ctx)
	if err != nil {
		return nil, err
	}
	return idList(ids), nil
}

func (h *Handler) pending(ctx context.Context, _ Arguments) (interface{}, error) {
	ids, err := h.core.Pending(ctx)
	if err != nil {
		return nil, err
	}
	return idList(ids), nil
}

func (h *Handler) update(ctx context.Context, args Arguments) (interface{}, error) {
	id, err := args.Int64("id")
	if err != nil {
		return nil, err
	}
	bindings, err := args.StringMap("data")
	if err != nil {
		return nil, err
	}
	if bindings == nil {
		return nil, argError("data", ReasonAbsent, "")
	}
	group, err := args.OptionalString("group")
	if err != nil {
		return nil, err
	}

	result, err := h.core.Update(ctx, id, bindings, group)
	if err != nil {
		return nil, err
	}
	return result.String(), nil
}

// ResponsePayload shapes an activation the way the app receives it, both in
// launch details and in didReceiveNotificationResponse events.
func ResponsePayload(details activation.LaunchDetails) map[string]interface{} {
	data := make(map[string]interface{}, len(details.Inputs))
	for k, v := range details.Inputs {
		data[k] = v
	}
	return map[string]interface{}{
		"notificationResponseType": int(details.LaunchType),
		"payload":                  details.Payload,
		"data":                     data,
	}
}

func (h *Handler) launchDetails(ctx context.Context, _ Arguments) (interface{}, error) {
	details, ok := h.core.LaunchDetails()
	if !ok || !details.DidLaunch {
		return map[string]interface{}{"notificationLaunchedApp": false}, nil
	}
	return map[string]interface{}{
		"notificationLaunchedApp": true,
		"notificationResponse":    ResponsePayload(details),
	}, nil
}

// Code is the error code err is reported with.
func Code(err error) string {
	return toError(err).Code
}
