package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime/cgo"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/agent/storage"
	agentbbolt "github.com/kolide/localnotify/ee/agent/storage/bbolt"
	"github.com/kolide/localnotify/ee/notify/methodchannel"
	"github.com/kolide/localnotify/ee/notify/plugin"
	"go.etcd.io/bbolt"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Status codes, kept in step with ffi_api.h.
const (
	statusOK              = 0
	statusInvalidXML      = 1
	statusInvalidArgument = 2
	statusNotFound        = 3
	statusNotInitialized  = 4
	statusInternal        = 5
)

var errInvalidHandle = errors.New("invalid plugin handle")

// abiIDs narrows ids to the 32-bit width of the C ABI. Ids that do not fit
// were created through the method channel and cannot be named by C callers,
// so they are left out.
func abiIDs(ids []int64) []int32 {
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		if id < math.MinInt32 || id > math.MaxInt32 {
			continue
		}
		out = append(out, int32(id))
	}
	return out
}

// ffiPlugin is what a handle refers to.
type ffiPlugin struct {
	logger   log.Logger
	plugin   *plugin.Plugin
	db       *bbolt.DB
	closeLog func() error

	// disposed guards against a handle being used after disposePlugin.
	lock     sync.Mutex
	disposed bool
}

// newFFIPlugin creates a plugin. With a root directory, scheduled
// notifications persist in a database there.
func newFFIPlugin(rootDirectory string) (*ffiPlugin, error) {
	logger, closeLog := libraryLogger()
	fp := &ffiPlugin{logger: logger, closeLog: closeLog}

	opts := []plugin.Option{plugin.WithLogger(logger)}

	if rootDirectory != "" {
		if err := os.MkdirAll(rootDirectory, 0700); err != nil {
			closeLog()
			return nil, fmt.Errorf("creating root directory: %w", err)
		}
		db, err := agentbbolt.OpenDB(rootDirectory)
		if err != nil {
			closeLog()
			return nil, err
		}
		stores, err := agentbbolt.MakeStores(logger, db)
		if err != nil {
			db.Close()
			closeLog()
			return nil, fmt.Errorf("making stores: %w", err)
		}
		fp.db = db
		opts = append(opts, plugin.WithScheduleStore(stores[storage.ScheduledNotificationsStore]))
	}

	fp.plugin = plugin.New(opts...)
	return fp, nil
}

func (fp *ffiPlugin) dispose() {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	if fp.disposed {
		return
	}
	fp.disposed = true

	if err := fp.plugin.Close(); err != nil {
		level.Error(fp.logger).Log("msg", "closing plugin", "err", err)
	}
	if fp.db != nil {
		if err := fp.db.Close(); err != nil {
			level.Error(fp.logger).Log("msg", "closing database", "err", err)
		}
	}
	fp.closeLog()
}

func (fp *ffiPlugin) core() (*plugin.Plugin, error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	if fp.disposed {
		return nil, errInvalidHandle
	}
	return fp.plugin, nil
}

// lookup resolves a handle without panicking on garbage.
func lookup(h uintptr) (fp *ffiPlugin, err error) {
	if h == 0 {
		return nil, errInvalidHandle
	}
	defer func() {
		if r := recover(); r != nil {
			fp, err = nil, errInvalidHandle
		}
	}()

	fp, ok := cgo.Handle(h).Value().(*ffiPlugin)
	if !ok {
		return nil, errInvalidHandle
	}
	return fp, nil
}

func statusFor(err error) int32 {
	if err == nil {
		return statusOK
	}
	if errors.Is(err, errInvalidHandle) {
		return statusInvalidArgument
	}

	switch methodchannel.Code(err) {
	case methodchannel.CodeInvalidXML:
		return statusInvalidXML
	case methodchannel.CodeInvalidArgument:
		return statusInvalidArgument
	case methodchannel.CodeNotFound:
		return statusNotFound
	case methodchannel.CodeNotInitialized:
		return statusNotInitialized
	default:
		return statusInternal
	}
}

// libraryLogger is silent unless LOCALNOTIFY_LOG_FILE names a file to write
// rotated JSON logs to. A host application's stderr is not ours to write to.
func libraryLogger() (log.Logger, func() error) {
	path := os.Getenv("LOCALNOTIFY_LOG_FILE")
	if path == "" {
		return log.NewNopLogger(), func() error { return nil }
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
	}
	logger := log.NewJSONLogger(log.NewSyncWriter(lj))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "component", "notifyffi")
	return level.NewFilter(logger, level.AllowInfo()), lj.Close
}
