package main

import (
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/logutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger logs to stderr, or to a rotated file when logFile is set. The
// rotated file is what a COM-launched process without a console leaves behind.
func newLogger(debug bool, logFile string) (log.Logger, func() error) {
	if logFile == "" {
		return logutil.NewServerLogger(debug), func() error { return nil }
	}

	lj := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(lj))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	if debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return log.With(logger, "pid", os.Getpid()), lj.Close
}
