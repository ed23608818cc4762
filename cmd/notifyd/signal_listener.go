package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/shirou/gopsutil/process"
)

// signalListener is an actor that returns once the process is signalled.
type signalListener struct {
	sigChannel  chan os.Signal
	cancel      context.CancelFunc
	logger      log.Logger
	interrupted atomic.Bool
}

func newSignalListener(sigChannel chan os.Signal, cancel context.CancelFunc, logger log.Logger) *signalListener {
	return &signalListener{
		sigChannel: sigChannel,
		cancel:     cancel,
		logger:     log.With(logger, "component", "signal_listener"),
	}
}

func (s *signalListener) Execute() error {
	signal.Notify(s.sigChannel, os.Interrupt, syscall.SIGTERM)
	sig, ok := <-s.sigChannel
	if ok {
		level.Info(s.logger).Log("msg", "beginning shutdown via signal", "signal_received", sig)
	}
	return nil
}

func (s *signalListener) Interrupt(_ error) {
	if s.interrupted.Swap(true) {
		return
	}
	s.cancel()
	signal.Stop(s.sigChannel)
	close(s.sigChannel)
}

// monitorParentProcess returns when pid is gone or ctx is done.
func monitorParentProcess(ctx context.Context, logger log.Logger, pid int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		exists, err := process.PidExistsWithContext(checkCtx, int32(pid))
		cancel()
		if err != nil || !exists {
			level.Info(logger).Log("msg", "parent process gone", "parent_pid", pid, "err", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
