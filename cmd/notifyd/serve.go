package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/agent/storage"
	agentbbolt "github.com/kolide/localnotify/ee/agent/storage/bbolt"
	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/methodchannel"
	"github.com/kolide/localnotify/ee/notify/plugin"
	"github.com/kolide/localnotify/ee/notify/toaster"
	"github.com/oklog/run"
)

func runServe(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	logger, closeLog := newLogger(opts.debug, opts.logFile)
	defer closeLog()
	logger = log.With(logger, "subprocess", "serve")

	level.Info(logger).Log(
		"msg", "starting",
		"root_directory", opts.rootDirectory,
		"socket_path", opts.socketPath,
		"toast_activated", opts.toastActivated,
	)

	if err := os.MkdirAll(opts.rootDirectory, 0700); err != nil {
		return fmt.Errorf("creating root directory: %w", err)
	}

	authToken := opts.authToken
	if authToken == "" {
		if authToken, err = loadAuthToken(opts.rootDirectory); err != nil {
			return err
		}
	}

	db, err := agentbbolt.OpenDB(opts.rootDirectory)
	if err != nil {
		return err
	}
	defer db.Close()

	stores, err := agentbbolt.MakeStores(logger, db)
	if err != nil {
		return fmt.Errorf("making stores: %w", err)
	}

	pluginOpts := []plugin.Option{
		plugin.WithLogger(logger),
		plugin.WithRegistry(newRegistry(stores[storage.RegistrationStore])),
		plugin.WithScheduleStore(stores[storage.ScheduledNotificationsStore]),
		plugin.WithConfigStore(stores[storage.AppConfigStore]),
		plugin.WithActivationArgs("-root_directory", opts.rootDirectory),
		plugin.WithFixedPeriodRearm(opts.fixedPeriodRearm),
		plugin.WithLaunchDetailsMode(opts.launchMode),
	}
	if opts.toasterBackend == "memory" {
		pluginOpts = append(pluginOpts, plugin.WithToasterFactory(memoryToaster))
	}

	p := plugin.New(pluginOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A COM relaunch must register the activator before the OS gives up on
	// it, so initialize now when the identity is known rather than waiting
	// for the app to call initialize.
	cfg, found, err := startupConfig(opts, stores[storage.AppConfigStore])
	switch {
	case err != nil:
		level.Error(logger).Log("msg", "loading saved configuration", "err", err)
	case found:
		if err := p.Initialize(ctx, cfg); err != nil {
			level.Error(logger).Log("msg", "initializing from configuration", "err", err)
		}
	case opts.toastActivated:
		level.Warn(logger).Log("msg", "launched by a notification but no app was ever initialized; the activation cannot be received")
	}

	var runGroup run.Group

	sigListener := newSignalListener(make(chan os.Signal, 1), cancel, logger)
	runGroup.Add(sigListener.Execute, sigListener.Interrupt)

	if opts.parentPid > 0 {
		parentCtx, parentCancel := context.WithCancel(ctx)
		runGroup.Add(func() error {
			monitorParentProcess(parentCtx, logger, opts.parentPid, 2*time.Second)
			return nil
		}, func(error) {
			parentCancel()
		})
	}

	shutdownChan := make(chan struct{}, 1)
	server, err := methodchannel.NewServer(logger, authToken, opts.socketPath, p, shutdownChan)
	if err != nil {
		return fmt.Errorf("creating method channel server: %w", err)
	}

	runGroup.Add(func() error {
		if err := server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			level.Error(logger).Log("msg", "shutting down server", "err", err)
		}
	})

	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	runGroup.Add(func() error {
		select {
		case <-shutdownChan:
			level.Info(logger).Log("msg", "shutdown requested by client")
		case <-shutdownCtx.Done():
		}
		return nil
	}, func(error) {
		shutdownCancel()
	})

	err = runGroup.Run()

	if closeErr := p.Close(); closeErr != nil {
		level.Error(logger).Log("msg", "closing plugin", "err", closeErr)
	}
	level.Info(logger).Log("msg", "stopped", "err", err)
	return err
}

// startupConfig is the identity to initialize with before any client connects:
// the one given in flags, or else the one saved by the last initialize.
func startupConfig(opts *options, saved types.Getter) (plugin.Config, bool, error) {
	if opts.aumid != "" {
		guid := opts.guid
		if guid == "" {
			guid = identity.DefaultGUID(opts.aumid)
		}
		return plugin.Config{
			AppName:   opts.appName,
			AUMID:     opts.aumid,
			GUID:      guid,
			IconPath:  opts.iconPath,
			IconColor: opts.iconBgColor,
		}, true, nil
	}

	if saved == nil {
		return plugin.Config{}, false, nil
	}
	return plugin.LoadConfig(saved)
}

func memoryToaster(id identity.AppIdentity, logger log.Logger, handler toaster.EventHandler) (toaster.Toaster, error) {
	return toaster.NewMemory(
		toaster.WithLogger(logger),
		toaster.WithAUMID(id.AUMID),
		toaster.WithEventHandler(handler),
	), nil
}
