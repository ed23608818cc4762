package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kolide/localnotify/ee/notify/launchdetails"
	"github.com/peterbourgon/ff/v3"
)

const envPrefix = "LOCALNOTIFY"

// options is the configuration of the serve subcommand.
type options struct {
	rootDirectory    string
	socketPath       string
	authToken        string
	appName          string
	aumid            string
	guid             string
	iconPath         string
	iconBgColor      string
	launchMode       launchdetails.Mode
	fixedPeriodRearm bool
	toasterBackend   string
	parentPid        int
	logFile          string
	debug            bool
	toastActivated   bool
}

func parseOptions(args []string) (*options, error) {
	var (
		flagset          = flag.NewFlagSet("notifyd serve", flag.ContinueOnError)
		flRootDirectory  = flagset.String("root_directory", defaultRootDirectory(), "directory holding the database and auth token")
		flSocketPath     = flagset.String("socket_path", "", "socket or named pipe to serve the method channel on")
		flAuthToken      = flagset.String("auth_token", "", "bearer token clients must present; generated and saved when empty")
		flAppName        = flagset.String("app_name", "", "display name of the app in the notification center")
		flAumid          = flagset.String("aumid", "", "application user model id")
		flGUID           = flagset.String("guid", "", "activator class id; derived from the aumid when empty")
		flIconPath       = flagset.String("icon_path", "", "icon shown for unpackaged apps")
		flIconBgColor    = flagset.String("icon_bg_color", "", "icon background color, ARGB hex")
		flLaunchMode     = flagset.String("launch_details_mode", launchdetails.ClearOnRead.String(), "clear_on_read or persist")
		flFixedRearm     = flagset.Bool("fixed_period_rearm", false, "re-arm calendar notifications by a fixed day or week instead of recomputing the wall-clock match")
		flToaster        = flagset.String("toaster", "os", "notification backend: os or memory")
		flParentPid      = flagset.Int("parent_pid", 0, "exit when this process exits")
		flLogFile        = flagset.String("log_file", "", "write rotated JSON logs to this file")
		flDebug          = flagset.Bool("debug", false, "enable debug logging")
		flToastActivated = flagset.Bool("ToastActivated", false, "set by the OS when a notification launches this process")
		_                = flagset.String("config", "", "config file to parse options from (optional)")
	)

	if err := ff.Parse(flagset, args,
		ff.WithEnvVarPrefix(envPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	mode, err := launchdetails.ParseMode(*flLaunchMode)
	if err != nil {
		return nil, err
	}

	switch *flToaster {
	case "os", "memory":
	default:
		return nil, fmt.Errorf("unknown toaster %q", *flToaster)
	}

	opts := &options{
		rootDirectory:    *flRootDirectory,
		socketPath:       *flSocketPath,
		authToken:        *flAuthToken,
		appName:          *flAppName,
		aumid:            *flAumid,
		guid:             *flGUID,
		iconPath:         *flIconPath,
		iconBgColor:      *flIconBgColor,
		launchMode:       mode,
		fixedPeriodRearm: *flFixedRearm,
		toasterBackend:   *flToaster,
		parentPid:        *flParentPid,
		logFile:          *flLogFile,
		debug:            *flDebug,
		toastActivated:   *flToastActivated,
	}

	if opts.socketPath == "" {
		opts.socketPath = defaultSocketPath(opts.rootDirectory)
	}

	return opts, nil
}

// clientOptions is the configuration shared by call and doctor.
type clientOptions struct {
	rootDirectory string
	socketPath    string
	authToken     string
	timeout       time.Duration
}

func addClientFlags(flagset *flag.FlagSet) func() clientOptions {
	var (
		flRootDirectory = flagset.String("root_directory", defaultRootDirectory(), "directory holding the auth token")
		flSocketPath    = flagset.String("socket_path", "", "socket or named pipe the daemon serves on")
		flAuthToken     = flagset.String("auth_token", "", "bearer token; read from the root directory when empty")
		flTimeout       = flagset.Duration("timeout", 10*time.Second, "request timeout")
	)

	return func() clientOptions {
		opts := clientOptions{
			rootDirectory: *flRootDirectory,
			socketPath:    *flSocketPath,
			authToken:     *flAuthToken,
			timeout:       *flTimeout,
		}
		if opts.socketPath == "" {
			opts.socketPath = defaultSocketPath(opts.rootDirectory)
		}
		return opts
	}
}

func defaultRootDirectory() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "localnotify")
	}
	return filepath.Join(dir, "localnotify")
}
