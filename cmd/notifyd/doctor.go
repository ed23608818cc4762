package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/kolide/kit/logutil"
	"github.com/kolide/localnotify/ee/agent/storage"
	agentbbolt "github.com/kolide/localnotify/ee/agent/storage/bbolt"
	"github.com/kolide/localnotify/ee/agent/types"
	"github.com/kolide/localnotify/ee/debug/checkups"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/methodchannel"
	"github.com/kolide/localnotify/ee/notify/toaster"
	"github.com/peterbourgon/ff/v3"
)

func runDoctor(args []string) error {
	var (
		flagset       = flag.NewFlagSet("notifyd doctor", flag.ContinueOnError)
		clientOptions = addClientFlags(flagset)
		flAumid       = flagset.String("aumid", "", "application user model id to check the registration of")
		flProbe       = flagset.Bool("probe", false, "push a test notification")
		flDebug       = flagset.Bool("debug", false, "enable debug logging")
	)

	if err := ff.Parse(flagset, args, ff.WithEnvVarPrefix(envPrefix)); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	opts := clientOptions()

	logger := log.With(logutil.NewCLILogger(*flDebug), "caller", log.DefaultCaller)

	env := checkups.Environment{
		AUMID:          *flAumid,
		PackageChecker: identity.NewPackageChecker(),
	}

	// The daemon holds the database lock while it runs, so only wait briefly.
	var store types.GetterSetterDeleter
	if db, err := agentbbolt.OpenDBTimeout(opts.rootDirectory, time.Second); err == nil {
		defer db.Close()
		if stores, err := agentbbolt.MakeStores(logger, db); err == nil {
			store = stores[storage.RegistrationStore]
			env.ScheduleStore = stores[storage.ScheduledNotificationsStore]
		}
	} else {
		fmt.Fprintf(os.Stdout, "database unavailable, skipping stored state: %s\n\n", err)
	}
	env.Registry = doctorRegistry(store)

	authToken := opts.authToken
	if authToken == "" {
		authToken, _ = readAuthToken(opts.rootDirectory)
	}
	client := methodchannel.NewClient(authToken, opts.socketPath, opts.timeout)
	env.Ping = client.Ping

	if *flProbe {
		aumid := *flAumid
		env.Probe = func(ctx context.Context) (string, error) {
			return toaster.Probe(ctx, logger, aumid)
		}
	}

	if failures := checkups.RunDoctor(context.Background(), env, os.Stdout); failures > 0 {
		return fmt.Errorf("%d checkups failed", failures)
	}
	return nil
}
