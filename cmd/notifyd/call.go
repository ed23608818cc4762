package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/kolide/localnotify/ee/notify/methodchannel"
	"github.com/peterbourgon/ff/v3"
)

// runCall invokes one method on a running daemon and prints the result as
// JSON, or with -events prints pushed events until interrupted.
//
//	notifyd call show '{"id": 1, "title": "Hello", "body": "World"}'
func runCall(args []string) error {
	var (
		flagset       = flag.NewFlagSet("notifyd call", flag.ContinueOnError)
		clientOptions = addClientFlags(flagset)
		flEvents      = flagset.Bool("events", false, "print notification responses as they arrive")
	)

	if err := ff.Parse(flagset, args, ff.WithEnvVarPrefix(envPrefix)); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	opts := clientOptions()

	authToken := opts.authToken
	if authToken == "" {
		var err error
		if authToken, err = readAuthToken(opts.rootDirectory); err != nil {
			return err
		}
	}

	client := methodchannel.NewClient(authToken, opts.socketPath, opts.timeout)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *flEvents {
		return printEvents(ctx, client)
	}

	if flagset.NArg() < 1 {
		return fmt.Errorf("usage: notifyd call [flags] <method> [json arguments]")
	}

	method := flagset.Arg(0)
	var methodArgs map[string]interface{}
	if flagset.NArg() > 1 {
		if err := json.Unmarshal([]byte(flagset.Arg(1)), &methodArgs); err != nil {
			return fmt.Errorf("parsing arguments: %w", err)
		}
	}

	result, err := client.Invoke(ctx, method, methodArgs)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func printEvents(ctx context.Context, client *methodchannel.Client) error {
	events, err := client.Events(ctx)
	if err != nil {
		return err
	}
	for event := range events {
		if err := printJSON(event); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
