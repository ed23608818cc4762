package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/kolide/kit/logutil"
)

func main() {
	var logger log.Logger
	logger = log.NewJSONLogger(os.Stderr) // only used until options are parsed.

	if err := runSubcommand(os.Args[1:]); err != nil {
		logutil.Fatal(logger, "err", fmt.Errorf("running notifyd: %w", err))
	}
}

// runSubcommand picks the subcommand from the first positional argument.
// Anything else, including the -ToastActivated relaunch from COM, is serve.
func runSubcommand(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return runServe(args)
	}

	var run func([]string) error
	switch args[0] {
	case "serve":
		run = runServe
	case "call":
		run = runCall
	case "doctor":
		run = runDoctor
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}

	if err := run(args[1:]); err != nil {
		return fmt.Errorf("running subcommand %s: %w", args[0], err)
	}
	return nil
}
