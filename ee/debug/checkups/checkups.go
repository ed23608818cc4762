// Package checkups contains small diagnostic functions run by `notifyd doctor`.
// Each reports a status and a short summary line.
package checkups

import (
	"context"
	"fmt"
	"io"
	"time"
)

type Status string

const (
	Unknown       Status = "Unknown"
	Erroring      Status = "Error"         // The checkup was unable to run
	Informational Status = "Informational" // Checkup does not have pass/fail status, information only
	Passing       Status = "Passing"       // Checkup is passing
	Warning       Status = "Warning"       // Checkup is warning
	Failing       Status = "Failing"       // Checkup is failing
)

func writeSummary(w io.Writer, s Status, name, msg string) {
	fmt.Fprintf(w, "%s\t%s: %s\n", s.Emoji(), name, msg)
}

type checkupInt interface {
	Name() string                  // Checkup name
	Run(ctx context.Context) error // Run the checkup. Errors here are protocol level
	Summary() string               // Short summary string about the status
	Status() Status                // State of this checkup
}

func checkupsFor(env Environment) []checkupInt {
	potentialCheckups := []checkupInt{
		&Platform{},
		&packageIdentityCheckup{env: env},
		&registrationCheckup{env: env},
		&scheduleStoreCheckup{env: env},
		&daemonCheckup{env: env},
		&toastProbeCheckup{env: env},
	}

	checkupsToRun := make([]checkupInt, 0, len(potentialCheckups))
	for _, c := range potentialCheckups {
		// An empty name means the checkup does not apply to this environment.
		if c.Name() == "" {
			continue
		}
		checkupsToRun = append(checkupsToRun, c)
	}

	return checkupsToRun
}

func doctorCheckup(ctx context.Context, c checkupInt, w io.Writer) {
	if err := c.Run(ctx); err != nil {
		writeSummary(w, Erroring, c.Name(), fmt.Sprintf("failed to run: %s", err))
		return
	}

	writeSummary(w, c.Status(), c.Name(), c.Summary())
}

// RunDoctor runs every applicable checkup, writing one line per checkup and a
// list of failures. It returns the number of failing checkups.
func RunDoctor(ctx context.Context, env Environment, w io.Writer) int {
	failingCheckups := []string{}
	warningCheckups := []string{}

	for _, c := range checkupsFor(env) {
		switch runDoctorCheckup(ctx, c, w) {
		case Warning:
			warningCheckups = append(warningCheckups, c.Name())
		case Failing, Erroring:
			failingCheckups = append(failingCheckups, c.Name())
		case Unknown, Informational, Passing:
		}
	}

	if len(warningCheckups) > 0 {
		fmt.Fprintf(w, "\nCheckups with warnings:\n")
		for _, n := range warningCheckups {
			fmt.Fprintf(w, "\t* %s\n", n)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(failingCheckups) > 0 {
		fmt.Fprintf(w, "\nCheckups with failures:\n")
		for _, n := range failingCheckups {
			fmt.Fprintf(w, "\t* %s\n", n)
		}
		fmt.Fprintf(w, "\n")
	}

	return len(failingCheckups)
}

func runDoctorCheckup(ctx context.Context, c checkupInt, w io.Writer) Status {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	doctorCheckup(ctx, c, w)

	// A checkup that errored may not have set a status.
	if s := c.Status(); s != "" {
		return s
	}
	return Erroring
}
