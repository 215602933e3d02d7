package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Error prints an error message to standard error. If err carries a stack
// trace (attached by mainify at the CLI boundary), it's printed beneath the
// message to aid postmortem debugging of a fatal exit.
func Error(err error) {
	fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
}

// Fatal prints an error message to standard error and terminates the
// process with an error exit code.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// mainify wraps a Cobra entry point that returns an error (convenient for
// defer-based cleanup) into the standard Cobra entry point signature,
// following the teacher's cmd.Mainify. It attaches a stack trace at this
// CLI boundary via pkg/errors, the same ad hoc wrapping the teacher applies
// around its own command.Fatal calls (cmd/mutagen/main.go's
// errors.Wrap(err, ...) before cmd.Fatal), so a fatal exit prints where the
// error actually originated rather than just its message.
func mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(errors.WithStack(err))
		}
	}
}
