// Command ravel is the CLI entry point for ravel, a content-addressed data
// version control tool. It follows the teacher's cmd/mutagen layout: a
// root cobra.Command wiring version/help flags, with one file per
// subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ravel-dvc/ravel/pkg/logging"
	"github.com/ravel-dvc/ravel/pkg/must"
	"github.com/ravel-dvc/ravel/pkg/ravel"
)

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(ravel.Version)
		return
	}
	must.CommandHelp(command, logging.RootLogger)
}

var rootCommand = &cobra.Command{
	Use:   "ravel",
	Short: "ravel tracks large files and reproducible data pipelines alongside source control.",
	Run:   rootMain,
}

var rootConfiguration struct {
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		initCommand,
		addCommand,
		runCommand,
		statusCommand,
		dagCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
