package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ravel-dvc/ravel/internal/ravelctx"
	"github.com/ravel-dvc/ravel/internal/track"
	"github.com/ravel-dvc/ravel/pkg/logging"
)

func addMain(command *cobra.Command, arguments []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	ctx, err := ravelctx.Open(dir, logging.RootLogger.Sublogger("add"))
	if err != nil {
		return err
	}
	defer ctx.Close()

	for _, path := range arguments {
		if err := track.Add(ctx.Store, path, addConfiguration.recursive); err != nil {
			return fmt.Errorf("unable to add %s: %w", path, err)
		}
		fmt.Println(path)
	}
	return nil
}

var addCommand = &cobra.Command{
	Use:   "add <path>...",
	Short: "Hash and store one or more files or directories, writing their sidecars",
	Args:  cobra.MinimumNArgs(1),
	Run:   mainify(addMain),
}

var addConfiguration struct {
	recursive bool
}

func init() {
	flags := addCommand.Flags()
	flags.BoolVarP(&addConfiguration.recursive, "recursive", "r", false,
		"Refresh stale dependencies depth-first instead of failing")
}
