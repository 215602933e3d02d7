package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ravel-dvc/ravel/internal/config"
)

func initMain(command *cobra.Command, arguments []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("unable to determine working directory: %w", err)
	}

	if err := config.Init(dir); err != nil {
		return fmt.Errorf("unable to initialize project: %w", err)
	}

	fmt.Printf("Initialized ravel project in %s\n", dir)
	return nil
}

var initCommand = &cobra.Command{
	Use:   "init",
	Short: "Initialize a ravel project in the current directory",
	Args:  cobra.NoArgs,
	Run:   mainify(initMain),
}
