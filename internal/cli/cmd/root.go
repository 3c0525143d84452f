// Package cmd provides Cobra CLI commands for geoperm.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plumekit/geoperm/internal/cli"
)

var (
	app     *cli.App
	rootCmd = &cobra.Command{
		Use:   "geoperm",
		Short: "Inspect and manage remembered geolocation permissions",
		Long: `Geoperm - administration surface for the browser's geolocation permission store.

Remembered ("always allow" / "always deny") decisions are shared by every
tab and persisted to a SQLite database. This tool lists, seeds, and clears
those stored decisions. Per-tab temporary decisions live only inside a
running browser and are not visible here.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}

			var err error
			app, err = cli.NewApp()
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if app != nil {
				_ = app.Close()
			}
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
