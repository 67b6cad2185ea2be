// Package cmd defines and implements the CLI commands for the sourcer
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// appKeyType is the key for storing the app in the command context.
type appKeyType struct{}

var appKey appKeyType

// newAppFn is a factory variable so tests can inject a prebuilt app.
var newAppFn = newApp

// newRootCmd creates and configures the root command. Service wiring happens
// in PersistentPreRunE so every subcommand gets a fully built app from its
// context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sourcer",
		Short: "Adaptive candidate sourcing for recruiting runs",
		Long: `sourcer turns a raw job description into a ranked list of candidate
profiles. It searches the public web, acquires profile content through a
chain of fallback channels, enriches and embeds each profile, and scores
every candidate against the role and past successful placements.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newAppFn(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment only)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPlacementsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app, error) {
	appInstance, ok := ctx.Value(appKey).(*app)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
