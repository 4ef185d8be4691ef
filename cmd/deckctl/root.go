package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/deck.control/internal/config"
	"github.com/banshee-data/deck.control/internal/monitoring"
	"github.com/banshee-data/deck.control/internal/serialmux"
	"github.com/banshee-data/deck.control/internal/version"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	dbPath          string
	calibrationFile string
	layoutPath      string
	containersPath  string
	verbose         bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "deckctl",
		Short:         "deckctl inspects and edits liquid-handler deck state",
		Long:          `deckctl works on the calibration database, container definitions and deck layouts without a running daemon, and can query a running deckd.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !g.verbose {
				monitoring.SetLogger(nil)
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.dbPath, "db", config.DefaultDatabasePath, "Calibration database")
	pf.StringVar(&g.calibrationFile, "calibration-file", "", "Use a legacy JSON calibration file instead of the database")
	pf.StringVar(&g.layoutPath, "layout", "", "Deck layout YAML")
	pf.StringVar(&g.containersPath, "containers", "", "Extra container definitions JSON")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log progress to stderr")

	rootCmd.AddCommand(
		newMigrateCmd(g),
		newCalibrationsCmd(g),
		newLabwareCmd(g),
		newRemoteCmd(),
		newPortsCmd(),
	)
	rootCmd.AddCommand(newDeckCmds(g)...)
	return rootCmd
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports, to find the motor controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialmux.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no serial ports found")
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
