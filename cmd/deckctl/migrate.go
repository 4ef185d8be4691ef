package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/deck.control/internal/db"
)

// openDB opens the calibration database without migrating it, so the
// migrate subcommands see the schema as it is.
func openDB(g *globals) (*db.DB, error) {
	return db.OpenDB(g.dbPath)
}

func newMigrateCmd(g *globals) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the calibration database schema",
	}

	run := func(fn func(d *db.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			d, err := openDB(g)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := fn(d, args); err != nil {
				return err
			}
			status, err := d.Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d (dirty=%v)\n", status.Current, status.Latest, status.Dirty)
			return nil
		}
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(func(d *db.DB, _ []string) error { return d.MigrateUp() }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back one migration",
			Args:  cobra.NoArgs,
			RunE:  run(func(d *db.DB, _ []string) error { return d.MigrateDown() }),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE:  run(func(*db.DB, []string) error { return nil }),
		},
		&cobra.Command{
			Use:   "to VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(d *db.DB, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return d.MigrateTo(uint(v))
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark the schema as VERSION without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(d *db.DB, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return d.MigrateForce(v)
			}),
		},
	)
	return migrateCmd
}
