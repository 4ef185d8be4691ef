package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/deck.control/internal/calibration"
	"github.com/banshee-data/deck.control/internal/db"
)

// openStore returns the calibration store selected by the global flags. The
// database is returned too, migrated, when it backs the store; close it when
// done.
func openStore(g *globals) (calibration.Store, *db.DB, error) {
	if g.calibrationFile != "" {
		return calibration.NewFileStore(g.calibrationFile), nil, nil
	}
	d, err := db.NewDB(g.dbPath)
	if err != nil {
		return nil, nil, err
	}
	return calibration.DBStore{DB: d}, d, nil
}

func closeDB(d *db.DB) {
	if d != nil {
		d.Close()
	}
}

func newCalibrationsCmd(g *globals) *cobra.Command {
	calCmd := &cobra.Command{
		Use:     "calibrations",
		Aliases: []string{"cal"},
		Short:   "List, import and export stored calibration offsets",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored offsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, d, err := openStore(g)
			if err != nil {
				return err
			}
			defer closeDB(d)

			deltas, err := store.Load()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(deltas))
			for k := range deltas {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tDX\tDY\tDZ")
			for _, k := range keys {
				dl := deltas[k]
				fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\n", k, dl.X, dl.Y, dl.Z)
			}
			return tw.Flush()
		},
	}

	var limit int
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the calibration audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := db.NewDB(g.dbPath)
			if err != nil {
				return err
			}
			defer d.Close()

			events, err := d.CalibrationLog(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tKEY\tDX\tDY\tDZ\tRELATIVE")
			for _, e := range events {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.3f\t%.3f\t%.3f\t%v\n",
					e.ID, e.RecordedAt.Format("2006-01-02 15:04:05"), e.Key, e.DX, e.DY, e.DZ, e.Relative)
			}
			return tw.Flush()
		},
	}
	logCmd.Flags().IntVar(&limit, "limit", 20, "Rows to show (0 for all)")

	deleteCmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Forget the stored offset for KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := db.NewDB(g.dbPath)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.DeleteDelta(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import FILE.json",
		Short: "Copy offsets from a legacy JSON calibration file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := copyDeltas(calibration.NewFileStore(args[0]), g.dbPath, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d offsets\n", n)
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export FILE.json",
		Short: "Write the database offsets to a JSON calibration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := copyDeltas(calibration.NewFileStore(args[0]), g.dbPath, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d offsets\n", n)
			return nil
		},
	}

	backupCmd := &cobra.Command{
		Use:   "backup FILE.db.gz",
		Short: "Write a gzipped snapshot of the calibration database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := db.NewDB(g.dbPath)
			if err != nil {
				return err
			}
			defer d.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := d.Backup(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	calCmd.AddCommand(listCmd, logCmd, deleteCmd, importCmd, exportCmd, backupCmd)
	return calCmd
}

// copyDeltas copies every offset between file and the database at dbPath;
// toDB picks the direction.
func copyDeltas(file *calibration.FileStore, dbPath string, toDB bool) (int, error) {
	d, err := db.NewDB(dbPath)
	if err != nil {
		return 0, err
	}
	defer d.Close()

	var src, dst calibration.Store = file, calibration.DBStore{DB: d}
	if !toDB {
		src, dst = dst, src
	}
	deltas, err := src.Load()
	if err != nil {
		return 0, err
	}
	for k, v := range deltas {
		if err := dst.Save(k, v); err != nil {
			return 0, err
		}
	}
	return len(deltas), nil
}
