package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/deck.control/internal/api"
	"github.com/banshee-data/deck.control/internal/httputil"
)

const defaultDaemonAddr = "http://localhost:31950"

func newRemoteCmd() *cobra.Command {
	var addr string
	client := func() *httputil.Client { return httputil.NewClient(addr, nil) }

	remoteCmd := &cobra.Command{
		Use:   "remote",
		Short: "Query a running deckd",
	}
	remoteCmd.PersistentFlags().StringVar(&addr, "addr", defaultDaemonAddr, "Daemon base URL")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st api.Status
			if err := client().GetJSON(cmd.Context(), "/api/status", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:    %s (%s)\n", st.Version, st.GitSHA)
			fmt.Fprintf(out, "session:    %s\n", st.SessionID)
			fmt.Fprintf(out, "started:    %s\n", st.StartedAt)
			fmt.Fprintf(out, "nodes:      %d\n", st.TrackedNodes)
			fmt.Fprintf(out, "containers: %d\n", st.Containers)
			fmt.Fprintf(out, "pipettes:   %d\n", st.Pipettes)
			if st.Schema != nil {
				fmt.Fprintf(out, "schema:     %d of %d (dirty=%v)\n", st.Schema.Current, st.Schema.Latest, st.Schema.Dirty)
			}
			return nil
		},
	}

	positionCmd := &cobra.Command{
		Use:   "position REF",
		Short: "Show the daemon's tracked position for REF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p api.Position
			if err := client().GetJSON(cmd.Context(), "/api/pose/position", url.Values{"label": {args[0]}}, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3f\t%.3f\t%.3f\n", p.Label, p.X, p.Y, p.Z)
			return nil
		},
	}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the daemon's pose tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := client().Get(cmd.Context(), "/api/pose/tree", nil)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	calibrationsCmd := &cobra.Command{
		Use:   "calibrations",
		Short: "List the daemon's stored offsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cals []api.CalibrationInfo
			if err := client().GetJSON(cmd.Context(), "/api/calibrations", nil, &cals); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tDX\tDY\tDZ")
			for _, c := range cals {
				fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\n", c.Key, c.DX, c.DY, c.DZ)
			}
			return tw.Flush()
		},
	}

	remoteCmd.AddCommand(statusCmd, positionCmd, treeCmd, calibrationsCmd)
	return remoteCmd
}
