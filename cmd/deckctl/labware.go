package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/deck.control/internal/labware"
)

func loadRegistry(g *globals) (*labware.Registry, error) {
	reg, err := labware.NewRegistry()
	if err != nil {
		return nil, err
	}
	if g.containersPath != "" {
		if err := reg.LoadFile(g.containersPath); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func newLabwareCmd(g *globals) *cobra.Command {
	labwareCmd := &cobra.Command{
		Use:   "labware",
		Short: "List and create container definitions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List known container types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(g)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tWELLS\tHEIGHT")
			for _, name := range reg.Names() {
				def, err := reg.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%.2f\n", name, len(def.Wells), def.Height())
			}
			return tw.Flush()
		},
	}

	var (
		columns, rows   int
		colSpacing      float64
		rowSpacing      float64
		diameter, depth float64
		volume          float64
		out             string
	)
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Define a grid container and write it to a JSON file",
		Long:  `Wells are named by column letter and row number (A1, B1, ... A2, ...), columns along X and rows along Y.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(g)
			if err != nil {
				return err
			}
			def, err := reg.Create(args[0], [2]int{columns, rows}, [2]float64{colSpacing, rowSpacing}, diameter, depth, volume)
			if err != nil {
				return err
			}
			if err := reg.WriteJSON(out, def.Name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d wells) to %s\n", def.Name, len(def.Wells), out)
			return nil
		},
	}
	f := createCmd.Flags()
	f.IntVar(&columns, "columns", 1, "Number of columns (at most 26)")
	f.IntVar(&rows, "rows", 1, "Number of rows")
	f.Float64Var(&colSpacing, "column-spacing", 9, "Column pitch in mm")
	f.Float64Var(&rowSpacing, "row-spacing", 9, "Row pitch in mm")
	f.Float64Var(&diameter, "diameter", 6, "Well diameter in mm")
	f.Float64Var(&depth, "depth", 10, "Well depth in mm")
	f.Float64Var(&volume, "volume", 200, "Well volume in uL")
	f.StringVarP(&out, "out", "o", "containers.json", "Output file")

	labwareCmd.AddCommand(listCmd, createCmd)
	return labwareCmd
}
