package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/deck.control/internal/broker"
	"github.com/banshee-data/deck.control/internal/calibration"
	"github.com/banshee-data/deck.control/internal/db"
	"github.com/banshee-data/deck.control/internal/deckview"
	"github.com/banshee-data/deck.control/internal/gcode"
	"github.com/banshee-data/deck.control/internal/layout"
	"github.com/banshee-data/deck.control/internal/robot"
	"github.com/banshee-data/deck.control/internal/serialmux"
)

// offlineDeck is a robot rebuilt from the layout file and stored
// calibrations, driving a simulated controller.
type offlineDeck struct {
	robot *robot.Robot
	calib *calibration.Manager
	sim   *serialmux.DisabledSerialMux
	db    *db.DB
}

func (o *offlineDeck) Close() { closeDB(o.db) }

func loadDeck(ctx context.Context, g *globals) (*offlineDeck, error) {
	reg, err := loadRegistry(g)
	if err != nil {
		return nil, err
	}
	sim := serialmux.NewDisabledSerialMux()
	r, err := robot.New(
		robot.WithRegistry(reg),
		robot.WithDriver(gcode.NewDriver(sim)),
		robot.WithBroker(broker.New()),
	)
	if err != nil {
		return nil, err
	}
	if g.layoutPath != "" {
		l, err := layout.Load(g.layoutPath)
		if err != nil {
			return nil, err
		}
		if err := l.Apply(ctx, r); err != nil {
			return nil, err
		}
	}

	store, d, err := openStore(g)
	if err != nil {
		return nil, err
	}
	m := calibration.NewManager(r.Tracker(), store)
	m.BindRobot(r)
	if _, err := m.Replay(); err != nil {
		closeDB(d)
		return nil, err
	}
	if d != nil {
		r.Broker().Subscribe("robot.calibrate.", calibration.AuditSubscriber(d))
	}
	return &offlineDeck{robot: r, calib: m, sim: sim, db: d}, nil
}

func newDeckCmds(g *globals) []*cobra.Command {
	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the pose tree of the loaded deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := loadDeck(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer deck.Close()
			fmt.Fprint(cmd.OutOrStdout(), deck.robot.Dump())
			return nil
		},
	}

	positionCmd := &cobra.Command{
		Use:   "position REF...",
		Short: "Print absolute positions, e.g. head, container/A1, well/A1/C1",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := loadDeck(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer deck.Close()
			for _, ref := range args {
				h, err := deck.robot.Resolve(ref)
				if err != nil {
					return err
				}
				p, err := deck.robot.Position(h)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3f\t%.3f\t%.3f\n", ref, p.X, p.Y, p.Z)
			}
			return nil
		},
	}

	maxZCmd := &cobra.Command{
		Use:   "max-z",
		Short: "Print the highest point on the deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := loadDeck(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer deck.Close()
			z, err := deck.robot.MaxDeckHeight()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", z)
			return nil
		},
	}

	var plotOut string
	plotCmd := &cobra.Command{
		Use:   "plot",
		Short: "Draw a top-down deck map (.png or .html)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := loadDeck(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer deck.Close()
			nodes, err := deckview.Snapshot(deck.robot)
			if err != nil {
				return err
			}
			switch strings.ToLower(filepath.Ext(plotOut)) {
			case ".png":
				err = deckview.WritePNG(plotOut, nodes)
			case ".html":
				var f *os.File
				f, err = os.Create(plotOut)
				if err != nil {
					return err
				}
				err = deckview.RenderHTML(f, nodes, "")
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			default:
				return fmt.Errorf("unsupported plot format %q (want .png or .html)", filepath.Ext(plotOut))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d nodes)\n", plotOut, len(nodes))
			return nil
		},
	}
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "deck.png", "Output file")

	var absolute bool
	var withPipette string
	calibrateCmd := &cobra.Command{
		Use:   "calibrate SLOT [DX DY DZ]",
		Short: "Adjust and save a container's offset",
		Long: `With DX DY DZ the offset is adjusted by that delta, or replaced with --absolute.
With --pipette the container origin is moved to where that pipette is.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if withPipette != "" {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(4)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := loadDeck(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer deck.Close()
			r := deck.robot

			c, err := r.Container(args[0])
			if err != nil {
				return err
			}
			if withPipette != "" {
				p, err := r.Pipette(withPipette)
				if err != nil {
					return err
				}
				if err := r.CalibrateContainerWithInstrument(c, p.Handle); err != nil {
					return err
				}
			} else {
				var delta [3]float64
				for i, s := range args[1:] {
					if delta[i], err = strconv.ParseFloat(s, 64); err != nil {
						return fmt.Errorf("invalid delta %q: %w", s, err)
					}
				}
				if err := r.CalibrateContainerWithDelta(c, delta[0], delta[1], delta[2], !absolute); err != nil {
					return err
				}
			}

			key := calibration.ContainerKey(c.Slot, c.Type)
			if err := deck.calib.Persist(key); err != nil {
				return err
			}
			p, err := r.Position(c.Handle)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now at (%.3f, %.3f, %.3f)\n", key, p.X, p.Y, p.Z)
			return nil
		},
	}
	calibrateCmd.Flags().BoolVar(&absolute, "absolute", false, "Replace the offset instead of adding to it")
	calibrateCmd.Flags().StringVar(&withPipette, "pipette", "", "Calibrate to the current position of the pipette on this mount")

	var strategy string
	var head []float64
	moveCmd := &cobra.Command{
		Use:   "move MOUNT TARGET",
		Short: "Print the G-code that moves a pipette to TARGET, e.g. move a well/A1/C1",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deck, err := loadDeck(ctx, g)
			if err != nil {
				return err
			}
			defer deck.Close()
			r := deck.robot

			s, err := robot.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			p, err := r.Pipette(args[0])
			if err != nil {
				return err
			}
			target, err := r.Resolve(args[1])
			if err != nil {
				return err
			}
			if len(head) > 0 {
				if len(head) != 3 {
					return fmt.Errorf("--from takes x,y,z")
				}
				if err := r.MoveHead(ctx, head[0], head[1], head[2]); err != nil {
					return err
				}
			}
			start := len(deck.sim.Sent())
			if err := r.MoveTo(ctx, p.Handle, target, s); err != nil {
				return err
			}
			for _, line := range deck.sim.Sent()[start:] {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	moveCmd.Flags().StringVar(&strategy, "strategy", string(robot.StrategyArc), "Motion strategy: arc or direct")
	moveCmd.Flags().Float64SliceVar(&head, "from", nil, "Start the head at x,y,z")

	exportCmd := &cobra.Command{
		Use:   "export-layout",
		Short: "Write the loaded deck back out as layout YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := loadDeck(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer deck.Close()
			l, err := layout.FromRobot(deck.robot)
			if err != nil {
				return err
			}
			out, err := l.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	return []*cobra.Command{treeCmd, positionCmd, maxZCmd, plotCmd, calibrateCmd, moveCmd, exportCmd}
}
