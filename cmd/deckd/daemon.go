package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/banshee-data/deck.control/internal/api"
	"github.com/banshee-data/deck.control/internal/broker"
	"github.com/banshee-data/deck.control/internal/calibration"
	"github.com/banshee-data/deck.control/internal/config"
	"github.com/banshee-data/deck.control/internal/db"
	"github.com/banshee-data/deck.control/internal/gcode"
	"github.com/banshee-data/deck.control/internal/labware"
	"github.com/banshee-data/deck.control/internal/layout"
	"github.com/banshee-data/deck.control/internal/robot"
	"github.com/banshee-data/deck.control/internal/serialmux"
)

// daemon owns everything deckd runs: the controller link, the robot model,
// the calibration database and the HTTP diagnostics.
type daemon struct {
	cfg       *config.RobotConfig
	sessionID string

	serial serialmux.SerialMuxInterface
	driver *gcode.Driver
	robot  *robot.Robot
	db     *db.DB
	store  calibration.Store
	calib  *calibration.Manager

	unsubscribe []func()
}

func newDaemon(cfg *config.RobotConfig) (*daemon, error) {
	d := &daemon{cfg: cfg, sessionID: uuid.NewString()}

	if cfg.GetSimulate() {
		d.serial = serialmux.NewDisabledSerialMux()
	} else {
		m, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), serialmux.PortOptions{BaudRate: cfg.GetBaudRate()})
		if err != nil {
			return nil, fmt.Errorf("failed to open motor controller: %w", err)
		}
		d.serial = m
	}

	var err error
	d.db, err = db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		d.serial.Close()
		return nil, fmt.Errorf("failed to open calibration database: %w", err)
	}
	if path := cfg.GetCalibrationFile(); path != "" {
		d.store = calibration.NewFileStore(path)
	} else {
		d.store = calibration.DBStore{DB: d.db}
	}

	registry, err := labware.NewRegistry()
	if err != nil {
		d.Close()
		return nil, err
	}
	if path := cfg.GetContainersFile(); path != "" {
		if err := registry.LoadFile(path); err != nil {
			d.Close()
			return nil, err
		}
	}

	d.driver = gcode.NewDriver(d.serial,
		gcode.WithTimeout(cfg.GetCommandTimeout()),
		gcode.WithSpeed(cfg.GetHeadSpeed()),
	)
	d.robot, err = robot.New(
		robot.WithDriver(d.driver),
		robot.WithBroker(broker.New()),
		robot.WithRegistry(registry),
		robot.WithArcClearance(cfg.GetArcClearance()),
	)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.calib = calibration.NewManager(d.robot.Tracker(), d.store)
	return d, nil
}

// start brings the controller up and restores the deck: init sequence,
// optional homing, layout, stored calibrations. The serial monitor must
// already be running.
func (d *daemon) start(ctx context.Context, home bool) error {
	if err := d.serial.Initialise(); err != nil {
		return fmt.Errorf("failed to initialise controller: %w", err)
	}
	if err := d.driver.Setup(ctx); err != nil {
		return fmt.Errorf("failed to configure controller: %w", err)
	}
	if home {
		if err := d.robot.Home(ctx); err != nil {
			return err
		}
	}

	if path := d.cfg.GetLayoutFile(); path != "" {
		l, err := layout.Load(path)
		if err != nil {
			return err
		}
		if err := l.Apply(ctx, d.robot); err != nil {
			return err
		}
		log.Printf("applied layout %s: %d containers, %d pipettes", path, len(l.Containers), len(l.Pipettes))
	}

	d.calib.BindRobot(d.robot)
	n, err := d.calib.Replay()
	if err != nil {
		return err
	}
	log.Printf("restored %d calibrations", n)

	b := d.robot.Broker()
	d.unsubscribe = append(d.unsubscribe, d.calib.AutoPersist(b))
	_, stopAudit := b.Subscribe("robot.calibrate.", calibration.AuditSubscriber(d.db))
	d.unsubscribe = append(d.unsubscribe, stopAudit)
	return nil
}

func (d *daemon) handler() (http.Handler, error) {
	srv := api.NewServer(d.robot,
		api.WithStore(d.store),
		api.WithDB(d.db),
		api.WithSerial(d.serial),
		api.WithSessionID(d.sessionID),
	)
	mux, err := srv.ServeMux()
	if err != nil {
		return nil, err
	}
	return api.LoggingMiddleware(mux), nil
}

func (d *daemon) Close() error {
	for _, stop := range d.unsubscribe {
		stop()
	}
	d.unsubscribe = nil

	var errs []error
	if d.serial != nil {
		errs = append(errs, d.serial.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	return errors.Join(errs...)
}
