package gcode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/deck.control/internal/monitoring"
	"github.com/banshee-data/deck.control/internal/serialmux"
)

var logf = monitoring.Prefixed("gcode")

// DefaultTimeout bounds how long a command may wait for its acknowledgement.
const DefaultTimeout = 5 * time.Second

// Driver sends commands to the motor controller and waits for each to be
// acknowledged. Commands are serialised: the next is not written until the
// previous one has completed.
type Driver struct {
	mux     serialmux.SerialMuxInterface
	timeout time.Duration
	speed   float64

	commandMu sync.Mutex
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithTimeout sets the per-command acknowledgement timeout.
func WithTimeout(d time.Duration) DriverOption {
	return func(dr *Driver) { dr.timeout = d }
}

// WithSpeed sets the feed rate applied by Setup, in mm/min.
func WithSpeed(mmPerMin float64) DriverOption {
	return func(dr *Driver) { dr.speed = mmPerMin }
}

// NewDriver returns a driver writing to mux. The mux must be monitored by the
// caller so replies reach subscribers.
func NewDriver(mux serialmux.SerialMuxInterface, opts ...DriverOption) *Driver {
	d := &Driver{mux: mux, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send writes c and waits for the controller's reply.
func (d *Driver) Send(ctx context.Context, c Command) (Response, error) {
	d.commandMu.Lock()
	defer d.commandMu.Unlock()

	monitoring.GcodeCommands.WithLabelValues(string(c.Kind)).Inc()
	resp, err := d.send(ctx, c)
	if err != nil {
		monitoring.GcodeErrors.Inc()
		logf("%q failed: %v", c.Text, err)
	}
	return resp, err
}

func (d *Driver) send(ctx context.Context, c Command) (Response, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// Subscribe before writing so the reply can't be missed.
	id, lines := d.mux.Subscribe()
	defer d.mux.Unsubscribe(id)

	if err := d.mux.SendCommand(c.Text); err != nil {
		return Response{}, fmt.Errorf("failed to send %q: %w", c.Text, err)
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Response{}, fmt.Errorf("%w: %q", ErrTimeout, c.Text)
			}
			return Response{}, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return Response{}, fmt.Errorf("serial connection closed waiting for %q", c.Text)
			}
			resp, done, err := ParseLine(line)
			if !done {
				continue
			}
			return resp, err
		}
	}
}

// Setup puts the controller in absolute mode and applies the configured
// speed.
func (d *Driver) Setup(ctx context.Context) error {
	if _, err := d.Send(ctx, AbsoluteMode()); err != nil {
		return err
	}
	if d.speed > 0 {
		if _, err := d.Send(ctx, SetSpeed(d.speed)); err != nil {
			return err
		}
	}
	return nil
}

// MoveHead moves the gantry to an absolute position.
func (d *Driver) MoveHead(ctx context.Context, x, y, z float64) error {
	_, err := d.Send(ctx, MoveXYZ(x, y, z))
	return err
}

// Home homes X, Y and Z.
func (d *Driver) Home(ctx context.Context) error {
	_, err := d.Send(ctx, Home("XYZ"))
	return err
}

// Position queries the controller for the current gantry position.
func (d *Driver) Position(ctx context.Context) (x, y, z float64, err error) {
	resp, err := d.Send(ctx, Position())
	if err != nil {
		return 0, 0, 0, err
	}
	if resp.Axes == nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrBadPosition, resp.Line)
	}
	return resp.Axes['X'], resp.Axes['Y'], resp.Axes['Z'], nil
}
