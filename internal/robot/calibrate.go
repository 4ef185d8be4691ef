package robot

import (
	"fmt"

	"github.com/banshee-data/deck.control/internal/pose"
)

// CalibrateContainerWithDelta adjusts a container's offset within its slot.
// With relative set the delta is added to the current offset, otherwise it
// replaces it.
func (r *Robot) CalibrateContainerWithDelta(c *Container, dx, dy, dz float64, relative bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := map[string]any{"slot": c.Slot, "type": c.Type, "label": c.Label, "dx": dx, "dy": dy, "dz": dz, "relative": relative}
	_, err := r.broker.Instrument("robot.calibrate.container", payload, func() (any, error) {
		if err := r.tracker.Calibrate(c.Handle, dx, dy, dz, relative); err != nil {
			return nil, fmt.Errorf("failed to calibrate %s: %w", c.Label, err)
		}
		r.noteMutation("calibrate")
		return c.Handle, nil
	})
	return err
}

// CalibrateContainerWithInstrument moves the container origin to where the
// instrument currently is, as when an operator jogs a pipette tip onto the
// container's reference point.
func (r *Robot) CalibrateContainerWithInstrument(c *Container, instrument pose.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := map[string]any{"slot": c.Slot, "type": c.Type, "label": c.Label, "instrument": instrument.String()}
	_, err := r.broker.Instrument("robot.calibrate.instrument", payload, func() (any, error) {
		rel, err := r.tracker.RelativePosition(instrument, c.Handle)
		if err != nil {
			return nil, err
		}
		// rel is in the container frame; the delta is applied in the parent's.
		local, err := r.tracker.LocalTransform(c.Handle)
		if err != nil {
			return nil, err
		}
		moved, origin := local.Apply(rel), local.Origin()
		dx, dy, dz := moved.X-origin.X, moved.Y-origin.Y, moved.Z-origin.Z
		if err := r.tracker.Calibrate(c.Handle, dx, dy, dz, true); err != nil {
			return nil, fmt.Errorf("failed to calibrate %s: %w", c.Label, err)
		}
		r.noteMutation("calibrate")
		return pose.Point{X: dx, Y: dy, Z: dz}, nil
	})
	return err
}
