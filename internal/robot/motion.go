package robot

import (
	"context"
	"fmt"

	"github.com/banshee-data/deck.control/internal/pose"
)

// Strategy selects how MoveTo approaches its target.
type Strategy string

const (
	// StrategyArc lifts above the tallest deck object, travels, then descends.
	StrategyArc Strategy = "arc"
	// StrategyDirect moves straight to the target.
	StrategyDirect Strategy = "direct"
)

// ParseStrategy maps a name to a Strategy; an empty name is StrategyArc.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyArc:
		return StrategyArc, nil
	case StrategyDirect:
		return StrategyDirect, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// MoveHead moves the head to the absolute position (x, y, z). The model is
// only updated once the driver has accepted the move.
func (r *Robot) MoveHead(ctx context.Context, x, y, z float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := map[string]any{"x": x, "y": y, "z": z}
	_, err := r.broker.Instrument("robot.command.move-head", payload, func() (any, error) {
		return nil, r.moveHeadLocked(ctx, x, y, z)
	})
	return err
}

func (r *Robot) moveHeadLocked(ctx context.Context, x, y, z float64) error {
	cur, err := r.tracker.AbsolutePosition(r.head)
	if err != nil {
		return err
	}
	if r.driver != nil {
		if err := r.driver.MoveHead(ctx, x, y, z); err != nil {
			return fmt.Errorf("failed to move head to (%.2f, %.2f, %.2f): %w", x, y, z, err)
		}
	}
	if err := r.tracker.Translate(r.head, x-cur.X, y-cur.Y, z-cur.Z); err != nil {
		return err
	}
	r.noteMutation("translate")
	return nil
}

// Home homes the gantry and resets the head to the origin.
func (r *Robot) Home(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.broker.Instrument("robot.command.home", nil, func() (any, error) {
		if r.driver != nil {
			if err := r.driver.Home(ctx); err != nil {
				return nil, fmt.Errorf("failed to home: %w", err)
			}
		}
		if err := r.tracker.Calibrate(r.head, 0, 0, 0, false); err != nil {
			return nil, err
		}
		r.noteMutation("calibrate")
		return nil, nil
	})
	return err
}

// MoveTo positions instrument at target's tracked position. The target is
// resolved under the robot lock, so a concurrent calibration either lands
// before the move or waits for it.
func (r *Robot) MoveTo(ctx context.Context, instrument, target pose.Handle, strategy Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := map[string]any{"instrument": instrument.String(), "target": target.String(), "strategy": string(strategy)}
	_, err := r.broker.Instrument("robot.command.move-to", payload, func() (any, error) {
		p, err := r.tracker.AbsolutePosition(target)
		if err != nil {
			return nil, err
		}
		return nil, r.moveToLocked(ctx, instrument, p, strategy)
	})
	return err
}

// MoveToPoint positions instrument at p. The head target is p plus the
// instrument's offset from the head.
func (r *Robot) MoveToPoint(ctx context.Context, instrument pose.Handle, p pose.Point, strategy Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := map[string]any{"instrument": instrument.String(), "x": p.X, "y": p.Y, "z": p.Z, "strategy": string(strategy)}
	_, err := r.broker.Instrument("robot.command.move-to", payload, func() (any, error) {
		return nil, r.moveToLocked(ctx, instrument, p, strategy)
	})
	return err
}

func (r *Robot) moveToLocked(ctx context.Context, instrument pose.Handle, p pose.Point, strategy Strategy) error {
	head, err := r.tracker.AbsolutePosition(r.head)
	if err != nil {
		return err
	}
	inst, err := r.tracker.AbsolutePosition(instrument)
	if err != nil {
		return err
	}
	offset := pose.Point{X: head.X - inst.X, Y: head.Y - inst.Y, Z: head.Z - inst.Z}
	goal := pose.Point{X: p.X + offset.X, Y: p.Y + offset.Y, Z: p.Z + offset.Z}

	switch strategy {
	case StrategyDirect:
	case StrategyArc, "":
		top, err := r.tracker.MaxZInSubtree(r.deck)
		if err != nil {
			return err
		}
		safeZ := top + r.arcClearance + offset.Z
		if head.Z > safeZ {
			safeZ = head.Z
		}
		logf("arc move: clearing deck at head z=%.2f", safeZ)
		if err := r.moveHeadLocked(ctx, head.X, head.Y, safeZ); err != nil {
			return err
		}
		if err := r.moveHeadLocked(ctx, goal.X, goal.Y, safeZ); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	return r.moveHeadLocked(ctx, goal.X, goal.Y, goal.Z)
}
