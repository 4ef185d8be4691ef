// Package pose tracks where every object on the robot is, in robot
// coordinates.
//
// Objects are identified by Handle and arranged in a single tree: each node
// stores a transform relative to its parent, and absolute positions are
// derived by composing transforms from the root down. Positions can only
// change through Translate and Calibrate; nothing writes an absolute
// position directly.
//
// A Tracker is safe for concurrent use. Queries share a read lock and
// mutations take the write lock, so every mutation is atomic and
// immediately visible to the next query.
package pose

import (
	"fmt"
	"math"
	"sync"
)

// TrackOption configures a node at insertion time.
type TrackOption func(*trackOptions)

type trackOptions struct {
	label string
}

// WithLabel sets the label shown for the node in Dump.
func WithLabel(label string) TrackOption {
	return func(o *trackOptions) {
		o.label = label
	}
}

// Tracker is the pose tree for one robot model. Construct a fresh Tracker per
// session rather than resetting an existing one.
type Tracker struct {
	mu    sync.RWMutex
	nodes *arena
	fault error
}

// NewTracker returns an empty tracker. The first Track call with
// parent == NoHandle creates the root.
func NewTracker() *Tracker {
	return &Tracker{nodes: newArena()}
}

// Track inserts h as a child of parent with the given local transform.
func (t *Tracker) Track(h, parent Handle, local Transform, opts ...TrackOption) error {
	o := trackOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fault != nil {
		return t.fault
	}

	if h == NoHandle {
		return fmt.Errorf("%w: cannot track %v", ErrInvalidMutation, h)
	}
	if _, ok := t.nodes.lookup(h); ok {
		return fmt.Errorf("%w: %v", ErrAlreadyTracked, h)
	}
	if !local.IsRigid() {
		return fmt.Errorf("%w: transform for %v is not rigid: %v", ErrInvalidMutation, h, local)
	}

	parentIdx := noIndex
	if parent == NoHandle {
		if t.nodes.root != noIndex {
			return fmt.Errorf("%w: tracker already has a root, %v needs a parent", ErrInvalidMutation, h)
		}
	} else {
		i, ok := t.nodes.lookup(parent)
		if !ok {
			return fmt.Errorf("parent of %v: %w", h, notTracked(parent))
		}
		parentIdx = i
	}

	if o.label == "" {
		o.label = fmt.Sprintf("<%d>", uint64(h))
	}
	t.nodes.insert(h, parentIdx, local, o.label)
	return nil
}

// Untrack removes h and every descendant.
func (t *Tracker) Untrack(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fault != nil {
		return t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return notTracked(h)
	}
	if i == t.nodes.root {
		return fmt.Errorf("%w: %v", ErrRootRemovalForbidden, h)
	}
	t.nodes.remove(i)
	return nil
}

// Translate moves h (and so its whole subtree) by (dx, dy, dz) expressed in
// h's own local frame: local = local · Translation(dx, dy, dz).
func (t *Tracker) Translate(h Handle, dx, dy, dz float64) error {
	if err := checkDelta(dx, dy, dz); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fault != nil {
		return t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return notTracked(h)
	}
	n := t.nodes.get(i)
	n.local = n.local.Compose(Translation(dx, dy, dz))
	return nil
}

// Calibrate applies a calibration delta to h's local translation. With
// relative set the delta is added to the current translation; otherwise the
// translation is replaced by (dx, dy, dz). Rotation is left untouched.
func (t *Tracker) Calibrate(h Handle, dx, dy, dz float64, relative bool) error {
	if err := checkDelta(dx, dy, dz); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fault != nil {
		return t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return notTracked(h)
	}
	n := t.nodes.get(i)
	if relative {
		x, y, z := n.local.TranslationPart()
		n.local = n.local.WithTranslation(x+dx, y+dy, z+dz)
	} else {
		n.local = n.local.WithTranslation(dx, dy, dz)
	}
	return nil
}

func checkDelta(dx, dy, dz float64) error {
	for _, v := range [3]float64{dx, dy, dz} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite delta (%v, %v, %v)", ErrInvalidMutation, dx, dy, dz)
		}
	}
	return nil
}

// LocalTransform returns h's transform relative to its parent. Calibration
// persistence reads translations from here.
func (t *Tracker) LocalTransform(h Handle) (Transform, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.fault != nil {
		return Transform{}, t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return Transform{}, notTracked(h)
	}
	return t.nodes.get(i).local, nil
}

// Contains reports whether h is tracked.
func (t *Tracker) Contains(h Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes.lookup(h)
	return ok
}

// Len returns the number of tracked nodes.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes.len()
}

// Root returns the root handle, or NoHandle for an empty tracker.
func (t *Tracker) Root() Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.nodes.root == noIndex {
		return NoHandle
	}
	return t.nodes.get(t.nodes.root).handle
}

// ParentOf returns h's parent, NoHandle for the root.
func (t *Tracker) ParentOf(h Handle) (Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.nodes.lookup(h)
	if !ok {
		return NoHandle, notTracked(h)
	}
	p := t.nodes.get(i).parent
	if p == noIndex {
		return NoHandle, nil
	}
	return t.nodes.get(p).handle, nil
}

// Label returns the label h was tracked with.
func (t *Tracker) Label(h Handle) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.nodes.lookup(h)
	if !ok {
		return "", notTracked(h)
	}
	return t.nodes.get(i).label, nil
}

// Err returns the fault that disabled the tracker, if any.
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fault
}

// poison records a degenerate transform. Callers must hold the write lock.
func (t *Tracker) poison(err error) error {
	if t.fault == nil {
		t.fault = fmt.Errorf("tracker disabled: %w", err)
	}
	return t.fault
}
