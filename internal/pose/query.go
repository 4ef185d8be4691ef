package pose

import (
	"math"
)

// WorldTransform composes the local transforms from the root down to h.
func (t *Tracker) WorldTransform(h Handle) (Transform, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.fault != nil {
		return Transform{}, t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return Transform{}, notTracked(h)
	}
	return t.nodes.world(i), nil
}

// AbsolutePosition returns h's position in robot coordinates.
func (t *Tracker) AbsolutePosition(h Handle) (Point, error) {
	w, err := t.WorldTransform(h)
	if err != nil {
		return Point{}, err
	}
	return w.Origin(), nil
}

// ChildrenOf returns h's direct children in insertion order.
func (t *Tracker) ChildrenOf(h Handle) ([]Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.fault != nil {
		return nil, t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return nil, notTracked(h)
	}
	children := t.nodes.get(i).children
	out := make([]Handle, len(children))
	for k, c := range children {
		out[k] = t.nodes.get(c).handle
	}
	return out, nil
}

// SubtreeOf returns h followed by every descendant in depth-first pre-order.
// The order is stable for an unmodified tree.
func (t *Tracker) SubtreeOf(h Handle) ([]Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.fault != nil {
		return nil, t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return nil, notTracked(h)
	}
	var out []Handle
	t.nodes.preorder(i, func(idx int32, _ int) {
		out = append(out, t.nodes.get(idx).handle)
	})
	return out, nil
}

// MaxZInSubtree returns the highest world Z of any node in h's subtree,
// h included. World transforms are accumulated in a single top-down pass
// so the result always reflects the current tree.
func (t *Tracker) MaxZInSubtree(h Handle) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.fault != nil {
		return 0, t.fault
	}

	i, ok := t.nodes.lookup(h)
	if !ok {
		return 0, notTracked(h)
	}

	// world[depth] holds the world transform of the node last visited at
	// that depth; pre-order guarantees a node's parent is world[depth-1].
	world := []Transform{t.nodes.world(i)}
	maxZ := math.Inf(-1)
	t.nodes.preorder(i, func(idx int32, depth int) {
		if depth > 0 {
			w := world[depth-1].Compose(t.nodes.get(idx).local)
			if depth < len(world) {
				world[depth] = w
			} else {
				world = append(world, w)
			}
		}
		if z := world[depth][11]; z > maxZ {
			maxZ = z
		}
	})
	return maxZ, nil
}

// RelativePosition returns a's position expressed in b's local frame:
// inverse(world(b)) · world(a) applied to the origin. a and b need not be
// related; the root is always a common frame.
func (t *Tracker) RelativePosition(a, b Handle) (Point, error) {
	t.mu.RLock()
	if t.fault != nil {
		defer t.mu.RUnlock()
		return Point{}, t.fault
	}
	ia, ok := t.nodes.lookup(a)
	if !ok {
		t.mu.RUnlock()
		return Point{}, notTracked(a)
	}
	ib, ok := t.nodes.lookup(b)
	if !ok {
		t.mu.RUnlock()
		return Point{}, notTracked(b)
	}
	wa := t.nodes.world(ia)
	wb := t.nodes.world(ib)
	t.mu.RUnlock()

	inv, err := wb.Inverse()
	if err != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return Point{}, t.poison(err)
	}
	return inv.Compose(wa).Origin(), nil
}
