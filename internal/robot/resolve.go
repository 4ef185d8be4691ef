package robot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/deck.control/internal/pose"
)

var ErrBadReference = errors.New("bad object reference")

// Resolve maps a textual reference to a tracked handle. Accepted forms are
// "head", "deck", "slot/A1", "pipette/a", "container/A1" and "well/A1/C1",
// where the slot names the container's slot.
func (r *Robot) Resolve(ref string) (pose.Handle, error) {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	kind, args := parts[0], parts[1:]

	switch {
	case kind == "head" && len(args) == 0:
		return r.head, nil
	case kind == "deck" && len(args) == 0:
		return r.deck, nil
	case kind == "slot" && len(args) == 1:
		return r.Slot(args[0])
	case kind == "pipette" && len(args) == 1:
		p, err := r.Pipette(args[0])
		if err != nil {
			return pose.NoHandle, err
		}
		return p.Handle, nil
	case kind == "container" && len(args) == 1:
		c, err := r.Container(args[0])
		if err != nil {
			return pose.NoHandle, err
		}
		return c.Handle, nil
	case kind == "well" && len(args) == 2:
		c, err := r.Container(args[0])
		if err != nil {
			return pose.NoHandle, err
		}
		w, err := c.Well(args[1])
		if err != nil {
			return pose.NoHandle, err
		}
		return w.Handle, nil
	}
	return pose.NoHandle, fmt.Errorf("%w: %q", ErrBadReference, ref)
}
