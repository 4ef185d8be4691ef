package pose

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTracked is returned when a handle is not present in the tracker.
	ErrNotTracked = errors.New("handle not tracked")
	// ErrAlreadyTracked is returned when inserting a handle twice.
	ErrAlreadyTracked = errors.New("handle already tracked")
	// ErrInvalidMutation covers writes the tracker refuses to perform.
	ErrInvalidMutation = errors.New("invalid mutation")
	// ErrRootRemovalForbidden is returned by Untrack on the root. It wraps
	// ErrInvalidMutation.
	ErrRootRemovalForbidden = fmt.Errorf("%w: root removal forbidden", ErrInvalidMutation)
	// ErrDegenerateTransform means a transform could not be inverted. The
	// tracker that produced it refuses all further calls.
	ErrDegenerateTransform = errors.New("degenerate transform")
)

func notTracked(h Handle) error {
	return fmt.Errorf("%w: %v", ErrNotTracked, h)
}
