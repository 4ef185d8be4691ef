package pose

import (
	"strconv"
	"sync/atomic"
)

// Handle identifies a tracked object. Handles compare by identity: two
// objects with identical contents still get distinct handles.
type Handle uint64

// NoHandle is the zero Handle. It is never returned by NewHandle and is used
// as the parent of the root.
const NoHandle Handle = 0

var lastHandle atomic.Uint64

// NewHandle returns a process-unique handle.
func NewHandle() Handle {
	return Handle(lastHandle.Add(1))
}

func (h Handle) String() string {
	if h == NoHandle {
		return "handle(none)"
	}
	return "handle(" + strconv.FormatUint(uint64(h), 10) + ")"
}
