package gcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/deck.control/internal/serialmux"
)

var (
	// ErrAlarm is returned when the controller reports an error or halt.
	ErrAlarm = errors.New("motor controller alarm")
	// ErrTimeout is returned when no acknowledgement arrives in time.
	ErrTimeout = errors.New("timed out waiting for motor controller")
	// ErrBadPosition is returned for position reports that can't be parsed.
	ErrBadPosition = errors.New("malformed position report")
)

// Response is the controller's final reply to a command.
type Response struct {
	Line string
	// Axes holds the parsed values of a position report.
	Axes map[byte]float64
}

// ParseLine interprets one controller line. done reports whether the line
// completes the outstanding command; unrelated chatter returns done=false.
func ParseLine(line string) (resp Response, done bool, err error) {
	line = strings.TrimSpace(line)
	switch serialmux.ClassifyLine(line) {
	case serialmux.LineOK:
		return Response{Line: line}, true, nil
	case serialmux.LinePosition:
		axes, err := ParsePosition(line)
		return Response{Line: line, Axes: axes}, true, err
	case serialmux.LineAlarm:
		return Response{Line: line}, true, fmt.Errorf("%w: %s", ErrAlarm, line)
	}
	return Response{}, false, nil
}

// ParsePosition reads the axis values from a report such as
// "ok MCS: X:10.0000 Y:20.0000 Z:5.0000".
func ParsePosition(line string) (map[byte]float64, error) {
	axes := make(map[byte]float64)
	for _, f := range strings.Fields(line) {
		if len(f) < 3 || f[1] != ':' || !strings.ContainsRune(axisOrder, rune(f[0])) {
			continue
		}
		v, err := strconv.ParseFloat(f[2:], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: axis %c in %q", ErrBadPosition, f[0], line)
		}
		axes[f[0]] = v
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadPosition, line)
	}
	return axes, nil
}
