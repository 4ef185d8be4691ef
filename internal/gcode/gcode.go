// Package gcode builds motor controller commands and drives the gantry over a
// serialmux connection.
package gcode

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind labels commands for metrics.
type Kind string

const (
	KindMove     Kind = "move"
	KindHome     Kind = "home"
	KindDwell    Kind = "dwell"
	KindSpeed    Kind = "speed"
	KindMode     Kind = "mode"
	KindPosition Kind = "position"
	KindRaw      Kind = "raw"
)

// axisOrder is the order axis words are written in.
const axisOrder = "XYZAB"

// Command is a single line of GCODE.
type Command struct {
	Kind Kind
	Text string
}

func (c Command) String() string { return c.Text }

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s
}

func axisWords(axes map[byte]float64) string {
	var b strings.Builder
	for i := 0; i < len(axisOrder); i++ {
		a := axisOrder[i]
		if v, ok := axes[a]; ok {
			b.WriteByte(' ')
			b.WriteByte(a)
			b.WriteString(formatFloat(v))
		}
	}
	return b.String()
}

// Move is a rapid move to the given absolute axis positions, e.g.
// Move(map[byte]float64{'X': 10, 'Z': 5}) is "G0 X10 Z5".
func Move(axes map[byte]float64) Command {
	return Command{Kind: KindMove, Text: "G0" + axisWords(axes)}
}

// MoveXYZ is Move for the three gantry axes.
func MoveXYZ(x, y, z float64) Command {
	return Move(map[byte]float64{'X': x, 'Y': y, 'Z': z})
}

// Home homes the named axes, e.g. Home("XYZ") is "G28.2 X Y Z". An empty
// string homes X, Y and Z.
func Home(axes string) Command {
	if axes == "" {
		axes = "XYZ"
	}
	var b strings.Builder
	b.WriteString("G28.2")
	for _, a := range strings.ToUpper(axes) {
		if strings.ContainsRune(axisOrder, a) {
			b.WriteByte(' ')
			b.WriteRune(a)
		}
	}
	return Command{Kind: KindHome, Text: b.String()}
}

// Dwell pauses the controller for d.
func Dwell(d time.Duration) Command {
	return Command{Kind: KindDwell, Text: fmt.Sprintf("G4 P%d", d.Milliseconds())}
}

// SetSpeed sets the feed rate in mm/min for subsequent moves.
func SetSpeed(mmPerMin float64) Command {
	return Command{Kind: KindSpeed, Text: "G0 F" + formatFloat(mmPerMin)}
}

// AbsoluteMode switches to absolute positioning.
func AbsoluteMode() Command {
	return Command{Kind: KindMode, Text: "G90"}
}

// Position asks for the current machine position.
func Position() Command {
	return Command{Kind: KindPosition, Text: "M114.2"}
}

// Raw wraps an arbitrary line, for the admin console and CLI.
func Raw(text string) Command {
	return Command{Kind: KindRaw, Text: strings.TrimSpace(text)}
}
