package serialmux

import (
	"fmt"
	"strconv"
	"strings"
)

// initCommands put the controller into a known state: clear any halt,
// millimetre units and absolute positioning.
var initCommands = []string{
	"M999", // reset from halt
	"G21",  // millimetres
	"G90",  // absolute positioning
}

// controller mimics the firmware's replies: "ok" for every command, with
// the last commanded position reported for M114 queries and zeroed by
// homing.
type controller struct {
	pos [3]float64
}

func (c *controller) reply(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "ok"
	}
	switch fields[0] {
	case "G0", "G1":
		for _, f := range fields[1:] {
			if len(f) < 2 {
				continue
			}
			axis := strings.IndexByte("XYZ", f[0])
			if axis < 0 {
				continue
			}
			if v, err := strconv.ParseFloat(f[1:], 64); err == nil {
				c.pos[axis] = v
			}
		}
	case "G28", "G28.2":
		c.pos = [3]float64{}
	case "M114", "M114.2":
		return fmt.Sprintf("ok MCS: X:%.4f Y:%.4f Z:%.4f", c.pos[0], c.pos[1], c.pos[2])
	}
	return "ok"
}
