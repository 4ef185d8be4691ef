package serialmux

import "strings"

const (
	LineOK       = "ok"
	LineAlarm    = "alarm"
	LinePosition = "position"
	LineUnknown  = "unknown"
)

// ClassifyLine returns a coarse type token for a line printed by the motor
// controller. Position reports also start with "ok", so they are checked
// first.
func ClassifyLine(line string) string {
	l := strings.TrimSpace(line)
	switch {
	case strings.Contains(l, "MCS:") || strings.HasPrefix(l, "ok C:"):
		return LinePosition
	case l == "ok" || strings.HasPrefix(l, "ok "):
		return LineOK
	case strings.HasPrefix(l, "!!") || strings.HasPrefix(strings.ToLower(l), "error") || strings.HasPrefix(l, "ALARM"):
		return LineAlarm
	}
	return LineUnknown
}
