package monitoring

import "log"

// Logf is the process-wide diagnostic logger. It defaults to log.Printf;
// SetLogger swaps it so tests can capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags each line with component, e.g.
// "[gcode] sent G28.2". It resolves Logf on every call, so a later
// SetLogger still applies.
func Prefixed(component string) func(format string, v ...interface{}) {
	tag := "[" + component + "] "
	return func(format string, v ...interface{}) {
		Logf(tag+format, v...)
	}
}
