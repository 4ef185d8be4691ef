package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GcodeCommands counts commands written to the motor controller, by kind
	// (move, home, dwell, speed, mode, position).
	GcodeCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deck_gcode_commands_total",
		Help: "GCODE commands sent to the motor controller",
	}, []string{"kind"})

	// GcodeErrors counts commands that were rejected, alarmed or timed out.
	GcodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deck_gcode_errors_total",
		Help: "GCODE commands that failed",
	})

	// SerialLines counts lines read from the motor controller, by class
	// (ok, alarm, position, unknown).
	SerialLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deck_serial_lines_total",
		Help: "Lines received from the motor controller",
	}, []string{"class"})

	// PoseMutations counts successful pose tree mutations by operation.
	PoseMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deck_pose_mutations_total",
		Help: "Pose tree mutations by operation",
	}, []string{"op"})

	// TrackedNodes is the number of nodes in the robot's pose tree.
	TrackedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deck_tracked_nodes",
		Help: "Objects currently tracked in the pose tree",
	})
)
