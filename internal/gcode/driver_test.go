package gcode

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deck.control/internal/monitoring"
	"github.com/banshee-data/deck.control/internal/robot"
	"github.com/banshee-data/deck.control/internal/serialmux"
)

var _ robot.MotionDriver = (*Driver)(nil)

// newPortDriver returns a driver on a real SerialMux whose port answers each
// line with respond(line).
func newPortDriver(t *testing.T, respond func(string) []string, opts ...DriverOption) (*Driver, *serialmux.TestableSerialPort) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	port := serialmux.NewTestableSerialPort()
	port.Responder = respond
	mux := serialmux.NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	go mux.Monitor(ctx)
	t.Cleanup(func() {
		cancel()
		mux.Close()
	})
	return NewDriver(mux, opts...), port
}

func TestDriver_Simulated(t *testing.T) {
	sim := serialmux.NewDisabledSerialMux()
	d := NewDriver(sim, WithSpeed(3000))
	ctx := context.Background()

	require.NoError(t, d.Setup(ctx))
	require.NoError(t, d.MoveHead(ctx, 10, 30, 10))

	x, y, z, err := d.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 30, 10}, []float64{x, y, z})

	require.NoError(t, d.Home(ctx))
	x, y, z, err = d.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, []float64{x, y, z})

	assert.Equal(t, []string{"G90", "G0 F3000", "G0 X10 Y30 Z10", "M114.2", "G28.2 X Y Z", "M114.2"}, sim.Sent())
}

func TestDriver_SkipsChatterUntilOK(t *testing.T) {
	d, port := newPortDriver(t, func(string) []string {
		return []string{"Smoothie", "echo: busy", "ok"}
	})
	require.NoError(t, d.MoveHead(context.Background(), 1, 2, 3))
	assert.Equal(t, "G0 X1 Y2 Z3\n", string(port.GetWrittenData()))
}

func TestDriver_Alarm(t *testing.T) {
	before := testutil.ToFloat64(monitoring.GcodeErrors)
	d, _ := newPortDriver(t, func(line string) []string {
		if strings.HasPrefix(line, "G0") {
			return []string{"!! Limit switch X"}
		}
		return []string{"ok"}
	})

	err := d.MoveHead(context.Background(), 500, 0, 0)
	assert.ErrorIs(t, err, ErrAlarm)
	assert.Contains(t, err.Error(), "Limit switch X")
	assert.Equal(t, 1.0, testutil.ToFloat64(monitoring.GcodeErrors)-before)

	// The driver recovers for the next command.
	require.NoError(t, d.Home(context.Background()))
}

func TestDriver_Timeout(t *testing.T) {
	d, _ := newPortDriver(t, func(string) []string { return nil }, WithTimeout(20*time.Millisecond))

	start := time.Now()
	err := d.MoveHead(context.Background(), 1, 1, 1)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDriver_ContextCancelled(t *testing.T) {
	d, _ := newPortDriver(t, func(string) []string { return nil }, WithTimeout(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.MoveHead(ctx, 1, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriver_WriteFailure(t *testing.T) {
	sim := serialmux.NewDisabledSerialMux()
	require.NoError(t, sim.Close())
	err := NewDriver(sim).Home(context.Background())
	assert.ErrorIs(t, err, serialmux.ErrWriteFailed)
}

func TestDriver_PositionWithoutReport(t *testing.T) {
	d, _ := newPortDriver(t, func(string) []string { return []string{"ok"} })
	_, _, _, err := d.Position(context.Background())
	assert.ErrorIs(t, err, ErrBadPosition)
}

func TestDriver_CountsCommands(t *testing.T) {
	before := testutil.ToFloat64(monitoring.GcodeCommands.WithLabelValues(string(KindMove)))
	d := NewDriver(serialmux.NewDisabledSerialMux())
	for i := 0; i < 3; i++ {
		require.NoError(t, d.MoveHead(context.Background(), float64(i), 0, 0))
	}
	after := testutil.ToFloat64(monitoring.GcodeCommands.WithLabelValues(string(KindMove)))
	assert.Equal(t, 3.0, after-before)
}

func TestDriver_DrivesRobot(t *testing.T) {
	sim := serialmux.NewDisabledSerialMux()
	r, err := robot.New(robot.WithDriver(NewDriver(sim)))
	require.NoError(t, err)
	p, err := r.AddPipette("a", "p200", 200)
	require.NoError(t, err)
	plate, err := r.AddContainer("96-flat", "A1", "")
	require.NoError(t, err)

	require.NoError(t, r.MoveTo(context.Background(), p.Handle, plate.Wells[2].Handle, robot.StrategyArc))
	assert.Equal(t, []string{
		"G0 X0 Y0 Z30.5",
		"G0 X39.24 Y24.34 Z30.5",
		"G0 X39.24 Y24.34 Z10.5",
	}, sim.Sent())
}
