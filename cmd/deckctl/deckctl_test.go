package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deck.control/internal/api"
	"github.com/banshee-data/deck.control/internal/testutil"
)

const testLayout = `
containers:
  - slot: A1
    type: 96-flat
    label: plate
pipettes:
  - mount: a
    name: p200
    max_volume: 200
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// deckArgs returns global flags pointing at a fresh database and layout.
func deckArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "deck.yaml")
	require.NoError(t, os.WriteFile(layoutPath, []byte(testLayout), 0o644))
	return []string{"--db", filepath.Join(dir, "calibrations.db"), "--layout", layoutPath}
}

func TestDeck_PositionAndMaxZ(t *testing.T) {
	flags := deckArgs(t)

	out, err := run(t, append(flags, "position", "container/A1", "head")...)
	require.NoError(t, err)
	assert.Equal(t, "container/A1\t21.240\t24.340\t0.000\nhead\t0.000\t0.000\t0.000\n", out)

	out, err = run(t, append(flags, "max-z")...)
	require.NoError(t, err)
	assert.Equal(t, "10.500\n", out)

	_, err = run(t, append(flags, "position", "container/E3")...)
	assert.Error(t, err)
}

func TestDeck_Tree(t *testing.T) {
	out, err := run(t, append(deckArgs(t), "tree")...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<Robot>"), out)
	assert.Contains(t, out, "<Container plate>")
	assert.Contains(t, out, "<Pipette")
}

func TestDeck_CalibratePersists(t *testing.T) {
	flags := deckArgs(t)

	out, err := run(t, append(flags, "calibrate", "A1", "1", "2", "3")...)
	require.NoError(t, err)
	assert.Equal(t, "A1/96-flat now at (22.240, 26.340, 3.000)\n", out)

	// A fresh invocation replays the stored offset.
	out, err = run(t, append(flags, "position", "container/A1")...)
	require.NoError(t, err)
	assert.Equal(t, "container/A1\t22.240\t26.340\t3.000\n", out)

	out, err = run(t, append(flags, "calibrate", "A1", "0", "0", "0", "--absolute")...)
	require.NoError(t, err)
	assert.Equal(t, "A1/96-flat now at (10.000, 10.000, 0.000)\n", out)

	out, err = run(t, append(flags, "calibrations", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "A1/96-flat")

	out, err = run(t, append(flags, "calibrations", "log")...)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"), out)
}

func TestDeck_CalibrateArgs(t *testing.T) {
	flags := deckArgs(t)

	_, err := run(t, append(flags, "calibrate", "A1", "1", "2")...)
	assert.Error(t, err)

	_, err = run(t, append(flags, "calibrate", "A1", "x", "2", "3")...)
	assert.ErrorContains(t, err, "invalid delta")

	_, err = run(t, append(flags, "calibrate", "C3", "1", "2", "3")...)
	assert.Error(t, err)
}

func TestDeck_MoveDirect(t *testing.T) {
	out, err := run(t, append(deckArgs(t), "move", "a", "container/A1", "--strategy", "direct")...)
	require.NoError(t, err)
	assert.Equal(t, "G0 X21.24 Y24.34 Z0\n", out)

	_, err = run(t, append(deckArgs(t), "move", "a", "container/A1", "--strategy", "teleport")...)
	assert.Error(t, err)
}

func TestDeck_MoveArcClearsDeck(t *testing.T) {
	out, err := run(t, append(deckArgs(t), "move", "a", "container/A1")...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 1, out)
	assert.Equal(t, "G0 X21.24 Y24.34 Z0", lines[len(lines)-1])
}

func TestDeck_ExportLayout(t *testing.T) {
	out, err := run(t, append(deckArgs(t), "export-layout")...)
	require.NoError(t, err)
	assert.Contains(t, out, "slot: A1")
	assert.Contains(t, out, "type: 96-flat")
	assert.Contains(t, out, "mount: a")
}

func TestDeck_Plot(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"deck.png", "deck.html"} {
		path := filepath.Join(dir, name)
		_, err := run(t, append(deckArgs(t), "plot", "-o", path)...)
		require.NoError(t, err)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	_, err := run(t, append(deckArgs(t), "plot", "-o", filepath.Join(dir, "deck.svg"))...)
	assert.ErrorContains(t, err, "unsupported plot format")
}

func TestMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "calibrations.db")

	out, err := run(t, "--db", dbPath, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "dirty=false")

	_, err = run(t, "--db", dbPath, "migrate", "to", "abc")
	assert.ErrorContains(t, err, "invalid version")
}

func TestCalibrations_ImportExport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "calibrations.db")
	src := filepath.Join(dir, "calibrations.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"version": 1, "data": {"A1/96-flat": {"delta": [1, 2, 3]}}}`), 0o644))

	out, err := run(t, "--db", dbPath, "calibrations", "import", src)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 offsets\n", out)

	dst := filepath.Join(dir, "out.json")
	out, err = run(t, "--db", dbPath, "calibrations", "export", dst)
	require.NoError(t, err)
	assert.Equal(t, "exported 1 offsets\n", out)

	out, err = run(t, "--calibration-file", dst, "calibrations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "A1/96-flat")
	assert.Contains(t, out, "1.000")

	out, err = run(t, "--db", dbPath, "calibrations", "delete", "A1/96-flat")
	require.NoError(t, err)
	assert.Equal(t, "deleted A1/96-flat\n", out)
}

func TestLabware_CreateAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "containers.json")

	out, err := run(t, "labware", "create", "tuberack-2x3", "--columns", "2", "--rows", "3", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(6 wells)")

	out, err = run(t, "--containers", path, "labware", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "tuberack-2x3")
	assert.Contains(t, out, "96-flat")
}

func TestRemote(t *testing.T) {
	r := testutil.LoadedRobot(t)
	mux, err := api.NewServer(r, api.WithSessionID("test-session")).ServeMux()
	require.NoError(t, err)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := run(t, "remote", "--addr", srv.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "session:    test-session")
	assert.Contains(t, out, "containers: 2")

	out, err = run(t, "remote", "--addr", srv.URL, "position", "container/A1")
	require.NoError(t, err)
	assert.Equal(t, "<Container plate>\t21.240\t24.340\t0.000\n", out)

	out, err = run(t, "remote", "--addr", srv.URL, "tree")
	require.NoError(t, err)
	assert.Contains(t, out, "<Container plate>")

	_, err = run(t, "remote", "--addr", srv.URL, "position", "container/E3")
	assert.ErrorContains(t, err, "404")

	_, err = run(t, "remote", "--addr", srv.URL, "calibrations")
	assert.ErrorContains(t, err, "503")
}

func TestCalibrations_Backup(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "backup.db.gz")

	got, err := run(t, "--db", filepath.Join(dir, "calibrations.db"), "calibrations", "backup", out)
	require.NoError(t, err)
	assert.Equal(t, "wrote "+out+"\n", got)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])
}
