package layout

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deck.control/internal/monitoring"
	"github.com/banshee-data/deck.control/internal/pose"
	"github.com/banshee-data/deck.control/internal/robot"
)

const sample = `
containers:
  - slot: A1
    type: 96-flat
    label: plate
  - slot: B2
    type: trough-12row
pipettes:
  - mount: a
    name: p200
    max_volume: 200
head:
  x: 5
  y: 6
  z: 7
`

func TestParse(t *testing.T) {
	l, err := Parse([]byte(sample))
	require.NoError(t, err)

	want := &Layout{
		Containers: []Container{
			{Slot: "A1", Type: "96-flat", Label: "plate"},
			{Slot: "B2", Type: "trough-12row"},
		},
		Pipettes: []Pipette{{Mount: "a", Name: "p200", MaxVolume: 200}},
		Head:     &Point{X: 5, Y: 6, Z: 7},
	}
	if diff := cmp.Diff(want, l); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmpty(t *testing.T) {
	l, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, l.Containers)
	assert.Nil(t, l.Head)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "containers: []\ntable: 3\n"},
		{"unknown slot", "containers: [{slot: F1, type: 96-flat}]\n"},
		{"duplicate slot", "containers: [{slot: A1, type: 96-flat}, {slot: A1, type: trough-12row}]\n"},
		{"missing type", "containers: [{slot: A1}]\n"},
		{"bad mount", "pipettes: [{mount: c, name: p10}]\n"},
		{"duplicate mount", "pipettes: [{mount: a, name: p10}, {mount: a, name: p200}]\n"},
		{"unnamed pipette", "pipettes: [{mount: b}]\n"},
		{"negative volume", "pipettes: [{mount: b, name: p10, max_volume: -1}]\n"},
		{"malformed", "containers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("containers: [{slot: Z9, type: 96-flat}]\n"))
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, l.Containers, 2)

	_, err = Load(filepath.Join(dir, "deck.json"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	l, err := Parse([]byte(sample))
	require.NoError(t, err)

	r, err := robot.New()
	require.NoError(t, err)
	require.NoError(t, l.Apply(context.Background(), r))

	plate, err := r.Container("A1")
	require.NoError(t, err)
	assert.Equal(t, "plate", plate.Label)

	trough, err := r.Container("B2")
	require.NoError(t, err)
	assert.Equal(t, "trough-12row", trough.Label)

	_, err = r.Pipette("a")
	require.NoError(t, err)

	head, err := r.HeadPosition()
	require.NoError(t, err)
	assert.Equal(t, pose.Point{X: 5, Y: 6, Z: 7}, head)

	got, err := FromRobot(r)
	require.NoError(t, err)
	out, err := got.Marshal()
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("FromRobot round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyUnknownType(t *testing.T) {
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	l, err := Parse([]byte("containers: [{slot: A1, type: 384-deep}]\n"))
	require.NoError(t, err)

	r, err := robot.New()
	require.NoError(t, err)
	assert.Error(t, l.Apply(context.Background(), r))
}
