package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deck.control/internal/db"
	"github.com/banshee-data/deck.control/internal/monitoring"
)

func quietLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

func TestFileStore_MissingFileIsCreated(t *testing.T) {
	quietLogs(t)
	path := filepath.Join(t.TempDir(), "calibrations.json")
	s := NewFileStore(path)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": 1, "data": {}}`, string(data))
}

func TestFileStore_InvalidFileStartsBlank(t *testing.T) {
	quietLogs(t)

	tests := map[string]string{
		"garbage":    `not json`,
		"no version": `{"data": {"A1/96-flat": {"delta": [1, 2, 3]}}}`,
		"no data":    `{"version": 1}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "calibrations.json")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

			got, err := NewFileStore(path).Load()
			require.NoError(t, err)
			assert.Empty(t, got)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.JSONEq(t, `{"version": 1, "data": {}}`, string(data))
		})
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	quietLogs(t)
	path := filepath.Join(t.TempDir(), "calibrations.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save("A1/96-flat", Delta{X: 1, Y: 2, Z: 3}))
	require.NoError(t, s.Save("B2/trough-12row", Delta{X: -0.5}))
	require.NoError(t, s.Save("A1/96-flat", Delta{X: 4, Y: 5, Z: 6}))

	got, err := NewFileStore(path).Load()
	require.NoError(t, err)
	want := map[string]Delta{
		"A1/96-flat":      {X: 4, Y: 5, Z: 6},
		"B2/trough-12row": {X: -0.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"A1/96-flat", "B2/trough-12row"}, keys)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"data\"")
}

func TestDBStore_SaveAndLoad(t *testing.T) {
	quietLogs(t)
	d, err := db.NewDB(filepath.Join(t.TempDir(), "calibrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	s := DBStore{DB: d}
	require.NoError(t, s.Save("A1/96-flat", Delta{X: 1, Y: 2, Z: 3}))
	require.NoError(t, s.Save("A1/96-flat", Delta{X: 7, Y: 8, Z: 9}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]Delta{"A1/96-flat": {X: 7, Y: 8, Z: 9}}, got)
}
