// Package testutil provides shared test helpers and robot fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/deck.control/internal/db"
	"github.com/banshee-data/deck.control/internal/monitoring"
	"github.com/banshee-data/deck.control/internal/robot"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// QuietLogs routes package logging to t.Logf for the duration of the test.
func QuietLogs(t testing.TB) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

// LoadedRobot returns a robot with a 96-flat plate labelled "plate" in A1,
// a trough in B2 and a p200 pipette on mount a. opts are passed to robot.New.
func LoadedRobot(t testing.TB, opts ...robot.Option) *robot.Robot {
	t.Helper()
	QuietLogs(t)

	r, err := robot.New(opts...)
	AssertNoError(t, err)
	_, err = r.AddContainer("96-flat", "A1", "plate")
	AssertNoError(t, err)
	_, err = r.AddContainer("trough-12row", "B2", "")
	AssertNoError(t, err)
	_, err = r.AddPipette("a", "p200", 200)
	AssertNoError(t, err)
	return r
}

// NewDB returns a migrated database in a temp dir, closed at cleanup.
func NewDB(t testing.TB) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "calibrations.db"))
	AssertNoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// Get serves a GET for path through h and returns the recorder.
func Get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}
