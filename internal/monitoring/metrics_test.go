package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPoseMutationsCounter(t *testing.T) {
	before := testutil.ToFloat64(PoseMutations.WithLabelValues("translate"))
	PoseMutations.WithLabelValues("translate").Inc()
	PoseMutations.WithLabelValues("translate").Inc()
	if got := testutil.ToFloat64(PoseMutations.WithLabelValues("translate")) - before; got != 2 {
		t.Errorf("translate mutations increased by %v, want 2", got)
	}
}

func TestTrackedNodesGauge(t *testing.T) {
	TrackedNodes.Set(17)
	if got := testutil.ToFloat64(TrackedNodes); got != 17 {
		t.Errorf("TrackedNodes = %v, want 17", got)
	}
}

func TestGcodeCountersRegistered(t *testing.T) {
	GcodeCommands.WithLabelValues("move").Inc()
	if n := testutil.CollectAndCount(GcodeCommands); n == 0 {
		t.Error("GcodeCommands collected no series")
	}
	before := testutil.ToFloat64(GcodeErrors)
	GcodeErrors.Inc()
	if got := testutil.ToFloat64(GcodeErrors) - before; got != 1 {
		t.Errorf("GcodeErrors increased by %v, want 1", got)
	}
}
