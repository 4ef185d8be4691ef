package pose

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func assertPoint(t *testing.T, want, got Point) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
	assert.InDelta(t, want.Z, got.Z, eps, "z")
}

// plateFixture builds root → plate (21.24, 24.34, 0) → well (18, 0, 10.5).
func plateFixture(t *testing.T) (tr *Tracker, root, plate, well Handle) {
	t.Helper()
	tr = NewTracker()
	root, plate, well = NewHandle(), NewHandle(), NewHandle()
	require.NoError(t, tr.Track(root, NoHandle, Identity(), WithLabel("world")))
	require.NoError(t, tr.Track(plate, root, Translation(21.24, 24.34, 0), WithLabel("<Container 96-flat>")))
	require.NoError(t, tr.Track(well, plate, Translation(18, 0, 10.5), WithLabel("<Well C1>")))
	return tr, root, plate, well
}

func TestTracker_ScenarioA_ComposedPosition(t *testing.T) {
	tr, root, plate, well := plateFixture(t)

	got, err := tr.AbsolutePosition(root)
	require.NoError(t, err)
	assertPoint(t, Point{}, got)

	got, err = tr.AbsolutePosition(plate)
	require.NoError(t, err)
	assertPoint(t, Point{X: 21.24, Y: 24.34, Z: 0}, got)

	got, err = tr.AbsolutePosition(well)
	require.NoError(t, err)
	assertPoint(t, Point{X: 39.24, Y: 24.34, Z: 10.5}, got)
}

func TestTracker_ScenarioB_RelativeCalibration(t *testing.T) {
	tr, _, plate, well := plateFixture(t)

	require.NoError(t, tr.Calibrate(plate, 1, 3, 4, true))

	got, err := tr.AbsolutePosition(plate)
	require.NoError(t, err)
	assertPoint(t, Point{X: 22.24, Y: 27.34, Z: 4}, got)

	got, err = tr.AbsolutePosition(well)
	require.NoError(t, err)
	assertPoint(t, Point{X: 40.24, Y: 27.34, Z: 14.5}, got)
}

func TestTracker_AbsoluteCalibrationReplacesTranslation(t *testing.T) {
	tr, _, plate, well := plateFixture(t)

	require.NoError(t, tr.Calibrate(plate, 1, 3, 4, true))
	require.NoError(t, tr.Calibrate(plate, 5, 6, 7, false))

	local, err := tr.LocalTransform(plate)
	require.NoError(t, err)
	x, y, z := local.TranslationPart()
	assert.Equal(t, [3]float64{5, 6, 7}, [3]float64{x, y, z})

	got, err := tr.AbsolutePosition(well)
	require.NoError(t, err)
	assertPoint(t, Point{X: 23, Y: 6, Z: 17.5}, got)
}

func TestTracker_ScenarioC_RelativeAcrossBranches(t *testing.T) {
	tr := NewTracker()
	deck, slotA, plate := NewHandle(), NewHandle(), NewHandle()
	head, pipette := NewHandle(), NewHandle()

	require.NoError(t, tr.Track(deck, NoHandle, Identity()))
	require.NoError(t, tr.Track(slotA, deck, Translation(10, 10, 0)))
	require.NoError(t, tr.Track(plate, slotA, Translation(11.24, 14.34, 0)))
	require.NoError(t, tr.Track(head, deck, Translation(10, 30, 10)))
	require.NoError(t, tr.Track(pipette, head, Identity()))

	rel, err := tr.RelativePosition(pipette, plate)
	require.NoError(t, err)

	pp, err := tr.AbsolutePosition(pipette)
	require.NoError(t, err)
	pl, err := tr.AbsolutePosition(plate)
	require.NoError(t, err)

	assertPoint(t, Point{X: pp.X - pl.X, Y: pp.Y - pl.Y, Z: pp.Z - pl.Z}, rel)
	assertPoint(t, Point{X: -11.24, Y: 5.66, Z: 10}, rel)
}

func TestTracker_RelativePositionRotatedFrame(t *testing.T) {
	tr := NewTracker()
	root, frame, point := NewHandle(), NewHandle(), NewHandle()
	require.NoError(t, tr.Track(root, NoHandle, Identity()))
	require.NoError(t, tr.Track(frame, root, Translation(10, 0, 0).Compose(RotationZ(math.Pi/2))))
	require.NoError(t, tr.Track(point, root, Translation(10, 5, 0)))

	// In frame's coordinates, +X points along world +Y.
	rel, err := tr.RelativePosition(point, frame)
	require.NoError(t, err)
	assertPoint(t, Point{X: 5, Y: 0, Z: 0}, rel)
}

func TestTracker_ScenarioD_RootRemovalForbidden(t *testing.T) {
	tr, root, plate, well := plateFixture(t)
	before := tr.Dump()

	err := tr.Untrack(root)
	assert.ErrorIs(t, err, ErrRootRemovalForbidden)
	assert.ErrorIs(t, err, ErrInvalidMutation)

	assert.Equal(t, before, tr.Dump())
	assert.Equal(t, 3, tr.Len())
	assert.True(t, tr.Contains(plate))
	assert.True(t, tr.Contains(well))
}

func TestTracker_ScenarioE_UnknownHandle(t *testing.T) {
	tr, _, _, _ := plateFixture(t)
	before := tr.Dump()

	_, err := tr.AbsolutePosition(NewHandle())
	assert.ErrorIs(t, err, ErrNotTracked)
	assert.Equal(t, before, tr.Dump())
	assert.Equal(t, 3, tr.Len())
}

func TestTracker_NotTrackedEverywhere(t *testing.T) {
	tr, root, _, _ := plateFixture(t)
	ghost := NewHandle()

	_, err := tr.ChildrenOf(ghost)
	assert.ErrorIs(t, err, ErrNotTracked)
	_, err = tr.SubtreeOf(ghost)
	assert.ErrorIs(t, err, ErrNotTracked)
	_, err = tr.MaxZInSubtree(ghost)
	assert.ErrorIs(t, err, ErrNotTracked)
	_, err = tr.RelativePosition(ghost, root)
	assert.ErrorIs(t, err, ErrNotTracked)
	_, err = tr.RelativePosition(root, ghost)
	assert.ErrorIs(t, err, ErrNotTracked)
	assert.ErrorIs(t, tr.Translate(ghost, 1, 1, 1), ErrNotTracked)
	assert.ErrorIs(t, tr.Calibrate(ghost, 1, 1, 1, true), ErrNotTracked)
	assert.ErrorIs(t, tr.Untrack(ghost), ErrNotTracked)
	_, err = tr.LocalTransform(ghost)
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestTracker_TrackValidation(t *testing.T) {
	tr, root, plate, _ := plateFixture(t)

	t.Run("duplicate", func(t *testing.T) {
		assert.ErrorIs(t, tr.Track(plate, root, Identity()), ErrAlreadyTracked)
	})

	t.Run("unknown parent", func(t *testing.T) {
		assert.ErrorIs(t, tr.Track(NewHandle(), NewHandle(), Identity()), ErrNotTracked)
	})

	t.Run("second root", func(t *testing.T) {
		assert.ErrorIs(t, tr.Track(NewHandle(), NoHandle, Identity()), ErrInvalidMutation)
	})

	t.Run("zero handle", func(t *testing.T) {
		assert.ErrorIs(t, tr.Track(NoHandle, root, Identity()), ErrInvalidMutation)
	})

	t.Run("non rigid transform", func(t *testing.T) {
		scaled := Identity()
		scaled[10] = 3
		assert.ErrorIs(t, tr.Track(NewHandle(), root, scaled), ErrInvalidMutation)
	})

	t.Run("non finite delta", func(t *testing.T) {
		assert.ErrorIs(t, tr.Translate(plate, math.Inf(1), 0, 0), ErrInvalidMutation)
		assert.ErrorIs(t, tr.Calibrate(plate, 0, math.NaN(), 0, false), ErrInvalidMutation)
	})

	assert.Equal(t, 3, tr.Len())
}

func TestTracker_UntrackRemovesSubtree(t *testing.T) {
	tr, root, plate, well := plateFixture(t)
	sibling := NewHandle()
	require.NoError(t, tr.Track(sibling, root, Translation(0, 0, 1)))

	require.NoError(t, tr.Untrack(plate))

	for _, h := range []Handle{plate, well} {
		_, err := tr.AbsolutePosition(h)
		assert.ErrorIs(t, err, ErrNotTracked)
	}
	children, err := tr.ChildrenOf(root)
	require.NoError(t, err)
	assert.Equal(t, []Handle{sibling}, children)
	assert.Equal(t, 2, tr.Len())

	// Freed slots are reused and the handle can be tracked again.
	require.NoError(t, tr.Track(plate, sibling, Translation(1, 0, 0)))
	got, err := tr.AbsolutePosition(plate)
	require.NoError(t, err)
	assertPoint(t, Point{X: 1, Y: 0, Z: 1}, got)
}

func TestTracker_TranslateRoundTrip(t *testing.T) {
	tr, _, plate, well := plateFixture(t)
	rng := rand.New(rand.NewSource(7))

	before, err := tr.AbsolutePosition(well)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		dx, dy, dz := rng.Float64()*100-50, rng.Float64()*100-50, rng.Float64()*20
		require.NoError(t, tr.Translate(plate, dx, dy, dz))
		require.NoError(t, tr.Translate(plate, -dx, -dy, -dz))
	}

	after, err := tr.AbsolutePosition(well)
	require.NoError(t, err)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)
	assert.InDelta(t, before.Z, after.Z, 1e-9)
}

func TestTracker_TranslateInLocalFrame(t *testing.T) {
	tr := NewTracker()
	root, turned := NewHandle(), NewHandle()
	require.NoError(t, tr.Track(root, NoHandle, Identity()))
	require.NoError(t, tr.Track(turned, root, RotationZ(math.Pi/2)))

	require.NoError(t, tr.Translate(turned, 1, 0, 0))
	got, err := tr.AbsolutePosition(turned)
	require.NoError(t, err)
	assertPoint(t, Point{X: 0, Y: 1, Z: 0}, got)
}

func TestTracker_RelativePositionToSelfIsOrigin(t *testing.T) {
	tr, root, plate, well := plateFixture(t)
	for _, h := range []Handle{root, plate, well} {
		got, err := tr.RelativePosition(h, h)
		require.NoError(t, err)
		assertPoint(t, Point{}, got)
	}
}

func TestTracker_ChildrenOf(t *testing.T) {
	tr, root, plate, well := plateFixture(t)
	second := NewHandle()
	require.NoError(t, tr.Track(second, root, Identity()))

	children, err := tr.ChildrenOf(root)
	require.NoError(t, err)
	assert.Equal(t, []Handle{plate, second}, children)

	children, err = tr.ChildrenOf(well)
	require.NoError(t, err)
	assert.Empty(t, children)

	// Returned slice is a copy.
	children, _ = tr.ChildrenOf(root)
	children[0] = NoHandle
	again, _ := tr.ChildrenOf(root)
	assert.Equal(t, plate, again[0])
}

// randomTree tracks n nodes under random existing parents.
func randomTree(t *testing.T, rng *rand.Rand, n int) (*Tracker, []Handle) {
	t.Helper()
	tr := NewTracker()
	handles := []Handle{NewHandle()}
	require.NoError(t, tr.Track(handles[0], NoHandle, Identity()))
	for i := 1; i < n; i++ {
		h := NewHandle()
		parent := handles[rng.Intn(len(handles))]
		local := Translation(rng.Float64()*20-10, rng.Float64()*20-10, rng.Float64()*20-10)
		require.NoError(t, tr.Track(h, parent, local))
		handles = append(handles, h)
	}
	return tr, handles
}

func TestTracker_SubtreeOfRootContainsEveryHandleOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		tr, handles := randomTree(t, rng, 1+rng.Intn(60))

		sub, err := tr.SubtreeOf(handles[0])
		require.NoError(t, err)
		require.Len(t, sub, len(handles))
		assert.Equal(t, handles[0], sub[0])
		assert.ElementsMatch(t, handles, sub)

		again, err := tr.SubtreeOf(handles[0])
		require.NoError(t, err)
		assert.Equal(t, sub, again, "subtree order must be deterministic")
	}
}

func TestTracker_SubtreeIsPreOrder(t *testing.T) {
	tr, handles := randomTree(t, rand.New(rand.NewSource(3)), 40)
	sub, err := tr.SubtreeOf(handles[0])
	require.NoError(t, err)

	seen := map[Handle]bool{}
	for _, h := range sub {
		parent, err := tr.ParentOf(h)
		require.NoError(t, err)
		if parent != NoHandle {
			assert.True(t, seen[parent], "parent of %v printed after child", h)
		}
		seen[h] = true
	}
}

func TestTracker_AbsolutePositionMatchesComposition(t *testing.T) {
	tr, handles := randomTree(t, rand.New(rand.NewSource(11)), 50)
	for _, h := range handles {
		// Walk up to the root collecting local transforms.
		var chain []Transform
		for cur := h; cur != NoHandle; {
			local, err := tr.LocalTransform(cur)
			require.NoError(t, err)
			chain = append(chain, local)
			cur, err = tr.ParentOf(cur)
			require.NoError(t, err)
		}
		want := Identity()
		for i := len(chain) - 1; i >= 0; i-- {
			want = want.Compose(chain[i])
		}

		got, err := tr.AbsolutePosition(h)
		require.NoError(t, err)
		assertPoint(t, want.Origin(), got)
	}
}

func TestTracker_MaxZMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	tr, handles := randomTree(t, rng, 80)

	for round := 0; round < 30; round++ {
		h := handles[rng.Intn(len(handles))]
		require.NoError(t, tr.Translate(h, rng.Float64()*4-2, rng.Float64()*4-2, rng.Float64()*10-5))

		target := handles[rng.Intn(len(handles))]
		sub, err := tr.SubtreeOf(target)
		require.NoError(t, err)

		want := math.Inf(-1)
		for _, s := range sub {
			p, err := tr.AbsolutePosition(s)
			require.NoError(t, err)
			want = math.Max(want, p.Z)
		}

		got, err := tr.MaxZInSubtree(target)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9)
	}
}

func TestTracker_MaxZReflectsTranslate(t *testing.T) {
	tr, root, plate, _ := plateFixture(t)

	z, err := tr.MaxZInSubtree(root)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, z, eps)

	require.NoError(t, tr.Translate(plate, 0, 0, 1))
	z, err = tr.MaxZInSubtree(root)
	require.NoError(t, err)
	assert.InDelta(t, 11.5, z, eps)
}

func TestTracker_DegenerateTransformPoisonsTracker(t *testing.T) {
	tr, root, plate, well := plateFixture(t)

	// Corrupt a local transform in place; this cannot happen through the
	// public API.
	tr.mu.Lock()
	i, _ := tr.nodes.lookup(plate)
	tr.nodes.get(i).local = Transform{}
	tr.mu.Unlock()

	_, err := tr.RelativePosition(well, plate)
	require.ErrorIs(t, err, ErrDegenerateTransform)

	_, err = tr.AbsolutePosition(root)
	assert.ErrorIs(t, err, ErrDegenerateTransform)
	assert.ErrorIs(t, tr.Translate(root, 1, 0, 0), ErrDegenerateTransform)
	assert.ErrorIs(t, tr.Err(), ErrDegenerateTransform)
}

func TestTracker_Dump(t *testing.T) {
	tr := NewTracker()
	world, head, deck, a1, a2, plate := NewHandle(), NewHandle(), NewHandle(), NewHandle(), NewHandle(), NewHandle()
	require.NoError(t, tr.Track(world, NoHandle, Identity(), WithLabel("world")))
	require.NoError(t, tr.Track(head, world, Identity(), WithLabel("'head'")))
	require.NoError(t, tr.Track(deck, world, Identity(), WithLabel("<Deck>")))
	require.NoError(t, tr.Track(a1, deck, Identity(), WithLabel("<Slot A1>")))
	require.NoError(t, tr.Track(plate, a1, Identity(), WithLabel("<Container plate>")))
	require.NoError(t, tr.Track(a2, deck, Identity(), WithLabel("<Slot A2>")))

	want := "world\n" +
		"\t'head'\n" +
		"\t<Deck>\n" +
		"\t\t<Deck><Slot A1>\n" +
		"\t\t\t<Deck><Slot A1><Container plate>\n" +
		"\t\t<Deck><Slot A2>\n"
	assert.Equal(t, want, tr.Dump())
	assert.Equal(t, want, tr.String())
	assert.Equal(t, "", NewTracker().Dump())
}

func TestTracker_ConcurrentReadersAndWriter(t *testing.T) {
	tr, root, plate, well := plateFixture(t)

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = tr.AbsolutePosition(well)
				_, _ = tr.MaxZInSubtree(root)
				_, _ = tr.RelativePosition(well, plate)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = tr.Translate(plate, 0, 0, 1)
			_ = tr.Translate(plate, 0, 0, -1)
		}
	}()
	wg.Wait()

	got, err := tr.AbsolutePosition(well)
	require.NoError(t, err)
	assertPoint(t, Point{X: 39.24, Y: 24.34, Z: 10.5}, got)
}
