package prof

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0), step: step}
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// querySource resolves on the given poll (1 is the poll made at End).
type querySource struct {
	resolveOn int
	duration  time.Duration
	polls     int
	started   int
	ended     int
}

func (q *querySource) Start() { q.started++ }
func (q *querySource) End()   { q.ended++ }

func (q *querySource) Duration() (time.Duration, bool) {
	q.polls++
	if q.resolveOn > 0 && q.polls >= q.resolveOn {
		return q.duration, true
	}
	return 0, false
}

func newTestHub(opts ...Option) (*Hub, *Profiler) {
	hub := NewHub(append([]Option{WithClock(newFakeClock(time.Millisecond).Now)}, opts...)...)
	return hub, NewProfiler(hub)
}

// shape strips durations so trees can be compared structurally.
func shape(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Node{Name: n.Name, ID: n.ID, Pending: n.Pending, Children: shape(n.Children)}
	}
	return out
}

var emptyChildren = cmpopts.EquateEmpty()

func TestNestedRegions(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	a := th.Begin("A", "idA", SystemClock)
	b := th.Begin("B", "idB", SystemClock)
	b.End()
	a.End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)

	want := []Node{{Name: "A", ID: "idA", Children: []Node{{Name: "B", ID: "idB"}}}}
	if diff := cmp.Diff(want, shape(reports[0].Roots), emptyChildren); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, DefaultThreadName, reports[0].ThreadName)
	assert.Equal(t, KindClock, reports[0].Source)
	assert.Equal(t, uint64(0), reports[0].FrameIndex)
}

func TestSiblingOrderAndDurations(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	// Each clock reading advances 1ms, so a leaf lasts 1ms and the parent
	// spans every reading taken inside it.
	root := th.Begin("root", "root", SystemClock)
	for i := 0; i < 3; i++ {
		th.Begin(fmt.Sprintf("child%d", i), "child", SystemClock).End()
	}
	root.End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	r := reports[0]
	require.Len(t, r.Roots, 1)
	require.Len(t, r.Roots[0].Children, 3)
	for i, c := range r.Roots[0].Children {
		assert.Equal(t, fmt.Sprintf("child%d", i), c.Name)
		assert.Equal(t, time.Millisecond, c.Duration)
	}
	assert.Equal(t, 7*time.Millisecond, r.Roots[0].Duration)
}

func TestManyRootsGrowArena(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	// Enough nested siblings to force several arena reallocations while
	// parents are open.
	outer := th.Begin("outer", "outer", SystemClock)
	for i := 0; i < 100; i++ {
		mid := th.Begin("mid", "mid", SystemClock)
		th.Begin("leaf", "leaf", SystemClock).End()
		mid.End()
	}
	outer.End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Roots, 1)
	assert.Len(t, reports[0].Roots[0].Children, 100)
	for _, mid := range reports[0].Roots[0].Children {
		require.Len(t, mid.Children, 1)
		assert.Equal(t, "leaf", mid.Children[0].Name)
	}
}

func TestScopeEndsOnEveryPath(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()
	boom := errors.New("boom")

	err := th.Scope("ok", "ok", SystemClock, func() error { return nil })
	require.NoError(t, err)

	err = th.Scope("fails", "fails", SystemClock, func() error { return boom })
	require.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = th.Scope("panics", "panics", SystemClock, func() error { panic("bad") })
	})

	assert.Equal(t, 0, th.Depth(KindClock))
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	var names []string
	for _, n := range reports[0].Roots {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"ok", "fails", "panics"}, names)
}

func TestBeginHereUsesCallSite(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	th.BeginHere("here").End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	assert.Regexp(t, `^prof/thread_test\.go:\d+$`, reports[0].Roots[0].ID)
}

func TestDrainEmpty(t *testing.T) {
	_, profiler := newTestHub()

	first := profiler.DrainReports()
	assert.NotNil(t, first)
	assert.Empty(t, first)
	assert.Empty(t, profiler.DrainReports())
}

func TestDrainIsIdempotent(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	th.Begin("A", "a", SystemClock).End()
	require.NoError(t, th.AdvanceFrame())

	assert.Len(t, profiler.DrainReports(), 1)
	assert.Empty(t, profiler.DrainReports())
}

func TestEmptyFrameSendsNothing(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	require.NoError(t, th.AdvanceFrame())
	require.NoError(t, th.AdvanceFrame())

	assert.Empty(t, profiler.DrainReports())
	assert.Equal(t, uint64(2), th.Frame())
}

func TestFrameIndexIncrements(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	for i := 0; i < 3; i++ {
		th.Begin("tick", "tick", SystemClock).End()
		require.NoError(t, th.AdvanceFrame())
	}

	reports := profiler.DrainReports()
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, uint64(i), r.FrameIndex)
	}
}

func TestThreadsReportIndependently(t *testing.T) {
	hub, profiler := newTestHub()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"T1", "T2"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			th := hub.NewThread()
			th.SetName(name)
			th.Begin("work", "work", SystemClock).End()
			errs <- th.AdvanceFrame()
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	reports := profiler.DrainReports()
	require.Len(t, reports, 2)
	names := []string{reports[0].ThreadName, reports[1].ThreadName}
	assert.ElementsMatch(t, []string{"T1", "T2"}, names)
}

func TestPendingCustomSourceResolvesLater(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()
	q := &querySource{resolveOn: 2, duration: 5 * time.Millisecond}

	th.Begin("gpu", "gpu", Custom(q)).End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	first := reports[0]
	assert.Equal(t, KindCustom, first.Source)
	require.Len(t, first.Roots, 1)
	assert.True(t, first.Roots[0].Pending)
	_, known := first.Roots[0].Seconds()
	assert.False(t, known)
	assert.Equal(t, 1, th.Pending())

	require.NoError(t, th.AdvanceFrame())

	reports = profiler.DrainReports()
	require.Len(t, reports, 1)
	second := reports[0]
	assert.Empty(t, second.Roots)
	require.Len(t, second.Resolved, 1)
	assert.Equal(t, Resolution{
		Frame:    0,
		Path:     []int{0},
		Name:     "gpu",
		ID:       "gpu",
		Duration: 5 * time.Millisecond,
	}, second.Resolved[0])
	assert.Equal(t, 0, th.Pending())

	patched, ok := first.WithResolution(second.Resolved[0])
	require.True(t, ok)
	assert.False(t, patched.Roots[0].Pending)
	assert.Equal(t, 5*time.Millisecond, patched.Roots[0].Duration)
	assert.True(t, first.Roots[0].Pending, "original report must not change")

	assert.Equal(t, 1, q.started)
	assert.Equal(t, 1, q.ended)
}

func TestCustomSourceResolvedAtEnd(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()
	q := &querySource{resolveOn: 1, duration: 3 * time.Millisecond}

	th.Begin("gpu", "gpu", Custom(q)).End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Roots[0].Pending)
	assert.Equal(t, 3*time.Millisecond, reports[0].Roots[0].Duration)
	assert.Equal(t, 0, th.Pending())
}

func TestClockAndCustomProduceSeparateReports(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()
	q := &querySource{resolveOn: 1, duration: time.Millisecond}

	cpu := th.Begin("cpu", "cpu", SystemClock)
	th.Begin("gpu", "gpu", Custom(q)).End()
	cpu.End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 2)
	assert.Equal(t, KindClock, reports[0].Source)
	assert.Equal(t, KindCustom, reports[1].Source)

	// The custom region is a root of its own stack, not a child of cpu.
	assert.Empty(t, reports[0].Roots[0].Children)
	assert.Equal(t, "gpu", reports[1].Roots[0].Name)
}

func TestPendingAbandonedAfterLimit(t *testing.T) {
	hub, profiler := newTestHub(WithPendingLimit(3))
	th := hub.NewThread()
	q := &querySource{}

	th.Begin("lost", "lost", Custom(q)).End()
	for i := 0; i < 5; i++ {
		require.NoError(t, th.AdvanceFrame())
	}

	assert.Equal(t, 0, th.Pending())
	assert.Equal(t, int64(1), hub.Stats().Abandoned)
	assert.Len(t, profiler.DrainReports(), 1)
}

func TestChannelOverflow(t *testing.T) {
	const capacity = 4
	hub, profiler := newTestHub(WithCapacity(capacity))
	th := hub.NewThread()

	for i := 0; i < capacity; i++ {
		th.Begin("r", "r", SystemClock).End()
		require.NoError(t, th.AdvanceFrame())
	}

	th.Begin("extra", "extra", SystemClock).End()
	err := th.AdvanceFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelFull)
	assert.False(t, Ignorable(err))

	assert.Len(t, profiler.DrainReports(), capacity)
	stats := hub.Stats()
	assert.Equal(t, int64(capacity), stats.Sent)
	assert.Equal(t, int64(1), stats.DroppedFull)
}

func TestNotInitialized(t *testing.T) {
	hub := NewHub()
	th := hub.NewThread()

	th.Begin("r", "r", SystemClock).End()
	err := th.AdvanceFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.True(t, Ignorable(err))
	assert.Equal(t, int64(1), hub.Stats().DroppedUninitialized)
}

func TestUnterminatedRegion(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	outer := th.Begin("outer", "outer", SystemClock)
	th.Begin("done", "done", SystemClock).End()

	err := th.AdvanceFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnterminatedRegion)

	var unterminated *UnterminatedRegionError
	require.ErrorAs(t, err, &unterminated)
	assert.Equal(t, "outer", unterminated.Region)
	assert.Equal(t, 1, unterminated.Depth)
	assert.Equal(t, KindClock, unterminated.Kind)
	assert.Empty(t, profiler.DrainReports())

	// The tree is left intact; ending the region and advancing again
	// reports everything recorded so far.
	outer.End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	assert.Equal(t, uint64(1), reports[0].FrameIndex)
	want := []Node{{Name: "outer", ID: "outer", Children: []Node{{Name: "done", ID: "done"}}}}
	if diff := cmp.Diff(want, shape(reports[0].Roots), emptyChildren); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
}

func TestUnterminatedKindDoesNotBlockOtherKind(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()
	q := &querySource{resolveOn: 1}

	th.Begin("gpu", "gpu", Custom(q)).End()
	open := th.Begin("cpu", "cpu", SystemClock)

	err := th.AdvanceFrame()
	assert.ErrorIs(t, err, ErrUnterminatedRegion)

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	assert.Equal(t, KindCustom, reports[0].Source)
	open.End()
}

func TestVariablesKeptForUnterminatedKind(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()
	q := &querySource{resolveOn: 1, duration: time.Millisecond}

	th.Begin("gpu", "gpu", Custom(q)).End()
	open := th.Begin("cpu", "cpu", SystemClock)
	th.SetVariable("v", 42)

	require.ErrorIs(t, th.AdvanceFrame(), ErrUnterminatedRegion)
	open.End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 2)
	assert.Equal(t, KindCustom, reports[0].Source)
	assert.Equal(t, map[string]float64{"v": 42}, reports[0].Variables)
	assert.Equal(t, KindClock, reports[1].Source)
	assert.Equal(t, uint64(1), reports[1].FrameIndex)
	assert.Equal(t, map[string]float64{"v": 42}, reports[1].Variables)

	_, ok := th.Variable("v")
	assert.False(t, ok)
}

func TestEndWithoutBeginPanics(t *testing.T) {
	hub, _ := newTestHub()
	th := hub.NewThread()

	r := th.Begin("once", "once", SystemClock)
	r.End()

	defer func() {
		v := recover()
		require.NotNil(t, v)
		disc, ok := v.(*StackDisciplineError)
		require.True(t, ok, "panic value %T", v)
		assert.Equal(t, "once", disc.Region)
		assert.Contains(t, disc.Error(), "end without matching begin")
	}()
	r.End()
}

func TestOutOfOrderEndPanics(t *testing.T) {
	hub, _ := newTestHub()
	th := hub.NewThread()

	outer := th.Begin("outer", "outer", SystemClock)
	inner := th.Begin("inner", "inner", SystemClock)

	defer func() {
		v := recover()
		disc, ok := v.(*StackDisciplineError)
		require.True(t, ok, "panic value %T", v)
		assert.Equal(t, "outer", disc.Region)
		assert.Equal(t, "inner", disc.Active)
		assert.Equal(t, "regions ended out of order", disc.Reason)
	}()
	_ = inner
	outer.End()
}

func TestStaleHandlePanics(t *testing.T) {
	hub, _ := newTestHub()
	th := hub.NewThread()

	r := th.Begin("old", "old", SystemClock)
	r.End()
	require.NoError(t, th.AdvanceFrame())

	// Same arena slot, new frame.
	th.Begin("new", "new", SystemClock)

	assert.PanicsWithError(t,
		`prof: stack discipline violation on thread "unknown" (clock): region handle belongs to an earlier frame: region "old", active "new"`,
		r.End)
}

func TestVariablesClearedPerFrame(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	r := th.Begin("r", "r", SystemClock)
	th.SetVariable("speed", 1.5)
	r.End()

	v, ok := th.Variable("speed")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	require.NoError(t, th.AdvanceFrame())
	_, ok = th.Variable("speed")
	assert.False(t, ok)

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	assert.Equal(t, map[string]float64{"speed": 1.5}, reports[0].Variables)
}

func TestVariablesSurviveEmptyFrame(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	th.SetVariable("x", 2)
	require.NoError(t, th.AdvanceFrame())

	th.Begin("r", "r", SystemClock).End()
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	assert.Equal(t, map[string]float64{"x": 2}, reports[0].Variables)
}

func TestVariablesClearOnRegionEnd(t *testing.T) {
	hub, profiler := newTestHub(WithVariablePolicy(ClearOnRegionEnd))
	th := hub.NewThread()

	r := th.Begin("r", "r", SystemClock)
	th.SetVariable("inside", 1)
	r.End()
	th.SetVariable("after", 2)
	require.NoError(t, th.AdvanceFrame())

	reports := profiler.DrainReports()
	require.Len(t, reports, 1)
	assert.Equal(t, map[string]float64{"after": 2}, reports[0].Variables)
}

func TestReportIsIndependentOfThread(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	th.SetVariable("v", 1)
	th.Begin("r", "r", SystemClock).End()
	require.NoError(t, th.AdvanceFrame())
	reports := profiler.DrainReports()
	require.Len(t, reports, 1)

	th.SetVariable("v", 99)
	th.Begin("r2", "r2", SystemClock).End()
	require.NoError(t, th.AdvanceFrame())

	assert.Equal(t, 1.0, reports[0].Variables["v"])
	assert.Equal(t, "r", reports[0].Roots[0].Name)
}

func TestOwnerCheck(t *testing.T) {
	hub, _ := newTestHub(WithOwnerCheck(true))
	th := hub.NewThread()
	th.SetName("owned")

	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		th.Begin("elsewhere", "elsewhere", SystemClock)
	}()

	v := <-done
	disc, ok := v.(*StackDisciplineError)
	require.True(t, ok, "panic value %T", v)
	assert.Equal(t, "owned", disc.Thread)
	assert.Contains(t, disc.Reason, "used from goroutine")
}

func TestNilThreadIsNoop(t *testing.T) {
	var th *Thread

	assert.NotPanics(t, func() {
		th.SetName("x")
		th.SetVariable("v", 1)
		r := th.Begin("r", "r", SystemClock)
		r.End()
		th.BeginHere("here").End()
		require.NoError(t, th.Scope("s", "s", SystemClock, func() error { return nil }))
		require.NoError(t, th.AdvanceFrame())
	})
	assert.Equal(t, "", th.Name())
	assert.Equal(t, 0, th.Depth(KindClock))
	assert.Equal(t, uint64(0), th.Frame())
	assert.Equal(t, 0, th.Pending())
}

func TestSecondProfilerReplacesFirst(t *testing.T) {
	hub, first := newTestHub()
	th := hub.NewThread()

	th.Begin("a", "a", SystemClock).End()
	require.NoError(t, th.AdvanceFrame())

	second := NewProfiler(hub)
	assert.False(t, first.Attached())
	assert.True(t, second.Attached())

	th.Begin("b", "b", SystemClock).End()
	require.NoError(t, th.AdvanceFrame())

	assert.Len(t, first.DrainReports(), 1)
	got := second.DrainReports()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Roots[0].Name)
}

func TestProfilerClose(t *testing.T) {
	hub, profiler := newTestHub()
	th := hub.NewThread()

	th.Begin("a", "a", SystemClock).End()
	require.NoError(t, th.AdvanceFrame())
	profiler.Close()
	profiler.Close()

	th.Begin("b", "b", SystemClock).End()
	assert.ErrorIs(t, th.AdvanceFrame(), ErrNotInitialized)

	assert.Equal(t, 1, profiler.Buffered())
	assert.Len(t, profiler.DrainReports(), 1)
}

func TestConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		frames    = 50
	)
	hub := NewHub(WithCapacity(producers * frames))
	profiler := NewProfiler(hub)

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			th := hub.NewThread()
			th.SetName(fmt.Sprintf("worker-%d", i))
			for f := 0; f < frames; f++ {
				outer := th.Begin("outer", "outer", SystemClock)
				th.Begin("inner", "inner", SystemClock).End()
				outer.End()
				if err := th.AdvanceFrame(); err != nil {
					t.Errorf("AdvanceFrame: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	reports := profiler.DrainReports()
	require.Len(t, reports, producers*frames)

	perThread := make(map[string]uint64)
	for _, r := range reports {
		assert.Equal(t, perThread[r.ThreadName], r.FrameIndex, "reports of one thread arrive in order")
		perThread[r.ThreadName]++
	}
	assert.Len(t, perThread, producers)
}

func TestThreadFromContext(t *testing.T) {
	hub, _ := newTestHub()
	th := hub.NewThread()

	ctx := WithThread(t.Context(), th)
	assert.Same(t, th, ThreadFromContext(ctx))
	assert.Nil(t, ThreadFromContext(t.Context()))
}

func TestIgnorable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"not initialized", ErrNotInitialized, true},
		{"wrapped", fmt.Errorf("frame 1: %w", ErrNotInitialized), true},
		{"joined", errors.Join(ErrNotInitialized, fmt.Errorf("x: %w", ErrNotInitialized)), true},
		{"full", ErrChannelFull, false},
		{"mixed", errors.Join(ErrNotInitialized, ErrChannelFull), false},
		{"unterminated", &UnterminatedRegionError{Region: "r"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ignorable(tt.err))
		})
	}
}

func TestParseVariablePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    VariablePolicy
		wantErr bool
	}{
		{"", ClearOnFrame, false},
		{"frame", ClearOnFrame, false},
		{"Region", ClearOnRegionEnd, false},
		{"never", ClearOnFrame, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVariablePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) VariablePolicy {
	t.Helper()
	p, err := ParseVariablePolicy(s)
	require.NoError(t, err)
	return p
}
