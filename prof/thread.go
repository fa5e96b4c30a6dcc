package prof

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Thread is the per-goroutine profiling storage: a display name, one region
// stack per time-source kind, the trace variables and the frame counter.
//
// A Thread is exclusively owned by one goroutine and takes no locks; the
// only state it shares is its Hub. A nil *Thread records nothing and every
// method on it is a no-op.
type Thread struct {
	hub       *Hub
	name      string
	stacks    [numKinds]regionStack
	variables map[string]float64
	frame     uint64
	pending   []pendingNode
	owner     atomic.Uint64
}

// Name returns the display name.
func (t *Thread) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// SetName sets the display name, DefaultThreadName until called.
//
// Consumers identify streams by name: two threads with the same name are
// treated as one logical thread and their reports interleave in a single
// stream.
func (t *Thread) SetName(name string) {
	if t == nil {
		return
	}
	t.checkOwner()
	t.name = name
}

// SetVariable sets a named trace value for the current frame. Variables
// belong to the thread, not to any region.
func (t *Thread) SetVariable(name string, value float64) {
	if t == nil {
		return
	}
	t.checkOwner()
	t.variables[name] = value
}

// Variable returns the current value of a trace variable.
func (t *Thread) Variable(name string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.variables[name]
	return v, ok
}

// Frame returns the index of the frame being recorded.
func (t *Thread) Frame() uint64 {
	if t == nil {
		return 0
	}
	return t.frame
}

// Depth returns the number of open regions of the given kind.
func (t *Thread) Depth(kind Kind) int {
	if t == nil || kind >= numKinds {
		return 0
	}
	return t.stacks[kind].depth
}

// Begin opens a region as a child of the innermost open region of the same
// kind and starts its time source. The returned Region must be ended on
// the same goroutine, typically with defer:
//
//	defer t.Begin("update", "game.update", prof.SystemClock).End()
func (t *Thread) Begin(name, id string, src Source) Region {
	if t == nil {
		return Region{}
	}
	t.checkOwner()

	kind := src.Kind()
	st := &t.stacks[kind]
	idx := st.begin(name, id, src, t.hub.now)
	return Region{
		thread:     t,
		name:       name,
		kind:       kind,
		index:      idx,
		generation: st.generation,
	}
}

// BeginHere opens a system-clock region whose id is the caller's source
// location.
func (t *Thread) BeginHere(name string) Region {
	if t == nil {
		return Region{}
	}
	return t.Begin(name, CallSite(1), SystemClock)
}

// Scope runs fn inside a region. The region ends on every exit path of fn:
// normal return, error return and panic.
func (t *Thread) Scope(name, id string, src Source, fn func() error) error {
	defer t.Begin(name, id, src).End()
	return fn()
}

// AdvanceFrame closes the current frame.
//
// For each time-source kind with recorded regions, or with late
// resolutions to deliver, it builds a FrameReport, resets the kind's stack
// and submits the report to the hub without blocking. The frame index
// advances once per call whatever the outcome.
//
// A kind with a region still open is left untouched and reported as an
// *UnterminatedRegionError; the other kinds still advance. Delivery
// failures wrap ErrNotInitialized or ErrChannelFull. All errors are joined.
func (t *Thread) AdvanceFrame() error {
	if t == nil {
		return nil
	}
	t.checkOwner()

	frame := t.frame
	t.frame++

	var errs []error
	reported, unterminated := false, false
	for kind := Kind(0); kind < numKinds; kind++ {
		st := &t.stacks[kind]
		if !st.idle() {
			unterminated = true
			errs = append(errs, &UnterminatedRegionError{
				Thread: t.name,
				Kind:   kind,
				Region: st.activeName(),
				Depth:  st.depth,
			})
			continue
		}

		resolved := t.pollPending(kind)
		if st.empty() && len(resolved) == 0 {
			continue
		}

		roots, pending := st.snapshot(frame)
		st.reset()
		for i := range pending {
			pending[i].kind = kind
		}
		t.pending = append(t.pending, pending...)

		report := FrameReport{
			ThreadName: t.name,
			Source:     kind,
			FrameIndex: frame,
			Variables:  t.copyVariables(),
			Roots:      roots,
			Resolved:   resolved,
		}
		reported = true

		if err := t.hub.send(report); err != nil {
			errs = append(errs, fmt.Errorf("thread %q: %s frame %d: %w", t.name, kind, frame, err))
		}
	}

	// A kind that could not report this frame still owes its report the
	// variables set during it.
	if reported && !unterminated && t.hub.policy == ClearOnFrame {
		clear(t.variables)
	}
	return errors.Join(errs...)
}

// pollPending polls the unresolved regions of kind left by earlier frames.
func (t *Thread) pollPending(kind Kind) []Resolution {
	if len(t.pending) == 0 {
		return nil
	}

	var resolved []Resolution
	kept := t.pending[:0]
	for _, p := range t.pending {
		if p.kind != kind {
			kept = append(kept, p)
			continue
		}
		if d, ok := p.source.Duration(); ok {
			res := p.res
			res.Duration = d
			resolved = append(resolved, res)
			continue
		}
		p.polls++
		if p.polls >= t.hub.pendingLimit {
			t.hub.abandon(t.name, p.res)
			continue
		}
		kept = append(kept, p)
	}
	clear(t.pending[len(kept):])
	t.pending = kept
	return resolved
}

// Pending returns the number of already reported regions still waiting on
// their custom source.
func (t *Thread) Pending() int {
	if t == nil {
		return 0
	}
	return len(t.pending)
}

func (t *Thread) copyVariables() map[string]float64 {
	vars := make(map[string]float64, len(t.variables))
	for k, v := range t.variables {
		vars[k] = v
	}
	return vars
}

// checkOwner binds the thread to the first goroutine that uses it when the
// hub has owner checks enabled.
func (t *Thread) checkOwner() {
	if !t.hub.ownerCheck {
		return
	}
	gid := goroutineID()
	if t.owner.CompareAndSwap(0, gid) {
		return
	}
	if owner := t.owner.Load(); owner != gid {
		panic(&StackDisciplineError{
			Thread: t.name,
			Reason: fmt.Sprintf("thread owned by goroutine %d used from goroutine %d", owner, gid),
		})
	}
}
