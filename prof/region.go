package prof

// Region is the handle of an open region, returned by Thread.Begin. It only
// records where the region lives; End closes it. The zero Region, as
// returned by a nil Thread, ends as a no-op.
type Region struct {
	thread     *Thread
	name       string
	kind       Kind
	index      int32
	generation uint64
}

// End closes the region: it resolves the duration through the region's time
// source and makes the parent region active again.
//
// End panics with a *StackDisciplineError if the region is not the
// innermost open region of its kind, was already ended, or belongs to an
// earlier frame. It never searches for another node to close.
func (r Region) End() {
	t := r.thread
	if t == nil {
		return
	}
	t.checkOwner()

	st := &t.stacks[r.kind]
	if reason := st.check(r.index, r.generation); reason != "" {
		panic(&StackDisciplineError{
			Thread: t.name,
			Kind:   r.kind,
			Region: r.name,
			Active: st.activeName(),
			Reason: reason,
		})
	}
	st.end(t.hub.now)

	if t.hub.policy == ClearOnRegionEnd {
		clear(t.variables)
	}
}

// Name returns the region's display name.
func (r Region) Name() string {
	return r.name
}

// Kind returns the time-source kind the region is recorded on.
func (r Region) Kind() Kind {
	return r.kind
}
