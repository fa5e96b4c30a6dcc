package prof

import "time"

// none marks an absent arena index.
const none int32 = -1

// arenaNode is a region while its frame is being recorded. Nodes live in the
// regionStack arena and refer to each other by index only, so growing the
// arena never invalidates a parent, sibling or handle.
type arenaNode struct {
	name   string
	id     string
	custom CustomSource
	start  time.Time

	duration time.Duration
	resolved bool

	parent     int32
	firstChild int32
	lastChild  int32
	next       int32
}

// regionStack records one frame of regions for one time-source kind.
type regionStack struct {
	nodes     []arenaNode
	firstRoot int32
	lastRoot  int32
	active    int32
	depth     int

	// generation increments on every reset; handles from an earlier
	// generation can never close a node of the current one.
	generation uint64
}

func newRegionStack() regionStack {
	return regionStack{firstRoot: none, lastRoot: none, active: none}
}

// begin appends a node as the last child of the active node, or as a new
// root, and makes it active.
func (s *regionStack) begin(name, id string, src Source, clock func() time.Time) int32 {
	idx := int32(len(s.nodes))
	s.nodes = append(s.nodes, arenaNode{
		name:       name,
		id:         id,
		custom:     src.custom,
		parent:     s.active,
		firstChild: none,
		lastChild:  none,
		next:       none,
	})

	if s.active == none {
		if s.lastRoot == none {
			s.firstRoot = idx
		} else {
			s.nodes[s.lastRoot].next = idx
		}
		s.lastRoot = idx
	} else {
		parent := &s.nodes[s.active]
		if parent.lastChild == none {
			parent.firstChild = idx
		} else {
			s.nodes[parent.lastChild].next = idx
		}
		parent.lastChild = idx
	}
	s.active = idx
	s.depth++

	n := &s.nodes[idx]
	if n.custom != nil {
		n.custom.Start()
	} else {
		n.start = clock()
	}
	return idx
}

// check returns why the handle (idx, gen) may not end the active region,
// or "" if it may.
func (s *regionStack) check(idx int32, gen uint64) string {
	switch {
	case gen != s.generation:
		return "region handle belongs to an earlier frame"
	case s.active == none:
		return "end without matching begin"
	case idx != s.active:
		return "regions ended out of order"
	}
	return ""
}

// end resolves the active node and restores its parent as active.
// The caller must have passed check first.
func (s *regionStack) end(clock func() time.Time) {
	n := &s.nodes[s.active]
	if n.custom != nil {
		n.custom.End()
		n.duration, n.resolved = n.custom.Duration()
	} else {
		n.duration = clock().Sub(n.start)
		n.resolved = true
	}
	s.active = n.parent
	s.depth--
}

func (s *regionStack) activeName() string {
	if s.active == none {
		return ""
	}
	return s.nodes[s.active].name
}

func (s *regionStack) idle() bool  { return s.active == none }
func (s *regionStack) empty() bool { return s.firstRoot == none }

// pendingNode is a region whose custom source had not resolved when its
// frame was reported.
type pendingNode struct {
	kind   Kind
	source CustomSource
	res    Resolution
	polls  int
}

// snapshot folds the arena into an immutable tree for frame and lists the
// nodes that are still waiting on their source.
func (s *regionStack) snapshot(frame uint64) ([]Node, []pendingNode) {
	var pending []pendingNode
	roots := s.collect(s.firstRoot, nil, frame, &pending)
	return roots, pending
}

func (s *regionStack) collect(first int32, path []int, frame uint64, pending *[]pendingNode) []Node {
	count := 0
	for i := first; i != none; i = s.nodes[i].next {
		count++
	}
	if count == 0 {
		return nil
	}

	out := make([]Node, 0, count)
	for i := first; i != none; i = s.nodes[i].next {
		n := &s.nodes[i]
		nodePath := append(path[:len(path):len(path)], len(out))
		node := Node{
			Name:     n.name,
			ID:       n.id,
			Duration: n.duration,
			Pending:  !n.resolved,
		}
		if !n.resolved {
			*pending = append(*pending, pendingNode{
				source: n.custom,
				res: Resolution{
					Frame: frame,
					Path:  nodePath,
					Name:  n.name,
					ID:    n.id,
				},
			})
		}
		node.Children = s.collect(n.firstChild, nodePath, frame, pending)
		out = append(out, node)
	}
	return out
}

// reset clears the arena for the next frame, keeping its capacity.
func (s *regionStack) reset() {
	clear(s.nodes)
	s.nodes = s.nodes[:0]
	s.firstRoot = none
	s.lastRoot = none
	s.active = none
	s.depth = 0
	s.generation++
}
