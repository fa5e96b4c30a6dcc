package prof

import (
	"encoding/json"
	"math"
	"time"
)

// Node is one completed (or pending) region in a FrameReport.
type Node struct {
	// Name is the display name given at Begin.
	Name string

	// ID is the stable call-site identifier, used to correlate the same
	// region across frames.
	ID string

	// Duration is the measured duration. Meaningless while Pending is true.
	Duration time.Duration

	// Pending is true when the region's custom source had not resolved by
	// the time the report was built.
	Pending bool

	// Children are the regions begun and ended inside this one, in begin order.
	Children []Node
}

// Seconds returns the duration in seconds and whether it is known.
func (n Node) Seconds() (float64, bool) {
	if n.Pending {
		return 0, false
	}
	return n.Duration.Seconds(), true
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	n.Children = cloneNodes(n.Children)
	return n
}

// Walk calls fn for n and every descendant in depth-first begin order.
// path holds the child indices leading to the node and starts with 0 for n
// itself; it is reused between calls and must be copied to be retained.
// Returning false skips the node's children.
func (n Node) Walk(fn func(path []int, node Node) bool) {
	n.walk([]int{0}, fn)
}

func (n Node) walk(path []int, fn func([]int, Node) bool) {
	if !fn(path, n) {
		return
	}
	for i, child := range n.Children {
		child.walk(append(path, i), fn)
	}
}

type jsonNode struct {
	Name     string   `json:"name"`
	ID       string   `json:"id"`
	Duration *float64 `json:"duration"`
	Children []Node   `json:"children"`
}

// MarshalJSON encodes the duration in seconds, or null while pending.
func (n Node) MarshalJSON() ([]byte, error) {
	j := jsonNode{Name: n.Name, ID: n.ID, Children: n.Children}
	if secs, ok := n.Seconds(); ok {
		j.Duration = &secs
	}
	if j.Children == nil {
		j.Children = []Node{}
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var j jsonNode
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*n = Node{Name: j.Name, ID: j.ID, Children: j.Children, Pending: j.Duration == nil}
	if j.Duration != nil {
		n.Duration = time.Duration(math.Round(*j.Duration * float64(time.Second)))
	}
	return nil
}

// Resolution delivers the duration of a custom-timed region that was still
// pending when its own frame was reported.
type Resolution struct {
	// Frame is the FrameIndex of the report that carried the pending node.
	Frame uint64 `json:"frame"`

	// Path is the child-index path from that report's Roots to the node.
	Path []int `json:"path"`

	Name     string        `json:"name"`
	ID       string        `json:"id"`
	Duration time.Duration `json:"duration"`
}

type jsonResolution struct {
	Frame    uint64  `json:"frame"`
	Path     []int   `json:"path"`
	Name     string  `json:"name"`
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
}

// MarshalJSON encodes the duration in seconds, like Node.
func (r Resolution) MarshalJSON() ([]byte, error) {
	j := jsonResolution{Frame: r.Frame, Path: r.Path, Name: r.Name, ID: r.ID, Duration: r.Duration.Seconds()}
	if j.Path == nil {
		j.Path = []int{}
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (r *Resolution) UnmarshalJSON(data []byte) error {
	var j jsonResolution
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*r = Resolution{
		Frame:    j.Frame,
		Path:     j.Path,
		Name:     j.Name,
		ID:       j.ID,
		Duration: time.Duration(math.Round(j.Duration * float64(time.Second))),
	}
	return nil
}

// FrameReport is the immutable snapshot of one frame for one thread and one
// time-source kind. Once built it shares no mutable state with the producer.
type FrameReport struct {
	// ThreadName is the producing thread's display name. Threads with the
	// same name form one logical stream.
	ThreadName string `json:"thread"`

	// Source is the time-source kind the regions were recorded with.
	Source Kind `json:"source"`

	// FrameIndex is the producing thread's frame counter at the boundary.
	FrameIndex uint64 `json:"frame"`

	// Variables is a copy of the thread's trace variables.
	Variables map[string]float64 `json:"variables"`

	// Roots are the top-level regions of the frame in begin order.
	Roots []Node `json:"roots"`

	// Resolved carries late durations for nodes of earlier frames.
	Resolved []Resolution `json:"resolved,omitempty"`
}

type jsonFrameReport FrameReport

// MarshalJSON encodes missing roots and variables as empty collections.
func (r FrameReport) MarshalJSON() ([]byte, error) {
	if r.Roots == nil {
		r.Roots = []Node{}
	}
	if r.Variables == nil {
		r.Variables = map[string]float64{}
	}
	return json.Marshal(jsonFrameReport(r))
}

// Clone returns a deep copy of r.
func (r FrameReport) Clone() FrameReport {
	r.Roots = cloneNodes(r.Roots)
	if r.Variables != nil {
		vars := make(map[string]float64, len(r.Variables))
		for k, v := range r.Variables {
			vars[k] = v
		}
		r.Variables = vars
	}
	if r.Resolved != nil {
		resolved := make([]Resolution, len(r.Resolved))
		for i, res := range r.Resolved {
			res.Path = append([]int(nil), res.Path...)
			resolved[i] = res
		}
		r.Resolved = resolved
	}
	return r
}

// Walk calls fn for every node of the report in depth-first begin order.
// The path argument follows the same rules as Node.Walk.
func (r FrameReport) Walk(fn func(path []int, node Node) bool) {
	for i, root := range r.Roots {
		root.walk([]int{i}, fn)
	}
}

// NodeAt returns the node at path, or false if path does not exist.
func (r FrameReport) NodeAt(path []int) (Node, bool) {
	nodes := r.Roots
	var n Node
	for _, i := range path {
		if i < 0 || i >= len(nodes) {
			return Node{}, false
		}
		n = nodes[i]
		nodes = n.Children
	}
	return n, len(path) > 0
}

// WithResolution returns a copy of r in which the node at res.Path carries
// res.Duration. Only the nodes along the path are copied; r is unchanged.
// It returns false if res does not belong to r or the path does not exist.
func (r FrameReport) WithResolution(res Resolution) (FrameReport, bool) {
	if res.Frame != r.FrameIndex || len(res.Path) == 0 {
		return r, false
	}
	roots, ok := patchPath(r.Roots, res.Path, res.Duration)
	if !ok {
		return r, false
	}
	r.Roots = roots
	return r, true
}

func patchPath(nodes []Node, path []int, d time.Duration) ([]Node, bool) {
	i := path[0]
	if i < 0 || i >= len(nodes) {
		return nil, false
	}
	out := make([]Node, len(nodes))
	copy(out, nodes)
	if len(path) == 1 {
		out[i].Duration = d
		out[i].Pending = false
		return out, true
	}
	children, ok := patchPath(out[i].Children, path[1:], d)
	if !ok {
		return nil, false
	}
	out[i].Children = children
	return out, true
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
