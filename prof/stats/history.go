package stats

import "github.com/wesleyorama2/tinyprof/prof"

// DefaultHistoryFrames is the number of reports a History keeps per stream.
const DefaultHistoryFrames = 300

// History stores the most recent frame reports of one stream in a ring
// buffer, automatically discarding the oldest report when full.
//
// History is not safe for concurrent use; Collector guards it.
type History struct {
	reports []prof.FrameReport
	head    int // Next write position
	count   int
	max     int
}

// NewHistory creates a History retaining up to max reports.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistoryFrames
	}
	return &History{
		reports: make([]prof.FrameReport, max),
		max:     max,
	}
}

// Add appends a report, evicting the oldest one when full.
func (h *History) Add(r prof.FrameReport) {
	h.reports[h.head] = r
	h.head = (h.head + 1) % h.max
	if h.count < h.max {
		h.count++
	}
}

// Resolve patches the pending node a Resolution refers to. The stored
// report is replaced by a patched copy, so reports handed out earlier
// never change. It returns false if the report has been evicted or no
// longer holds a matching pending node.
func (h *History) Resolve(res prof.Resolution) bool {
	// Newest first: with coalesced threads the most recent frame with this
	// index is the one still waiting.
	for i := 0; i < h.count; i++ {
		idx := (h.head - 1 - i + h.max) % h.max
		r := h.reports[idx]
		if r.FrameIndex != res.Frame {
			continue
		}
		n, ok := r.NodeAt(res.Path)
		if !ok || !n.Pending || n.ID != res.ID {
			continue
		}
		patched, ok := r.WithResolution(res)
		if !ok {
			return false
		}
		h.reports[idx] = patched
		return true
	}
	return false
}

// Latest returns the most recent report.
func (h *History) Latest() (prof.FrameReport, bool) {
	if h.count == 0 {
		return prof.FrameReport{}, false
	}
	return h.reports[(h.head-1+h.max)%h.max], true
}

// Recent returns up to n of the most recent reports, oldest first.
func (h *History) Recent(n int) []prof.FrameReport {
	if n <= 0 || n > h.count {
		n = h.count
	}

	result := make([]prof.FrameReport, n)
	start := (h.head - n + h.max) % h.max
	for i := 0; i < n; i++ {
		result[i] = h.reports[(start+i)%h.max]
	}
	return result
}

// Reports returns every retained report, oldest first.
func (h *History) Reports() []prof.FrameReport {
	return h.Recent(0)
}

// Len returns the number of retained reports.
func (h *History) Len() int {
	return h.count
}

// Reset discards every report.
func (h *History) Reset() {
	clear(h.reports)
	h.head = 0
	h.count = 0
}
