package prof

import "github.com/sirupsen/logrus"

// Profiler is the consumer handle. It owns the receive side of the report
// channel and drains it without blocking.
type Profiler struct {
	hub     *Hub
	sink    *chan FrameReport
	reports chan FrameReport
}

// NewProfiler creates the report channel with the hub's capacity and
// attaches it. Before this call every send fails with ErrNotInitialized.
//
// A hub has one consumer. Attaching a second Profiler replaces the first,
// which keeps whatever it has already buffered.
func NewProfiler(h *Hub) *Profiler {
	reports := make(chan FrameReport, h.capacity)
	p := &Profiler{
		hub:     h,
		sink:    &reports,
		reports: reports,
	}

	fields := logrus.Fields{"capacity": h.capacity}
	if prev := h.sink.Swap(p.sink); prev != nil {
		h.logger.WithFields(fields).Warn("Replacing attached profiler")
	} else {
		h.logger.WithFields(fields).Debug("Profiler attached")
	}
	return p
}

// CreateProfiler attaches a new Profiler to the default hub.
func CreateProfiler() *Profiler {
	return NewProfiler(defaultHub)
}

// DrainReports returns every report buffered at the time of the call, in
// receipt order. It never blocks and returns an empty slice when nothing
// is pending.
func (p *Profiler) DrainReports() []FrameReport {
	n := len(p.reports)
	reports := make([]FrameReport, 0, n)
	for i := 0; i < n; i++ {
		select {
		case r := <-p.reports:
			reports = append(reports, r)
		default:
			return reports
		}
	}
	return reports
}

// Buffered returns the number of reports waiting to be drained.
func (p *Profiler) Buffered() int {
	return len(p.reports)
}

// Attached reports whether this Profiler still receives new reports.
func (p *Profiler) Attached() bool {
	return p.hub.sink.Load() == p.sink
}

// Close detaches the Profiler from its hub; later sends fail with
// ErrNotInitialized. Buffered reports can still be drained. The channel
// itself is never closed, so producers racing with Close cannot panic.
func (p *Profiler) Close() {
	if p.hub.sink.CompareAndSwap(p.sink, nil) {
		p.hub.logger.Debug("Profiler detached")
	}
}
