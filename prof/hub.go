package prof

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity is the default bound of the report channel.
	DefaultCapacity = 10000

	// DefaultPendingLimit is how many frame boundaries a custom source may
	// stay unresolved before its region is abandoned.
	DefaultPendingLimit = 16

	// DefaultThreadName is the display name of a Thread until SetName.
	DefaultThreadName = "unknown"
)

// VariablePolicy controls when a thread's trace variables are cleared.
type VariablePolicy uint8

const (
	// ClearOnFrame clears variables once they are copied into a report.
	// They are kept for one more frame while any kind has a region left
	// open at the boundary, so that kind's next report still carries them.
	ClearOnFrame VariablePolicy = iota
	// ClearOnRegionEnd clears variables every time a region ends, which
	// drops values set inside a region once it closes.
	ClearOnRegionEnd
)

// String returns the string representation of VariablePolicy.
func (p VariablePolicy) String() string {
	switch p {
	case ClearOnFrame:
		return "frame"
	case ClearOnRegionEnd:
		return "region"
	default:
		return "unknown"
	}
}

// ParseVariablePolicy converts a string to a VariablePolicy.
func ParseVariablePolicy(s string) (VariablePolicy, error) {
	switch strings.ToLower(s) {
	case "", "frame":
		return ClearOnFrame, nil
	case "region":
		return ClearOnRegionEnd, nil
	default:
		return ClearOnFrame, fmt.Errorf("invalid variable policy: %q (expected: frame|region)", s)
	}
}

// Hub connects instrumented goroutines to the report consumer. It owns the
// configuration shared by its threads and the send side of the bounded
// report channel, which stays unset until a Profiler attaches.
//
// # Thread Safety
//
// Hub is safe for concurrent use. The channel is published through an
// atomic pointer, so attaching a Profiler happens-before every send that
// observes it.
type Hub struct {
	capacity     int
	pendingLimit int
	policy       VariablePolicy
	ownerCheck   bool
	now          func() time.Time
	logger       *logrus.Logger

	sink atomic.Pointer[chan FrameReport]

	sent          atomic.Int64
	droppedFull   atomic.Int64
	droppedUninit atomic.Int64
	abandoned     atomic.Int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithCapacity sets the report channel bound. Values <= 0 select DefaultCapacity.
func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n <= 0 {
			n = DefaultCapacity
		}
		h.capacity = n
	}
}

// WithPendingLimit sets how many frame boundaries an unresolved custom
// region is kept before it is abandoned. Values <= 0 select DefaultPendingLimit.
func WithPendingLimit(frames int) Option {
	return func(h *Hub) {
		if frames <= 0 {
			frames = DefaultPendingLimit
		}
		h.pendingLimit = frames
	}
}

// WithVariablePolicy selects when trace variables are cleared.
func WithVariablePolicy(p VariablePolicy) Option {
	return func(h *Hub) { h.policy = p }
}

// WithOwnerCheck makes every Thread bind to the goroutine of its first
// instrumented call and panic when used from any other goroutine. It costs
// a stack read per call and is meant for debugging.
func WithOwnerCheck(enabled bool) Option {
	return func(h *Hub) { h.ownerCheck = enabled }
}

// WithClock replaces the system clock used for KindClock regions.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets the logger for lifecycle events. The recording path
// never logs.
func WithLogger(logger *logrus.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates a Hub with the given options.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		capacity:     DefaultCapacity,
		pendingLimit: DefaultPendingLimit,
		policy:       ClearOnFrame,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logrus.New()
		h.logger.SetLevel(logrus.WarnLevel)
	}
	return h
}

// Capacity returns the report channel bound.
func (h *Hub) Capacity() int {
	return h.capacity
}

// NewThread creates the per-goroutine storage for one instrumented
// goroutine. The returned Thread must only be used by that goroutine.
func (h *Hub) NewThread() *Thread {
	t := &Thread{
		hub:       h,
		name:      DefaultThreadName,
		variables: make(map[string]float64),
	}
	for k := range t.stacks {
		t.stacks[k] = newRegionStack()
	}
	return t
}

// send submits a report without blocking.
func (h *Hub) send(r FrameReport) error {
	sink := h.sink.Load()
	if sink == nil {
		h.droppedUninit.Add(1)
		return ErrNotInitialized
	}

	select {
	case *sink <- r:
		h.sent.Add(1)
		return nil
	default:
		h.droppedFull.Add(1)
		return ErrChannelFull
	}
}

func (h *Hub) abandon(thread string, res Resolution) {
	h.abandoned.Add(1)
	h.logger.WithFields(logrus.Fields{
		"thread": thread,
		"region": res.Name,
		"id":     res.ID,
		"frame":  res.Frame,
	}).Debug("Abandoning unresolved custom region")
}

// HubStats counts report deliveries since the hub was created.
type HubStats struct {
	Sent                 int64 `json:"sent"`
	DroppedFull          int64 `json:"droppedFull"`
	DroppedUninitialized int64 `json:"droppedUninitialized"`
	Abandoned            int64 `json:"abandoned"`
}

// Stats returns a point-in-time copy of the delivery counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Sent:                 h.sent.Load(),
		DroppedFull:          h.droppedFull.Load(),
		DroppedUninitialized: h.droppedUninit.Load(),
		Abandoned:            h.abandoned.Load(),
	}
}

// defaultHub is created during package initialization, before any
// goroutine can reach it.
var defaultHub = NewHub()

// Default returns the process-wide hub used by CreateProfiler and NewThread.
func Default() *Hub {
	return defaultHub
}

// NewThread creates a Thread on the default hub.
func NewThread() *Thread {
	return defaultHub.NewThread()
}
