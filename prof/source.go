package prof

import (
	"fmt"
	"time"
)

// Kind identifies a time-source kind. Every Thread keeps one region stack
// per kind, and each kind produces its own FrameReport.
type Kind uint8

const (
	// KindClock regions are timed by the system monotonic clock.
	KindClock Kind = iota
	// KindCustom regions are timed by a caller supplied CustomSource.
	KindCustom

	numKinds = 2
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindClock:
		return "clock"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "clock":
		*k = KindClock
	case "custom":
		*k = KindCustom
	default:
		return fmt.Errorf("unknown time source kind %q", text)
	}
	return nil
}

// CustomSource measures a region by some means other than the system clock,
// for example a GPU timestamp query.
//
// Start and End are called exactly once each, when the region begins and
// ends. Duration is polled right after End and then once per frame boundary
// until it reports ok; it may keep returning false while the measurement is
// in flight.
type CustomSource interface {
	Start()
	End()
	Duration() (time.Duration, bool)
}

// Source selects how a region is timed. The zero value is the system clock.
type Source struct {
	custom CustomSource
}

// SystemClock times regions with the monotonic system clock.
var SystemClock = Source{}

// Custom returns a Source backed by c. A nil c yields SystemClock.
func Custom(c CustomSource) Source {
	return Source{custom: c}
}

// Kind returns the kind of stack regions with this source are recorded on.
func (s Source) Kind() Kind {
	if s.custom != nil {
		return KindCustom
	}
	return KindClock
}
