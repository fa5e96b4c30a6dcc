package prof

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a frame report is produced before any
	// Profiler has attached to the hub. Producers can usually ignore it.
	ErrNotInitialized = errors.New("prof: profiler not initialized")

	// ErrChannelFull is returned when the report channel is at capacity.
	ErrChannelFull = errors.New("prof: report channel full")

	// ErrUnterminatedRegion is matched by UnterminatedRegionError.
	ErrUnterminatedRegion = errors.New("prof: unterminated region")
)

// UnterminatedRegionError reports that AdvanceFrame was called while a region
// of the given kind was still open. The frame for that kind is not advanced.
type UnterminatedRegionError struct {
	Thread string
	Kind   Kind
	Region string // innermost open region
	Depth  int
}

func (e *UnterminatedRegionError) Error() string {
	return fmt.Sprintf("prof: thread %q: %s region %q still open at frame boundary (depth %d)",
		e.Thread, e.Kind, e.Region, e.Depth)
}

// Is reports whether target is ErrUnterminatedRegion.
func (e *UnterminatedRegionError) Is(target error) bool {
	return target == ErrUnterminatedRegion
}

// StackDisciplineError is the panic value raised when a region is ended out
// of order, ended twice, or a Thread is used from a goroutine that does not
// own it.
type StackDisciplineError struct {
	Thread string
	Kind   Kind
	Region string // region named by the handle
	Active string // region actually active, empty if none
	Reason string
}

func (e *StackDisciplineError) Error() string {
	active := e.Active
	if active == "" {
		active = "<none>"
	}
	return fmt.Sprintf("prof: stack discipline violation on thread %q (%s): %s: region %q, active %q",
		e.Thread, e.Kind, e.Reason, e.Region, active)
}

// Ignorable reports whether err carries nothing but ErrNotInitialized, the
// normal condition before a consumer attaches. A nil error is ignorable.
func Ignorable(err error) bool {
	if err == nil {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !Ignorable(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, ErrNotInitialized)
}
