// Package prof provides explicit, scope-based frame profiling for Go programs.
//
// Call sites mark nested regions of code on any number of goroutines. Each
// goroutine records into its own Thread, which builds a hierarchical report
// once per logical frame and hands it to a single consumer through a bounded,
// non-blocking channel.
//
// # Basic Usage
//
//	profiler := prof.CreateProfiler()
//
//	go func() {
//	    t := prof.NewThread()
//	    t.SetName("physics")
//	    for {
//	        func() {
//	            defer t.Begin("step", "physics.step", prof.SystemClock).End()
//	            step()
//	        }()
//	        if err := t.AdvanceFrame(); err != nil && !prof.Ignorable(err) {
//	            log.Println(err)
//	        }
//	    }
//	}()
//
//	for _, report := range profiler.DrainReports() {
//	    draw(report)
//	}
//
// # Threads
//
// Go has no thread-local storage, so the per-thread state is an explicit
// handle. A Thread must only be used by the goroutine that owns it; the hot
// path takes no locks. Handles can travel through a context.Context with
// WithThread and ThreadFromContext. A nil *Thread is valid and records nothing,
// which makes it the disabled profiler.
//
// # Time Sources
//
// Regions are timed by the system clock (SystemClock) or by a caller supplied
// CustomSource, for example a GPU timer query. Custom sources may resolve
// after the frame they belong to; the late duration is delivered in a later
// report as a Resolution.
//
// # Frame Boundaries
//
// AdvanceFrame closes the current frame: for every time-source kind with
// recorded regions it builds an immutable FrameReport, resets the stack and
// submits the report. Regions still open at that point produce an
// UnterminatedRegionError and are left untouched.
//
// # Errors
//
// Delivery errors (ErrNotInitialized, ErrChannelFull) and
// ErrUnterminatedRegion are returned from AdvanceFrame. Ending a region out of
// order is a programming error and panics with a *StackDisciplineError.
package prof
