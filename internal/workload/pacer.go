// Package workload runs a simulated multi-threaded frame loop instrumented
// with prof, and consumes its reports.
package workload

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer schedules frames at a fixed rate using the leaky bucket algorithm.
//
// The pacer maintains a virtual "drip" time that advances once per frame.
// Each call to Next returns when the next frame should start. A frame
// loop that falls behind schedule starts its next frame immediately
// instead of bursting to catch up.
//
// # Thread Safety
//
// Pacer is safe for concurrent use, though each worker owns its own.
type Pacer struct {
	rate        float64   // Frames per second
	lastDrip    time.Time // Last frame start
	accumulated float64   // Accumulated frames (fractional)
	now         func() time.Time
	mu          sync.Mutex

	// Metrics
	totalFrames   atomic.Int64 // Total frames scheduled
	lateFrames    atomic.Int64 // Frames started immediately because the loop fell behind
	totalWaitTime atomic.Int64 // Total wait time in nanoseconds
}

// NewPacer creates a pacer for the given frame rate. The first call to
// Next returns immediately.
func NewPacer(fps float64) *Pacer {
	return newPacerWithClock(fps, time.Now)
}

func newPacerWithClock(fps float64, now func() time.Time) *Pacer {
	if fps <= 0 {
		fps = 1.0
	}
	return &Pacer{
		rate:        fps,
		lastDrip:    now(),
		accumulated: 1.0,
		now:         now,
	}
}

// Next returns when the next frame should start. The returned time may be
// in the past, meaning the frame should start immediately.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	elapsed := now.Sub(p.lastDrip).Seconds()

	// Clamp elapsed to non-negative (lastDrip can be in the future)
	if elapsed < 0 {
		elapsed = 0
	}

	// Accumulate frames, without bursting
	p.accumulated += elapsed * p.rate
	if p.accumulated > 1.0 {
		if p.totalFrames.Load() > 0 {
			p.lateFrames.Add(1)
		}
		p.accumulated = 1.0
	}

	p.totalFrames.Add(1)

	if p.accumulated >= 1.0 {
		p.accumulated = 0
		p.lastDrip = now
		return now
	}

	// Wait for the deficit
	deficit := 1.0 - p.accumulated
	next := now.Add(time.Duration(deficit / p.rate * float64(time.Second)))
	p.accumulated = 0

	// lastDrip moves to next so the sleep itself is not counted twice
	p.lastDrip = next
	p.totalWaitTime.Add(int64(next.Sub(now)))
	return next
}

// Wait blocks until the next frame should start.
//
// Returns:
//   - nil if the wait completed successfully
//   - ctx.Err() if the context was cancelled
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait := time.Until(p.Next())
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the target rate in frames per second.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// PacerStats contains statistics about a pacer.
type PacerStats struct {
	Rate          float64       `json:"rate"`          // Target frames/second
	TotalFrames   int64         `json:"totalFrames"`   // Total frames scheduled
	LateFrames    int64         `json:"lateFrames"`    // Frames that started behind schedule
	TotalWaitTime time.Duration `json:"totalWaitTime"` // Total time spent waiting
}

// Stats returns statistics about the pacer's operation.
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		Rate:          p.Rate(),
		TotalFrames:   p.totalFrames.Load(),
		LateFrames:    p.lateFrames.Load(),
		TotalWaitTime: time.Duration(p.totalWaitTime.Load()),
	}
}
