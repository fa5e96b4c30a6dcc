package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/tinyprof/prof"
)

// Scene selects the region layout a worker records every frame.
type Scene int

const (
	// SceneGame records a nested update/render tree with repeated siblings.
	SceneGame Scene = iota
	// SceneBatch records a few long flat computations.
	SceneBatch
)

func (s Scene) String() string {
	switch s {
	case SceneGame:
		return "game"
	case SceneBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// WorkerState represents the lifecycle state of a Worker.
type WorkerState int32

const (
	// WorkerIdle indicates the worker has not started.
	WorkerIdle WorkerState = iota
	// WorkerRunning indicates the worker is recording frames.
	WorkerRunning
	// WorkerStopped indicates the worker has returned.
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Region ids recorded by the scenes.
const (
	IDUpdate      = "game.update"
	IDInput       = "game.input"
	IDPhysics     = "game.physics"
	IDBroadphase  = "game.physics.broadphase"
	IDNarrowphase = "game.physics.narrowphase"
	IDRender      = "game.render"
	IDCull        = "game.render.cull"
	IDDrawCall    = "game.render.draw"
	IDGPU         = "game.gpu"
	IDLongCompute = "batch.long"
	IDLongerWork  = "batch.longer"
)

// drawCalls is the number of sibling draw call regions per game frame.
const drawCalls = 10

// WorkerConfig configures a single Worker.
type WorkerConfig struct {
	ID    int
	Name  string // thread name; defaults to "worker-<ID>"
	Scene Scene

	// Frames to record; 0 runs until the context is cancelled
	Frames int

	// FPS paces the frame loop; 0 runs frames back to back
	FPS float64

	// MaxWork bounds each simulated unit of work; 0 disables sleeping
	MaxWork time.Duration

	// CustomSource times the render pass with a simulated async Query
	// that resolves after QueryPolls polls.
	CustomSource bool
	QueryPolls   int

	Seed uint64

	// LockOSThread wires the worker to one OS thread for its lifetime and
	// appends the kernel thread id to the name where available.
	LockOSThread bool
}

// Worker drives one instrumented frame loop. It owns a prof.Thread for
// the duration of Run.
type Worker struct {
	cfg    WorkerConfig
	hub    *prof.Hub
	logger *logrus.Logger
	rng    *rand.Rand
	sleep  func(time.Duration)

	state   atomic.Int32
	name    atomic.Value // string
	pacer   atomic.Pointer[Pacer]
	frames  atomic.Int64
	dropped atomic.Int64
	errors  atomic.Int64
}

// NewWorker creates a worker producing reports into hub. A nil logger
// discards log output.
func NewWorker(hub *prof.Hub, cfg WorkerConfig, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	w := &Worker{
		cfg:    cfg,
		hub:    hub,
		logger: logger,
		rng:    rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.ID))),
		sleep:  time.Sleep,
	}
	w.name.Store(cfg.Name)
	return w
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Run records frames until the configured count is reached or ctx is
// cancelled. Cancellation is a normal stop and returns nil.
//
// Frame delivery errors never stop the loop: reports that do not fit the
// channel are counted as dropped and any other error is counted and logged.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	thread := w.hub.NewThread()
	thread.SetName(w.threadName())
	w.name.Store(thread.Name())
	ctx = prof.WithThread(ctx, thread)

	var pacer *Pacer
	if w.cfg.FPS > 0 {
		pacer = NewPacer(w.cfg.FPS)
		w.pacer.Store(pacer)
	}

	log := w.logger.WithFields(logrus.Fields{
		"worker": w.cfg.ID,
		"thread": thread.Name(),
		"scene":  w.cfg.Scene.String(),
	})
	log.Debug("Worker started")

	w.state.Store(int32(WorkerRunning))
	defer w.state.Store(int32(WorkerStopped))

	for w.cfg.Frames == 0 || w.frames.Load() < int64(w.cfg.Frames) {
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				break
			}
		} else if ctx.Err() != nil {
			break
		}

		w.runFrame(ctx)
		w.advance(thread, log)
		w.frames.Add(1)
	}

	w.flush(thread, log)

	fields := logrus.Fields{
		"frames":  w.frames.Load(),
		"dropped": w.dropped.Load(),
		"errors":  w.errors.Load(),
	}
	if pacer != nil {
		fields["late"] = pacer.Stats().LateFrames
	}
	log.WithFields(fields).Debug("Worker stopped")
	return nil
}

// flush advances empty frames so queries still in flight after the last
// recorded frame get a chance to resolve.
func (w *Worker) flush(thread *prof.Thread, log *logrus.Entry) {
	for i := 0; thread.Pending() > 0 && i <= w.cfg.QueryPolls; i++ {
		w.advance(thread, log)
	}
}

func (w *Worker) advance(thread *prof.Thread, log *logrus.Entry) {
	err := thread.AdvanceFrame()
	if prof.Ignorable(err) {
		return
	}
	if errors.Is(err, prof.ErrChannelFull) {
		if n := w.dropped.Add(1); n == 1 || n%1000 == 0 {
			log.WithField("dropped", n).Warn("Report channel full, dropping frames")
		}
		return
	}
	w.errors.Add(1)
	log.WithError(err).Warn("Frame boundary failed")
}

func (w *Worker) threadName() string {
	name := w.cfg.Name
	if name == "" {
		name = fmt.Sprintf("worker-%d", w.cfg.ID)
	}
	if w.cfg.LockOSThread {
		if tid := osThreadID(); tid > 0 {
			name = fmt.Sprintf("%s [tid %d]", name, tid)
		}
	}
	return name
}

func (w *Worker) runFrame(ctx context.Context) {
	switch w.cfg.Scene {
	case SceneBatch:
		w.batchFrame(ctx)
	default:
		w.gameFrame(ctx)
	}
}

func (w *Worker) gameFrame(ctx context.Context) {
	t := prof.ThreadFromContext(ctx)

	_ = t.Scope("update", IDUpdate, prof.SystemClock, func() error {
		input := t.Begin("input", IDInput, prof.SystemClock)
		w.work()
		input.End()

		return t.Scope("physics", IDPhysics, prof.SystemClock, func() error {
			broad := t.Begin("broadphase", IDBroadphase, prof.SystemClock)
			w.work()
			broad.End()

			narrow := t.Begin("narrowphase", IDNarrowphase, prof.SystemClock)
			defer narrow.End()
			contacts := w.rng.IntN(64)
			t.SetVariable("contacts", float64(contacts))
			t.SetVariable("random number", w.rng.Float64()*256-128)
			w.work()
			return nil
		})
	})

	if w.cfg.CustomSource {
		defer t.Begin("gpu render", IDGPU, prof.Custom(NewQuery(w.cfg.QueryPolls))).End()
	}

	render := t.Begin("render", IDRender, prof.SystemClock)
	defer render.End()

	cull := t.Begin("cull", IDCull, prof.SystemClock)
	w.work()
	cull.End()

	for i := 0; i < drawCalls; i++ {
		draw := t.Begin("draw call", IDDrawCall, prof.SystemClock)
		w.workFraction(0.1)
		draw.End()
	}
}

func (w *Worker) batchFrame(ctx context.Context) {
	t := prof.ThreadFromContext(ctx)

	long := t.Begin("long computation", IDLongCompute, prof.SystemClock)
	for i := 0; i < 4; i++ {
		w.work()
	}
	long.End()

	longer := t.Begin("longer computation", IDLongerWork, prof.SystemClock)
	for i := 0; i < 8; i++ {
		w.work()
		t.SetVariable("progress", float64(i+1)/8)
	}
	longer.End()

	// Unprofiled tail of the frame.
	w.work()
}

// work simulates one unit of work of random length up to MaxWork.
func (w *Worker) work() {
	w.workFraction(1)
}

func (w *Worker) workFraction(f float64) {
	if w.cfg.MaxWork <= 0 {
		return
	}
	if d := time.Duration(w.rng.Float64() * f * float64(w.cfg.MaxWork)); d > 0 {
		w.sleep(d)
	}
}

// WorkerStats is a point-in-time view of a worker.
type WorkerStats struct {
	ID      int         `json:"id"`
	Thread  string      `json:"thread"`
	Scene   string      `json:"scene"`
	State   string      `json:"state"`
	Frames  int64       `json:"frames"`
	Dropped int64       `json:"dropped"`
	Errors  int64       `json:"errors"`
	Pacer   *PacerStats `json:"pacer,omitempty"`
}

// Stats returns the worker's counters. It is safe to call while Run is in
// progress.
func (w *Worker) Stats() WorkerStats {
	stats := WorkerStats{
		ID:      w.cfg.ID,
		Thread:  w.name.Load().(string),
		Scene:   w.cfg.Scene.String(),
		State:   w.State().String(),
		Frames:  w.frames.Load(),
		Dropped: w.dropped.Load(),
		Errors:  w.errors.Load(),
	}
	if p := w.pacer.Load(); p != nil {
		ps := p.Stats()
		stats.Pacer = &ps
	}
	return stats
}
