package workload

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/tinyprof/internal/config"
	"github.com/wesleyorama2/tinyprof/internal/output"
	"github.com/wesleyorama2/tinyprof/prof"
	"github.com/wesleyorama2/tinyprof/prof/stats"
)

// Options contains the output wiring of a Runner.
type Options struct {
	// Out receives the live display and streamed reports (default: stdout)
	Out io.Writer

	// ErrOut receives the summary when Out carries a machine readable
	// format (default: stderr)
	ErrOut io.Writer

	// ForceTTY treats Out as a terminal
	ForceTTY bool

	// LockOSThread pins every worker to its own OS thread
	LockOSThread bool
}

// Runner coordinates a profiling run.
//
// It starts one Worker per configured thread, each producing frame
// reports into a shared hub, and a single consumer that drains the
// profiler on every refresh tick into a stats.Collector, streams reports
// in the configured format and redraws the console.
//
// Example usage:
//
//	cfg := config.Default()
//	runner, _ := NewRunner(cfg, logger, Options{})
//	result, _ := runner.Run(ctx)
type Runner struct {
	config *config.Config
	logger *logrus.Logger

	out    io.Writer
	errOut io.Writer
	format output.Format

	hub       *prof.Hub
	collector *stats.Collector
	console   *output.Console
	writer    output.ReportWriter
	workers   []*Worker
}

// Result contains the outcome of a run.
type Result struct {
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Frames  int64         `json:"frames"`
	Workers []WorkerStats `json:"workers"`
	Hub     prof.HubStats `json:"hub"`
	Totals  stats.Totals  `json:"totals"`
}

// NewRunner creates a runner from a validated configuration. A nil logger
// discards log output.
func NewRunner(cfg *config.Config, logger *logrus.Logger, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}

	format, _ := output.ParseFormat(cfg.Output.Format)

	collectorConfig := stats.DefaultConfig()
	collectorConfig.HistoryFrames = cfg.Output.HistoryFrames

	r := &Runner{
		config:    cfg,
		logger:    logger,
		out:       opts.Out,
		errOut:    opts.ErrOut,
		format:    format,
		hub:       prof.NewHub(cfg.HubOptions(logger)...),
		collector: stats.NewCollectorWithConfig(collectorConfig),
		console: output.NewConsole(output.ConsoleConfig{
			Writer:      opts.Out,
			Colors:      output.ColorMode(cfg.Output.Colors),
			FrameBudget: cfg.FrameBudget(),
			ForceTTY:    opts.ForceTTY,
			Quiet:       format != output.FormatText,
		}),
	}

	switch format {
	case output.FormatNDJSON:
		r.writer = output.NewNDJSONWriter(opts.Out)
	case output.FormatYAML:
		r.writer = output.NewYAMLWriter(opts.Out)
	}

	seed := uint64(cfg.Workload.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	for i := 0; i < cfg.Workload.Threads; i++ {
		scene := SceneGame
		if i%2 == 1 {
			scene = SceneBatch
		}
		r.workers = append(r.workers, NewWorker(r.hub, WorkerConfig{
			ID:           i + 1,
			Scene:        scene,
			Frames:       cfg.Workload.Frames,
			FPS:          cfg.Workload.FPS,
			MaxWork:      cfg.Workload.MaxWork.Std(),
			CustomSource: cfg.Workload.CustomSource,
			QueryPolls:   cfg.Workload.QueryPolls,
			Seed:         seed,
			LockOSThread: opts.LockOSThread,
		}, logger))
	}

	return r, nil
}

// Collector returns the statistics collector fed by the run.
func (r *Runner) Collector() *stats.Collector {
	return r.collector
}

// Hub returns the hub the workers report into.
func (r *Runner) Hub() *prof.Hub {
	return r.hub
}

// Run executes the workload until every worker has recorded its frames or
// ctx is cancelled, then prints the summary if enabled. Cancellation is a
// normal stop; only output failures are returned as errors.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	profiler := prof.NewProfiler(r.hub)
	defer profiler.Close()

	result := &Result{StartTime: time.Now()}
	r.logger.WithFields(logrus.Fields{
		"threads": len(r.workers),
		"frames":  r.config.Workload.Frames,
		"fps":     r.config.Workload.FPS,
		"format":  r.format,
	}).Info("Starting profiling run")

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		wg, wctx := errgroup.WithContext(gctx)
		for _, w := range r.workers {
			wg.Go(func() error { return w.Run(wctx) })
		}
		return wg.Wait()
	})

	g.Go(func() error {
		return r.consume(gctx, profiler, done)
	})

	err := g.Wait()

	// Workers are done; pick up whatever they produced after the last tick.
	if drainErr := r.drain(profiler); err == nil {
		err = drainErr
	}
	if closer, ok := r.writer.(io.Closer); ok {
		if closeErr := closer.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close report stream: %w", closeErr)
		}
	}

	r.finish()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	for _, w := range r.workers {
		ws := w.Stats()
		result.Frames += ws.Frames
		result.Workers = append(result.Workers, ws)
	}
	result.Hub = r.hub.Stats()
	result.Totals = r.collector.Totals()

	r.logger.WithFields(logrus.Fields{
		"frames":    result.Frames,
		"sent":      result.Hub.Sent,
		"dropped":   result.Hub.DroppedFull,
		"abandoned": result.Hub.Abandoned,
		"duration":  result.Duration,
	}).Info("Profiling run finished")

	return result, err
}

// consume drains the profiler on every refresh tick until the workers are
// done or ctx is cancelled.
func (r *Runner) consume(ctx context.Context, profiler *prof.Profiler, done <-chan struct{}) error {
	refresh := r.config.Output.Refresh.Std()
	if refresh <= 0 {
		refresh = config.DefaultRefresh
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-ticker.C:
			if err := r.drain(profiler); err != nil {
				return err
			}
			r.render()
		}
	}
}

// drain moves buffered reports into the collector and the report stream.
func (r *Runner) drain(profiler *prof.Profiler) error {
	reports := profiler.DrainReports()
	if len(reports) == 0 {
		return nil
	}

	r.collector.Ingest(reports...)
	r.logger.WithField("reports", len(reports)).Debug("Drained frame reports")

	if r.writer != nil {
		if err := r.writer.Write(reports...); err != nil {
			return fmt.Errorf("failed to write reports: %w", err)
		}
	}
	return nil
}

func (r *Runner) render() {
	if r.console.IsTTY() {
		r.console.Update(r.collector)
		return
	}
	r.console.PrintUpdate(r.collector)
}

// finish replaces the live display with the summary.
func (r *Runner) finish() {
	r.console.Clear()
	if !r.config.SummaryEnabled() {
		return
	}

	w := r.out
	if r.writer != nil {
		w = r.errOut
	}
	output.Summary(w, r.collector)
}
