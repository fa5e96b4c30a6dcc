// Package config provides configuration parsing and validation for the
// tinyprof demo runner.
package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/tinyprof/prof"
)

// Config is the root configuration of a profiling run.
//
// Example YAML:
//
//	logLevel: info
//	profiler:
//	  capacity: 10000
//	  pendingFrames: 16
//	  variablePolicy: frame
//	output:
//	  format: text
//	  refresh: 250ms
//	workload:
//	  threads: 4
//	  frames: 600
//	  fps: 60
type Config struct {
	// LogLevel is a logrus level name (default: warn)
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	Profiler ProfilerConfig `json:"profiler,omitempty" yaml:"profiler,omitempty"`
	Output   OutputConfig   `json:"output,omitempty" yaml:"output,omitempty"`
	Workload WorkloadConfig `json:"workload,omitempty" yaml:"workload,omitempty"`
}

// ProfilerConfig configures the report hub.
type ProfilerConfig struct {
	// Capacity bounds the report channel (default: 10000)
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`

	// PendingFrames is how many frame boundaries an unresolved custom
	// region is kept before it is abandoned (default: 16)
	PendingFrames int `json:"pendingFrames,omitempty" yaml:"pendingFrames,omitempty"`

	// VariablePolicy is "frame" (default) or "region"
	VariablePolicy string `json:"variablePolicy,omitempty" yaml:"variablePolicy,omitempty"`

	// OwnerCheck panics when a thread handle is used from a second goroutine
	OwnerCheck bool `json:"ownerCheck,omitempty" yaml:"ownerCheck,omitempty"`
}

// OutputConfig configures report rendering.
type OutputConfig struct {
	// Format is text, ndjson, yaml or none (default: text)
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Colors is auto, always or never (default: auto)
	Colors string `json:"colors,omitempty" yaml:"colors,omitempty"`

	// Refresh is the console redraw interval (default: 250ms)
	Refresh Duration `json:"refresh,omitempty" yaml:"refresh,omitempty"`

	// HistoryFrames is the number of reports kept per stream (default: 300)
	HistoryFrames int `json:"historyFrames,omitempty" yaml:"historyFrames,omitempty"`

	// Summary prints the region statistics table at exit (default: true)
	Summary *bool `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// WorkloadConfig configures the simulated frame workload.
type WorkloadConfig struct {
	// Threads is the number of instrumented goroutines (default: 4)
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`

	// Frames per thread; an explicit 0 runs until interrupted (default: 300)
	Frames int `json:"frames,omitempty" yaml:"frames,omitempty"`

	// FPS is the target frame rate of each thread (default: 60)
	FPS float64 `json:"fps,omitempty" yaml:"fps,omitempty"`

	// MaxWork is the upper bound of simulated work per region (default: 2ms)
	MaxWork Duration `json:"maxWork,omitempty" yaml:"maxWork,omitempty"`

	// CustomSource times one region per frame with a simulated async query
	CustomSource bool `json:"customSource,omitempty" yaml:"customSource,omitempty"`

	// QueryPolls is how many polls the simulated query needs to resolve (default: 2)
	QueryPolls int `json:"queryPolls,omitempty" yaml:"queryPolls,omitempty"`

	// Seed seeds the work generator; 0 picks a time-based seed
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Defaults
const (
	DefaultLogLevel      = "warn"
	DefaultFormat        = "text"
	DefaultColors        = "auto"
	DefaultRefresh       = 250 * time.Millisecond
	DefaultHistoryFrames = 300
	DefaultThreads       = 4
	DefaultFrames        = 300
	DefaultFPS           = 60.0
	DefaultMaxWork       = 2 * time.Millisecond
	DefaultQueryPolls    = 2
)

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{Workload: WorkloadConfig{Frames: DefaultFrames}}
	ApplyDefaults(c)
	return c
}

// ApplyDefaults applies default values to a Config.
func ApplyDefaults(c *Config) {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	// Profiler
	if c.Profiler.Capacity == 0 {
		c.Profiler.Capacity = prof.DefaultCapacity
	}
	if c.Profiler.PendingFrames == 0 {
		c.Profiler.PendingFrames = prof.DefaultPendingLimit
	}
	if c.Profiler.VariablePolicy == "" {
		c.Profiler.VariablePolicy = prof.ClearOnFrame.String()
	}

	// Output
	if c.Output.Format == "" {
		c.Output.Format = DefaultFormat
	}
	if c.Output.Colors == "" {
		c.Output.Colors = DefaultColors
	}
	if c.Output.Refresh == 0 {
		c.Output.Refresh = Duration(DefaultRefresh)
	}
	if c.Output.HistoryFrames == 0 {
		c.Output.HistoryFrames = DefaultHistoryFrames
	}
	if c.Output.Summary == nil {
		summary := true
		c.Output.Summary = &summary
	}

	// Workload
	if c.Workload.Threads == 0 {
		c.Workload.Threads = DefaultThreads
	}
	if c.Workload.FPS == 0 {
		c.Workload.FPS = DefaultFPS
	}
	if c.Workload.MaxWork == 0 {
		c.Workload.MaxWork = Duration(DefaultMaxWork)
	}
	if c.Workload.QueryPolls == 0 {
		c.Workload.QueryPolls = DefaultQueryPolls
	}
}

// SummaryEnabled reports whether the exit summary is printed.
func (c *Config) SummaryEnabled() bool {
	return c.Output.Summary == nil || *c.Output.Summary
}

// FrameBudget returns the time available to one frame at the target rate.
func (c *Config) FrameBudget() time.Duration {
	if c.Workload.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.Workload.FPS)
}

// HubOptions converts the profiler section into hub options. The config
// must have been validated.
func (c *Config) HubOptions(logger *logrus.Logger) []prof.Option {
	policy, _ := prof.ParseVariablePolicy(c.Profiler.VariablePolicy)
	return []prof.Option{
		prof.WithCapacity(c.Profiler.Capacity),
		prof.WithPendingLimit(c.Profiler.PendingFrames),
		prof.WithVariablePolicy(policy),
		prof.WithOwnerCheck(c.Profiler.OwnerCheck),
		prof.WithLogger(logger),
	}
}
