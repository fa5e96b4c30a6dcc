package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/tinyprof/internal/output"
	"github.com/wesleyorama2/tinyprof/prof"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates a defaulted configuration, including values set from
// command-line flags after loading.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs.Add("logLevel", err.Error())
	}

	// Profiler
	if c.Profiler.Capacity < 1 {
		errs.Add("profiler.capacity", "must be at least 1")
	}
	if c.Profiler.PendingFrames < 1 {
		errs.Add("profiler.pendingFrames", "must be at least 1")
	}
	if _, err := prof.ParseVariablePolicy(c.Profiler.VariablePolicy); err != nil {
		errs.Add("profiler.variablePolicy", err.Error())
	}

	// Output
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		errs.Add("output.format", err.Error())
	}
	switch output.ColorMode(c.Output.Colors) {
	case output.ColorsAuto, output.ColorsAlways, output.ColorsNever:
	default:
		errs.Add("output.colors", fmt.Sprintf("invalid color mode: %q (expected: auto|always|never)", c.Output.Colors))
	}
	if c.Output.Refresh < 0 {
		errs.Add("output.refresh", "cannot be negative")
	}
	if c.Output.HistoryFrames < 1 {
		errs.Add("output.historyFrames", "must be at least 1")
	}

	// Workload
	if c.Workload.Threads < 1 {
		errs.Add("workload.threads", "must be at least 1")
	}
	if c.Workload.Frames < 0 {
		errs.Add("workload.frames", "cannot be negative")
	}
	if c.Workload.FPS <= 0 {
		errs.Add("workload.fps", "must be positive")
	}
	if c.Workload.MaxWork < 0 {
		errs.Add("workload.maxWork", "cannot be negative")
	}
	if c.Workload.QueryPolls < 1 {
		errs.Add("workload.queryPolls", "must be at least 1")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
