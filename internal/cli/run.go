package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wesleyorama2/tinyprof/internal/config"
	"github.com/wesleyorama2/tinyprof/internal/output"
	"github.com/wesleyorama2/tinyprof/internal/workload"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the instrumented demo workload",
		Long: `Run a multi-threaded frame workload instrumented with tinyprof and render
its frame reports. Every thread records a tree of regions per frame; the
consumer drains the reports at the refresh interval.

Live console view:
  tinyprof run --threads 4 --fps 60

Stream every report as NDJSON and keep the summary on stderr:
  tinyprof run --json --frames 120 > frames.ndjson

From a configuration file, with flag overrides:
  tinyprof run --config tinyprof.yaml --frames 0`,
		Args: cobra.NoArgs,
		RunE: runWorkload,
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Configuration file (YAML or JSON)")
	flags.IntP("threads", "t", config.DefaultThreads, "Number of instrumented threads")
	flags.IntP("frames", "n", config.DefaultFrames, "Frames per thread (0 runs until interrupted)")
	flags.Float64("fps", config.DefaultFPS, "Target frame rate per thread")
	flags.Duration("max-work", config.DefaultMaxWork, "Upper bound of simulated work per unit")
	flags.Duration("refresh", config.DefaultRefresh, "Console refresh interval")
	flags.Bool("custom-source", false, "Time the render pass with a simulated asynchronous query")
	flags.Int64("seed", 0, "Work generator seed (0 picks one)")
	flags.StringP("format", "f", config.DefaultFormat, "Report format (text, ndjson, yaml, none)")
	flags.Bool("json", false, "Stream reports as NDJSON (same as --format ndjson)")
	flags.Bool("no-color", false, "Disable colored output")
	flags.Bool("summary", true, "Print the region summary at exit")
	flags.String("log-level", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	flags.Bool("lock-os-thread", true, "Pin every worker to its own OS thread")

	return cmd
}

func runWorkload(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd.Flags())
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	lockOSThread, _ := cmd.Flags().GetBool("lock-os-thread")

	runner, err := workload.NewRunner(cfg, logger, workload.Options{
		Out:          cmd.OutOrStdout(),
		ErrOut:       cmd.ErrOrStderr(),
		LockOSThread: lockOSThread,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("profiling run failed: %w", err)
	}

	if result.Hub.DroppedFull > 0 {
		logger.WithField("dropped", result.Hub.DroppedFull).
			Warn("Reports were dropped; raise profiler.capacity or the refresh rate")
	}
	if ctx.Err() != nil {
		logger.Info("Run interrupted before all frames were recorded")
	}
	return nil
}

// loadRunConfig loads the configuration file, if any, and applies every
// flag the user set explicitly on top of it.
func loadRunConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		cfg = loaded
	}

	if flags.Changed("threads") {
		cfg.Workload.Threads, _ = flags.GetInt("threads")
	}
	if flags.Changed("frames") {
		cfg.Workload.Frames, _ = flags.GetInt("frames")
	}
	if flags.Changed("fps") {
		cfg.Workload.FPS, _ = flags.GetFloat64("fps")
	}
	if flags.Changed("max-work") {
		d, _ := flags.GetDuration("max-work")
		cfg.Workload.MaxWork = config.Duration(d)
	}
	if flags.Changed("refresh") {
		d, _ := flags.GetDuration("refresh")
		cfg.Output.Refresh = config.Duration(d)
	}
	if flags.Changed("custom-source") {
		cfg.Workload.CustomSource, _ = flags.GetBool("custom-source")
	}
	if flags.Changed("seed") {
		cfg.Workload.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if jsonOutput, _ := flags.GetBool("json"); jsonOutput {
		cfg.Output.Format = string(output.FormatNDJSON)
	}
	if noColor, _ := flags.GetBool("no-color"); noColor {
		cfg.Output.Colors = string(output.ColorsNever)
	}
	if flags.Changed("summary") {
		summary, _ := flags.GetBool("summary")
		cfg.Output.Summary = &summary
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
