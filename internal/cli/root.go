// Package cli implements the tinyprof command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// NewRootCmd builds the command tree. Each call returns a fresh tree so
// flag state never leaks between executions.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "tinyprof",
		Short:   "A small in-process frame profiler",
		Version: version,
		Long: `tinyprof records hierarchical timing regions per goroutine, cuts them
into frames and ships every frame to a single consumer as an immutable
report. The run command drives an instrumented demo workload and renders
its reports live, as NDJSON or as YAML.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command line. It is called by main.main().
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// newLogger creates the process logger. The level must already be valid.
func newLogger(level string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	logger.SetLevel(lvl)
	return logger
}
