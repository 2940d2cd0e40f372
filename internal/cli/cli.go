package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/asynkron/udiff/internal/config"
	"github.com/asynkron/udiff/internal/logging"
	"github.com/asynkron/udiff/internal/metrics"
	"github.com/asynkron/udiff/internal/render"
)

const rootLong = `NAME
    udiff - Parse and apply unified diffs.

SYNOPSIS
    udiff command [command options] [arguments...]

COMMANDS
    apply - Apply a patch to the working directory.
    stat  - Print a diffstat for a patch.
    help  - Show help for a command.`

// exitError carries the exit code for a failure whose message, if any, is
// printed verbatim.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// app holds what every command needs.
type app struct {
	cfg     config.Config
	logger  logging.Logger
	metrics metrics.Metrics
	stdout  io.Writer
	stderr  io.Writer
}

// Run executes the udiff command line using the provided CLI arguments.
// It returns a POSIX-style exit code indicating whether execution succeeded.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 1
	}

	logSink := stderr
	if cfg.LogFile != "" {
		file := logging.NewFileWriter(cfg.LogFile)
		defer file.Close()
		logSink = file
	}

	a := &app{
		cfg:     cfg,
		logger:  logging.New(cfg.LogLevel, logSink),
		metrics: metrics.NewInMemoryMetrics(),
		stdout:  stdout,
		stderr:  stderr,
	}
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())

	if args == nil {
		// cobra falls back to os.Args for nil
		args = []string{}
	}
	root := a.newRootCommand()
	root.SetArgs(args)
	err = root.ExecuteContext(ctx)
	return a.exitCode(err)
}

func (a *app) exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(a.stderr, exit.msg)
		}
		return exit.code
	}
	render.NewPrinter(a.stderr, !a.cfg.NoColor).Error(a.stderr, err)
	return 1
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "udiff",
		Short:         "Parse and apply unified diffs",
		Long:          rootLong,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return unrecognized(args[0])
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: 2, msg: err.Error()}
	})

	root.AddCommand(a.newApplyCommand())
	root.AddCommand(a.newStatCommand())
	root.SetHelpCommand(newHelpCommand(root))
	return root
}

// newHelpCommand replaces cobra's help command so unknown topics fail instead
// of printing a hint and exiting 0.
func newHelpCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Show help for a command",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return root.Help()
			}
			target, _, err := root.Find(args)
			if err != nil || target == nil || target == root {
				return unrecognized(args[0])
			}
			return target.Help()
		},
	}
}

func unrecognized(name string) error {
	return &exitError{code: 1, msg: "Unrecognized subcommand " + name}
}
