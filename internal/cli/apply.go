package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/asynkron/udiff/internal/config"
	"github.com/asynkron/udiff/internal/logging"
	"github.com/asynkron/udiff/internal/render"
	"github.com/asynkron/udiff/internal/report"
	"github.com/asynkron/udiff/pkg/udiff"
	"github.com/asynkron/udiff/pkg/udiff/gitdiff"
)

const applyLong = `NAME
    apply - Apply a unified diff to the working directory.

SYNOPSIS
    udiff apply [options] <file>

ARGUMENTS
    file - The patch file to apply.

Each file section is applied to its source path and written back in place.
Hunks may match up to --radius lines away from their declared position.
Files written before a failing file are left in place.`

const statLong = `NAME
    stat - Print added and removed line counts per file.

SYNOPSIS
    udiff stat [options] <file>

ARGUMENTS
    file - The patch file to summarize.`

type applyFlags struct {
	directory        string
	radius           int
	ignoreWhitespace bool
	check            bool
	parser           string
	followRenames    bool
	json             bool
	noColor          bool
}

func (a *app) newApplyCommand() *cobra.Command {
	flags := applyFlags{
		radius:           a.cfg.SearchRadius,
		ignoreWhitespace: a.cfg.IgnoreWhitespace,
		parser:           a.cfg.Parser,
		noColor:          a.cfg.NoColor,
	}
	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Apply a patch",
		Long:  applyLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runApply(cmd.Context(), args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.directory, "directory", "C", "", "apply relative to this directory instead of the current one")
	cmd.Flags().IntVar(&flags.radius, "radius", flags.radius, "lines a hunk may move from its declared position (0 = exact)")
	cmd.Flags().BoolVar(&flags.ignoreWhitespace, "ignore-whitespace", flags.ignoreWhitespace, "ignore whitespace differences when matching hunks")
	cmd.Flags().BoolVar(&flags.check, "check", false, "verify that the patch applies without writing any file")
	cmd.Flags().StringVar(&flags.parser, "parser", flags.parser, "diff parser to use (native or gitdiff)")
	cmd.Flags().BoolVar(&flags.followRenames, "follow-renames", false, "write renamed files to their new path and remove the old one")
	cmd.Flags().BoolVar(&flags.json, "json", false, "print a JSON report instead of text")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", flags.noColor, "disable colored output")
	return cmd
}

func (a *app) newStatCommand() *cobra.Command {
	var (
		parser  = a.cfg.Parser
		noColor = a.cfg.NoColor
	)
	cmd := &cobra.Command{
		Use:   "stat <file>",
		Short: "Print a diffstat for a patch",
		Long:  statLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			cfg.Parser = parser
			if err := cfg.Validate(); err != nil {
				return &exitError{code: 2, msg: err.Error()}
			}
			set, err := a.parsePatchFile(cmd.Context(), args[0], cfg.Parser)
			if err != nil {
				return err
			}
			render.NewPrinter(a.stdout, !noColor).Stat(a.stdout, set)
			return nil
		},
	}
	cmd.Flags().StringVar(&parser, "parser", parser, "diff parser to use (native or gitdiff)")
	cmd.Flags().BoolVar(&noColor, "no-color", noColor, "disable colored output")
	return cmd
}

func (a *app) runApply(ctx context.Context, patchFile string, flags applyFlags) error {
	cfg := a.cfg
	cfg.SearchRadius = flags.radius
	cfg.IgnoreWhitespace = flags.ignoreWhitespace
	cfg.Parser = flags.parser
	if err := cfg.Validate(); err != nil {
		return &exitError{code: 2, msg: err.Error()}
	}

	set, err := a.parsePatchFile(ctx, patchFile, cfg.Parser)
	if err != nil {
		var exit *exitError
		if flags.json && !errors.As(err, &exit) {
			return a.writeReport(nil, err, flags.check)
		}
		return err
	}

	opts := udiff.FilesystemOptions{
		Options:       cfg.Options(),
		WorkingDir:    flags.directory,
		DryRun:        flags.check,
		FollowRenames: flags.followRenames,
	}
	results, applyErr := udiff.ApplyFilesystem(ctx, set, opts)
	for _, result := range results {
		a.metrics.RecordResult(result)
	}
	if applyErr != nil {
		a.metrics.RecordFailure(applyErr)
		a.logger.Info(ctx, "patch did not apply",
			logging.F("patch", patchFile),
			logging.F("committed", len(results)),
			logging.F("error", applyErr.Error()),
		)
	} else {
		a.logger.Info(ctx, "patch applied",
			logging.F("patch", patchFile),
			logging.F("files", len(results)),
			logging.F("dry_run", flags.check),
		)
	}
	a.logSnapshot(ctx)

	if flags.json {
		return a.writeReport(results, applyErr, flags.check)
	}
	printer := render.NewPrinter(a.stdout, !flags.noColor)
	printer.Results(a.stdout, results)
	return applyErr
}

// parsePatchFile reads and parses patchFile with the selected backend.
func (a *app) parsePatchFile(ctx context.Context, patchFile, parser string) (*udiff.PatchSet, error) {
	data, err := os.ReadFile(patchFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &exitError{code: 1, msg: fmt.Sprintf("Patch file '%s' does not exist", patchFile)}
		}
		return nil, fmt.Errorf("failed to read patch file: %w", err)
	}

	started := time.Now()
	var set *udiff.PatchSet
	switch parser {
	case config.ParserGitDiff:
		set, err = gitdiff.Parse(string(data))
	default:
		set, err = udiff.Parse(string(data))
	}
	files := 0
	if set != nil {
		files = len(set.Files)
	}
	a.metrics.RecordParse(time.Since(started), files, err)
	if err != nil {
		return nil, err
	}
	a.logger.Debug(ctx, "parsed patch",
		logging.F("patch", patchFile),
		logging.F("parser", parser),
		logging.F("files", files),
	)
	return set, nil
}

// writeReport prints the JSON report. A failed run still exits 1 after the
// report is written.
func (a *app) writeReport(results []udiff.Result, runErr error, dryRun bool) error {
	if err := report.Write(a.stdout, report.Build(results, runErr, dryRun)); err != nil {
		return err
	}
	if runErr != nil {
		return &exitError{code: 1}
	}
	return nil
}

func (a *app) logSnapshot(ctx context.Context) {
	snap := a.metrics.Snapshot()
	a.logger.Debug(ctx, "apply metrics",
		logging.F("files", snap.Files),
		logging.F("hunks", snap.Hunks),
		logging.F("offset_hunks", snap.OffsetHunks),
		logging.F("max_offset", snap.MaxOffset),
		logging.F("failures", snap.Failures),
	)
}
