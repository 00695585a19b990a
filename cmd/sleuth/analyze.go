package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bytesleuth/sleuth/internal/log"
	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/profile"
	"github.com/bytesleuth/sleuth/internal/render"
	"github.com/bytesleuth/sleuth/internal/scan"
	"github.com/bytesleuth/sleuth/internal/store"
	"github.com/bytesleuth/sleuth/internal/walk"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	flagFormat       string
	flagMaxSize      int64
	flagParallel     int
	flagMinStringLen int
	flagMaxStrings   int
	flagNoColor      bool
	flagDB           string
)

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&flagFormat, "format", model.FormatJSON, "output format: json, text or cyclonedx")
	f.Int64Var(&flagMaxSize, "max-size", model.DefaultMaxSize, "skip files bigger than this many bytes")
	f.IntVar(&flagParallel, "parallel", model.DefaultParallel, "number of files analyzed at once")
	f.IntVar(&flagMinStringLen, "min-string-len", model.DefaultMinStringLen, "minimal length of an extracted string")
	f.IntVar(&flagMaxStrings, "max-strings", model.DefaultMaxStrings, "maximal number of extracted strings, 0 means unlimited")
	f.BoolVar(&flagNoColor, "no-color", false, "disable colors in text output")
	f.StringVar(&flagDB, "db", "", "SQLite file to record the reports in")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze PATH...",
	Short: "analyze files and directories and print a report for each file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doAnalyze,
}

// applyFlags overrides the config with the flags given explicitly.
func applyFlags(cmd *cobra.Command, cfg model.Config) (model.Config, error) {
	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Output.Format = strings.ToLower(flagFormat)
	}
	if f.Changed("max-size") {
		cfg.Analysis.MaxSize = flagMaxSize
	}
	if f.Changed("parallel") {
		cfg.Analysis.Parallel = flagParallel
	}
	if f.Changed("min-string-len") {
		cfg.Analysis.MinStringLen = flagMinStringLen
	}
	if f.Changed("max-strings") {
		cfg.Analysis.MaxStrings = flagMaxStrings
	}
	if f.Changed("db") {
		cfg.Output.Database = flagDB
	}
	return cfg, cfg.Validate()
}

func doAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := applyFlags(cmd, config)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	renderer, err := render.New(cfg.Output.Format, !flagNoColor && !color.NoColor)
	if err != nil {
		return err
	}

	ctx := log.ContextAttrs(cmd.Context(), slog.Group("sleuth",
		slog.String("cmd", "analyze"),
		slog.Int("pid", os.Getpid()),
	))
	opts, err := profile.FromConfig(cfg.Profile)
	if err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	scanner := scan.New(cfg, profile.New(opts...))

	var analyses []scan.Analysis
	var skipped, failed int
	for a, err := range scanner.Do(ctx, walk.Paths(ctx, args...)) {
		switch {
		case err == nil:
			analyses = append(analyses, a)
		case scan.IsSkip(err):
			skipped++
			slog.WarnContext(ctx, "file skipped", "error", err)
		default:
			failed++
			slog.ErrorContext(ctx, "file not analyzed", "error", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// completion order depends on scheduling
	slices.SortFunc(analyses, func(a, b scan.Analysis) int {
		return strings.Compare(a.Path, b.Path)
	})
	reports := make([]model.Report, len(analyses))
	for i, a := range analyses {
		reports[i] = a.Report
	}
	slog.DebugContext(ctx, "analysis done", "analyzed", len(reports), "skipped", skipped, "failed", failed)

	if cfg.Output.Database != "" {
		if err := record(ctx, cfg.Output.Database, analyses); err != nil {
			return err
		}
	}

	if len(reports) > 0 {
		if err := renderer.Render(cmd.OutOrStdout(), reports); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}
	switch {
	case failed > 0:
		return fmt.Errorf("%d file(s) could not be analyzed", failed)
	case len(reports) == 0:
		return fmt.Errorf("no file was analyzed, %d skipped", skipped)
	}
	return nil
}

func record(ctx context.Context, path string, analyses []scan.Analysis) error {
	st, err := store.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("opening report database: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()
	for _, a := range analyses {
		abs, err := filepath.Abs(a.Path)
		if err != nil {
			abs = a.Path
		}
		if _, err := st.Save(ctx, abs, a.Report); err != nil {
			return err
		}
	}
	slog.DebugContext(ctx, "reports recorded", "database", path, "count", len(analyses))
	return nil
}
