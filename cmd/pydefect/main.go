package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jward/pydefect"
	"github.com/jward/pydefect/internal/config"
)

var (
	flagFormat        string
	flagConfig        string
	flagCache         string
	flagRulesDir      string
	flagParallel      bool
	flagKeepGoing     bool
	flagLexicalScopes bool
	flagExclude       []string
	flagNoColor       bool
	flagVerbose       bool
)

// errorHandled is set once per-file errors have been printed so main()
// doesn't double-print the summary.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "pydefect [flags] <path>...",
	Short:         "Find code-quality defects in Python source files",
	Long:          "pydefect parses Python files with tree-sitter and reports functions without docstrings, mutable default arguments and unused local variables, plus any defects found by Risor rule scripts.",
	Args:          cobra.MinimumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runAnalyze,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagFormat, "format", "text", "output format: text|json|sarif")
	f.StringVar(&flagConfig, "config", "", "config file (default: .pydefect.toml or .pydefect.yaml in the working directory)")
	f.StringVar(&flagCache, "cache", "", "SQLite result cache path (disabled when empty)")
	f.StringVar(&flagRulesDir, "rules-dir", "", "directory of Risor rule scripts")
	f.BoolVar(&flagParallel, "parallel", true, "analyze files concurrently")
	f.BoolVar(&flagKeepGoing, "keep-going", false, "continue past files that fail to read or parse")
	f.BoolVar(&flagLexicalScopes, "lexical-scopes", false, "track unused variables per nested function")
	f.StringArrayVar(&flagExclude, "exclude", nil, "glob of discovered files to skip (repeatable)")
	f.BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	f.BoolVar(&flagVerbose, "verbose", false, "log progress at debug level")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateFormat(cfg.Format); err != nil {
		return err
	}

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return analyze(cmd.Context(), os.Stdout, os.Stderr, cfg, args, logger)
}

// loadConfig reads the config file, explicit or found in the working
// directory, and overlays the flags that were set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.Find(".")
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Format = flagFormat
	}
	if flags.Changed("cache") {
		cfg.Cache = flagCache
	}
	if flags.Changed("rules-dir") {
		cfg.RulesDir = flagRulesDir
	}
	if flags.Changed("parallel") {
		parallel := flagParallel
		cfg.Parallel = &parallel
	}
	if flags.Changed("keep-going") {
		cfg.KeepGoing = flagKeepGoing
	}
	if flags.Changed("lexical-scopes") {
		cfg.LexicalScopes = flagLexicalScopes
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, flagExclude...)
	}
	if flags.Changed("no-color") {
		cfg.NoColor = flagNoColor
	}
	return cfg, nil
}

// engineOptions translates cfg into engine options.
func engineOptions(cfg *config.Config, logger *slog.Logger) []pydefect.Option {
	opts := []pydefect.Option{
		pydefect.WithParallel(cfg.ParallelEnabled()),
		pydefect.WithKeepGoing(cfg.KeepGoing),
		pydefect.WithLogger(logger),
	}
	if cfg.Cache != "" {
		opts = append(opts, pydefect.WithCache(cfg.Cache))
	}
	if cfg.RulesDir != "" {
		opts = append(opts, pydefect.WithRulesDir(cfg.RulesDir))
	}
	if cfg.LexicalScopes {
		opts = append(opts, pydefect.WithScopeMode(pydefect.ScopeLexical))
	}
	if len(cfg.Exclude) > 0 {
		opts = append(opts, pydefect.WithExclude(cfg.Exclude...))
	}
	return opts
}

// analyze discovers and analyzes paths, writes the report to w and per-file
// errors to errw. Defects alone never make it fail.
func analyze(ctx context.Context, w, errw io.Writer, cfg *config.Config, paths []string, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	engine, err := pydefect.New(engineOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	files, err := engine.Discover(paths)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	logger.Debug("discovered files", "count", len(files))

	results := engine.AnalyzeFiles(ctx, files)

	var failures int
	var reported []pydefect.FileResult
	for _, r := range results {
		if r.Skipped {
			continue
		}
		if r.Err != nil {
			failures++
			fmt.Fprintln(errw, errorMessage(r))
		}
		reported = append(reported, r)
	}

	if err := writeReport(w, cfg.Format, reported, useColor(cfg.NoColor)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	logger.Debug("analysis complete",
		"files", len(files),
		"failed", failures,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if failures > 0 {
		errorHandled = true
		return fmt.Errorf("analysis had %d error(s)", failures)
	}
	return nil
}

// errorMessage renders a failed file the way users of the tool expect to
// see it on stderr.
func errorMessage(r pydefect.FileResult) string {
	var fe *pydefect.FileAccessError
	if errors.As(r.Err, &fe) && fe.NotFound() {
		return fmt.Sprintf("Error: File '%s' not found.", r.Path)
	}
	var se *pydefect.SourceSyntaxError
	if errors.As(r.Err, &se) {
		return fmt.Sprintf("SyntaxError in '%s': %v", r.Path, se.Err)
	}
	return fmt.Sprintf("Error processing '%s': %v", r.Path, r.Err)
}

// useColor reports whether headers should be colored: never when disabled
// and only when stdout is a terminal.
func useColor(noColor bool) bool {
	return !noColor && !color.NoColor
}
