package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/efletch/trellis"
	"github.com/efletch/trellis/internal/logging"
	"github.com/efletch/trellis/langpack"
	"github.com/efletch/trellis/langpack/treesitter"
)

var (
	flagConfig   string
	flagFormat   string
	flagLogLevel string
	flagLogJSON  bool
	flagMetrics  bool
	flagArchive  string

	appCfg trellis.Config
	logger = logging.Discard()

	meterProvider *sdkmetric.MeterProvider
)

// errorHandled is set by outputError so main() doesn't double-print.
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
	Use:           "trellis",
	Short:         "Incremental interface signature graphs over source code",
	Long:          "Trellis indexes source documents into an Interface Signature Graph and keeps it current incrementally: nodes are modules, types, functions and fields; edges are calls, implements, inherits, returns, references, contains and imports.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		cfg, err := trellis.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = flagLogLevel
		}
		if cmd.Flags().Changed("log-json") {
			cfg.Log.JSON = flagLogJSON
		}
		appCfg = cfg
		logger = logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
		if flagMetrics {
			return setupMetrics()
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if meterProvider == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return meterProvider.Shutdown(ctx)
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "trellis.toml", "configuration file (TOML; missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log as JSON instead of text")
	rootCmd.PersistentFlags().BoolVar(&flagMetrics, "metrics", false, "dump query runtime metrics on exit")
	rootCmd.PersistentFlags().StringVar(&flagArchive, "archive", "", "snapshot archive path (default: <path>/"+trellis.DefaultConfig().Archive.Path+")")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serializeCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(revisionsCmd)
	rootCmd.AddCommand(watchCmd)
}

// setupMetrics installs a periodic stdout metrics exporter; Shutdown in the
// post-run hook forces the final flush.
func setupMetrics() error {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("metrics exporter: %w", err)
	}
	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
	)
	otel.SetMeterProvider(meterProvider)
	return nil
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// archivePath resolves the snapshot database location for a target root.
func archivePath(root string) string {
	if flagArchive != "" {
		if filepath.IsAbs(flagArchive) {
			return flagArchive
		}
		return filepath.Join(root, flagArchive)
	}
	return filepath.Join(root, filepath.FromSlash(appCfg.Archive.Path))
}

// newEngine builds an engine for a target root with the configured packs and
// archive.
func newEngine(root string) (*trellis.Engine, error) {
	dbPath := archivePath(root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	return trellis.New(
		trellis.WithConfig(appCfg),
		trellis.WithLogger(logger),
		trellis.WithPacks(langpack.Mini(), treesitter.Go()),
		trellis.WithArchivePath(dbPath),
	)
}

// openIndexed builds an engine and indexes the target directory.
func openIndexed(ctx context.Context, args []string) (*trellis.Engine, string, error) {
	root, err := resolveTargetDir(args)
	if err != nil {
		return nil, "", err
	}
	eng, err := newEngine(root)
	if err != nil {
		return nil, "", err
	}
	if _, err := eng.OpenDirectory(ctx, root); err != nil {
		eng.Close()
		return nil, "", err
	}
	return eng, root, nil
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory and report graph and cache statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()
	eng, root, err := openIndexed(ctx, args)
	if err != nil {
		return outputError("index", err)
	}
	defer eng.Close()

	out, err := eng.SerializeGraph(ctx, trellis.FormatCompact)
	if err != nil {
		return outputError("index", err)
	}
	stats := eng.Stats()
	fmt.Fprintf(os.Stderr, "Indexed %s in %s\n", root, time.Since(start).Round(time.Millisecond))
	return outputResult(cliResult{Command: "index", Result: cliIndexSummary{
		Revision:     eng.Revision(),
		GraphLines:   countLines(out),
		Computations: stats.Computations,
		Hits:         stats.Hits,
		EarlyCutoffs: stats.EarlyCutoffs,
	}})
}
