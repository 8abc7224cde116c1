// Package main implements the forge CLI — the cobra front-end over the
// orchestrator core. Command implementations are split across
// cmd_*.go files, one per command group, in the teacher's convention.
//
// # File Index
//
//   - main.go          - entry point, rootCmd, global flags, init()
//   - session.go        - wires config, cache, broker, job runtime,
//     queues, and scheduler into a runnable pipeline for one target
//   - graph.go          - reads one project YAML file into an element.Graph
//   - helpers.go        - shared flag/context/registry plumbing
//   - cmd_build.go       - build
//   - cmd_source.go      - source track/fetch/checkout
//   - cmd_artifact.go    - artifact pull/push/checkout/log
//   - cmd_shell.go       - shell
//   - cmd_workspace.go   - workspace open/close/reset
//   - cmd_show.go        - show
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"forge/internal/config"
	"forge/internal/logging"
)

var (
	verbose     bool
	workspaceDir string
	cacheDirFlag string
	remoteFlag   string
	maxJobsFlag  int
	timeout      time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge - reproducible build orchestrator",
	Long: `forge turns a graph of declarative build elements into cached
artifacts: it resolves fingerprints, decides what to fetch, pull, build,
or push, dispatches work across a bounded pool of workers, and persists
results in a content-addressed cache.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		ws := workspaceDir
		if ws == "" {
			ws, _ = os.Getwd()
		}

		loaded, err := config.Load(filepath.Join(ws, "forge.yaml"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cacheDirFlag != "" {
			loaded.Cache.Directory = cacheDirFlag
		}
		if remoteFlag != "" {
			loaded.Cache.RemoteURL = remoteFlag
		}
		if maxJobsFlag > 0 {
			loaded.Pools.Process = int64(maxJobsFlag)
		}
		cfg = loaded

		cacheDir := cfg.Cache.Directory
		if !filepath.IsAbs(cacheDir) {
			cacheDir = filepath.Join(ws, cacheDir)
		}
		if err := logging.Initialize(cacheDir, cfg.Logging.ToLoggingConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "project directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "override the local cache directory")
	rootCmd.PersistentFlags().StringVar(&remoteFlag, "remote", "", "remote cache URL")
	rootCmd.PersistentFlags().IntVar(&maxJobsFlag, "max-jobs", 0, "override the parallel job pool size")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall session timeout")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(artifactCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to spec.md's exit code contract: 0 success,
// 1 recoverable failure, 2 fatal failure, 130 interrupted.
func exitCodeFor(err error) int {
	if ic, ok := err.(interface{ ExitCode() int }); ok {
		return ic.ExitCode()
	}
	return 2
}
