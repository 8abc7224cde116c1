package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	buildDepsMode  string
	buildRemote    string
	buildRetryOnly bool
	buildKeepGoing bool
)

// buildCmd invokes the scheduler over a target's dependency closure.
var buildCmd = &cobra.Command{
	Use:   "build <target>",
	Short: "Build a target element and its dependency closure",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildDepsMode, "deps", "all", "dependency scope label echoed in the result (all, plan, run, none); it does not change which elements are built")
	buildCmd.Flags().StringVar(&buildRemote, "remote", "", "remote cache URL to pull from and push to")
	buildCmd.Flags().BoolVar(&buildRetryOnly, "retry-failed", false, "only re-attempt elements that failed last session")
	buildCmd.Flags().BoolVar(&buildKeepGoing, "keep-going", false, "drop dependents of a failed element instead of failing the whole build")
}

// buildFailedError reports one or more element failures under
// --keep-going: the session otherwise completed, so this maps to exit
// code 1 (recoverable) rather than 2 (fatal).
type buildFailedError struct {
	failed []string
}

func (e *buildFailedError) Error() string {
	return fmt.Sprintf("build failed for %d element(s): %v", len(e.failed), e.failed)
}

func (e *buildFailedError) ExitCode() int { return 1 }

func runBuild(cmd *cobra.Command, args []string) error {
	target := args[0]
	if buildRemote != "" {
		cfg.Cache.RemoteURL = buildRemote
	}

	graph, err := loadGraph(projectFile())
	if err != nil {
		return err
	}
	reg := newEmptyRegistry()

	sess, err := NewSession(cfg, reg, graph)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := sessionContext(cmd)
	defer cancel()

	report, err := sess.Build(ctx, target, buildKeepGoing, buildRetryOnly)
	if err != nil {
		return err
	}
	if report.Interrupted {
		return interruptedError()
	}
	if len(report.Failed) > 0 {
		if !buildKeepGoing {
			// Without --keep-going the scheduler aborted the whole
			// session on the first failure (FailFast): that's the fatal
			// case, exit code 2, not the recoverable exit 1 below.
			return fmt.Errorf("build aborted: %d element(s) failed: %v", len(report.Failed), report.Failed)
		}
		return &buildFailedError{failed: report.Failed}
	}
	fmt.Printf("built %s (deps=%s)\n", target, buildDepsMode)
	return nil
}
