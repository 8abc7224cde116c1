package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sourceCmd groups the source-stage-only subcommands: track, fetch, and
// checkout, each invoking a single queue rather than the full pipeline.
var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Operate on one element's sources without a full build",
}

var sourceTrackCmd = &cobra.Command{
	Use:   "track <element>",
	Short: "Resolve floating source refs to pinned ones",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceStage("track"),
}

var sourceFetchCmd = &cobra.Command{
	Use:   "fetch <element>",
	Short: "Download source content into the local cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceStage("fetch"),
}

var sourceCheckoutDir string

var sourceCheckoutCmd = &cobra.Command{
	Use:   "checkout <element>",
	Short: "Stage an element's sources into a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceCheckout,
}

func init() {
	sourceCheckoutCmd.Flags().StringVar(&sourceCheckoutDir, "dir", "", "directory to stage sources into (required)")
	sourceCmd.AddCommand(sourceTrackCmd, sourceFetchCmd, sourceCheckoutCmd)
}

func runSourceStage(stage string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph(projectFile())
		if err != nil {
			return err
		}
		sess, err := NewSession(cfg, newEmptyRegistry(), graph)
		if err != nil {
			return err
		}
		defer sess.Close()

		ctx, cancel := sessionContext(cmd)
		defer cancel()

		report, err := sess.RunStage(ctx, stage, []string{args[0]})
		if err != nil {
			return err
		}
		if report.Interrupted {
			return interruptedError()
		}
		if len(report.Failed) > 0 {
			return &buildFailedError{failed: report.Failed}
		}
		fmt.Printf("%s: %s complete\n", args[0], stage)
		return nil
	}
}

func runSourceCheckout(cmd *cobra.Command, args []string) error {
	if sourceCheckoutDir == "" {
		return fmt.Errorf("--dir is required")
	}
	graph, err := loadGraph(projectFile())
	if err != nil {
		return err
	}
	sess, err := NewSession(cfg, newEmptyRegistry(), graph)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := sessionContext(cmd)
	defer cancel()

	if err := sess.Checkout(ctx, args[0], sourceCheckoutDir); err != nil {
		return err
	}
	fmt.Printf("%s: staged into %s\n", args[0], sourceCheckoutDir)
	return nil
}
