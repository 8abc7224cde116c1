package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// artifactCmd groups direct cache operations on named elements: pull,
// push, checkout, and log. Unlike `build`, these bypass the scheduler
// entirely and act on the element's current effective cache key.
var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect or move a single element's cached artifact",
}

var artifactPullCmd = &cobra.Command{
	Use:   "pull <element>",
	Short: "Fetch an element's artifact from the configured remote",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactPull,
}

var artifactPushCmd = &cobra.Command{
	Use:   "push <element>",
	Short: "Push an element's locally cached artifact to the configured remote",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactPush,
}

var artifactCheckoutDir string

var artifactCheckoutCmd = &cobra.Command{
	Use:   "checkout <element>",
	Short: "Extract an element's cached artifact into a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactCheckout,
}

var artifactLogCmd = &cobra.Command{
	Use:   "log <element>",
	Short: "Show an element's cache history",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactLog,
}

func init() {
	artifactCheckoutCmd.Flags().StringVar(&artifactCheckoutDir, "dir", "", "directory to extract the artifact into (required)")
	artifactCmd.AddCommand(artifactPullCmd, artifactPushCmd, artifactCheckoutCmd, artifactLogCmd)
}

func openArtifactSession(cmd *cobra.Command) (*Session, func(), error) {
	graph, err := loadGraph(projectFile())
	if err != nil {
		return nil, nil, err
	}
	sess, err := NewSession(cfg, newEmptyRegistry(), graph)
	if err != nil {
		return nil, nil, err
	}
	return sess, func() { sess.Close() }, nil
}

func runArtifactPull(cmd *cobra.Command, args []string) error {
	sess, closeFn, err := openArtifactSession(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	key, ok := sess.Key(args[0])
	if !ok {
		return fmt.Errorf("artifact: %s has no resolvable cache key yet", args[0])
	}
	if sess.Local().Contains(key) {
		fmt.Printf("%s: already present locally (%s)\n", args[0], key)
		return nil
	}
	if sess.Remote() == nil {
		return fmt.Errorf("artifact: no remote cache configured")
	}
	ctx, cancel := sessionContext(cmd)
	defer cancel()
	handle, err := sess.Remote().Pull(ctx, key)
	if err != nil {
		return err
	}
	if handle == nil {
		return fmt.Errorf("artifact: %s: remote miss for %s", args[0], key)
	}
	defer handle.Close()
	if err := sess.Local().Put(key, handle); err != nil {
		return err
	}
	fmt.Printf("%s: pulled %s\n", args[0], key)
	return nil
}

func runArtifactPush(cmd *cobra.Command, args []string) error {
	sess, closeFn, err := openArtifactSession(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	key, ok := sess.Key(args[0])
	if !ok {
		return fmt.Errorf("artifact: %s has no resolvable cache key yet", args[0])
	}
	if !sess.Local().Contains(key) {
		return fmt.Errorf("artifact: %s: no local artifact for %s", args[0], key)
	}
	if sess.Remote() == nil {
		return fmt.Errorf("artifact: no remote cache configured")
	}
	handle, err := sess.Local().Open(key)
	if err != nil {
		return err
	}
	defer handle.Close()
	ctx, cancel := sessionContext(cmd)
	defer cancel()
	if err := sess.Remote().Push(ctx, key, handle); err != nil {
		return err
	}
	fmt.Printf("%s: pushed %s\n", args[0], key)
	return nil
}

func runArtifactCheckout(cmd *cobra.Command, args []string) error {
	if artifactCheckoutDir == "" {
		return fmt.Errorf("--dir is required")
	}
	sess, closeFn, err := openArtifactSession(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	key, ok := sess.Key(args[0])
	if !ok {
		return fmt.Errorf("artifact: %s has no resolvable cache key yet", args[0])
	}
	handle, err := sess.Local().Open(key)
	if err != nil {
		return err
	}
	defer handle.Close()

	if err := os.MkdirAll(artifactCheckoutDir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(artifactCheckoutDir, args[0]+".artifact"))
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, handle); err != nil {
		return err
	}
	fmt.Printf("%s: extracted %s into %s\n", args[0], key, artifactCheckoutDir)
	return nil
}

func runArtifactLog(cmd *cobra.Command, args []string) error {
	sess, closeFn, err := openArtifactSession(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	hist, err := sess.History(args[0])
	if err != nil {
		return err
	}
	if len(hist) == 0 {
		fmt.Printf("%s: no recorded history\n", args[0])
		return nil
	}
	for _, m := range hist {
		fmt.Printf("%s  weak=%s strong=%s embedded=%s\n", m.StoredAt.Format("2006-01-02T15:04:05Z"), m.WeakKey, m.StrongKey, m.EmbeddedStrongKey)
	}
	return nil
}
