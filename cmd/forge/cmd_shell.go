package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"forge/internal/sandbox"
)

var shellBuildEnv bool

// shellCmd stages an element's own sources into a sandbox root and drops
// the user into an interactive command inside it. The element's
// dependencies are not staged; --build changes only the reported
// environment label and sets the command's Network flag.
var shellCmd = &cobra.Command{
	Use:   "shell <element>",
	Short: "Open an interactive shell staged with an element's sources",
	Args:  cobra.ExactArgs(1),
	RunE:  runShell,
}

func init() {
	shellCmd.Flags().BoolVar(&shellBuildEnv, "build", false, "label the session as the build environment and set the command's network flag; the staged sources are the same")
}

func runShell(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(projectFile())
	if err != nil {
		return err
	}
	sess, err := NewSession(cfg, newEmptyRegistry(), graph)
	if err != nil {
		return err
	}
	defer sess.Close()

	root, err := os.MkdirTemp("", "forge-shell-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(root)

	ctx, cancel := sessionContext(cmd)
	defer cancel()

	if err := sess.Checkout(ctx, args[0], root); err != nil {
		return err
	}

	box, err := sandbox.NewLocal(root)
	if err != nil {
		return err
	}
	defer box.Close()

	shellBinary := os.Getenv("SHELL")
	if shellBinary == "" {
		shellBinary = "/bin/sh"
	}
	label := "runtime"
	if shellBuildEnv {
		label = "build"
	}
	fmt.Printf("%s: staged %s environment in %s\n", args[0], label, root)

	status, err := box.Run(ctx, sandbox.Command{
		Argv:       []string{shellBinary},
		WorkingDir: root,
		Network:    shellBuildEnv,
	})
	if err != nil {
		return err
	}
	fmt.Print(status.Stdout)
	fmt.Fprint(os.Stderr, status.Stderr)
	if status.Code != 0 {
		return fmt.Errorf("shell exited with status %d", status.Code)
	}
	return nil
}
