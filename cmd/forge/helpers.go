package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"forge/internal/errs"
	"forge/internal/plugin"
)

// resolvedWorkspaceDir returns the workspace directory flag value,
// defaulting to the current directory.
func resolvedWorkspaceDir() string {
	if workspaceDir != "" {
		return workspaceDir
	}
	dir, _ := os.Getwd()
	return dir
}

// projectFile locates the single project description file this CLI
// reads. A multi-file project tree with junctions is out of scope; a
// real deployment would resolve one here instead.
func projectFile() string {
	return filepath.Join(resolvedWorkspaceDir(), "forge-project.yaml")
}

// newEmptyRegistry returns a plugin registry with no kinds registered.
// Concrete source and element plugins (git, tar, autotools, make, ...)
// are out of scope for this package; a real deployment registers them
// here before building a Session.
func newEmptyRegistry() *plugin.Registry {
	return plugin.NewRegistry()
}

// sessionContext derives a cancellable context bound to the --timeout
// flag and to an OS interrupt signal.
func sessionContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		return ctx, func() { cancel(); stop() }
	}
	return ctx, stop
}

// interruptedError reports a scheduler run that was cut short by a
// signal, for mapping to the CLI's interrupted exit code.
func interruptedError() error {
	return &errs.Interrupted{Message: "build interrupted"}
}
