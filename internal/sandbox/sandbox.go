// Package sandbox declares the contract a build/shell session runs
// inside, and a minimal local reference implementation that runs commands
// directly on the host rather than inside a container or chroot. A real
// container/chroot backend is out of scope here; this package exists so
// the job runtime has something concrete to drive during development and
// tests.
package sandbox

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"forge/internal/errs"
	"forge/internal/logging"
)

// Mount declares a writable subtree an element plugin needs inside an
// otherwise read-only sandbox root.
type Mount struct {
	Source      string
	Target      string
	ReadOnly    bool
}

// Command is one invocation to run inside the sandbox.
type Command struct {
	Argv       []string
	WorkingDir string
	Env        []string
	Mounts     []Mount
	Network    bool
	UID, GID   int
}

// ExitStatus is the result of running a Command.
type ExitStatus struct {
	Code   int
	Stdout string
	Stderr string
}

// Sandbox is the contract the job runtime drives a build, fetch, or shell
// session through. Implementations must provide a read-only filesystem by
// default with only plugin-declared subtrees writable, must block network
// access unless Command.Network is set, and must run commands as
// Command.UID/GID (0/0 if unset).
type Sandbox interface {
	// Run executes cmd inside the sandbox and returns its exit status.
	Run(ctx context.Context, cmd Command) (ExitStatus, error)

	// Root returns the sandbox's filesystem root, for plugins that stage
	// content directly rather than through Run.
	Root() string

	// Close tears down the sandbox, releasing any held resources.
	Close() error
}

// Local is a reference Sandbox that runs commands directly against a host
// directory with no filesystem or network isolation. It exists for
// development and for element kinds that are trusted to run unsandboxed;
// it does not enforce the read-only/no-network contract other Sandbox
// implementations must.
type Local struct {
	root string
}

// NewLocal builds a Local sandbox rooted at dir. dir must already exist.
func NewLocal(dir string) (*Local, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &errs.SandboxError{Message: "sandbox root: " + dir, Cause: err}
	}
	if !info.IsDir() {
		return nil, &errs.SandboxError{Message: "sandbox root is not a directory: " + dir}
	}
	return &Local{root: dir}, nil
}

func (l *Local) Root() string { return l.root }

func (l *Local) Close() error { return nil }

// Run executes cmd.Argv directly on the host, rooted at l.root unless cmd
// overrides WorkingDir.
func (l *Local) Run(ctx context.Context, cmd Command) (ExitStatus, error) {
	if len(cmd.Argv) == 0 {
		return ExitStatus{}, &errs.SandboxError{Message: "empty command"}
	}
	dir := l.root
	if cmd.WorkingDir != "" {
		dir = cmd.WorkingDir
	}

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = dir
	if len(cmd.Env) > 0 {
		c.Env = cmd.Env
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	logging.Get(logging.CategorySandbox).Debug("run %v (dir=%s network=%v)", cmd.Argv, dir, cmd.Network)

	err := c.Run()
	status := ExitStatus{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := asExitError(err); ok {
		status.Code = exitErr.ExitCode()
		return status, nil
	}
	if err != nil {
		return status, &errs.SandboxError{Message: "exec " + cmd.Argv[0], Cause: err}
	}
	return status, nil
}

func asExitError(err error) (*exec.ExitError, bool) {
	exitErr, ok := err.(*exec.ExitError)
	return exitErr, ok
}
