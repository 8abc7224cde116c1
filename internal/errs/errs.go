// Package errs implements the closed error taxonomy of the orchestrator:
// LoadError, ElementError, SandboxError, CacheError, SchedulerError, and
// Interrupted. Every error carries a short message and, where applicable,
// a provenance string so users can locate the offending declaration.
package errs

import "fmt"

// LoadReason is one of the fixed sub-codes for LoadError.
type LoadReason string

const (
	MissingFile              LoadReason = "MISSING_FILE"
	LoadingDirectory          LoadReason = "LOADING_DIRECTORY"
	InvalidYAML               LoadReason = "INVALID_YAML"
	InvalidData                LoadReason = "INVALID_DATA"
	InvalidSymbolName          LoadReason = "INVALID_SYMBOL_NAME"
	UnresolvedVariable         LoadReason = "UNRESOLVED_VARIABLE"
	CircularReferenceVariable  LoadReason = "CIRCULAR_REFERENCE_VARIABLE"
	RecursiveVariable          LoadReason = "RECURSIVE_VARIABLE"
	IllegalComposite           LoadReason = "ILLEGAL_COMPOSITE"
	TrailingListDirective      LoadReason = "TRAILING_LIST_DIRECTIVE"
	CircularDependency         LoadReason = "CIRCULAR_DEPENDENCY"
)

// LoadError is raised by the document model, variable engine, and element
// graph at load time. It short-circuits the session.
type LoadError struct {
	Reason     LoadReason
	Provenance string // "file [line L column C]", empty for synthetic nodes
	Message    string
	Detail     string
	Cause      error
}

func (e *LoadError) Error() string {
	if e.Provenance != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Message, e.Provenance)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Kind identifies the error taxonomy entry.
func (e *LoadError) Kind() string { return "LoadError" }

// NewLoad builds a LoadError with the given reason and provenance.
func NewLoad(reason LoadReason, provenance, format string, args ...any) *LoadError {
	return &LoadError{Reason: reason, Provenance: provenance, Message: fmt.Sprintf(format, args...)}
}

// ElementError is raised by plugins for per-element failures.
type ElementError struct {
	ElementName string
	Message     string
	Detail      string
	Retriable   bool
	Cause       error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("element %s: %s", e.ElementName, e.Message)
}

func (e *ElementError) Unwrap() error { return e.Cause }
func (e *ElementError) Kind() string  { return "ElementError" }

// SandboxError covers sandbox setup or execution failure.
type SandboxError struct {
	Message string
	Cause   error
}

func (e *SandboxError) Error() string { return fmt.Sprintf("sandbox: %s", e.Message) }
func (e *SandboxError) Unwrap() error { return e.Cause }
func (e *SandboxError) Kind() string  { return "SandboxError" }

// CacheReason is one of the fixed sub-codes for CacheError.
type CacheReason string

const (
	RemoteUnreachable CacheReason = "REMOTE_UNREACHABLE"
	CorruptBlob       CacheReason = "CORRUPT_BLOB"
	KeyMismatch       CacheReason = "KEY_MISMATCH"
)

// CacheError covers artifact-cache failures.
type CacheError struct {
	Reason  CacheReason
	Message string
	Cause   error
}

func (e *CacheError) Error() string { return fmt.Sprintf("%s: %s", e.Reason, e.Message) }
func (e *CacheError) Unwrap() error { return e.Cause }
func (e *CacheError) Kind() string  { return "CacheError" }

// SchedulerError is a non-retriable internal invariant violation.
type SchedulerError struct {
	Message string
	Cause   error
}

func (e *SchedulerError) Error() string { return fmt.Sprintf("scheduler: %s", e.Message) }
func (e *SchedulerError) Unwrap() error { return e.Cause }
func (e *SchedulerError) Kind() string  { return "SchedulerError" }

// Interrupted indicates user-requested cancellation (e.g. SIGINT).
type Interrupted struct {
	Message string
}

func (e *Interrupted) Error() string { return fmt.Sprintf("interrupted: %s", e.Message) }
func (e *Interrupted) Kind() string  { return "Interrupted" }

// ExitCode maps Interrupted onto the CLI's signal-interrupted exit code.
func (e *Interrupted) ExitCode() int { return 130 }

// Kinded is implemented by every error in the taxonomy.
type Kinded interface {
	error
	Kind() string
}

// Detail optionally carries extra context rendered in the final report.
type Detail interface {
	DetailText() string
}

func (e *LoadError) DetailText() string    { return e.Detail }
func (e *ElementError) DetailText() string { return e.Detail }
