// Package plugin declares the capability contracts the scheduler drives
// source and element kinds through. No concrete plugin lives here — git,
// tar, local-directory sources and autotools/make-style element kinds are
// out of scope; this package only fixes the interface the job runtime
// calls into.
package plugin

import (
	"context"

	"forge/internal/document"
)

// RefKind distinguishes whether a source ref is pinned to exact content or
// still tracking a movable reference (a branch, a "latest" tag).
type RefKind int

const (
	RefFloating RefKind = iota
	RefPinned
)

// Source is the capability interface the Track, Pull, and Fetch queues
// drive an element's declared sources through. Implementations wrap a
// concrete mechanism (git, tar, a local directory) behind a uniform
// contract so the scheduler never branches on source kind.
type Source interface {
	// Kind names the plugin ("git", "tar", "local", ...).
	Kind() string

	// RefStatus reports whether this source is already pinned to exact
	// content, so the Track queue can SKIP it.
	RefStatus() RefKind

	// UniqueKey returns a stable digest of the source's pinned content,
	// folded into an element's weak cache key. Calling UniqueKey before
	// the source is pinned is a programming error.
	UniqueKey() (string, error)

	// IsCached reports whether this source's content is already present
	// in the local CAS, so the Fetch queue can SKIP it.
	IsCached() bool

	// Track resolves a floating ref to a concrete, pinned one (e.g. a git
	// branch to a commit SHA) and returns the new ref. Track runs with
	// network access and must be safe to call concurrently with Track
	// calls for unrelated sources.
	Track(ctx context.Context) (string, error)

	// Fetch downloads this source's content into the local CAS, keyed
	// under UniqueKey. Transient network failures should be reported
	// through a retriable ElementError.
	Fetch(ctx context.Context) error

	// Stage materialises this source's content into dir, the sandbox root
	// being prepared for a build or shell session.
	Stage(ctx context.Context, dir string) error
}

// Element is the capability interface the Build queue drives an
// element's recipe through, once its configuration has been composed and
// its variables resolved.
type Element interface {
	// Kind names the plugin ("autotools", "make", "manual", ...).
	Kind() string

	// UniqueKey returns a stable digest of this element kind's own
	// configuration contribution (distinct from the element's overall
	// strong/weak cache key, which also folds in dependencies and
	// sources).
	UniqueKey() (string, error)

	// Configure validates config against this kind's schema. Called once,
	// before the element joins any queue.
	Configure(config *document.Node) error

	// Assemble runs the build recipe inside an already-staged sandbox and
	// returns the resulting artifact as a stream the Build queue writes
	// into the local CAS. report delivers human-readable progress lines
	// back to the scheduler.
	Assemble(ctx context.Context, sandboxRoot string, report func(string)) (Artifact, error)

	// IntegrationCommands returns the commands to run when this element's
	// artifact is staged as a build or runtime dependency into another
	// element's sandbox (e.g. registering a pkg-config file, running
	// ldconfig).
	IntegrationCommands() []string
}

// Artifact is the output of assembling an element: a byte stream plus the
// metadata the cache layer needs to store it.
type Artifact struct {
	Reader      ArtifactReader
	ContentType string
}

// ArtifactReader is satisfied by any stream Assemble can hand back;
// kept as its own name rather than a bare io.Reader so plugin
// implementations don't need to import io just for this contract.
type ArtifactReader interface {
	Read(p []byte) (n int, err error)
}

// Registry resolves a kind name to its plugin constructor. Source and
// element plugins share no common constructor signature, so Registry
// keeps two independent maps rather than forcing a shared interface.
type Registry struct {
	sources  map[string]func(config *document.Node) (Source, error)
	elements map[string]func(config *document.Node) (Element, error)
}

// NewRegistry builds an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:  make(map[string]func(config *document.Node) (Source, error)),
		elements: make(map[string]func(config *document.Node) (Element, error)),
	}
}

// RegisterSource makes kind available to BuildSource.
func (r *Registry) RegisterSource(kind string, ctor func(config *document.Node) (Source, error)) {
	r.sources[kind] = ctor
}

// RegisterElement makes kind available to BuildElement.
func (r *Registry) RegisterElement(kind string, ctor func(config *document.Node) (Element, error)) {
	r.elements[kind] = ctor
}

// BuildSource constructs a Source plugin instance for kind.
func (r *Registry) BuildSource(kind string, config *document.Node) (Source, error) {
	ctor, ok := r.sources[kind]
	if !ok {
		return nil, unknownKind("source", kind)
	}
	return ctor(config)
}

// BuildElement constructs an Element plugin instance for kind.
func (r *Registry) BuildElement(kind string, config *document.Node) (Element, error) {
	ctor, ok := r.elements[kind]
	if !ok {
		return nil, unknownKind("element", kind)
	}
	return ctor(config)
}

func unknownKind(family, kind string) error {
	return &unknownPluginError{family: family, kind: kind}
}

type unknownPluginError struct {
	family string
	kind   string
}

func (e *unknownPluginError) Error() string {
	return "plugin: no " + e.family + " plugin registered for kind " + e.kind
}
