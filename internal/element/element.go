// Package element implements the project dependency graph: elements,
// their build/runtime dependency edges, scoped traversal, and cycle
// detection at load time.
package element

import (
	"forge/internal/cachekey"
	"forge/internal/document"
)

// Scope filters a dependency traversal.
type Scope int

const (
	ScopeBuild Scope = iota
	ScopeRun
	ScopeAll
)

// Dependency is a non-owning back-reference to another element, named by
// its stable ID rather than holding a pointer directly — the graph owns
// all elements; edges only reference.
type Dependency struct {
	ElementID string
	Prov      document.Provenance
}

// Element is one unit of the build: a kind, its configuration, its
// sources, its dependency lists, and its derived cache keys once known.
type Element struct {
	ID   string // stable id, typically the element's declared path/name
	Kind string
	Prov document.Provenance

	Config      *document.Node
	Sources     []SourceRef
	BuildDeps   []Dependency
	RuntimeDeps []Dependency
	Variables   *document.Node
	Environment *document.Node
	PublicData  *document.Node
	Sandbox     *document.Node

	WeakKey   cachekey.Key
	StrongKey cachekey.Key
}

// SourceRef names a source plugin kind plus its own configuration
// mapping; the source plugin interface (internal/plugin) resolves it to
// a unique-key and staged content.
type SourceRef struct {
	Kind   string
	Config *document.Node
	Prov   document.Provenance
}

// HasWeakKey reports whether the element's weak key has been computed.
func (e *Element) HasWeakKey() bool { return e.WeakKey != "" }

// HasStrongKey reports whether the element's strong key has been computed.
func (e *Element) HasStrongKey() bool { return e.StrongKey != "" }
