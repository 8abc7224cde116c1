// Package document implements the structured document model: provenance-
// tracked mappings, sequences, and scalars; composition directives; and
// deep clone. Every configuration value flowing through the orchestrator
// is a Node.
package document

import (
	"strconv"

	"forge/internal/errs"
)

// Kind discriminates the three Node variants.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Node is a discriminated union of Scalar, Mapping, and Sequence. Scalars
// are stored in their canonical string form; IsNull distinguishes an
// explicit null from the empty string.
type Node struct {
	Kind Kind
	Prov Provenance

	scalar string
	isNull bool

	mapping *orderedMap
	seq     []*Node
}

// orderedMap is an insertion-ordered string -> *Node map.
type orderedMap struct {
	keys []string
	vals map[string]*Node
}

func newOrderedMap() *orderedMap {
	return &orderedMap{vals: make(map[string]*Node)}
}

func (m *orderedMap) get(key string) (*Node, bool) {
	n, ok := m.vals[key]
	return n, ok
}

func (m *orderedMap) set(key string, n *Node) {
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = n
}

func (m *orderedMap) delete(key string) {
	if _, exists := m.vals[key]; !exists {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// NewScalar builds a scalar node holding the canonical string form of v.
func NewScalar(prov Provenance, v string) *Node {
	return &Node{Kind: KindScalar, Prov: prov, scalar: v}
}

// NewNull builds a scalar node representing null.
func NewNull(prov Provenance) *Node {
	return &Node{Kind: KindScalar, Prov: prov, isNull: true}
}

// NewMapping builds an empty mapping node.
func NewMapping(prov Provenance) *Node {
	return &Node{Kind: KindMapping, Prov: prov, mapping: newOrderedMap()}
}

// NewSequence builds a sequence node from the given items (no copy).
func NewSequence(prov Provenance, items []*Node) *Node {
	return &Node{Kind: KindSequence, Prov: prov, seq: items}
}

// IsNull reports whether this scalar node represents null.
func (n *Node) IsNull() bool { return n.Kind == KindScalar && n.isNull }

// ScalarString returns the canonical string form of a scalar node. Panics
// if n is not a scalar — callers must check Kind first (mirrors the
// "tagged variants with explicit accessors" design).
func (n *Node) ScalarString() string {
	if n.Kind != KindScalar {
		panic("document: ScalarString called on non-scalar node")
	}
	return n.scalar
}

// AsBool coerces a scalar to bool per the {True,true}/{False,false} rule.
// Anything else is a type error.
func (n *Node) AsBool() (bool, error) {
	if n.Kind != KindScalar {
		return false, errs.NewLoad(errs.InvalidData, n.Prov.String(nil), "expected boolean scalar, got %s", n.Kind)
	}
	switch n.scalar {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	default:
		return false, errs.NewLoad(errs.InvalidData, n.Prov.String(nil), "invalid boolean value %q", n.scalar)
	}
}

// AsInt coerces a scalar to an int.
func (n *Node) AsInt() (int, error) {
	if n.Kind != KindScalar {
		return 0, errs.NewLoad(errs.InvalidData, n.Prov.String(nil), "expected integer scalar, got %s", n.Kind)
	}
	v, err := strconv.Atoi(n.scalar)
	if err != nil {
		return 0, errs.NewLoad(errs.InvalidData, n.Prov.String(nil), "invalid integer value %q", n.scalar)
	}
	return v, nil
}

// ---- Mapping accessors ----

// Get returns the child at key and whether it exists. Panics if n is not
// a mapping.
func (n *Node) Get(key string) (*Node, bool) {
	n.requireMapping()
	return n.mapping.get(key)
}

// Set inserts or replaces the child at key, preserving insertion order of
// first-seen keys. Panics if n is not a mapping.
func (n *Node) Set(key string, v *Node) {
	n.requireMapping()
	n.mapping.set(key, v)
}

// Delete removes key from the mapping, if present.
func (n *Node) Delete(key string) {
	n.requireMapping()
	n.mapping.delete(key)
}

// Keys returns the mapping's keys in insertion order. Panics if n is not
// a mapping.
func (n *Node) Keys() []string {
	n.requireMapping()
	out := make([]string, len(n.mapping.keys))
	copy(out, n.mapping.keys)
	return out
}

// Len returns the number of entries (mapping) or items (sequence).
func (n *Node) Len() int {
	switch n.Kind {
	case KindMapping:
		return len(n.mapping.keys)
	case KindSequence:
		return len(n.seq)
	default:
		panic("document: Len called on scalar node")
	}
}

func (n *Node) requireMapping() {
	if n.Kind != KindMapping {
		panic("document: mapping operation called on " + n.Kind.String() + " node")
	}
}

// ---- Sequence accessors ----

// Items returns the sequence's elements in order. Panics if n is not a
// sequence.
func (n *Node) Items() []*Node {
	if n.Kind != KindSequence {
		panic("document: Items called on non-sequence node")
	}
	return n.seq
}

// Append adds v to the end of the sequence. Panics if n is not a
// sequence.
func (n *Node) Append(v *Node) {
	if n.Kind != KindSequence {
		panic("document: Append called on non-sequence node")
	}
	n.seq = append(n.seq, v)
}

// Clone performs a deep copy of the node tree, preserving provenance.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindScalar:
		return &Node{Kind: KindScalar, Prov: n.Prov, scalar: n.scalar, isNull: n.isNull}
	case KindSequence:
		items := make([]*Node, len(n.seq))
		for i, it := range n.seq {
			items[i] = it.Clone()
		}
		return &Node{Kind: KindSequence, Prov: n.Prov, seq: items}
	case KindMapping:
		m := newOrderedMap()
		for _, k := range n.mapping.keys {
			v, _ := n.mapping.get(k)
			m.set(k, v.Clone())
		}
		return &Node{Kind: KindMapping, Prov: n.Prov, mapping: m}
	default:
		panic("document: Clone on unknown kind")
	}
}

// Iterate walks the mapping's entries in order, calling fn(key, value).
// Panics if n is not a mapping.
func (n *Node) Iterate(fn func(key string, value *Node)) {
	n.requireMapping()
	for _, k := range n.mapping.keys {
		v, _ := n.mapping.get(k)
		fn(k, v)
	}
}
