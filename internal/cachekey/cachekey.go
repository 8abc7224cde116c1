// Package cachekey implements canonical serialisation and SHA-256
// digesting of the deterministic tuples that make up an element's weak
// and strong cache keys.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"forge/internal/document"
)

// Key is a lowercase hex SHA-256 digest.
type Key string

// DependencyKey pairs a build dependency's name with its strong key, for
// embedding in a dependent's strong-key tuple.
type DependencyKey struct {
	Name string
	Key  Key
}

// WeakInputs is the deterministic tuple a weak key is computed over.
type WeakInputs struct {
	Kind            string
	Config          *document.Node // fully resolved configuration
	SourceKeys      []string       // each source's unique-key, in declared order
	BuildDepNames   []string       // will be sorted internally
	ProjectEnv      *document.Node
}

// StrongInputs is the deterministic tuple a strong key is computed over:
// identical to WeakInputs except build dependency names are replaced by
// (name, strong key) pairs covering each direct build dependency and its
// full runtime closure.
type StrongInputs struct {
	Kind       string
	Config     *document.Node
	SourceKeys []string
	BuildDeps  []DependencyKey // will be sorted internally by name
	ProjectEnv *document.Node
}

// WeakKey computes the weak cache key for an element.
func WeakKey(in WeakInputs) Key {
	names := append([]string{}, in.BuildDepNames...)
	sort.Strings(names)

	tuple := canonMapping()
	tuple.set("kind", canonString(in.Kind))
	tuple.set("config", canonNode(in.Config))
	tuple.set("source_keys", canonStringList(in.SourceKeys))
	tuple.set("build_deps", canonStringList(names))
	tuple.set("project_env", canonNode(in.ProjectEnv))

	return digest(tuple)
}

// StrongKey computes the strong cache key for an element.
func StrongKey(in StrongInputs) Key {
	deps := append([]DependencyKey{}, in.BuildDeps...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

	depList := canonList()
	for _, d := range deps {
		pair := canonMapping()
		pair.set("name", canonString(d.Name))
		pair.set("key", canonString(string(d.Key)))
		depList.items = append(depList.items, pair)
	}

	tuple := canonMapping()
	tuple.set("kind", canonString(in.Kind))
	tuple.set("config", canonNode(in.Config))
	tuple.set("source_keys", canonStringList(in.SourceKeys))
	tuple.set("build_deps", depList)
	tuple.set("project_env", canonNode(in.ProjectEnv))

	return digest(tuple)
}

func digest(v canonValue) Key {
	var sb strings.Builder
	v.write(&sb)
	sum := sha256.Sum256([]byte(sb.String()))
	return Key(hex.EncodeToString(sum[:]))
}

// ---- canonical serialisation ----
//
// A minimal, self-contained canonical-JSON writer: mapping keys sorted
// lexicographically, sequences kept in declared order, non-null scalars
// always written as strings (null as null), no floating point, no
// insignificant whitespace.

type canonValue interface {
	write(sb *strings.Builder)
}

type canonScalar struct{ s string }

func canonString(s string) canonScalar { return canonScalar{s} }

func (c canonScalar) write(sb *strings.Builder) {
	sb.WriteByte('"')
	for _, r := range c.s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
}

type canonNull struct{}

func (canonNull) write(sb *strings.Builder) { sb.WriteString("null") }

type canonListValue struct{ items []canonValue }

func canonList() *canonListValue { return &canonListValue{} }

func (l *canonListValue) write(sb *strings.Builder) {
	sb.WriteByte('[')
	for i, it := range l.items {
		if i > 0 {
			sb.WriteByte(',')
		}
		it.write(sb)
	}
	sb.WriteByte(']')
}

func canonStringList(ss []string) *canonListValue {
	l := canonList()
	for _, s := range ss {
		l.items = append(l.items, canonString(s))
	}
	return l
}

type canonMapValue struct {
	keys []string
	vals map[string]canonValue
}

func canonMapping() *canonMapValue {
	return &canonMapValue{vals: make(map[string]canonValue)}
}

func (m *canonMapValue) set(key string, v canonValue) {
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m *canonMapValue) write(sb *strings.Builder) {
	keys := append([]string{}, m.keys...)
	sort.Strings(keys)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		canonString(k).write(sb)
		sb.WriteByte(':')
		m.vals[k].write(sb)
	}
	sb.WriteByte('}')
}

// canonNode converts a document.Node tree into the canonical value tree.
func canonNode(n *document.Node) canonValue {
	if n == nil {
		return canonNull{}
	}
	switch n.Kind {
	case document.KindScalar:
		if n.IsNull() {
			return canonNull{}
		}
		return canonString(n.ScalarString())
	case document.KindSequence:
		l := canonList()
		for _, it := range n.Items() {
			l.items = append(l.items, canonNode(it))
		}
		return l
	case document.KindMapping:
		m := canonMapping()
		n.Iterate(func(key string, value *document.Node) {
			m.set(key, canonNode(value))
		})
		return m
	default:
		panic(fmt.Sprintf("cachekey: unknown node kind %v", n.Kind))
	}
}
