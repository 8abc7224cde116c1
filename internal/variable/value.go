package variable

import "forge/internal/document"

// Value wraps an unresolved scalar template and caches its resolution
// once the environment has expanded it.
type Value struct {
	Name   string
	Class  *ValueClass
	Prov   document.Provenance

	resolved bool
	final    string
}

func newValue(name string, prov document.Provenance, class *ValueClass) *Value {
	return &Value{Name: name, Prov: prov, Class: class}
}

// IsResolved reports whether this Value's final string has been computed.
func (v *Value) IsResolved() bool { return v.resolved }

// Resolved returns the cached final string. Callers must check
// IsResolved first.
func (v *Value) Resolved() string { return v.final }

func (v *Value) setResolved(s string) {
	v.final = s
	v.resolved = true
}
