// Package variable implements the element variable engine: template
// parsing, interning, and an iterative, explicit-stack resolver that
// expands %{name} references without recursing into user input.
package variable

import (
	"regexp"
	"sync"
)

var refPattern = regexp.MustCompile(`%\{([A-Za-z][A-Za-z0-9_-]*)\}`)

// PartKind discriminates a literal text fragment from a variable
// reference within a parsed template.
type PartKind int

const (
	PartLiteral PartKind = iota
	PartReference
)

// Part is one fragment of a parsed template.
type Part struct {
	Kind PartKind
	Text string // literal text, or the referenced variable name
}

// ValueClass is a template parsed into an ordered list of parts.
// ValueClasses are interned by source string within one Environment, so
// identical templates in that environment share the same parse.
type ValueClass struct {
	Source string
	Parts  []Part
}

// Refs returns the distinct variable names this template depends on.
func (vc *ValueClass) Refs() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range vc.Parts {
		if p.Kind == PartReference && !seen[p.Text] {
			seen[p.Text] = true
			out = append(out, p.Text)
		}
	}
	return out
}

// classInterner caches ValueClass parses by source string.
type classInterner struct {
	mu      sync.Mutex
	classes map[string]*ValueClass
}

func newClassInterner() *classInterner {
	return &classInterner{classes: make(map[string]*ValueClass)}
}

func (ci *classInterner) intern(source string) *ValueClass {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if vc, ok := ci.classes[source]; ok {
		return vc
	}
	vc := parseValueClass(source)
	ci.classes[source] = vc
	return vc
}

// parseValueClass splits source into literal and reference parts.
// Unmatched "%{...}" syntax (e.g. malformed names) is left as literal
// text — the pattern simply does not match it.
func parseValueClass(source string) *ValueClass {
	vc := &ValueClass{Source: source}
	matches := refPattern.FindAllStringSubmatchIndex(source, -1)
	pos := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		nameStart, nameEnd := m[2], m[3]
		if start > pos {
			vc.Parts = append(vc.Parts, Part{Kind: PartLiteral, Text: source[pos:start]})
		}
		vc.Parts = append(vc.Parts, Part{Kind: PartReference, Text: source[nameStart:nameEnd]})
		pos = end
	}
	if pos < len(source) {
		vc.Parts = append(vc.Parts, Part{Kind: PartLiteral, Text: source[pos:]})
	}
	return vc
}
