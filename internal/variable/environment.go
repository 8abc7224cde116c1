package variable

import (
	"strings"

	"forge/internal/document"
	"forge/internal/errs"
)

// Environment holds every variable Value known for one element and
// resolves references between them on demand.
type Environment struct {
	interner *classInterner
	values   map[string]*Value
	order    []string
	locked   map[string]bool
}

// New creates an empty environment.
func New() *Environment {
	return &Environment{
		interner: newClassInterner(),
		values:   make(map[string]*Value),
		locked:   make(map[string]bool),
	}
}

// Define registers name with the given raw template. A locked (built-in)
// name is left untouched; its value has no effect on semantics.
func (e *Environment) Define(name, template string, prov document.Provenance) {
	if e.locked[name] {
		return
	}
	e.define(name, template, prov)
}

// setBuiltin registers name, locking it against further overrides. Used
// both for initial built-in injection and for the notparallel ->
// max-jobs="1" engine rule, which re-invokes it to overwrite its own
// earlier value.
func (e *Environment) setBuiltin(name, template string, prov document.Provenance) {
	e.define(name, template, prov)
	e.locked[name] = true
}

func (e *Environment) define(name, template string, prov document.Provenance) {
	if _, exists := e.values[name]; !exists {
		e.order = append(e.order, name)
	}
	class := e.interner.intern(template)
	e.values[name] = newValue(name, prov, class)
}

// Has reports whether name is defined in this environment.
func (e *Environment) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Get resolves and returns the final string value of name.
func (e *Environment) Get(name string) (string, error) {
	v, err := e.resolve(name, document.Provenance{})
	if err != nil {
		return "", err
	}
	return v.Resolved(), nil
}

// Names returns every defined variable name in definition order.
func (e *Environment) Names() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Iterate resolves and visits every (name, resolved value) pair in
// definition order, stopping at the first resolution error.
func (e *Environment) Iterate(fn func(name, resolved string)) error {
	for _, name := range e.order {
		v, err := e.resolve(name, document.Provenance{})
		if err != nil {
			return err
		}
		fn(name, v.Resolved())
	}
	return nil
}

// Check force-resolves every variable in the environment, surfacing the
// first error encountered.
func (e *Environment) Check() error {
	return e.Iterate(func(string, string) {})
}

// Subst resolves a scalar template string against this environment
// without adding it as a named variable.
func (e *Environment) Subst(template string, prov document.Provenance) (string, error) {
	class := e.interner.intern(template)
	tmp := newValue("", prov, class)
	for _, ref := range class.Refs() {
		if _, err := e.resolve(ref, prov); err != nil {
			return "", err
		}
	}
	if err := e.finalize(tmp, prov); err != nil {
		return "", err
	}
	return tmp.Resolved(), nil
}

// Expand recursively rewrites every scalar in node's tree through Subst,
// returning a new tree (node is not mutated).
func (e *Environment) Expand(node *document.Node) (*document.Node, error) {
	switch node.Kind {
	case document.KindScalar:
		if node.IsNull() {
			return node.Clone(), nil
		}
		s, err := e.Subst(node.ScalarString(), node.Prov)
		if err != nil {
			return nil, err
		}
		return document.NewScalar(node.Prov, s), nil
	case document.KindSequence:
		items := make([]*document.Node, 0, node.Len())
		for _, it := range node.Items() {
			expanded, err := e.Expand(it)
			if err != nil {
				return nil, err
			}
			items = append(items, expanded)
		}
		return document.NewSequence(node.Prov, items), nil
	case document.KindMapping:
		out := document.NewMapping(node.Prov)
		var outerErr error
		node.Iterate(func(key string, value *document.Node) {
			if outerErr != nil {
				return
			}
			expanded, err := e.Expand(value)
			if err != nil {
				outerErr = err
				return
			}
			out.Set(key, expanded)
		})
		if outerErr != nil {
			return nil, outerErr
		}
		return out, nil
	default:
		return node.Clone(), nil
	}
}

// resolve runs the iterative, explicit-stack resolution algorithm for
// name, finalizing every transitive dependency it needs along the way.
func (e *Environment) resolve(name string, referenceProv document.Provenance) (*Value, error) {
	root, ok := e.values[name]
	if !ok {
		return nil, errs.NewLoad(errs.UnresolvedVariable, referenceProv.String(nil), "undefined variable %q", name)
	}
	if root.IsResolved() {
		return root, nil
	}

	type frame struct {
		name  string
		chain []string
	}
	stack := []frame{{name: name, chain: []string{name}}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		v, ok := e.values[top.name]
		if !ok {
			return nil, errs.NewLoad(errs.UnresolvedVariable, referenceProv.String(nil), "undefined variable %q", top.name)
		}
		if v.IsResolved() {
			stack = stack[:len(stack)-1]
			continue
		}

		var pending []frame
		for _, ref := range v.Class.Refs() {
			if containsStr(top.chain, ref) {
				return nil, errs.NewLoad(errs.CircularReferenceVariable, v.Prov.String(nil),
					"circular variable reference: %s", strings.Join(append(append([]string{}, top.chain...), ref), " -> "))
			}
			dep, ok := e.values[ref]
			if !ok {
				return nil, errs.NewLoad(errs.UnresolvedVariable, v.Prov.String(nil), "undefined variable %q referenced from %q", ref, top.name)
			}
			if !dep.IsResolved() {
				newChain := append(append([]string{}, top.chain...), ref)
				pending = append(pending, frame{name: ref, chain: newChain})
			}
		}

		if len(pending) == 0 {
			if err := e.finalize(v, v.Prov); err != nil {
				return nil, err
			}
			stack = stack[:len(stack)-1]
			continue
		}

		for i := len(pending) - 1; i >= 0; i-- {
			stack = append(stack, pending[i])
		}
	}

	return root, nil
}

// finalize concatenates an already-dependency-resolved Value's parts.
func (e *Environment) finalize(v *Value, prov document.Provenance) error {
	var sb strings.Builder
	for _, p := range v.Class.Parts {
		switch p.Kind {
		case PartLiteral:
			sb.WriteString(p.Text)
		case PartReference:
			dep, ok := e.values[p.Text]
			if !ok || !dep.IsResolved() {
				return errs.NewLoad(errs.UnresolvedVariable, prov.String(nil), "undefined variable %q", p.Text)
			}
			sb.WriteString(dep.Resolved())
		}
	}
	v.setResolved(sb.String())
	return nil
}

func containsStr(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
