package document

import "forge/internal/errs"

// Directive keys recognised on a composite-list mapping.
const (
	directiveReplace = "(=)"
	directivePrepend = "(<)"
	directiveAppend  = "(>)"
)

// isDirectiveMapping reports whether n is a mapping whose keys are a
// non-empty subset of {(=), (<), (>)}. Any mix with other keys is not a
// directive mapping (the caller must treat that as a plain mapping, and
// upstream validation should reject the ambiguous mix as an error before
// composition — see IllegalComposite below for the path that catches it
// if it slips through).
func isDirectiveMapping(n *Node) bool {
	if n.Kind != KindMapping || len(n.mapping.keys) == 0 {
		return false
	}
	hasDirective := false
	hasOther := false
	for _, k := range n.mapping.keys {
		switch k {
		case directiveReplace, directivePrepend, directiveAppend:
			hasDirective = true
		default:
			hasOther = true
		}
	}
	return hasDirective && !hasOther
}

// validateDirectiveMapping rejects a mapping that mixes directive keys
// with ordinary keys.
func validateDirectiveMapping(n *Node) error {
	if n.Kind != KindMapping {
		return nil
	}
	hasDirective := false
	hasOther := false
	for _, k := range n.mapping.keys {
		switch k {
		case directiveReplace, directivePrepend, directiveAppend:
			hasDirective = true
		default:
			hasOther = true
		}
	}
	if hasDirective && hasOther {
		return errs.NewLoad(errs.IllegalComposite, n.Prov.String(nil), "composition directive mapping cannot mix directive keys with ordinary keys")
	}
	return nil
}

// Composite merges source onto target in place, following the per-key
// rules of §4.A. target must be a mapping; source must be a mapping.
func Composite(source, target *Node) error {
	if source.Kind != KindMapping {
		return errs.NewLoad(errs.IllegalComposite, source.Prov.String(nil), "composite source must be a mapping")
	}
	if target.Kind != KindMapping {
		return errs.NewLoad(errs.IllegalComposite, target.Prov.String(nil), "composite target must be a mapping")
	}
	return compositeMapping(source, target)
}

// CompositeUnder is the inverse-merge entry point: composing target under
// source is defined identically to compositing source onto target, so
// that composite(B, A) == composite_under(A, B) holds by construction.
func CompositeUnder(target, source *Node) error {
	return Composite(source, target)
}

func compositeMapping(source, target *Node) error {
	if err := validateDirectiveMapping(source); err != nil {
		return err
	}
	// The merged mapping's effective provenance becomes the source's, so
	// later errors on this node point at the override.
	target.Prov = source.Prov

	for _, k := range source.mapping.keys {
		srcVal, _ := source.mapping.get(k)
		if err := compositeKey(k, srcVal, target); err != nil {
			return err
		}
	}
	return nil
}

func compositeKey(key string, srcVal *Node, target *Node) error {
	tgtVal, exists := target.mapping.get(key)

	switch {
	case srcVal.Kind == KindSequence:
		// A plain sequence always clobbers.
		target.mapping.set(key, srcVal.Clone())
		return nil

	case isDirectiveMapping(srcVal):
		return compositeDirective(key, srcVal, target, tgtVal, exists)

	case srcVal.Kind == KindMapping:
		if err := validateDirectiveMapping(srcVal); err != nil {
			return err
		}
		if !exists {
			newTgt := NewMapping(srcVal.Prov)
			target.mapping.set(key, newTgt)
			return compositeMapping(srcVal, newTgt)
		}
		if tgtVal.Kind != KindMapping {
			return errs.NewLoad(errs.IllegalComposite, srcVal.Prov.String(nil), "cannot compose mapping onto %s at key %q", tgtVal.Kind, key)
		}
		return compositeMapping(srcVal, tgtVal)

	case srcVal.Kind == KindScalar:
		if exists && tgtVal.Kind != KindScalar {
			return errs.NewLoad(errs.IllegalComposite, srcVal.Prov.String(nil), "cannot compose scalar onto %s at key %q", tgtVal.Kind, key)
		}
		target.mapping.set(key, srcVal.Clone())
		return nil

	default:
		return errs.NewLoad(errs.IllegalComposite, srcVal.Prov.String(nil), "unrecognised node kind composing key %q", key)
	}
}

func compositeDirective(key string, srcVal *Node, target *Node, tgtVal *Node, exists bool) error {
	if !exists {
		// Lands on empty space: preserved verbatim for later composition.
		target.mapping.set(key, srcVal.Clone())
		return nil
	}

	switch {
	case tgtVal.Kind == KindScalar:
		return errs.NewLoad(errs.IllegalComposite, srcVal.Prov.String(nil), "cannot compose list directive onto scalar at key %q", key)

	case tgtVal.Kind == KindSequence:
		merged, err := applyDirectiveToList(srcVal, tgtVal)
		if err != nil {
			return err
		}
		target.mapping.set(key, merged)
		return nil

	case isDirectiveMapping(tgtVal):
		merged := mergeDirectives(srcVal, tgtVal)
		target.mapping.set(key, merged)
		return nil

	default:
		return errs.NewLoad(errs.IllegalComposite, srcVal.Prov.String(nil), "cannot compose list directive onto mapping at key %q", key)
	}
}

func directiveSeq(dir *Node, name string) []*Node {
	v, ok := dir.mapping.get(name)
	if !ok {
		return nil
	}
	return v.Items()
}

// applyDirectiveToList resolves a directive mapping against a concrete
// target list, producing a new sequence node.
func applyDirectiveToList(dir *Node, targetList *Node) (*Node, error) {
	if replace, ok := dir.mapping.get(directiveReplace); ok {
		if replace.Kind != KindSequence {
			return nil, errs.NewLoad(errs.IllegalComposite, replace.Prov.String(nil), "(=) directive value must be a sequence")
		}
		return replace.Clone(), nil
	}

	items := make([]*Node, 0, targetList.Len())
	for _, it := range directiveSeq(dir, directivePrepend) {
		items = append(items, it.Clone())
	}
	for _, it := range targetList.Items() {
		items = append(items, it.Clone())
	}
	for _, it := range directiveSeq(dir, directiveAppend) {
		items = append(items, it.Clone())
	}
	return NewSequence(dir.Prov, items), nil
}

// mergeDirectives combines a newer directive (src, applied later/outer)
// with an older, still-unresolved directive (tgt), preserving both so
// that resolving the merged directive later is equivalent to resolving
// tgt first and then src on top of it.
func mergeDirectives(src, tgt *Node) *Node {
	if replace, ok := src.mapping.get(directiveReplace); ok {
		// (=) in the newer layer wholly replaces whatever the older
		// layer had pending.
		m := NewMapping(src.Prov)
		m.Set(directiveReplace, replace.Clone())
		return m
	}

	if replace, ok := tgt.mapping.get(directiveReplace); ok {
		// The older layer already fixed a concrete replacement list;
		// the newer layer's prepend/append apply on top of it.
		resolved, _ := applyDirectiveToList(src, replace)
		m := NewMapping(src.Prov)
		m.Set(directiveReplace, resolved)
		return m
	}

	m := NewMapping(src.Prov)
	// Prepend: src's items go in front of tgt's (src applied last/outer).
	prepend := append(append([]*Node{}, cloneAll(directiveSeq(src, directivePrepend))...), cloneAll(directiveSeq(tgt, directivePrepend))...)
	if len(prepend) > 0 {
		m.Set(directivePrepend, NewSequence(src.Prov, prepend))
	}
	// Append: tgt's items stay ahead of src's (tgt applied first/inner).
	appendList := append(append([]*Node{}, cloneAll(directiveSeq(tgt, directiveAppend))...), cloneAll(directiveSeq(src, directiveAppend))...)
	if len(appendList) > 0 {
		m.Set(directiveAppend, NewSequence(src.Prov, appendList))
	}
	return m
}

func cloneAll(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// AssertNoResidualDirectives walks the tree and returns a
// TrailingListDirective error if any composite-directive mapping remains
// unresolved — meaning the user tried to override a list that never
// existed.
func AssertNoResidualDirectives(n *Node) error {
	switch n.Kind {
	case KindMapping:
		if isDirectiveMapping(n) {
			return errs.NewLoad(errs.TrailingListDirective, n.Prov.String(nil), "composition directive applied to a key that never existed as a list")
		}
		for _, k := range n.mapping.keys {
			v, _ := n.mapping.get(k)
			if err := AssertNoResidualDirectives(v); err != nil {
				return err
			}
		}
	case KindSequence:
		for _, it := range n.seq {
			if err := AssertNoResidualDirectives(it); err != nil {
				return err
			}
		}
	}
	return nil
}
