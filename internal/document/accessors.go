package document

import "forge/internal/errs"

// ValidateKeys ensures every key in the mapping n is among allowed.
// Returns an InvalidData LoadError naming the first unknown key found.
func (n *Node) ValidateKeys(allowed []string) error {
	n.requireMapping()
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	for _, k := range n.mapping.keys {
		if !set[k] {
			return errs.NewLoad(errs.InvalidData, n.Prov.String(nil), "unexpected key %q", k)
		}
	}
	return nil
}

// GetNode returns the raw child node at key, or an error if required and
// missing.
func (n *Node) GetNode(key string, required bool) (*Node, error) {
	n.requireMapping()
	v, ok := n.mapping.get(key)
	if !ok {
		if required {
			return nil, errs.NewLoad(errs.InvalidData, n.Prov.String(nil), "missing required key %q", key)
		}
		return nil, nil
	}
	return v, nil
}

// GetMapping returns the mapping child at key.
func (n *Node) GetMapping(key string, required bool) (*Node, error) {
	v, err := n.GetNode(key, required)
	if err != nil || v == nil {
		return v, err
	}
	if v.Kind != KindMapping {
		return nil, errs.NewLoad(errs.InvalidData, v.Prov.String(nil), "key %q must be a mapping, got %s", key, v.Kind)
	}
	return v, nil
}

// GetSequence returns the sequence child at key.
func (n *Node) GetSequence(key string, required bool) (*Node, error) {
	v, err := n.GetNode(key, required)
	if err != nil || v == nil {
		return v, err
	}
	if v.Kind != KindSequence {
		return nil, errs.NewLoad(errs.InvalidData, v.Prov.String(nil), "key %q must be a sequence, got %s", key, v.Kind)
	}
	return v, nil
}

// GetScalar returns the raw scalar node at key.
func (n *Node) GetScalar(key string, required bool) (*Node, error) {
	v, err := n.GetNode(key, required)
	if err != nil || v == nil {
		return v, err
	}
	if v.Kind != KindScalar {
		return nil, errs.NewLoad(errs.InvalidData, v.Prov.String(nil), "key %q must be a scalar, got %s", key, v.Kind)
	}
	return v, nil
}

// GetStr returns the string value at key, or def if absent.
func (n *Node) GetStr(key string, def string) (string, error) {
	v, err := n.GetScalar(key, false)
	if err != nil || v == nil {
		return def, err
	}
	return v.ScalarString(), nil
}

// GetBool returns the bool value at key, or def if absent.
func (n *Node) GetBool(key string, def bool) (bool, error) {
	v, err := n.GetScalar(key, false)
	if err != nil || v == nil {
		return def, err
	}
	return v.AsBool()
}

// GetInt returns the int value at key, or def if absent.
func (n *Node) GetInt(key string, def int) (int, error) {
	v, err := n.GetScalar(key, false)
	if err != nil || v == nil {
		return def, err
	}
	return v.AsInt()
}

// GetStrList returns the string values of a sequence at key, or nil if
// absent. Each element must be a scalar.
func (n *Node) GetStrList(key string) ([]string, error) {
	v, err := n.GetSequence(key, false)
	if err != nil || v == nil {
		return nil, err
	}
	out := make([]string, 0, len(v.seq))
	for _, item := range v.seq {
		if item.Kind != KindScalar {
			return nil, errs.NewLoad(errs.InvalidData, item.Prov.String(nil), "list item under %q must be a scalar", key)
		}
		out = append(out, item.ScalarString())
	}
	return out, nil
}

// GetEnum returns the string value at key, validated against allowed, or
// def if absent.
func (n *Node) GetEnum(key string, allowed []string, def string) (string, error) {
	v, err := n.GetStr(key, def)
	if err != nil {
		return def, err
	}
	for _, a := range allowed {
		if a == v {
			return v, nil
		}
	}
	return def, errs.NewLoad(errs.InvalidData, n.Prov.String(nil), "key %q must be one of %v, got %q", key, allowed, v)
}
