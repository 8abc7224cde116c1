package document

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"forge/internal/errs"
)

// ParseStream parses a YAML document's bytes into a Node tree, recording
// every node's line/column under fileIndex. A document whose root is
// itself a YAML mapping, sequence, or scalar is accepted; an empty
// document parses to a null scalar.
func ParseStream(fileIndex int, data []byte) (*Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errs.NewLoad(errs.InvalidYAML, "", "parse YAML: %v", err)
	}
	if root.Kind == 0 {
		return NewNull(Provenance{FileIndex: fileIndex}), nil
	}
	// yaml.Unmarshal into *yaml.Node produces a DocumentNode wrapping the
	// actual root; unwrap it.
	target := &root
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return NewNull(Provenance{FileIndex: fileIndex}), nil
		}
		target = root.Content[0]
	}
	return convertNode(fileIndex, target)
}

func convertNode(fileIndex int, n *yaml.Node) (*Node, error) {
	prov := Provenance{FileIndex: fileIndex, Line: n.Line, Column: n.Column}
	switch n.Kind {
	case yaml.ScalarNode:
		return convertScalar(prov, n)
	case yaml.MappingNode:
		return convertMapping(fileIndex, prov, n)
	case yaml.SequenceNode:
		return convertSequence(fileIndex, prov, n)
	case yaml.AliasNode:
		return convertNode(fileIndex, n.Alias)
	default:
		return nil, errs.NewLoad(errs.InvalidYAML, prov.String(nil), "unsupported YAML node kind %d", n.Kind)
	}
}

func convertScalar(prov Provenance, n *yaml.Node) (*Node, error) {
	if n.Tag == "!!null" || (n.Value == "" && n.Tag == "") {
		return NewNull(prov), nil
	}
	return NewScalar(prov, n.Value), nil
}

func convertMapping(fileIndex int, prov Provenance, n *yaml.Node) (*Node, error) {
	m := NewMapping(prov)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode := n.Content[i]
		valNode := n.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			kp := Provenance{FileIndex: fileIndex, Line: keyNode.Line, Column: keyNode.Column}
			return nil, errs.NewLoad(errs.InvalidData, kp.String(nil), "mapping keys must be scalar")
		}
		val, err := convertNode(fileIndex, valNode)
		if err != nil {
			return nil, err
		}
		m.Set(keyNode.Value, val)
	}
	return m, nil
}

func convertSequence(fileIndex int, prov Provenance, n *yaml.Node) (*Node, error) {
	items := make([]*Node, 0, len(n.Content))
	for _, c := range n.Content {
		item, err := convertNode(fileIndex, c)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return NewSequence(prov, items), nil
}

// ParseFile reads path, interns it in reg, and parses its contents into a
// Node tree.
func ParseFile(reg *Registry, path string, data []byte) (*Node, error) {
	idx := reg.Intern(path)
	node, err := ParseStream(idx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return node, nil
}
