package document

import "testing"

func TestParseStreamScalarMappingSequence(t *testing.T) {
	data := []byte("name: libfoo\nbuild-depends:\n  - a\n  - b\ncount: 3\n")
	root, err := ParseStream(0, data)
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if root.Kind != KindMapping {
		t.Fatalf("expected mapping root, got %s", root.Kind)
	}
	name, ok := root.Get("name")
	if !ok || name.ScalarString() != "libfoo" {
		t.Fatalf("expected name=libfoo, got %+v", name)
	}
	deps, ok := root.Get("build-depends")
	if !ok || deps.Kind != KindSequence || deps.Len() != 2 {
		t.Fatalf("expected 2-item sequence, got %+v", deps)
	}
	if deps.Items()[0].ScalarString() != "a" {
		t.Fatalf("expected first dep 'a', got %s", deps.Items()[0].ScalarString())
	}
}

func TestParseStreamRecordsLineAndColumn(t *testing.T) {
	data := []byte("top:\n  nested: value\n")
	root, err := ParseStream(7, data)
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	top, _ := root.Get("top")
	nested, _ := top.Get("nested")
	if nested.Prov.FileIndex != 7 {
		t.Fatalf("expected file index 7, got %d", nested.Prov.FileIndex)
	}
	if nested.Prov.Line != 2 {
		t.Fatalf("expected line 2, got %d", nested.Prov.Line)
	}
}

func TestParseStreamEmptyDocumentIsNull(t *testing.T) {
	root, err := ParseStream(0, []byte(""))
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if !root.IsNull() {
		t.Fatalf("expected null root for empty document, got %+v", root)
	}
}

func TestParseStreamNullScalar(t *testing.T) {
	data := []byte("value: ~\n")
	root, err := ParseStream(0, data)
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	v, ok := root.Get("value")
	if !ok || !v.IsNull() {
		t.Fatalf("expected null value, got %+v", v)
	}
}

func TestParseStreamRejectsNonScalarKey(t *testing.T) {
	data := []byte("? [a, b]\n: value\n")
	if _, err := ParseStream(0, data); err == nil {
		t.Fatal("expected error for non-scalar mapping key")
	}
}

func TestParseFileInternsPath(t *testing.T) {
	reg := NewRegistry()
	node, err := ParseFile(reg, "project.yaml", []byte("a: 1\n"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if node.Kind != KindMapping {
		t.Fatalf("expected mapping, got %s", node.Kind)
	}
	name, ok := reg.Name(0)
	if !ok || name != "project.yaml" {
		t.Fatalf("expected registered path, got %s", name)
	}
}
