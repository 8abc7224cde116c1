package variable

import (
	"testing"

	"forge/internal/document"
	"forge/internal/errs"
)

func zp() document.Provenance {
	return document.Provenance{FileIndex: document.SyntheticFileIndex, Line: 1, Column: 1}
}

func TestParseValueClassLiteralAndReference(t *testing.T) {
	vc := parseValueClass("prefix-%{name}-suffix")
	if len(vc.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(vc.Parts), vc.Parts)
	}
	if vc.Parts[0].Kind != PartLiteral || vc.Parts[0].Text != "prefix-" {
		t.Fatalf("unexpected first part: %+v", vc.Parts[0])
	}
	if vc.Parts[1].Kind != PartReference || vc.Parts[1].Text != "name" {
		t.Fatalf("unexpected second part: %+v", vc.Parts[1])
	}
	if vc.Parts[2].Kind != PartLiteral || vc.Parts[2].Text != "-suffix" {
		t.Fatalf("unexpected third part: %+v", vc.Parts[2])
	}
}

func TestParseValueClassUnmatchedIsLiteral(t *testing.T) {
	vc := parseValueClass("cost: 100%{ not a ref")
	for _, p := range vc.Parts {
		if p.Kind == PartReference {
			t.Fatalf("expected no references parsed, got %+v", vc.Parts)
		}
	}
}

func TestResolveSimpleChain(t *testing.T) {
	env := New()
	env.Define("a", "%{b}-tail", zp())
	env.Define("b", "%{c}", zp())
	env.Define("c", "root", zp())

	got, err := env.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "root-tail" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveUndefinedVariable(t *testing.T) {
	env := New()
	env.Define("a", "%{missing}", zp())
	if _, err := env.Get("a"); err == nil {
		t.Fatal("expected undefined-variable error")
	} else if le, ok := err.(*errs.LoadError); !ok || le.Reason != errs.UnresolvedVariable {
		t.Fatalf("expected UnresolvedVariable, got %v", err)
	}
}

func TestResolveCircularReference(t *testing.T) {
	env := New()
	env.Define("a", "%{b}", zp())
	env.Define("b", "%{a}", zp())
	if _, err := env.Get("a"); err == nil {
		t.Fatal("expected circular-reference error")
	} else if le, ok := err.(*errs.LoadError); !ok || le.Reason != errs.CircularReferenceVariable {
		t.Fatalf("expected CircularReferenceVariable, got %v", err)
	}
}

func TestResolveSelfReference(t *testing.T) {
	env := New()
	env.Define("a", "%{a}", zp())
	if _, err := env.Get("a"); err == nil {
		t.Fatal("expected circular-reference error for self reference")
	}
}

func TestEarlyReturnOnAlreadyResolved(t *testing.T) {
	env := New()
	env.Define("a", "plain", zp())
	if _, err := env.Get("a"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Second call must hit the already-resolved fast path.
	got, err := env.Get("a")
	if err != nil || got != "plain" {
		t.Fatalf("Get (cached) = %q, %v", got, err)
	}
}

func TestSubstIndependentOfNamedVariables(t *testing.T) {
	env := New()
	env.Define("name", "widget", zp())
	got, err := env.Subst("built-%{name}", zp())
	if err != nil {
		t.Fatalf("Subst: %v", err)
	}
	if got != "built-widget" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandRewritesTree(t *testing.T) {
	env := New()
	env.Define("name", "widget", zp())

	m := document.NewMapping(zp())
	m.Set("label", document.NewScalar(zp(), "%{name}-v1"))
	seq := document.NewSequence(zp(), []*document.Node{document.NewScalar(zp(), "%{name}")})
	m.Set("tags", seq)

	out, err := env.Expand(m)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	label, _ := out.Get("label")
	if label.ScalarString() != "widget-v1" {
		t.Fatalf("got %q", label.ScalarString())
	}
	tags, _ := out.Get("tags")
	if tags.Items()[0].ScalarString() != "widget" {
		t.Fatalf("got %q", tags.Items()[0].ScalarString())
	}
}

func TestCheckSurfacesFirstError(t *testing.T) {
	env := New()
	env.Define("a", "ok", zp())
	env.Define("b", "%{missing}", zp())
	if err := env.Check(); err == nil {
		t.Fatal("expected Check to surface the undefined-variable error")
	}
}

func TestDefineIgnoredForLockedBuiltin(t *testing.T) {
	env := New()
	env.setBuiltin("element-name", "real-name", zp())
	env.Define("element-name", "user-override", zp())
	got, err := env.Get("element-name")
	if err != nil || got != "real-name" {
		t.Fatalf("expected locked built-in to resist override, got %q, %v", got, err)
	}
}
