package document

import (
	"testing"

	"forge/internal/errs"
)

func scalarSeq(values ...string) *Node {
	items := make([]*Node, len(values))
	for i, v := range values {
		items[i] = NewScalar(prov(), v)
	}
	return NewSequence(prov(), items)
}

func seqStrings(t *testing.T, n *Node) []string {
	t.Helper()
	out := make([]string, n.Len())
	for i, it := range n.Items() {
		out[i] = it.ScalarString()
	}
	return out
}

func TestCompositePlainSequenceClobbers(t *testing.T) {
	target := NewMapping(prov())
	target.Set("libs", scalarSeq("a", "b"))

	source := NewMapping(prov())
	source.Set("libs", scalarSeq("z"))

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}
	libs, _ := target.Get("libs")
	got := seqStrings(t, libs)
	if len(got) != 1 || got[0] != "z" {
		t.Fatalf("expected clobbered list [z], got %v", got)
	}
}

func TestCompositeListDirectivePrependAppend(t *testing.T) {
	target := NewMapping(prov())
	target.Set("libs", scalarSeq("a", "b"))

	directive := NewMapping(prov())
	directive.Set(directivePrepend, scalarSeq("x"))
	directive.Set(directiveAppend, scalarSeq("y"))
	source := NewMapping(prov())
	source.Set("libs", directive)

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}
	libs, _ := target.Get("libs")
	got := seqStrings(t, libs)
	want := []string{"x", "a", "b", "y"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCompositeListDirectiveReplace(t *testing.T) {
	target := NewMapping(prov())
	target.Set("libs", scalarSeq("a", "b"))

	directive := NewMapping(prov())
	directive.Set(directiveReplace, scalarSeq("z"))
	source := NewMapping(prov())
	source.Set("libs", directive)

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}
	libs, _ := target.Get("libs")
	got := seqStrings(t, libs)
	if len(got) != 1 || got[0] != "z" {
		t.Fatalf("expected [z], got %v", got)
	}
}

func TestCompositeDirectiveOntoMissingKeyPreservedVerbatim(t *testing.T) {
	target := NewMapping(prov())

	directive := NewMapping(prov())
	directive.Set(directiveAppend, scalarSeq("y"))
	source := NewMapping(prov())
	source.Set("libs", directive)

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}

	libs, ok := target.Get("libs")
	if !ok {
		t.Fatal("expected libs key to be preserved")
	}
	if !isDirectiveMapping(libs) {
		t.Fatal("expected preserved directive mapping")
	}
}

func TestCompositeTrailingDirectiveErrors(t *testing.T) {
	target := NewMapping(prov())

	directive := NewMapping(prov())
	directive.Set(directiveAppend, scalarSeq("y"))
	source := NewMapping(prov())
	source.Set("libs", directive)

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}

	err := AssertNoResidualDirectives(target)
	if err == nil {
		t.Fatal("expected TrailingListDirective error")
	}
	le, ok := err.(*errs.LoadError)
	if !ok || le.Reason != errs.TrailingListDirective {
		t.Fatalf("expected TrailingListDirective LoadError, got %v", err)
	}
}

func TestCompositeDirectiveOntoScalarErrors(t *testing.T) {
	target := NewMapping(prov())
	target.Set("libs", NewScalar(prov(), "notalist"))

	directive := NewMapping(prov())
	directive.Set(directiveAppend, scalarSeq("y"))
	source := NewMapping(prov())
	source.Set("libs", directive)

	if err := Composite(source, target); err == nil {
		t.Fatal("expected IllegalComposite error")
	}
}

func TestCompositeScalarOntoMappingErrors(t *testing.T) {
	target := NewMapping(prov())
	sub := NewMapping(prov())
	sub.Set("x", NewScalar(prov(), "1"))
	target.Set("config", sub)

	source := NewMapping(prov())
	source.Set("config", NewScalar(prov(), "flat"))

	if err := Composite(source, target); err == nil {
		t.Fatal("expected IllegalComposite error composing scalar onto mapping")
	}
}

func TestCompositeNestedMappingRecurses(t *testing.T) {
	target := NewMapping(prov())
	sub := NewMapping(prov())
	sub.Set("x", NewScalar(prov(), "1"))
	sub.Set("y", NewScalar(prov(), "2"))
	target.Set("config", sub)

	source := NewMapping(prov())
	srcSub := NewMapping(prov())
	srcSub.Set("y", NewScalar(prov(), "override"))
	source.Set("config", srcSub)

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}

	cfg, _ := target.Get("config")
	x, _ := cfg.Get("x")
	y, _ := cfg.Get("y")
	if x.ScalarString() != "1" {
		t.Fatalf("expected untouched key x=1, got %q", x.ScalarString())
	}
	if y.ScalarString() != "override" {
		t.Fatalf("expected overridden key y=override, got %q", y.ScalarString())
	}
}

func TestCompositeTwoUnresolvedDirectivesMerge(t *testing.T) {
	target := NewMapping(prov())
	older := NewMapping(prov())
	older.Set(directiveAppend, scalarSeq("base-append"))
	target.Set("libs", older)

	newer := NewMapping(prov())
	newer.Set(directivePrepend, scalarSeq("newer-prepend"))
	source := NewMapping(prov())
	source.Set("libs", newer)

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}

	libs, _ := target.Get("libs")
	if !isDirectiveMapping(libs) {
		t.Fatal("expected merged result to remain an unresolved directive")
	}
	prepend, ok := libs.Get(directivePrepend)
	if !ok {
		t.Fatal("expected merged prepend directive to survive")
	}
	got := seqStrings(t, prepend)
	if len(got) != 1 || got[0] != "newer-prepend" {
		t.Fatalf("unexpected prepend contents: %v", got)
	}
	appendNode, ok := libs.Get(directiveAppend)
	if !ok {
		t.Fatal("expected merged append directive to survive")
	}
	got = seqStrings(t, appendNode)
	if len(got) != 1 || got[0] != "base-append" {
		t.Fatalf("unexpected append contents: %v", got)
	}
}

func TestCompositeUnderIsInverse(t *testing.T) {
	a := NewMapping(prov())
	a.Set("libs", scalarSeq("a"))
	b := NewMapping(prov())
	b.Set("libs", scalarSeq("b"))

	if err := CompositeUnder(a, b); err != nil {
		t.Fatalf("CompositeUnder: %v", err)
	}
	libs, _ := a.Get("libs")
	got := seqStrings(t, libs)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected CompositeUnder(a, b) to apply b onto a, got %v", got)
	}
}

func TestCompositeProvenanceTracksOverride(t *testing.T) {
	target := NewMapping(Provenance{FileIndex: 0, Line: 1, Column: 1})
	sub := NewMapping(Provenance{FileIndex: 0, Line: 2, Column: 1})
	sub.Set("x", NewScalar(prov(), "1"))
	target.Set("config", sub)

	overrideProv := Provenance{FileIndex: 1, Line: 9, Column: 1}
	source := NewMapping(overrideProv)
	srcSub := NewMapping(overrideProv)
	srcSub.Set("x", NewScalar(prov(), "2"))
	source.Set("config", srcSub)

	if err := Composite(source, target); err != nil {
		t.Fatalf("Composite: %v", err)
	}
	cfg, _ := target.Get("config")
	if cfg.Prov != overrideProv {
		t.Fatalf("expected merged mapping provenance to be the override's, got %v", cfg.Prov)
	}
}
