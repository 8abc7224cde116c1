package cachekey

import (
	"testing"

	"forge/internal/document"
)

func zp() document.Provenance {
	return document.Provenance{FileIndex: document.SyntheticFileIndex, Line: 1, Column: 1}
}

func cfgOf(t *testing.T, v string) *document.Node {
	t.Helper()
	m := document.NewMapping(zp())
	m.Set("value", document.NewScalar(zp(), v))
	return m
}

func TestWeakKeyDeterministic(t *testing.T) {
	in := WeakInputs{Kind: "manual", Config: cfgOf(t, "a"), SourceKeys: []string{"s1"}, BuildDepNames: []string{"b", "a"}}
	k1 := WeakKey(in)
	k2 := WeakKey(in)
	if k1 != k2 {
		t.Fatalf("expected deterministic key, got %q vs %q", k1, k2)
	}
	if len(k1) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(k1))
	}
}

func TestWeakKeyOrderIndependentOfDepNameOrder(t *testing.T) {
	in1 := WeakInputs{Kind: "manual", Config: cfgOf(t, "a"), BuildDepNames: []string{"a", "b"}}
	in2 := WeakInputs{Kind: "manual", Config: cfgOf(t, "a"), BuildDepNames: []string{"b", "a"}}
	if WeakKey(in1) != WeakKey(in2) {
		t.Fatal("expected build dep name order not to affect the key")
	}
}

func TestWeakKeyChangesWithConfig(t *testing.T) {
	in1 := WeakInputs{Kind: "manual", Config: cfgOf(t, "a")}
	in2 := WeakInputs{Kind: "manual", Config: cfgOf(t, "b")}
	if WeakKey(in1) == WeakKey(in2) {
		t.Fatal("expected different config to change the key")
	}
}

func TestStrongKeyChangesWhenDependencyKeyChanges(t *testing.T) {
	base := StrongInputs{Kind: "manual", Config: cfgOf(t, "a"), BuildDeps: []DependencyKey{{Name: "dep", Key: "aaa"}}}
	changed := StrongInputs{Kind: "manual", Config: cfgOf(t, "a"), BuildDeps: []DependencyKey{{Name: "dep", Key: "bbb"}}}
	if StrongKey(base) == StrongKey(changed) {
		t.Fatal("expected strong key to change when a dependency's key changes")
	}
}

func TestStrongAndWeakCoincideWithNoDependencies(t *testing.T) {
	weak := WeakKey(WeakInputs{Kind: "manual", Config: cfgOf(t, "a")})
	strong := StrongKey(StrongInputs{Kind: "manual", Config: cfgOf(t, "a")})
	if weak != strong {
		t.Fatalf("expected coincidence with no dependencies: weak=%q strong=%q", weak, strong)
	}
}

func TestStrongKeyDepOrderIndependent(t *testing.T) {
	in1 := StrongInputs{Kind: "manual", BuildDeps: []DependencyKey{{Name: "a", Key: "1"}, {Name: "b", Key: "2"}}}
	in2 := StrongInputs{Kind: "manual", BuildDeps: []DependencyKey{{Name: "b", Key: "2"}, {Name: "a", Key: "1"}}}
	if StrongKey(in1) != StrongKey(in2) {
		t.Fatal("expected dependency pair order not to affect the key")
	}
}
