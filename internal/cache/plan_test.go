package cache

import (
	"path/filepath"
	"testing"
	"time"

	"forge/internal/cachekey"
)

func TestResolveEffectiveStrongKeyStrictAlwaysUsesComputed(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()

	got, err := ResolveEffectiveStrongKey(PlanStrict, idx, "weak", "computed")
	if err != nil {
		t.Fatalf("ResolveEffectiveStrongKey: %v", err)
	}
	if got != cachekey.Key("computed") {
		t.Fatalf("got %q", got)
	}
}

func TestResolveEffectiveStrongKeyNonStrictPrefersEmbedded(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()

	if err := idx.Record(Metadata{ElementName: "app", WeakKey: "weak", StrongKey: "old-strong", EmbeddedStrongKey: "old-strong", StoredAt: time.Unix(1, 0)}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := ResolveEffectiveStrongKey(PlanNonStrict, idx, "weak", "freshly-computed")
	if err != nil {
		t.Fatalf("ResolveEffectiveStrongKey: %v", err)
	}
	if got != cachekey.Key("old-strong") {
		t.Fatalf("expected embedded key to win, got %q", got)
	}
}

func TestResolveEffectiveStrongKeyNonStrictFallsBackWhenNoLocalArtifact(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()

	got, err := ResolveEffectiveStrongKey(PlanNonStrict, idx, "weak", "freshly-computed")
	if err != nil {
		t.Fatalf("ResolveEffectiveStrongKey: %v", err)
	}
	if got != cachekey.Key("freshly-computed") {
		t.Fatalf("got %q", got)
	}
}
