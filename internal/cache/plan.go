package cache

import "forge/internal/cachekey"

// Plan selects how an element's strong key is determined.
type Plan int

const (
	// PlanStrict computes every strong key up front from pinned
	// dependency keys.
	PlanStrict Plan = iota
	// PlanNonStrict retrieves the strong key an element will use this
	// session from the metadata of the weak-key-matched local artifact,
	// if one exists.
	PlanNonStrict
)

// ResolveEffectiveStrongKey determines the strong key to use this
// session for an element whose weak key is known. Under PlanStrict the
// computed strong key is always authoritative. Under PlanNonStrict, if a
// local artifact already matches the weak key, its embedded strong key
// is reused instead of the freshly computed one; otherwise the computed
// key is used (and will become the embedded key of the artifact this
// session produces).
func ResolveEffectiveStrongKey(plan Plan, idx *Index, weakKey, computedStrongKey cachekey.Key) (cachekey.Key, error) {
	if plan == PlanStrict {
		return computedStrongKey, nil
	}
	embedded, found, err := idx.EmbeddedStrongKey(weakKey)
	if err != nil {
		return "", err
	}
	if found {
		return embedded, nil
	}
	return computedStrongKey, nil
}
