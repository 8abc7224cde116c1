package queue

import (
	"context"
	"io"
	"time"

	"forge/internal/broker"
	"forge/internal/cache"
	"forge/internal/cachekey"
	"forge/internal/element"
	"forge/internal/job"
	"forge/internal/logging"
)

// SourceStatus is what a source plugin reports about one element's
// sources: whether every source is already pinned to a concrete ref, and
// whether its content is already present locally (so Fetch can skip).
type SourceStatus struct {
	AllPinned  bool
	AllPresent bool
}

// KeyLookup resolves an element's current weak/strong keys, computed as
// far as the graph allows at this point in the session.
type KeyLookup interface {
	WeakKey(elementID string) (cachekey.Key, bool)
	StrongKey(elementID string, strict bool) (cachekey.Key, bool)
}

// Deps bundles everything a stage constructor needs from the rest of the
// core: the element graph, the local CAS, the remote client (nil if
// none configured), the resource broker, and key lookup.
type Deps struct {
	Graph    *element.Graph
	Local    cache.LocalCAS
	Remote   cache.RemoteClient
	Index    *cache.Index // optional; records build metadata when set
	Keys     KeyLookup
	Strict   bool
	KeepGoing bool
}

func (d Deps) element(id string) (*element.Element, bool) { return d.Graph.Get(id) }

// effectiveKey resolves the key used for cache-hit probing. It always
// goes through StrongKey with the session's actual strictness, rather
// than short-circuiting to the weak key in non-strict mode: StrongKey
// itself recovers the previously embedded strong key from a weak-key
// match under a non-strict plan (see cache.ResolveEffectiveStrongKey),
// so this is the one key that is correct to probe Contains against in
// both modes.
func (d Deps) effectiveKey(id string) (cachekey.Key, bool) {
	return d.Keys.StrongKey(id, d.Strict)
}

// NewTrackQueue builds the Track stage: resolves a ref for each unpinned
// source. SKIP if every source is already pinned.
func NewTrackQueue(d Deps, sourceStatus func(elementID string) (SourceStatus, error), track func(ctx context.Context, elementID string) error) *Queue {
	probe := func(id string) (ProbeStatus, error) {
		st, err := sourceStatus(id)
		if err != nil {
			return ProbePending, err
		}
		if st.AllPinned {
			return ProbeSkip, nil
		}
		return ProbeReady, nil
	}
	process := func(ctx context.Context, id string) (*job.Job, error) {
		return &job.Job{
			ID: "track:" + id, ElementID: id, Kind: job.KindTrack,
			Resources: []broker.Request{{Pool: "network", Kind: broker.Shared}},
			Run: func(ctx context.Context, report func(string)) (job.Result, error) {
				if err := track(ctx, id); err != nil {
					return job.Result{Success: false, Err: err, Retriable: true}, nil
				}
				return job.Result{Success: true}, nil
			},
		}, nil
	}
	done := func(id string, res job.Result) (Status, any, error) {
		if !res.Success {
			return StatusFailed, nil, nil
		}
		return StatusDone, nil, nil
	}
	return New("track", probe, process, done)
}

// NewPullQueue builds the Pull stage: attempts to fetch the artifact
// from any configured remote. SKIP if the effective key is already
// cached locally; a remote miss still reports DONE so the next queue
// proceeds against the same element.
func NewPullQueue(d Deps) *Queue {
	probe := func(id string) (ProbeStatus, error) {
		key, ok := d.effectiveKey(id)
		if !ok {
			return ProbePending, nil
		}
		if d.Local.Contains(key) {
			return ProbeSkip, nil
		}
		if d.Remote == nil {
			return ProbeSkip, nil
		}
		return ProbeReady, nil
	}
	process := func(ctx context.Context, id string) (*job.Job, error) {
		return &job.Job{
			ID: "pull:" + id, ElementID: id, Kind: job.KindPull,
			Resources: []broker.Request{{Pool: "network", Kind: broker.Shared}, {Pool: "cache", Kind: broker.Shared}},
			Run: func(ctx context.Context, report func(string)) (job.Result, error) {
				key, ok := d.effectiveKey(id)
				if !ok {
					return job.Result{Success: true, Payload: "no-key-yet"}, nil
				}
				handle, err := d.Remote.Pull(ctx, key)
				if err != nil {
					return job.Result{Success: false, Err: err, Retriable: true}, nil
				}
				if handle == nil {
					return job.Result{Success: true, Payload: "miss"}, nil
				}
				defer handle.Close()
				if err := d.Local.Put(key, handle); err != nil {
					return job.Result{Success: false, Err: err, Retriable: true}, nil
				}
				return job.Result{Success: true, Payload: "pulled"}, nil
			},
		}, nil
	}
	done := func(id string, res job.Result) (Status, any, error) {
		if !res.Success {
			logging.Get(logging.CategoryQueue).Warn("pull failed for %s: %v", id, res.Err)
		}
		return StatusDone, res.Payload, nil
	}
	return New("pull", probe, process, done)
}

// NewFetchQueue builds the Fetch stage: downloads source content. SKIP
// if the artifact is already cached or every source already reports its
// content present.
func NewFetchQueue(d Deps, sourceStatus func(elementID string) (SourceStatus, error), fetch func(ctx context.Context, elementID string) error) *Queue {
	probe := func(id string) (ProbeStatus, error) {
		if key, ok := d.effectiveKey(id); ok && d.Local.Contains(key) {
			return ProbeSkip, nil
		}
		st, err := sourceStatus(id)
		if err != nil {
			return ProbePending, err
		}
		if st.AllPresent {
			return ProbeSkip, nil
		}
		return ProbeReady, nil
	}
	process := func(ctx context.Context, id string) (*job.Job, error) {
		return &job.Job{
			ID: "fetch:" + id, ElementID: id, Kind: job.KindFetch,
			Resources: []broker.Request{{Pool: "network", Kind: broker.Shared}},
			Run: func(ctx context.Context, report func(string)) (job.Result, error) {
				if err := fetch(ctx, id); err != nil {
					return job.Result{Success: false, Err: err, Retriable: true}, nil
				}
				return job.Result{Success: true}, nil
			},
		}, nil
	}
	done := func(id string, res job.Result) (Status, any, error) {
		if !res.Success {
			return StatusFailed, nil, nil
		}
		return StatusDone, nil, nil
	}
	return New("fetch", probe, process, done)
}

// NewBuildQueue builds the Build stage: runs the element in a sandbox.
// SKIP if the artifact is already cached.
func NewBuildQueue(d Deps, build func(ctx context.Context, elementID string, report func(string)) (io.Reader, error)) *Queue {
	probe := func(id string) (ProbeStatus, error) {
		if key, ok := d.effectiveKey(id); ok && d.Local.Contains(key) {
			return ProbeSkip, nil
		}
		if _, ok := d.effectiveKey(id); !ok {
			return ProbePending, nil
		}
		return ProbeReady, nil
	}
	process := func(ctx context.Context, id string) (*job.Job, error) {
		return &job.Job{
			ID: "build:" + id, ElementID: id, Kind: job.KindBuild,
			Resources: []broker.Request{{Pool: "process", Kind: broker.Shared}, {Pool: "cache", Kind: broker.Shared}},
			Run: func(ctx context.Context, report func(string)) (job.Result, error) {
				blob, err := build(ctx, id, report)
				if err != nil {
					return job.Result{Success: false, Err: err, Retriable: false}, nil
				}
				weak, weakOK := d.Keys.WeakKey(id)
				strong, strongOK := d.Keys.StrongKey(id, d.Strict)
				if !weakOK || !strongOK {
					return job.Result{Success: false, Err: errNoKeyAtBuild(id)}, nil
				}
				// Every successful build is stored under both the strong
				// and weak key, so a non-strict session's weak-key match
				// always finds an artifact and recovers the right
				// embedded strong key from it next time.
				if err := d.Local.Put(strong, blob); err != nil {
					return job.Result{Success: false, Err: err, Retriable: true}, nil
				}
				if weak != strong {
					h, err := d.Local.Open(strong)
					if err != nil {
						return job.Result{Success: false, Err: err, Retriable: true}, nil
					}
					putErr := d.Local.Put(weak, h)
					h.Close()
					if putErr != nil {
						return job.Result{Success: false, Err: putErr, Retriable: true}, nil
					}
				}
				if d.Index != nil {
					meta := cache.Metadata{
						ElementName:       id,
						WeakKey:           weak,
						StrongKey:         strong,
						EmbeddedStrongKey: strong,
						StoredAt:          time.Now(),
					}
					if err := d.Index.Record(meta); err != nil {
						logging.Get(logging.CategoryQueue).Warn("record metadata for %s: %v", id, err)
					}
				}
				return job.Result{Success: true, Payload: "built"}, nil
			},
		}, nil
	}
	done := func(id string, res job.Result) (Status, any, error) {
		if !res.Success {
			return StatusFailed, nil, nil
		}
		return StatusDone, res.Payload, nil
	}
	return New("build", probe, process, done)
}

// NewPushQueue builds the Push stage: SKIP if no push remote is
// configured, or if the artifact was pulled rather than built this
// session.
func NewPushQueue(d Deps, wasBuiltThisSession func(elementID string) bool) *Queue {
	probe := func(id string) (ProbeStatus, error) {
		if d.Remote == nil {
			return ProbeSkip, nil
		}
		if !wasBuiltThisSession(id) {
			return ProbeSkip, nil
		}
		return ProbeReady, nil
	}
	process := func(ctx context.Context, id string) (*job.Job, error) {
		return &job.Job{
			ID: "push:" + id, ElementID: id, Kind: job.KindPush,
			Resources: []broker.Request{{Pool: "network", Kind: broker.Shared}},
			Run: func(ctx context.Context, report func(string)) (job.Result, error) {
				key, ok := d.effectiveKey(id)
				if !ok {
					return job.Result{Success: true}, nil
				}
				handle, err := d.Local.Open(key)
				if err != nil {
					return job.Result{Success: false, Err: err}, nil
				}
				defer handle.Close()
				// A push failure is logged but never fails the build.
				if err := d.Remote.Push(ctx, key, handle); err != nil {
					logging.Get(logging.CategoryQueue).Warn("push failed for %s: %v", id, err)
				}
				return job.Result{Success: true}, nil
			},
		}, nil
	}
	done := func(id string, res job.Result) (Status, any, error) {
		return StatusDone, nil, nil
	}
	return New("push", probe, process, done)
}

func errNoKeyAtBuild(id string) error {
	return &noKeyError{id: id}
}

type noKeyError struct{ id string }

func (e *noKeyError) Error() string {
	return "queue: no cache key available for element " + e.id + " at build completion"
}
