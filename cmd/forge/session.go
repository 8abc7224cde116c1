package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"forge/internal/broker"
	"forge/internal/cache"
	"forge/internal/cachekey"
	"forge/internal/config"
	"forge/internal/element"
	"forge/internal/job"
	"forge/internal/plugin"
	"forge/internal/queue"
	"forge/internal/scheduler"
)

// Session wires the core components — broker, job runtime, cache, key
// resolver, stage queues, and scheduler — into a runnable pipeline for
// one project graph. It deliberately stops short of project/workspace
// discovery: callers hand it an already-built *element.Graph.
type Session struct {
	cfg    *config.Config
	graph  *element.Graph
	reg    *plugin.Registry
	broker *broker.Broker
	runtime *job.Runtime
	local  cache.LocalCAS
	remote cache.RemoteClient
	index  *cache.Index
	keys   *keyResolver

	builtThisSession map[string]bool
	mu               sync.Mutex
}

// NewSession assembles a session from a loaded configuration, a plugin
// registry (caller-populated — this package registers no concrete source
// or element kinds), and the project's element graph.
func NewSession(cfg *config.Config, reg *plugin.Registry, graph *element.Graph) (*Session, error) {
	if err := graph.CheckCycles(); err != nil {
		return nil, err
	}

	local, err := cache.NewFSCas(cfg.Cache.Directory)
	if err != nil {
		return nil, fmt.Errorf("session: open local cache: %w", err)
	}
	idx, err := cache.OpenIndex(cfg.Cache.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("session: open metadata index: %w", err)
	}

	var remote cache.RemoteClient
	if cfg.Cache.RemoteURL != "" {
		remote = cache.NewHTTPRemote(cfg.Cache.RemoteURL)
	}

	plan := cache.PlanNonStrict
	if cfg.Cache.Strict {
		plan = cache.PlanStrict
	}

	s := &Session{
		cfg:              cfg,
		graph:            graph,
		reg:              reg,
		broker:           broker.New(cfg.Pools.Capacities()),
		local:            local,
		remote:           remote,
		index:            idx,
		builtThisSession: make(map[string]bool),
	}
	s.runtime = job.NewRuntime(s.broker)
	s.keys = newKeyResolver(graph, reg, idx, plan)
	return s, nil
}

// Close releases the session's metadata index handle.
func (s *Session) Close() error {
	return s.index.Close()
}

// Key resolves elementID's effective cache key for direct cache
// operations (the `artifact` subcommands), outside the queue framework.
// In non-strict sessions this still resolves through StrongKey (with
// strict=false) rather than stopping at the weak key, so the
// session's configured plan — including non-strict embedded-key
// recovery — actually runs on this path.
func (s *Session) Key(elementID string) (cachekey.Key, bool) {
	return s.keys.StrongKey(elementID, s.cfg.Cache.Strict)
}

// Local exposes the session's local content-addressed store.
func (s *Session) Local() cache.LocalCAS { return s.local }

// Remote exposes the session's remote cache client, nil if unconfigured.
func (s *Session) Remote() cache.RemoteClient { return s.remote }

// History returns the stored-artifact history the metadata index holds
// for elementID.
func (s *Session) History(elementID string) ([]cache.Metadata, error) {
	return s.index.History(elementID)
}

// lastReportPath is where the previous session's failed-element list is
// persisted, so a later `build --retry-failed` invocation can re-seed
// just those elements instead of the whole target closure.
func (s *Session) lastReportPath() string {
	return filepath.Join(s.cfg.Cache.Directory, "last-report.json")
}

// LastFailed reads the failed-element list from the previous session's
// report. Returns an empty slice if no report was ever persisted.
func (s *Session) LastFailed() ([]string, error) {
	data, err := os.ReadFile(s.lastReportPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read last report: %w", err)
	}
	var failed []string
	if err := json.Unmarshal(data, &failed); err != nil {
		return nil, fmt.Errorf("session: parse last report: %w", err)
	}
	return failed, nil
}

func (s *Session) saveReport(report *scheduler.Report) {
	data, err := json.Marshal(report.Failed)
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(s.lastReportPath()), 0o755)
	_ = os.WriteFile(s.lastReportPath(), data, 0o644)
}

// Build drives targetID and its full dependency closure through the
// track/pull/fetch/build/push pipeline and returns the session report.
// When retryFailed is true, only elements named in the previous
// session's persisted failure list are seeded, rather than the whole
// target closure.
func (s *Session) Build(ctx context.Context, targetID string, keepGoing, retryFailed bool) (*scheduler.Report, error) {
	elements, err := s.graph.Traverse(targetID, element.ScopeAll, true)
	if err != nil {
		return nil, fmt.Errorf("session: resolve build scope for %s: %w", targetID, err)
	}

	if retryFailed {
		failed, err := s.LastFailed()
		if err != nil {
			return nil, err
		}
		failedSet := make(map[string]bool, len(failed))
		for _, id := range failed {
			failedSet[id] = true
		}
		filtered := elements[:0]
		for _, el := range elements {
			if failedSet[el.ID] {
				filtered = append(filtered, el)
			}
		}
		elements = filtered
	}

	deps := queue.Deps{
		Graph:  s.graph,
		Local:  s.local,
		Remote: s.remote,
		Index:  s.index,
		Keys:   s.keys,
		Strict: s.cfg.Cache.Strict,
	}

	queues := []*queue.Queue{
		queue.NewTrackQueue(deps, s.sourceStatus, s.track),
		queue.NewPullQueue(deps),
		queue.NewFetchQueue(deps, s.sourceStatus, s.fetch),
		queue.NewBuildQueue(deps, s.assemble),
		queue.NewPushQueue(deps, s.wasBuiltThisSession),
	}

	policy := scheduler.FailFast
	if keepGoing {
		policy = scheduler.KeepGoing
	}
	sched := scheduler.New(queues, s.runtime, s.reverseDeps, policy)

	for _, el := range elements {
		sched.Seed(el.ID)
	}

	report, err := sched.Run(ctx)
	if report != nil {
		s.saveReport(report)
	}
	return report, err
}

// RunStage drives every id in targetIDs through a single named stage
// (one of "track", "pull", "fetch", "build", "push") in isolation, for
// the CLI's `source track`/`source fetch` subcommands that invoke one
// queue without running the full pipeline.
func (s *Session) RunStage(ctx context.Context, stage string, targetIDs []string) (*scheduler.Report, error) {
	deps := queue.Deps{
		Graph:  s.graph,
		Local:  s.local,
		Remote: s.remote,
		Index:  s.index,
		Keys:   s.keys,
		Strict: s.cfg.Cache.Strict,
	}

	var q *queue.Queue
	switch stage {
	case "track":
		q = queue.NewTrackQueue(deps, s.sourceStatus, s.track)
	case "pull":
		q = queue.NewPullQueue(deps)
	case "fetch":
		q = queue.NewFetchQueue(deps, s.sourceStatus, s.fetch)
	case "build":
		q = queue.NewBuildQueue(deps, s.assemble)
	case "push":
		q = queue.NewPushQueue(deps, s.wasBuiltThisSession)
	default:
		return nil, fmt.Errorf("session: unknown stage %q", stage)
	}

	sched := scheduler.New([]*queue.Queue{q}, s.runtime, s.reverseDeps, scheduler.KeepGoing)
	for _, id := range targetIDs {
		sched.Seed(id)
	}
	return sched.Run(ctx)
}

// Checkout stages elementID's sources directly into dir, bypassing the
// queue framework — used by `shell` and `source checkout` to materialise
// a directory without driving the full build pipeline.
func (s *Session) Checkout(ctx context.Context, elementID, dir string) error {
	el, ok := s.graph.Get(elementID)
	if !ok {
		return fmt.Errorf("session: element %q not found", elementID)
	}
	for _, ref := range el.Sources {
		src, err := s.reg.BuildSource(ref.Kind, ref.Config)
		if err != nil {
			return err
		}
		if err := src.Stage(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// reverseDeps resolves every element depending (build or runtime,
// transitively) on failedID, by scanning the whole graph — the framework
// carries no reverse-edge index since a project's size keeps a linear
// scan cheap relative to the jobs it gates.
func (s *Session) reverseDeps(failedID string) []string {
	var out []string
	seen := make(map[string]bool)
	var dependsOn func(id string) bool
	dependsOn = func(id string) bool {
		el, ok := s.graph.Get(id)
		if !ok {
			return false
		}
		for _, d := range append(append([]element.Dependency{}, el.BuildDeps...), el.RuntimeDeps...) {
			if d.ElementID == failedID || dependsOn(d.ElementID) {
				return true
			}
		}
		return false
	}
	for _, el := range s.graph.Elements() {
		if el.ID == failedID || seen[el.ID] {
			continue
		}
		seen[el.ID] = true
		if dependsOn(el.ID) {
			out = append(out, el.ID)
		}
	}
	return out
}

func (s *Session) sourceStatus(elementID string) (queue.SourceStatus, error) {
	el, ok := s.graph.Get(elementID)
	if !ok {
		return queue.SourceStatus{}, fmt.Errorf("session: element %q not found", elementID)
	}
	status := queue.SourceStatus{AllPinned: true, AllPresent: true}
	for _, ref := range el.Sources {
		src, err := s.reg.BuildSource(ref.Kind, ref.Config)
		if err != nil {
			return queue.SourceStatus{}, err
		}
		if src.RefStatus() != plugin.RefPinned {
			status.AllPinned = false
		}
		if !src.IsCached() {
			status.AllPresent = false
		}
	}
	return status, nil
}

func (s *Session) track(ctx context.Context, elementID string) error {
	el, ok := s.graph.Get(elementID)
	if !ok {
		return fmt.Errorf("session: element %q not found", elementID)
	}
	for _, ref := range el.Sources {
		src, err := s.reg.BuildSource(ref.Kind, ref.Config)
		if err != nil {
			return err
		}
		if src.RefStatus() == plugin.RefPinned {
			continue
		}
		if _, err := src.Track(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) fetch(ctx context.Context, elementID string) error {
	el, ok := s.graph.Get(elementID)
	if !ok {
		return fmt.Errorf("session: element %q not found", elementID)
	}
	fns := make([]func(context.Context) error, 0, len(el.Sources))
	for _, ref := range el.Sources {
		ref := ref
		fns = append(fns, func(ctx context.Context) error {
			src, err := s.reg.BuildSource(ref.Kind, ref.Config)
			if err != nil {
				return err
			}
			if src.IsCached() {
				return nil
			}
			return src.Fetch(ctx)
		})
	}
	return job.WaitGroup(ctx, fns)
}

func (s *Session) assemble(ctx context.Context, elementID string, report func(string)) (io.Reader, error) {
	el, ok := s.graph.Get(elementID)
	if !ok {
		return nil, fmt.Errorf("session: element %q not found", elementID)
	}
	impl, err := s.reg.BuildElement(el.Kind, el.Config)
	if err != nil {
		return nil, err
	}
	if err := impl.Configure(el.Config); err != nil {
		return nil, err
	}
	artifact, err := impl.Assemble(ctx, "", report)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.builtThisSession[elementID] = true
	s.mu.Unlock()
	return artifact.Reader, nil
}

func (s *Session) wasBuiltThisSession(elementID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builtThisSession[elementID]
}

// keyResolver computes and memoizes weak/strong cache keys over the
// graph, implementing queue.KeyLookup.
type keyResolver struct {
	graph *element.Graph
	reg   *plugin.Registry
	idx   *cache.Index
	plan  cache.Plan

	mu     sync.Mutex
	weak   map[string]cachekey.Key
	strong map[string]cachekey.Key
}

func newKeyResolver(graph *element.Graph, reg *plugin.Registry, idx *cache.Index, plan cache.Plan) *keyResolver {
	return &keyResolver{
		graph:  graph,
		reg:    reg,
		idx:    idx,
		plan:   plan,
		weak:   make(map[string]cachekey.Key),
		strong: make(map[string]cachekey.Key),
	}
}

func (k *keyResolver) WeakKey(elementID string) (cachekey.Key, bool) {
	k.mu.Lock()
	if key, ok := k.weak[elementID]; ok {
		k.mu.Unlock()
		return key, true
	}
	k.mu.Unlock()

	el, ok := k.graph.Get(elementID)
	if !ok {
		return "", false
	}
	sourceKeys, ok := k.sourceKeys(el)
	if !ok {
		return "", false
	}
	names := make([]string, len(el.BuildDeps))
	for i, d := range el.BuildDeps {
		names[i] = d.ElementID
	}
	key := cachekey.WeakKey(cachekey.WeakInputs{
		Kind:          el.Kind,
		Config:        el.Config,
		SourceKeys:    sourceKeys,
		BuildDepNames: names,
		ProjectEnv:    el.Environment,
	})

	k.mu.Lock()
	k.weak[elementID] = key
	k.mu.Unlock()
	return key, true
}

func (k *keyResolver) StrongKey(elementID string, strict bool) (cachekey.Key, bool) {
	k.mu.Lock()
	if key, ok := k.strong[elementID]; ok {
		k.mu.Unlock()
		return key, true
	}
	k.mu.Unlock()

	weak, ok := k.WeakKey(elementID)
	if !ok {
		return "", false
	}
	el, _ := k.graph.Get(elementID)
	sourceKeys, ok := k.sourceKeys(el)
	if !ok {
		return "", false
	}

	var deps []cachekey.DependencyKey
	for _, d := range el.BuildDeps {
		depKey, ok := k.StrongKey(d.ElementID, strict)
		if !ok {
			return "", false
		}
		deps = append(deps, cachekey.DependencyKey{Name: d.ElementID, Key: depKey})
		closure, err := k.graph.RuntimeClosure(d.ElementID)
		if err != nil {
			return "", false
		}
		for _, rd := range closure {
			rdKey, ok := k.StrongKey(rd.ID, strict)
			if !ok {
				return "", false
			}
			deps = append(deps, cachekey.DependencyKey{Name: rd.ID, Key: rdKey})
		}
	}

	computed := cachekey.StrongKey(cachekey.StrongInputs{
		Kind:       el.Kind,
		Config:     el.Config,
		SourceKeys: sourceKeys,
		BuildDeps:  deps,
		ProjectEnv: el.Environment,
	})

	plan := k.plan
	if strict {
		plan = cache.PlanStrict
	}
	effective, err := cache.ResolveEffectiveStrongKey(plan, k.idx, weak, computed)
	if err != nil {
		return "", false
	}

	k.mu.Lock()
	k.strong[elementID] = effective
	k.mu.Unlock()
	return effective, true
}

func (k *keyResolver) sourceKeys(el *element.Element) ([]string, bool) {
	out := make([]string, 0, len(el.Sources))
	for _, ref := range el.Sources {
		src, err := k.reg.BuildSource(ref.Kind, ref.Config)
		if err != nil {
			return nil, false
		}
		if src.RefStatus() != plugin.RefPinned {
			return nil, false
		}
		key, err := src.UniqueKey()
		if err != nil {
			return nil, false
		}
		out = append(out, key)
	}
	return out, true
}
