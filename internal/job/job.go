// Package job implements the job runtime: parallel execution of the
// track/pull/fetch/build/push work units the queue framework issues,
// with cancellation, suspend/resume, and bounded retry with backoff.
package job

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"forge/internal/broker"
	"forge/internal/logging"
)

// Kind names which pipeline stage a job performs.
type Kind int

const (
	KindTrack Kind = iota
	KindPull
	KindFetch
	KindBuild
	KindPush
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindPull:
		return "pull"
	case KindFetch:
		return "fetch"
	case KindBuild:
		return "build"
	case KindPush:
		return "push"
	default:
		return "unknown"
	}
}

// Result is a job's final outcome.
type Result struct {
	Success   bool
	Payload   any
	Err       error
	Retriable bool
}

// Progress is a free-form message a running job reports back to the
// scheduler while it executes.
type Progress struct {
	ElementID string
	Message   string
}

// Func is the work a Job performs. It must check ctx for cancellation at
// cooperative checkpoints and report progress through report.
type Func func(ctx context.Context, report func(string)) (Result, error)

// Job is one unit of work for one element in one stage.
type Job struct {
	ID        string
	ElementID string
	Kind      Kind
	Resources []broker.Request

	Run Func

	MaxRetries int // 0 means use the runtime default
}

// handle tracks one in-flight job's cancellation plumbing.
type handle struct {
	cancel context.CancelFunc
	claim  *broker.Claim
}

// DefaultMaxRetries is the retry bound applied when a Job doesn't
// override it.
const DefaultMaxRetries = 2

// Runtime manages the pool of workers executing Jobs: resource
// acquisition via the broker, cooperative cancellation, suspend/resume,
// and retry with exponential backoff for retriable failures.
type Runtime struct {
	broker *broker.Broker

	mu        sync.Mutex
	running   map[string]*handle
	suspended bool
	resumeCh  chan struct{}

	progressCh chan Progress
}

// NewRuntime creates a job runtime backed by b for resource admission.
func NewRuntime(b *broker.Broker) *Runtime {
	return &Runtime{
		broker:     b,
		running:    make(map[string]*handle),
		resumeCh:   make(chan struct{}),
		progressCh: make(chan Progress, 256),
	}
}

// Progress returns the channel progress messages are delivered on.
func (r *Runtime) Progress() <-chan Progress { return r.progressCh }

// Start spawns j, blocking until the broker admits its resource
// requirements (or ctx is cancelled), then running it to completion —
// including retries — in a background goroutine. The returned channel
// receives exactly one Result.
func (r *Runtime) Start(ctx context.Context, j *Job) (<-chan Result, error) {
	r.mu.Lock()
	for r.suspended {
		resumeCh := r.resumeCh
		r.mu.Unlock()
		select {
		case <-resumeCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.mu.Lock()
	}
	r.mu.Unlock()

	claim, err := r.broker.Acquire(ctx, j.Resources)
	if err != nil {
		return nil, fmt.Errorf("job: acquire resources for %s: %w", j.ID, err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.running[j.ID] = &handle{cancel: cancel, claim: claim}
	r.mu.Unlock()

	out := make(chan Result, 1)
	go r.run(jobCtx, j, claim, out)
	return out, nil
}

func (r *Runtime) run(ctx context.Context, j *Job, claim *broker.Claim, out chan<- Result) {
	defer func() {
		r.mu.Lock()
		delete(r.running, j.ID)
		r.mu.Unlock()
		claim.Release()
	}()

	maxRetries := j.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	report := func(msg string) {
		select {
		case r.progressCh <- Progress{ElementID: j.ElementID, Message: msg}:
		default:
		}
	}

	var result Result
	var err error
	for attempt := 0; ; attempt++ {
		result, err = j.Run(ctx, report)
		if err != nil {
			result = Result{Success: false, Err: err}
		}
		if result.Success || !result.Retriable || attempt >= maxRetries {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			result = Result{Success: false, Err: ctxErr}
			break
		}
		backoff := retryBackoff(attempt)
		logging.Get(logging.CategoryJob).Warn("job %s (%s) retriable failure, retry %d/%d after %v: %v", j.ID, j.Kind, attempt+1, maxRetries, backoff, result.Err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			result = Result{Success: false, Err: ctx.Err()}
			out <- result
			return
		}
	}
	out <- result
}

func retryBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

// Cancel requests the job's context be cancelled. Cancellation is
// idempotent — cancelling an already-finished or unknown job is a no-op.
func (r *Runtime) Cancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.running[jobID]; ok {
		h.cancel()
	}
}

// CancelAll cancels every running job, used on interrupt.
func (r *Runtime) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.running {
		h.cancel()
	}
}

// Suspend blocks new job starts until Resume is called. Already-running
// jobs are left to finish — the worker contract requires cooperative
// exit, not forced suspension mid-flight.
func (r *Runtime) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = true
}

// Resume releases any Start calls blocked by Suspend.
func (r *Runtime) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.suspended {
		return
	}
	r.suspended = false
	close(r.resumeCh)
	r.resumeCh = make(chan struct{})
}

// RunningCount returns the number of jobs currently executing.
func (r *Runtime) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// WaitGroup runs a batch of independent jobs concurrently, waits for all
// of them, and returns the first non-nil error any of them returned. The
// first failure cancels the context passed to the others. Used by stages
// that fan a single element's work out into several child tasks (e.g.
// fetching multiple sources).
func WaitGroup(ctx context.Context, fns []func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
