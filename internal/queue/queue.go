// Package queue implements the per-stage queue framework: input/output
// ordering, the status vocabulary the scheduler drives, and the per-
// element result table retained for the whole session.
package queue

import (
	"context"
	"sync"

	"forge/internal/job"
)

// Status is the per-(queue, element) state the scheduler tracks.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusRunning
	StatusSkip
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusSkip:
		return "SKIP"
	case StatusDone:
		return "DONE"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ProbeStatus is what a queue's status probe reports — a narrower set
// than the full Status vocabulary, since a probe never itself decides
// RUNNING/DONE/FAILED.
type ProbeStatus int

const (
	ProbeSkip ProbeStatus = iota
	ProbeReady
	ProbePending
)

// Result is what the result table remembers for one element, for the
// whole session's reporting.
type Result struct {
	Status  Status
	Payload any
	Err     error
}

// Probe decides whether elementID should be skipped, is ready to run, or
// must be re-checked on a later tick.
type Probe func(elementID string) (ProbeStatus, error)

// Process constructs the job that will perform this stage's work for a
// READY element.
type Process func(ctx context.Context, elementID string) (*job.Job, error)

// Done interprets a finished job's result and decides the element's
// final Status for this stage.
type Done func(elementID string, result job.Result) (Status, any, error)

// Queue is one pipeline stage: Track, Pull, Fetch, Build, or Push.
type Queue struct {
	Name string

	probe   Probe
	process Process
	done    Done

	mu      sync.Mutex
	input   []string // element IDs, insertion order
	output  []string
	results map[string]*Result
	running map[string]bool
	// terminated holds elements force-finalized by Fail or Drop. Once set,
	// a late Complete from an in-flight job must not resurrect the
	// element with a different outcome.
	terminated map[string]bool
}

// New creates an empty queue with the given stage behaviour.
func New(name string, probe Probe, process Process, done Done) *Queue {
	return &Queue{
		Name:       name,
		probe:      probe,
		process:    process,
		done:       done,
		results:    make(map[string]*Result),
		running:    make(map[string]bool),
		terminated: make(map[string]bool),
	}
}

// Enqueue appends elementID to the input queue.
func (q *Queue) Enqueue(elementID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.input = append(q.input, elementID)
}

// InputLen reports how many elements are still queued at the input.
func (q *Queue) InputLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.input)
}

// RunningLen reports how many elements this queue currently has in
// flight.
func (q *Queue) RunningLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// IsIdle reports whether the queue has nothing queued and nothing
// running — part of the scheduler's terminal-detection condition.
func (q *Queue) IsIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.input) == 0 && len(q.running) == 0
}

// DrainOutput returns and clears the elements moved to the output queue since
// the last call — the scheduler uses this to advance an element to the
// next stage's input.
func (q *Queue) DrainOutput() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.output
	q.output = nil
	return out
}

// Result returns the recorded result for elementID, if any.
func (q *Queue) Result(elementID string) (*Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[elementID]
	return r, ok
}

// AllResults returns every recorded result, for session reporting.
func (q *Queue) AllResults() map[string]*Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]*Result, len(q.results))
	for k, v := range q.results {
		out[k] = v
	}
	return out
}

// ApplySkips walks the input queue in order, probing each element; SKIP
// elements are moved straight to the output queue with a DONE result
// carrying a skip payload; the rest stay in the input queue, in order.
// Returns the first probe error, if any.
func (q *Queue) ApplySkips() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var remaining []string
	for _, id := range q.input {
		status, err := q.probe(id)
		if err != nil {
			return err
		}
		if status == ProbeSkip {
			q.output = append(q.output, id)
			q.results[id] = &Result{Status: StatusDone, Payload: "skipped"}
			continue
		}
		remaining = append(remaining, id)
	}
	q.input = remaining
	return nil
}

// ReadyElements returns, in FIFO order, the currently-pending input
// elements whose probe reports READY. Elements already running are
// excluded.
func (q *Queue) ReadyElements() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []string
	for _, id := range q.input {
		if q.running[id] {
			continue
		}
		status, err := q.probe(id)
		if err != nil {
			return nil, err
		}
		if status == ProbeReady {
			ready = append(ready, id)
		}
	}
	return ready, nil
}

// BuildJob constructs the job for elementID via this stage's Process
// routine and marks it running.
func (q *Queue) BuildJob(ctx context.Context, elementID string) (*job.Job, error) {
	j, err := q.process(ctx, elementID)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	q.running[elementID] = true
	q.mu.Unlock()
	return j, nil
}

// Complete records a finished job's outcome: the element is removed from
// the running set and from the input queue, and — on DONE — moved to
// the output queue. Returns the final Status. A no-op if the element was
// already force-finalized by Fail or Drop (its own job may still be
// in flight when that happens).
func (q *Queue) Complete(elementID string, result job.Result) (Status, error) {
	status, payload, err := q.done(elementID, result)
	if err != nil {
		return StatusFailed, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, elementID)
	if q.terminated[elementID] {
		if r, ok := q.results[elementID]; ok {
			return r.Status, nil
		}
		return StatusFailed, nil
	}
	q.input = removeString(q.input, elementID)
	q.results[elementID] = &Result{Status: status, Payload: payload, Err: result.Err}
	if status == StatusDone {
		q.output = append(q.output, elementID)
	}
	return status, nil
}

// Fail force-marks elementID FAILED without running a job — used by the
// scheduler's failure-propagation rule (a dependency failed).
func (q *Queue) Fail(elementID string, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, elementID)
	q.terminated[elementID] = true
	q.input = removeString(q.input, elementID)
	q.results[elementID] = &Result{Status: StatusFailed, Err: cause}
}

// Drop silently removes elementID from the input queue without
// recording a result — used under --keep-going when a dependency fails.
func (q *Queue) Drop(elementID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.terminated[elementID] = true
	delete(q.running, elementID)
	q.input = removeString(q.input, elementID)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
