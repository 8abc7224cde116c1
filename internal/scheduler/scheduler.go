// Package scheduler implements the single-threaded cooperative tick loop
// that drives every queue's state machine, admits READY elements against
// the resource broker, and detects session termination.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"forge/internal/job"
	"forge/internal/logging"
	"forge/internal/queue"
)

// FailurePolicy controls how a FAILURE propagates to an element's
// reverse dependencies.
type FailurePolicy int

const (
	// FailFast marks reverse dependencies FAILED with a derived error.
	FailFast FailurePolicy = iota
	// KeepGoing drops reverse dependencies silently instead of failing
	// them, letting unrelated work continue.
	KeepGoing
)

// ReverseDeps resolves, for a failed element, every element that must
// not proceed as a result (elements build- or runtime-depending on it,
// transitively).
type ReverseDeps func(elementID string) []string

// Report is the session-wide summary produced once the scheduler
// reaches a terminal state.
type Report struct {
	Results     map[string]map[string]*queue.Result // queue name -> element -> result
	Failed      []string
	Interrupted bool
}

// Scheduler drives a fixed, ordered sequence of queues (by convention:
// Track, Pull, Fetch, Build, Push) to completion.
type Scheduler struct {
	queues      []*queue.Queue
	runtime     *job.Runtime
	reverseDeps ReverseDeps
	policy      FailurePolicy

	mu           sync.Mutex
	terminating  bool
	interrupted  bool
	failedElements map[string]bool

	inFlight sync.WaitGroup
}

// New builds a scheduler over queues, in pipeline order.
func New(queues []*queue.Queue, runtime *job.Runtime, reverseDeps ReverseDeps, policy FailurePolicy) *Scheduler {
	return &Scheduler{
		queues:         queues,
		runtime:        runtime,
		reverseDeps:    reverseDeps,
		policy:         policy,
		failedElements: make(map[string]bool),
	}
}

// Seed enqueues elementID at the first queue's input.
func (s *Scheduler) Seed(elementID string) {
	if len(s.queues) == 0 {
		return
	}
	s.queues[0].Enqueue(elementID)
}

// Run drives tick-by-tick until every queue is terminal or ctx is
// cancelled (an OS interrupt is modelled by cancelling ctx).
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.interrupted = true
		s.mu.Unlock()
		s.runtime.CancelAll()
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx); err != nil {
			return s.buildReport(), err
		}
		if s.terminal() {
			break
		}
		select {
		case <-ctx.Done():
			s.inFlight.Wait()
			return s.buildReport(), ctx.Err()
		case <-ticker.C:
		}
	}

	s.inFlight.Wait()
	return s.buildReport(), nil
}

func (s *Scheduler) terminal() bool {
	for _, q := range s.queues {
		if !q.IsIdle() {
			return false
		}
	}
	return true
}

// tick performs one iteration of the state machine described in the
// component design: move SKIPs to output, admit READY elements in
// reverse queue order, then drain completions and advance DONE elements
// to the next queue's input.
func (s *Scheduler) tick(ctx context.Context) error {
	for _, q := range s.queues {
		if err := q.ApplySkips(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	terminating := s.terminating
	s.mu.Unlock()

	if !terminating {
		for i := len(s.queues) - 1; i >= 0; i-- {
			if err := s.admit(ctx, s.queues[i]); err != nil {
				return err
			}
		}
	}

	s.advance()
	return nil
}

func (s *Scheduler) admit(ctx context.Context, q *queue.Queue) error {
	ready, err := q.ReadyElements()
	if err != nil {
		return err
	}
	for _, id := range ready {
		j, err := q.BuildJob(ctx, id)
		if err != nil {
			return err
		}
		resultCh, err := s.runtime.Start(ctx, j)
		if err != nil {
			logging.Get(logging.CategoryScheduler).Warn("failed to start job for %s: %v", id, err)
			continue
		}
		s.inFlight.Add(1)
		go s.await(q, id, resultCh)
	}
	return nil
}

func (s *Scheduler) await(q *queue.Queue, elementID string, resultCh <-chan job.Result) {
	defer s.inFlight.Done()
	result := <-resultCh
	status, err := q.Complete(elementID, result)
	if err != nil {
		logging.Get(logging.CategoryScheduler).Warn("queue %s: completing %s: %v", q.Name, elementID, err)
		return
	}
	if status == queue.StatusFailed {
		s.onFailure(elementID, result.Err)
	}
}

// advance moves every queue's output into the next queue's input.
func (s *Scheduler) advance() {
	for i, q := range s.queues {
		out := q.DrainOutput()
		if i+1 < len(s.queues) {
			next := s.queues[i+1]
			for _, id := range out {
				next.Enqueue(id)
			}
		}
	}
}

// onFailure applies the failure policy: FailFast marks reverse
// dependencies FAILED with a derived error; KeepGoing drops them
// silently. The first fatal failure also sets the terminating flag,
// which blocks new job starts while letting in-flight work finish.
func (s *Scheduler) onFailure(elementID string, cause error) {
	s.mu.Lock()
	s.failedElements[elementID] = true
	first := !s.terminating
	if s.policy == FailFast {
		s.terminating = true
	}
	s.mu.Unlock()

	if first {
		logging.Get(logging.CategoryScheduler).Error("element %s failed: %v", elementID, cause)
	}

	if s.reverseDeps == nil {
		return
	}
	for _, dep := range s.reverseDeps(elementID) {
		for _, q := range s.queues {
			// A queue that already recorded DONE for dep has already
			// finished its work on it; Fail/Drop must not retroactively
			// overwrite that outcome.
			if r, ok := q.Result(dep); ok && r.Status == queue.StatusDone {
				continue
			}
			if s.policy == KeepGoing {
				q.Drop(dep)
			} else {
				q.Fail(dep, fmt.Errorf("dependency %s failed: %w", elementID, cause))
			}
		}
	}
}

func (s *Scheduler) buildReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Report{Results: make(map[string]map[string]*queue.Result), Interrupted: s.interrupted}
	for _, q := range s.queues {
		r.Results[q.Name] = q.AllResults()
	}
	for id := range s.failedElements {
		r.Failed = append(r.Failed, id)
	}
	return r
}
