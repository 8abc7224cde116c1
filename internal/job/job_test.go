package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"forge/internal/broker"
)

func TestRuntimeRunsJobToSuccess(t *testing.T) {
	b := broker.New(map[string]int64{"process": 1})
	rt := NewRuntime(b)

	j := &Job{
		ID:        "j1",
		ElementID: "el1",
		Kind:      KindBuild,
		Resources: []broker.Request{{Pool: "process", Kind: broker.Shared}},
		Run: func(ctx context.Context, report func(string)) (Result, error) {
			report("working")
			return Result{Success: true, Payload: "ok"}, nil
		},
	}

	ch, err := rt.Start(context.Background(), j)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case res := <-ch:
		if !res.Success || res.Payload != "ok" {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job result")
	}
}

func TestRuntimeRetriesRetriableFailures(t *testing.T) {
	b := broker.New(map[string]int64{"process": 1})
	rt := NewRuntime(b)

	var attempts int32
	j := &Job{
		ID:         "j2",
		ElementID:  "el2",
		Kind:       KindFetch,
		Resources:  []broker.Request{{Pool: "process", Kind: broker.Shared}},
		MaxRetries: 2,
		Run: func(ctx context.Context, report func(string)) (Result, error) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return Result{Success: false, Err: errors.New("transient"), Retriable: true}, nil
			}
			return Result{Success: true}, nil
		},
	}

	ch, err := rt.Start(context.Background(), j)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case res := <-ch:
		if !res.Success {
			t.Fatalf("expected eventual success, got %+v", res)
		}
		if atomic.LoadInt32(&attempts) != 3 {
			t.Fatalf("expected 3 attempts, got %d", attempts)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestRuntimeDoesNotRetryNonRetriableFailures(t *testing.T) {
	b := broker.New(map[string]int64{"process": 1})
	rt := NewRuntime(b)

	var attempts int32
	j := &Job{
		ID:        "j3",
		ElementID: "el3",
		Kind:      KindBuild,
		Resources: []broker.Request{{Pool: "process", Kind: broker.Shared}},
		Run: func(ctx context.Context, report func(string)) (Result, error) {
			atomic.AddInt32(&attempts, 1)
			return Result{Success: false, Err: errors.New("fatal"), Retriable: false}, nil
		},
	}

	ch, err := rt.Start(context.Background(), j)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := <-ch
	if res.Success {
		t.Fatal("expected failure")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestRuntimeCancelIsIdempotent(t *testing.T) {
	b := broker.New(map[string]int64{"process": 1})
	rt := NewRuntime(b)

	started := make(chan struct{})
	j := &Job{
		ID:        "j4",
		ElementID: "el4",
		Kind:      KindBuild,
		Resources: []broker.Request{{Pool: "process", Kind: broker.Shared}},
		Run: func(ctx context.Context, report func(string)) (Result, error) {
			close(started)
			<-ctx.Done()
			return Result{Success: false, Err: ctx.Err()}, nil
		},
	}

	ch, err := rt.Start(context.Background(), j)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	rt.Cancel("j4")
	rt.Cancel("j4") // idempotent
	select {
	case res := <-ch:
		if res.Success {
			t.Fatal("expected cancellation to fail the job")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}

func TestRuntimeSuspendBlocksNewStarts(t *testing.T) {
	b := broker.New(map[string]int64{"process": 1})
	rt := NewRuntime(b)
	rt.Suspend()

	started := make(chan struct{})
	go func() {
		j := &Job{
			ID:        "j5",
			ElementID: "el5",
			Kind:      KindBuild,
			Resources: []broker.Request{{Pool: "process", Kind: broker.Shared}},
			Run: func(ctx context.Context, report func(string)) (Result, error) {
				return Result{Success: true}, nil
			},
		}
		ch, err := rt.Start(context.Background(), j)
		if err != nil {
			t.Errorf("Start: %v", err)
			return
		}
		<-ch
		close(started)
	}()

	select {
	case <-started:
		t.Fatal("expected Start to block while suspended")
	case <-time.After(100 * time.Millisecond):
	}

	rt.Resume()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resumed job")
	}
}
