package broker

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireSharedUpToCapacity(t *testing.T) {
	b := New(map[string]int64{"process": 2})

	c1, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}})
	if !ok {
		t.Fatal("expected first shared claim to be admitted")
	}
	c2, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}})
	if !ok {
		t.Fatal("expected second shared claim to be admitted")
	}
	if _, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}}); ok {
		t.Fatal("expected third shared claim to be denied at capacity")
	}

	c1.Release()
	if _, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}}); !ok {
		t.Fatal("expected a claim to free up after release")
	}
	c2.Release()
}

func TestExclusiveRequiresFullIdle(t *testing.T) {
	b := New(map[string]int64{"process": 3})

	shared, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}})
	if !ok {
		t.Fatal("expected shared claim to be admitted")
	}
	if _, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Exclusive}}); ok {
		t.Fatal("expected exclusive claim to be denied while a shared holder is active")
	}
	shared.Release()

	excl, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Exclusive}})
	if !ok {
		t.Fatal("expected exclusive claim to be admitted once idle")
	}
	if _, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}}); ok {
		t.Fatal("expected shared claim to be denied while exclusive is held")
	}
	excl.Release()
}

func TestAllOrNothingAcrossPools(t *testing.T) {
	b := New(map[string]int64{"process": 1, "network": 1})

	// Exhaust network alone.
	netClaim, ok := b.TryAcquire([]Request{{Pool: "network", Kind: Shared}})
	if !ok {
		t.Fatal("expected network claim to be admitted")
	}

	// A request needing both process and network must be denied
	// entirely — process must not be left partially reserved.
	if _, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}, {Pool: "network", Kind: Shared}}); ok {
		t.Fatal("expected combined request to be denied when any pool is unavailable")
	}

	// process must still be fully available since nothing partial was reserved.
	procClaim, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}})
	if !ok {
		t.Fatal("expected process to remain untouched by the failed combined request")
	}

	netClaim.Release()
	procClaim.Release()
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	b := New(map[string]int64{"process": 1})
	first, ok := b.TryAcquire([]Request{{Pool: "process", Kind: Shared}})
	if !ok {
		t.Fatal("expected first claim")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		claim, err := b.Acquire(ctx, []Request{{Pool: "process", Kind: Shared}})
		if err != nil {
			t.Errorf("Acquire: %v", err)
			return
		}
		claim.Release()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	first.Release()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for blocked Acquire to unblock")
	}
}

func TestUnknownPoolDenied(t *testing.T) {
	b := New(map[string]int64{"process": 1})
	if _, ok := b.TryAcquire([]Request{{Pool: "bogus", Kind: Shared}}); ok {
		t.Fatal("expected unknown pool to be denied")
	}
}
