// Package broker implements the resource broker: finite named token
// pools with shared and exclusive claim semantics and atomic,
// deadlock-free admission.
package broker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"forge/internal/logging"
)

// TokenKind distinguishes a shared claim (co-exists with other shared
// claims, up to the pool's capacity) from an exclusive claim (requires
// the pool to be completely idle and excludes all other claimants while
// held).
type TokenKind int

const (
	Shared TokenKind = iota
	Exclusive
)

// Request is one resource a process routine asks for.
type Request struct {
	Pool string
	Kind TokenKind
}

// pool tracks one named resource's capacity and current usage. The
// semaphore.Weighted gives each pool its own blocking acquire/release
// primitive; the broker's mutex makes the admission check and the
// acquisition of every requested pool atomic across pools, which a bare
// semaphore cannot provide on its own.
type pool struct {
	capacity  int64
	sem       *semaphore.Weighted
	used      int64
	exclusive bool
}

// Broker owns every configured resource pool.
type Broker struct {
	mu      sync.Mutex
	pools   map[string]*pool
	waiters []chan struct{}
}

// New creates a broker with the given pool capacities. "process",
// "network", and "cache" are the framework's built-in pools; additional
// user-defined pools are passed the same way.
func New(capacities map[string]int64) *Broker {
	b := &Broker{pools: make(map[string]*pool, len(capacities))}
	for name, capacity := range capacities {
		b.pools[name] = &pool{capacity: capacity, sem: semaphore.NewWeighted(capacity)}
	}
	return b
}

// Claim is a held set of tokens; callers must call Release when done.
type Claim struct {
	broker   *Broker
	requests []Request
}

// TryAcquire attempts to admit a job requesting the given tokens. It
// either reserves every token atomically and returns a Claim, or admits
// none of them and returns (nil, false). It never blocks.
func (b *Broker) TryAcquire(requests []Request) (*Claim, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range requests {
		p, ok := b.pools[r.Pool]
		if !ok {
			logging.Get(logging.CategoryBroker).Warn("request for unknown pool %q denied", r.Pool)
			return nil, false
		}
		if p.exclusive {
			return nil, false
		}
		switch r.Kind {
		case Shared:
			if p.used >= p.capacity {
				return nil, false
			}
		case Exclusive:
			if p.used != 0 {
				return nil, false
			}
		}
	}

	// Every pool admits; acquire each for real. TryAcquire on the
	// underlying semaphore cannot fail here since we just verified
	// capacity under the broker lock.
	for _, r := range requests {
		p := b.pools[r.Pool]
		switch r.Kind {
		case Shared:
			if !p.sem.TryAcquire(1) {
				panic(fmt.Sprintf("broker: inconsistent state acquiring shared token on pool %q", r.Pool))
			}
			p.used++
		case Exclusive:
			if !p.sem.TryAcquire(p.capacity) {
				panic(fmt.Sprintf("broker: inconsistent state acquiring exclusive token on pool %q", r.Pool))
			}
			p.used = p.capacity
			p.exclusive = true
		}
	}

	return &Claim{broker: b, requests: requests}, true
}

// Acquire blocks until the requested tokens can be admitted atomically,
// or ctx is cancelled.
func (b *Broker) Acquire(ctx context.Context, requests []Request) (*Claim, error) {
	for {
		ch := b.watch()
		if claim, ok := b.TryAcquire(requests); ok {
			return claim, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// watch registers a channel that the next Release closes. Acquire
// registers before checking admission, so a release that lands between a
// failed check and the wait still wakes it.
func (b *Broker) watch() chan struct{} {
	ch := make(chan struct{})
	b.mu.Lock()
	b.waiters = append(b.waiters, ch)
	b.mu.Unlock()
	return ch
}

// Release returns every token in the claim to its pool.
func (c *Claim) Release() {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range c.requests {
		p := b.pools[r.Pool]
		switch r.Kind {
		case Shared:
			p.sem.Release(1)
			p.used--
		case Exclusive:
			p.sem.Release(p.capacity)
			p.used = 0
			p.exclusive = false
		}
	}
	b.notifyWaiters()
}

func (b *Broker) notifyWaiters() {
	for _, ch := range b.waiters {
		close(ch)
	}
	b.waiters = nil
}
