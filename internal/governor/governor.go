// Package governor enforces the global concurrency cap and nesting-depth cap
// for workers. All mutation of the slot pool and depth counter goes through
// its acquire/release pairs.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrWouldBlock is returned by TryAcquireConcurrencySlot when no slot is free.
	ErrWouldBlock = errors.New("no concurrency slot available")
	// ErrDepthExceeded is returned when a child would nest deeper than allowed.
	ErrDepthExceeded = errors.New("nesting depth exceeded")
	// ErrDoubleRelease is returned when a token is released a second time.
	ErrDoubleRelease = errors.New("token already released")
	// ErrUnknownToken is returned for a token this governor never issued.
	ErrUnknownToken = errors.New("token not issued by this governor")
)

// Slot is a concurrency-slot token.
type Slot struct{ id uint64 }

// Valid reports whether the slot was issued by a governor.
func (s Slot) Valid() bool { return s.id != 0 }

// DepthToken is a nesting-depth reservation.
type DepthToken struct {
	id    uint64
	depth int
}

// Depth is the depth the holder runs at.
func (d DepthToken) Depth() int { return d.depth }

// Valid reports whether the token was issued by a governor.
func (d DepthToken) Valid() bool { return d.id != 0 }

// Reservation pairs the two tokens a worker needs.
type Reservation struct {
	Slot  Slot
	Depth DepthToken
}

// Stats is a point-in-time view of the governor.
type Stats struct {
	Capacity    int
	SlotsInUse  int
	MaxDepth    int
	DepthTokens int
}

type tokenKind int

const (
	kindSlot tokenKind = iota + 1
	kindDepth
)

// Governor grants and reclaims concurrency slots and depth tokens.
type Governor struct {
	sem      *semaphore.Weighted
	capacity int
	maxDepth int

	mu sync.Mutex
	// tokens holds every outstanding token ID. IDs are never reused, so an
	// issued ID missing from the map has already been released.
	tokens      map[uint64]tokenKind
	nextID      uint64
	slotsInUse  int
	depthTokens int
	observer    func(Stats)
}

// Option configures a Governor.
type Option func(*Governor)

// WithObserver registers a callback invoked after every acquire and release.
func WithObserver(fn func(Stats)) Option {
	return func(g *Governor) { g.observer = fn }
}

// New creates a governor with the given slot capacity and maximum depth.
// A capacity below one is raised to one; maxDepth zero forbids all children.
func New(capacity, maxDepth int, opts ...Option) *Governor {
	if capacity < 1 {
		capacity = 1
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	g := &Governor{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		maxDepth: maxDepth,
		tokens:   make(map[uint64]tokenKind),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAcquireConcurrencySlot takes a slot without waiting. It fails with
// ErrWouldBlock when the pool is exhausted or other callers are queued.
func (g *Governor) TryAcquireConcurrencySlot() (Slot, error) {
	if !g.sem.TryAcquire(1) {
		return Slot{}, ErrWouldBlock
	}
	return Slot{id: g.issue(kindSlot)}, nil
}

// AcquireConcurrencySlot takes a slot, queueing in FIFO order behind earlier
// callers until one is released or ctx is done.
func (g *Governor) AcquireConcurrencySlot(ctx context.Context) (Slot, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Slot{}, fmt.Errorf("acquire concurrency slot: %w", err)
	}
	return Slot{id: g.issue(kindSlot)}, nil
}

// ReleaseConcurrencySlot returns a slot to the pool and wakes the oldest waiter.
func (g *Governor) ReleaseConcurrencySlot(s Slot) error {
	if err := g.retire(s.id, kindSlot); err != nil {
		return fmt.Errorf("release concurrency slot %d: %w", s.id, err)
	}
	g.sem.Release(1)
	g.notify()
	return nil
}

// AcquireDepth reserves depth parentDepth+1. It never queues.
func (g *Governor) AcquireDepth(parentDepth int) (DepthToken, error) {
	depth := parentDepth + 1
	if depth > g.maxDepth {
		return DepthToken{}, fmt.Errorf("%w: depth %d exceeds maximum %d", ErrDepthExceeded, depth, g.maxDepth)
	}
	return DepthToken{id: g.issue(kindDepth), depth: depth}, nil
}

// ReleaseDepth returns a depth token.
func (g *Governor) ReleaseDepth(t DepthToken) error {
	if err := g.retire(t.id, kindDepth); err != nil {
		return fmt.Errorf("release depth token %d: %w", t.id, err)
	}
	g.notify()
	return nil
}

func (g *Governor) issue(kind tokenKind) uint64 {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.tokens[id] = kind
	if kind == kindSlot {
		g.slotsInUse++
	} else {
		g.depthTokens++
	}
	g.mu.Unlock()
	g.notify()
	return id
}

func (g *Governor) retire(id uint64, kind tokenKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id == 0 || id > g.nextID {
		return ErrUnknownToken
	}
	got, ok := g.tokens[id]
	if !ok {
		return ErrDoubleRelease
	}
	if got != kind {
		return ErrUnknownToken
	}
	delete(g.tokens, id)
	if kind == kindSlot {
		g.slotsInUse--
	} else {
		g.depthTokens--
	}
	return nil
}

// Reserve acquires a depth token and then a slot. Depth is checked first so
// a rejected child never waits for a slot. With wait false the slot is
// taken with TryAcquireConcurrencySlot.
func (g *Governor) Reserve(ctx context.Context, parentDepth int, wait bool) (Reservation, error) {
	depth, err := g.AcquireDepth(parentDepth)
	if err != nil {
		return Reservation{}, err
	}

	var slot Slot
	if wait {
		slot, err = g.AcquireConcurrencySlot(ctx)
	} else {
		slot, err = g.TryAcquireConcurrencySlot()
	}
	if err != nil {
		_ = g.ReleaseDepth(depth)
		return Reservation{}, err
	}
	return Reservation{Slot: slot, Depth: depth}, nil
}

// Release returns both tokens of a reservation.
func (g *Governor) Release(r Reservation) error {
	return errors.Join(g.ReleaseConcurrencySlot(r.Slot), g.ReleaseDepth(r.Depth))
}

// Stats returns the current usage.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Capacity:    g.capacity,
		SlotsInUse:  g.slotsInUse,
		MaxDepth:    g.maxDepth,
		DepthTokens: g.depthTokens,
	}
}

func (g *Governor) notify() {
	if g.observer == nil {
		return
	}
	g.observer(g.Stats())
}

// Capacity returns the slot pool size.
func (g *Governor) Capacity() int { return g.capacity }

// MaxDepth returns the nesting ceiling.
func (g *Governor) MaxDepth() int { return g.maxDepth }
