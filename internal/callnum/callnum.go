// Package callnum issues unique caller identifiers from a bounded,
// persisted pool. Each study participant reads their number back into the
// survey, so a number handed out twice would corrupt the collected data;
// issued numbers never return to the pool except through an explicit
// regeneration.
package callnum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
)

// ErrPoolExhausted is returned by Issue once every number has been handed out.
var ErrPoolExhausted = errors.New("no call numbers left in the pool")

// Store persists the set of unissued numbers.
type Store interface {
	// Load returns the remaining numbers. ok is false when no pool has been
	// materialized yet.
	Load(ctx context.Context) (numbers []string, ok bool, err error)
	// Save replaces the persisted pool.
	Save(ctx context.Context, numbers []string) error
	Close() error
}

// Allocator hands out pool numbers. Every mutation runs under one lock
// spanning load, pick and save, so concurrent issuers always operate on the
// latest persisted state and a number leaves the pool exactly once.
type Allocator struct {
	mu    sync.Mutex
	store Store
	start int
	end   int
	log   *slog.Logger
	intn  func(n int) int
}

// NewAllocator builds an allocator over the inclusive range [start, end].
func NewAllocator(store Store, start, end int, log *slog.Logger) (*Allocator, error) {
	if store == nil {
		return nil, errors.New("callnum: store is required")
	}
	if start < 0 {
		return nil, fmt.Errorf("callnum: range start %d is negative", start)
	}
	if end < start {
		return nil, fmt.Errorf("callnum: range %d-%d is empty", start, end)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{store: store, start: start, end: end, log: log, intn: rand.Intn}, nil
}

// Issue removes one randomly chosen number from the pool and returns it.
// The number counts as issued only after the shrunk pool has been persisted;
// a failed save leaves the pool untouched. An empty pool yields
// ErrPoolExhausted.
func (a *Allocator) Issue(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pool, err := a.loadOrInit(ctx)
	if err != nil {
		return "", err
	}
	if len(pool) == 0 {
		return "", fmt.Errorf("%w (%d-%d)", ErrPoolExhausted, a.start, a.end)
	}

	i := a.intn(len(pool))
	number := pool[i]
	pool = slices.Delete(pool, i, i+1)

	if err := a.store.Save(ctx, pool); err != nil {
		return "", fmt.Errorf("save pool: %w", err)
	}
	a.log.Info("issued call number", "number", number, "remaining", len(pool))
	return number, nil
}

// Remaining reports how many numbers are still unissued, materializing the
// pool on first use.
func (a *Allocator) Remaining(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pool, err := a.loadOrInit(ctx)
	if err != nil {
		return 0, err
	}
	return len(pool), nil
}

// Snapshot returns a copy of the unissued numbers.
func (a *Allocator) Snapshot(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pool, err := a.loadOrInit(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(pool), nil
}

// Regenerate discards the current pool and persists the full range again.
// This is the only way an issued number can come back, so callers gate it
// behind explicit operator intent.
func (a *Allocator) Regenerate(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pool := a.fullRange()
	if err := a.store.Save(ctx, pool); err != nil {
		return 0, fmt.Errorf("save pool: %w", err)
	}
	a.log.Info("regenerated call number pool", "size", len(pool), "start", a.start, "end", a.end)
	return len(pool), nil
}

// Range returns the configured inclusive number range.
func (a *Allocator) Range() (start, end int) { return a.start, a.end }

func (a *Allocator) loadOrInit(ctx context.Context) ([]string, error) {
	pool, ok, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if ok {
		return pool, nil
	}

	pool = a.fullRange()
	if err := a.store.Save(ctx, pool); err != nil {
		return nil, fmt.Errorf("materialize pool: %w", err)
	}
	a.log.Info("materialized call number pool", "size", len(pool), "start", a.start, "end", a.end)
	return pool, nil
}

func (a *Allocator) fullRange() []string {
	pool := make([]string, 0, a.end-a.start+1)
	for i := a.start; i <= a.end; i++ {
		pool = append(pool, fmt.Sprintf("%03d", i))
	}
	return pool
}

// Close releases the underlying store.
func (a *Allocator) Close() error {
	return a.store.Close()
}
