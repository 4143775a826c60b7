package callnum

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func badgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(BadgerOptions{InMemory: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStoreRequiresDir(t *testing.T) {
	if _, err := NewBadgerStore(BadgerOptions{}); err == nil {
		t.Fatalf("expected error without dir in on-disk mode")
	}
}

func TestBadgerStoreLoadBeforeMaterialize(t *testing.T) {
	store := badgerStore(t)
	numbers, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok || numbers != nil {
		t.Fatalf("Load() = %v, %v, want nil, false", numbers, ok)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := badgerStore(t)
	ctx := context.Background()

	want := []string{"501", "502", "503"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v, %v", got, ok, err)
	}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Fatalf("Load() = %v, want %v", got, want)
	}

	// Shrink and make sure stale keys are gone.
	if err := store.Save(ctx, []string{"502"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err = store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v, %v", got, ok, err)
	}
	if !slices.Equal(got, []string{"502"}) {
		t.Fatalf("Load() after shrink = %v, want [502]", got)
	}
}

func TestBadgerStoreEmptyPoolStaysMaterialized(t *testing.T) {
	store := badgerStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || len(got) != 0 {
		t.Fatalf("Load() = %v, %v, want empty pool present", got, ok)
	}
}

func TestAllocatorWithBadgerBackend(t *testing.T) {
	store := badgerStore(t)
	alloc, err := NewAllocator(store, 501, 503, testLogger())
	if err != nil {
		t.Fatalf("NewAllocator() error = %v", err)
	}
	ctx := context.Background()

	seen := make(map[string]bool, 3)
	for i := 0; i < 3; i++ {
		n, err := alloc.Issue(ctx)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if seen[n] {
			t.Fatalf("number %s issued twice", n)
		}
		seen[n] = true
	}
	if _, err := alloc.Issue(ctx); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("error = %v, want ErrPoolExhausted", err)
	}
}
