package callnum

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestFileStoreLoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "pool.json"))
	numbers, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok || numbers != nil {
		t.Fatalf("Load() = %v, %v, want nil, false", numbers, ok)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "pool.json"))
	ctx := context.Background()

	want := []string{"501", "502", "503"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || !slices.Equal(got, want) {
		t.Fatalf("Load() = %v, %v, want %v, true", got, ok, want)
	}
}

func TestFileStoreSavesEmptyPoolAsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	store := NewFileStore(path)
	ctx := context.Background()

	if err := store.Save(ctx, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("file content = %s, want []", b)
	}

	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v, %v, want empty pool present", got, ok, err)
	}
	if len(got) != 0 {
		t.Fatalf("Load() = %v, want empty", got)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	if err := os.WriteFile(path, []byte(`{"not":"a list"}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Fatalf("Load() expected error for corrupt pool file")
	}
}

func TestFileStoreLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "pool.json"))
	if err := store.Save(context.Background(), []string{"501"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "pool.json" {
		t.Fatalf("dir entries = %v, want only pool.json", entries)
	}
}
