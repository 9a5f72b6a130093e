package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestStorePutOnceAndStat(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("payload")

	entry, err := store.PutOnce(context.Background(), "0cc175b9c.jpg", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	if entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", entry.SizeBytes)
	}

	got, err := store.Stat(context.Background(), "0cc175b9c.jpg")
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	body, err := os.ReadFile(got.FilePath)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
}

func TestStorePutOnceKeepsExistingFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.PutOnce(ctx, "abc.png", bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("put error: %v", err)
	}
	entry, err := store.PutOnce(ctx, "abc.png", bytes.NewReader([]byte("second")))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if entry == nil || entry.Name != "abc.png" {
		t.Fatalf("existing entry should be returned, got %+v", entry)
	}

	body, _ := os.ReadFile(filepath.Join(store.Dir(), "abc.png"))
	if string(body) != "first" {
		t.Fatalf("existing file must not be overwritten, got %s", string(body))
	}
}

func TestStoreStatMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Stat(context.Background(), "missing.jpg")
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	if err := os.MkdirAll(filepath.Join(store.Dir(), "dir.jpg"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Stat(context.Background(), "dir.jpg"); err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreRejectsNestedNames(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"", "../escape.jpg", "sub/a.jpg", `sub\a.jpg`, ".hidden.jpg"} {
		if _, err := store.PutOnce(context.Background(), name, bytes.NewReader(nil)); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName for %q, got %v", name, err)
		}
	}
}

func TestStoreListSkipsTempFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"b.jpg", "a.png"} {
		if _, err := store.PutOnce(ctx, name, bytes.NewReader([]byte(name))); err != nil {
			t.Fatalf("put error: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), tempPrefix+"123"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write temp error: %v", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.png" || entries[1].Name != "b.jpg" {
		t.Fatalf("unexpected listing: %+v", entries)
	}
}

func TestStorePutOnceConcurrentSameName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.PutOnce(ctx, "same.jpg", bytes.NewReader([]byte("data")))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, ErrExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one successful write, got %d", created)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
