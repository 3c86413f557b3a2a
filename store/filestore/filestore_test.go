package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "credential.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore_SurvivesReopen_Golden(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.Get(ctx); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "persisted-token"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := New(s.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	raw, ok, err := reopened.Get(ctx)
	if err != nil || !ok || raw != "persisted-token" {
		t.Fatalf("reopened Get=%q,%v,%v", raw, ok, err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(s.Path())
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("perm=%o want 600", perm)
		}
	}

	if err := reopened.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Get(ctx); ok {
		t.Fatalf("credential survived Clear")
	}
	// clearing twice is fine
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := s.Get(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestStore_ConcurrentSetGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := s.Set(ctx, fmt.Sprintf("token-%d", i)); err != nil {
				t.Errorf("Set: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, _, err := s.Get(ctx); err != nil {
				t.Errorf("Get saw partial write: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestNew_EmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
