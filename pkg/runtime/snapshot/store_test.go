package snapshot_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/snapshot"
)

// openStores builds one store of each implementation, closed via t.Cleanup.
func openStores(t *testing.T) map[string]snapshot.Store {
	t.Helper()

	sqlite, err := snapshot.NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}

	stores := map[string]snapshot.Store{
		"memory": snapshot.NewMemoryStore(),
		"sqlite": sqlite,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestSaveLoadRoundtrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			blob := []byte(`{"cursor":42}`)
			if err := store.Save("acme", "reviewer", "snap-1", blob); err != nil {
				t.Fatalf("save: %v", err)
			}

			loaded, err := store.Load("acme", "reviewer", "snap-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if string(loaded) != string(blob) {
				t.Errorf("expected %s, got %s", blob, loaded)
			}
		})
	}
}

func TestSaveOverwrites(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			store.Save("acme", "reviewer", "snap-1", []byte("v1"))
			store.Save("acme", "reviewer", "snap-1", []byte("v2"))

			loaded, err := store.Load("acme", "reviewer", "snap-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if string(loaded) != "v2" {
				t.Errorf("expected overwrite, got %s", loaded)
			}

			infos, err := store.List("acme", "reviewer")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 1 {
				t.Errorf("expected 1 snapshot after overwrite, got %d", len(infos))
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load("acme", "reviewer", "nope")
			if !errors.Is(err, snapshot.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			store.Save("acme", "reviewer", "old", []byte("1"))
			time.Sleep(5 * time.Millisecond) // distinct timestamps
			store.Save("acme", "reviewer", "new", []byte("22"))

			infos, err := store.List("acme", "reviewer")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("expected 2 snapshots, got %d", len(infos))
			}
			if infos[0].SnapshotID != "new" {
				t.Errorf("expected newest first, got %s", infos[0].SnapshotID)
			}
			if infos[1].Size != 1 {
				t.Errorf("expected size 1, got %d", infos[1].Size)
			}
		})
	}
}

func TestListEmptyAgent(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			infos, err := store.List("acme", "unknown")
			if err != nil {
				t.Fatalf("expected empty list without error, got %v", err)
			}
			if len(infos) != 0 {
				t.Errorf("expected no snapshots, got %d", len(infos))
			}
		})
	}
}

func TestDeleteAndDeleteAgent(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			store.Save("acme", "reviewer", "snap-1", []byte("1"))
			store.Save("acme", "reviewer", "snap-2", []byte("2"))
			store.Save("acme", "linter", "snap-1", []byte("3"))

			if err := store.Delete("acme", "reviewer", "snap-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.Load("acme", "reviewer", "snap-1"); !errors.Is(err, snapshot.ErrNotFound) {
				t.Errorf("expected deleted snapshot gone, got %v", err)
			}

			// Deleting a missing snapshot is not an error.
			if err := store.Delete("acme", "reviewer", "snap-1"); err != nil {
				t.Errorf("expected idempotent delete, got %v", err)
			}

			if err := store.DeleteAgent("acme", "reviewer"); err != nil {
				t.Fatalf("delete agent: %v", err)
			}
			infos, _ := store.List("acme", "reviewer")
			if len(infos) != 0 {
				t.Errorf("expected all agent snapshots removed, got %d", len(infos))
			}

			// Other agents are untouched.
			if _, err := store.Load("acme", "linter", "snap-1"); err != nil {
				t.Errorf("expected other agent intact, got %v", err)
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			store.Save("acme", "reviewer", "snap-1", []byte("1"))
			if err := store.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			if err := store.Save("acme", "reviewer", "snap-2", nil); !errors.Is(err, snapshot.ErrStoreClosed) {
				t.Errorf("expected ErrStoreClosed on save, got %v", err)
			}
			if _, err := store.Load("acme", "reviewer", "snap-1"); !errors.Is(err, snapshot.ErrStoreClosed) {
				t.Errorf("expected ErrStoreClosed on load, got %v", err)
			}
		})
	}
}

func TestMemoryStoreIsolatesCallerSlice(t *testing.T) {
	store := snapshot.NewMemoryStore()
	defer store.Close()

	blob := []byte("original")
	store.Save("acme", "reviewer", "snap-1", blob)
	blob[0] = 'X'

	loaded, err := store.Load("acme", "reviewer", "snap-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(loaded) != "original" {
		t.Errorf("expected stored blob isolated from caller mutation, got %s", loaded)
	}
}
