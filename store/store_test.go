package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// every backend must behave identically
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFsStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFsStore failed: %v", err)
	}

	sqlite, err := NewSqlStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSqlStore failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"fs":     fs,
		"memory": NewMemStore(),
		"sqlite": sqlite,
	}
}

func TestStoreRoundtrip(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			in := record{Name: "alice", Count: 3}
			if err := st.Put("actors", "alice", &in); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			var out record
			if err := st.Get("actors", "alice", &out); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if out != in {
				t.Errorf("Roundtrip mismatch: %+v != %+v", out, in)
			}
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var out record
			if err := st.Get("actors", "nobody", &out); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreUriKeys(t *testing.T) {
	key := "https://mastodon.social/@bob#main-key"

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Put("remote-actors/public-keys", key, &record{Name: "key"}); err != nil {
				t.Fatalf("Put with URI key failed: %v", err)
			}

			var out record
			if err := st.Get("remote-actors/public-keys", key, &out); err != nil {
				t.Fatalf("Get with URI key failed: %v", err)
			}

			keys, err := st.List("remote-actors/public-keys")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(keys) != 1 || keys[0] != key {
				t.Errorf("List must return the decoded key, got %v", keys)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st.Put("likes", "a1", &record{})
			if err := st.Delete("likes", "a1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}

			var out record
			if err := st.Get("likes", "a1", &out); err != ErrNotFound {
				t.Errorf("Record should be gone, got %v", err)
			}

			// deleting a missing record is a no-op
			if err := st.Delete("likes", "a1"); err != nil {
				t.Errorf("Second delete should not error: %v", err)
			}
		})
	}
}

func TestStoreListEmptyNamespace(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			keys, err := st.List("nothing-here")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(keys) != 0 {
				t.Errorf("Expected empty list, got %v", keys)
			}
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st.Put("actors", "alice", &record{Count: 1})
			st.Put("actors", "alice", &record{Count: 2})

			var out record
			if err := st.Get("actors", "alice", &out); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if out.Count != 2 {
				t.Errorf("Last write must win, got %d", out.Count)
			}

			keys, _ := st.List("actors")
			if len(keys) != 1 {
				t.Errorf("Overwrite must not duplicate keys: %v", keys)
			}
		})
	}
}

func TestFsStoreCorruptRecordTreatedAsMissing(t *testing.T) {
	root := t.TempDir()
	st, err := NewFsStore(root)
	if err != nil {
		t.Fatalf("NewFsStore failed: %v", err)
	}

	st.Put("actors", "alice", &record{Name: "ok"})

	// corrupt the file on disk
	path := filepath.Join(root, "actors", "alice.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatalf("Failed to corrupt file: %v", err)
	}

	var out record
	if err := st.Get("actors", "alice", &out); err != ErrNotFound {
		t.Errorf("Corrupt record must read as missing, got %v", err)
	}

	// the file is quarantined in place, not deleted
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Corrupt file must be left on disk: %v", err)
	}
}

func TestNamespaceLockSerializesWriters(t *testing.T) {
	locks := NewNamespaceLock()
	st := NewMemStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := locks.Lock("followers", "alice")
			defer unlock()

			var out record
			if err := st.Get("followers", "alice", &out); err != nil && err != ErrNotFound {
				t.Errorf("Get failed: %v", err)
				return
			}
			out.Count++
			if err := st.Put("followers", "alice", &out); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}()
	}
	wg.Wait()

	var out record
	if err := st.Get("followers", "alice", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.Count != 50 {
		t.Errorf("Lost updates: got %d want 50", out.Count)
	}
}
