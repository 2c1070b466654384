package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestCreateUniqueSessions(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	const n = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions = make(map[string]*Session)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Create("layer")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			mu.Lock()
			sessions[s.Dir] = s
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(sessions) != n {
		t.Fatalf("got %d distinct sessions, want %d", len(sessions), n)
	}
	for dir, s := range sessions {
		if filepath.Dir(dir) != filepath.Join(m.Root, "layer") {
			t.Errorf("session %s not under the layer directory", dir)
		}
		if s.Artifact(".tif") != filepath.Join(dir, s.ID+".tif") {
			t.Errorf("Artifact = %s", s.Artifact(".tif"))
		}
	}
}

func TestDestroyIsolatedAndIdempotent(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	a, err := m.Create("layer")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create("layer")
	if err != nil {
		t.Fatal(err)
	}

	keep := b.Path("keep.png")
	if err := os.WriteFile(keep, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := a.Destroy(); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}

	if _, err := os.Stat(a.Dir); !os.IsNotExist(err) {
		t.Errorf("session dir still exists: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("other session's file disappeared: %v", err)
	}
	if _, err := os.Stat(filepath.Join(m.Root, "layer")); err != nil {
		t.Errorf("shared layer directory was removed: %v", err)
	}
}

func TestNewManagerEmptyRoot(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Error("expected error")
	}
}
