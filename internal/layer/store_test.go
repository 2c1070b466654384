package layer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"vectiler/internal/palette"
	"vectiler/internal/vector"
)

func sampleLayer(hex string) *vector.Layer {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties["color"] = hex
	fc.Append(f)

	table := palette.Build(fc.Features)
	vector.Annotate(fc, table)
	return &vector.Layer{Features: fc, Table: table}
}

func TestSaveLoad(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if s.Exists("roads") {
		t.Fatal("empty store reports a layer")
	}

	if err := s.Save("roads", sampleLayer("#FF0000")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists("roads") {
		t.Fatal("saved layer does not exist")
	}

	fc, table, err := s.Load("roads")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(fc.Features) != 1 || table.Index("#FF0000") != 1 {
		t.Errorf("loaded %d features, index %d", len(fc.Features), table.Index("#FF0000"))
	}
}

func TestSaveReplacesWholesale(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save("roads", sampleLayer("#FF0000")); err != nil {
		t.Fatal(err)
	}
	stray := filepath.Join(s.Dir("roads"), "stray")
	if err := os.WriteFile(stray, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Save("roads", sampleLayer("#00FF00")); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	_, table, err := s.Load("roads")
	if err != nil {
		t.Fatal(err)
	}
	if table.Index("#00FF00") != 1 || table.Index("#FF0000") != 0 {
		t.Errorf("table was not replaced: %v", table.Entries)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Error("files of the previous version survived")
	}

	entries, err := os.ReadDir(s.Root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("staging directories left behind: %v", entries)
	}
}

func TestLoadNotFound(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load = %v, want ErrNotFound", err)
	}
	if _, _, err := s.Load("../etc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load traversal = %v, want ErrNotFound", err)
	}
}

func TestValidID(t *testing.T) {
	for id, want := range map[string]bool{
		"roads": true, "my layer": true, "": false, ".": false, "..": false,
		".hidden": false, "a/b": false, `a\b`: false,
	} {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
	s, _ := NewStore(t.TempDir())
	if err := s.Save("../x", sampleLayer("#FFFFFF")); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Save with bad id = %v", err)
	}
}

func TestWriteLockExcludesReaders(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	unlock := s.Lock("roads")
	acquired := make(chan struct{})
	go func() {
		release := s.RLock("roads")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired the lock during ingest")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired the lock")
	}

	// other layers are independent
	unlock = s.Lock("roads")
	release := s.RLock("rivers")
	release()
	unlock()
}
