package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const square = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"color":"#3366CC"},
  "geometry":{"type":"Polygon","coordinates":[[[-170,10],[-100,10],[-100,60],[-170,60],[-170,10]]]}}]}`

func writeConf(t *testing.T, dir, format string) string {
	t.Helper()
	path := filepath.Join(dir, "conf.toml")
	content := fmt.Sprintf(`[output]
directory = %q
outputTerminal = false

[storage]
layers = %q
uploads = %q

[render]
tileSize = 32

[task]
workers = 2

[pyramid]
maxZoom = 2
format = %q
directory = %q
`, filepath.Join(dir, "out"), filepath.Join(dir, "handle"), filepath.Join(dir, "uploads"), format, filepath.Join(dir, "tiles"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))
	return cmd.Execute()
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestIngestTilePyramid(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConf(t, dir, "file")
	src := filepath.Join(dir, "square.geojson")
	if err := os.WriteFile(src, []byte(square), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(t, "-c", cfg, "-l", "warn", "ingest", src); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "handle", "square", "epsg3857.geojson")); err != nil {
		t.Errorf("layer not stored: %v", err)
	}

	out := filepath.Join(dir, "tile.png")
	if err := run(t, "-c", cfg, "tile", "square", "1", "0", "0", "-o", out); err != nil {
		t.Fatalf("tile: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("tile not written: %v", err)
	}
	if err := run(t, "-c", cfg, "tile", "square", "1", "1", "1", "-o", out); err == nil {
		t.Error("empty tile did not fail")
	}

	if err := run(t, "-c", cfg, "pyramid", "square", "-q"); err != nil {
		t.Fatalf("pyramid: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tiles", "square", "2", "0", "1.png")); err != nil {
		t.Errorf("pyramid tile missing: %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	if err := run(t, "-c", filepath.Join(t.TempDir(), "nope.toml"), "ingest", "x.geojson"); err == nil {
		t.Error("missing explicit config did not fail")
	}
}

func TestSafeExitRunsOnce(t *testing.T) {
	s := &SafeExit{}
	var calls []int
	s.Register(func() { calls = append(calls, 1) })
	s.Register(func() { calls = append(calls, 2) })
	s.Exit()
	s.Exit()
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("calls = %v", calls)
	}
}
