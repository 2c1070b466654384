package conf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Render.TileSize != 512 || c.Render.Supersample != 2 {
		t.Errorf("render defaults = %+v", c.Render)
	}
	if c.Render.DirectColor != "#808080" {
		t.Errorf("direct color = %q", c.Render.DirectColor)
	}
	if c.Storage.Layers != "handle" || c.Output.Directory != "out" {
		t.Errorf("storage defaults = %+v %+v", c.Storage, c.Output)
	}
	if c.Task.Workers != 4 {
		t.Errorf("workers = %d", c.Task.Workers)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.toml")
	data := `
[output]
directory = "/tmp/render"
outputTerminal = false

[render]
supersample = 1
directColor = "#4B4B64"

[pyramid]
onIngest = true
maxZoom = 3
format = "mbtiles"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Output.Directory != "/tmp/render" || c.Output.OutputTerminal {
		t.Errorf("output = %+v", c.Output)
	}
	if c.Render.Supersample != 1 || c.Render.DirectColor != "#4B4B64" || c.Render.TileSize != 512 {
		t.Errorf("render = %+v", c.Render)
	}
	if !c.Pyramid.OnIngest || c.Pyramid.MaxZoom != 3 || c.Pyramid.Format != "mbtiles" {
		t.Errorf("pyramid = %+v", c.Pyramid)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[render]\nsupersample = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}
