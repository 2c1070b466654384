package slicer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/maptile"
)

// Sink stores encoded tiles. Implementations must accept concurrent Put
// calls for different zoom levels.
type Sink interface {
	Put(t Tile) error
	Close() error
}

// Dir writes tiles as {z}/{x}/{y}.png under Root. Each zoom writes into its
// own subdirectory.
type Dir struct {
	Root string
}

// Path returns where t is stored.
func (d Dir) Path(t maptile.Tile) string {
	return TilePath(d.Root, int(t.Z), int(t.X), int(t.Y))
}

// Put 保存瓦片
func (d Dir) Put(t Tile) error {
	path := d.Path(t.T)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(path, t.C, 0o644)
}

// Close is a no-op.
func (d Dir) Close() error { return nil }

// TilePath builds root/{z}/{x}/{y}.png.
func TilePath(root string, z, x, y int) string {
	return filepath.Join(root, fmt.Sprintf(`%d`, z), fmt.Sprintf(`%d`, x), fmt.Sprintf(`%d.%s`, y, PNG))
}
