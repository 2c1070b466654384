package slicer

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// PNG 瓦片格式
const PNG = "png"

// Tile 自定义瓦片存储
type Tile struct {
	T maptile.Tile
	C []byte
}

// Key 瓦片记录键
func Key(t maptile.Tile) string {
	return fmt.Sprintf("%d-%d-%d", t.X, t.Y, t.Z)
}
