// Package mercator holds the tile math of the spherical Mercator (EPSG:3857)
// tiling scheme. Everything here is pure: no state, no I/O.
package mercator

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// EarthRadius 赤道半径(米)
const EarthRadius = 6378137.0

// OriginShift 半个世界宽度(米)
const OriginShift = math.Pi * EarthRadius

// MaxLatitude Mercator 可表示的最大纬度
const MaxLatitude = 85.05112877980659

// ZoomMax 最大级别
const ZoomMax = 24

// DefaultTileSize 默认瓦片大小
const DefaultTileSize = 512

// Grid is a square world extent subdivided by powers of two into tiles of
// TileSize pixels.
type Grid struct {
	TileSize int
}

// Default is the 512 px grid tiles are served in.
var Default = Grid{TileSize: DefaultTileSize}

// InitialResolution 0级分辨率(米/像素)
func (g Grid) InitialResolution() float64 {
	return 2 * OriginShift / float64(g.TileSize)
}

// Resolution returns meters per pixel at zoom. Each zoom increment halves it.
func (g Grid) Resolution(zoom int) float64 {
	return math.Ldexp(g.InitialResolution(), -zoom)
}

// TileSpan returns the width of one tile at zoom in meters.
func TileSpan(zoom int) float64 {
	return math.Ldexp(2*OriginShift, -zoom)
}

// TileBounds returns the planar extent of tile (x, y) at zoom, counting y up
// from the bottom-left corner of the world.
func TileBounds(x, y, zoom int) orb.Bound {
	span := TileSpan(zoom)
	minX := float64(x)*span - OriginShift
	minY := float64(y)*span - OriginShift
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{minX + span, minY + span},
	}
}

// ToOriginTopLeft converts bottom-left indexing to XYZ indexing. The
// transform is its own inverse.
func ToOriginTopLeft(x, y, zoom int) (int, int) {
	return x, (1 << uint(zoom)) - 1 - y
}

// FromOriginTopLeft converts XYZ indexing back to bottom-left indexing.
func FromOriginTopLeft(x, y, zoom int) (int, int) {
	return ToOriginTopLeft(x, y, zoom)
}

// XYZBounds returns the planar extent of an XYZ addressed tile.
func XYZBounds(t maptile.Tile) orb.Bound {
	x, y := FromOriginTopLeft(int(t.X), int(t.Y), int(t.Z))
	return TileBounds(x, y, int(t.Z))
}

// Valid reports whether (x, y, zoom) addresses an existing tile.
func Valid(x, y, zoom int) bool {
	if zoom < 0 || zoom > ZoomMax {
		return false
	}
	n := 1 << uint(zoom)
	return x >= 0 && x < n && y >= 0 && y < n
}

// Covering returns the XYZ tiles at zoom whose extent overlaps b by more
// than an edge.
func Covering(b orb.Bound, zoom int) []maptile.Tile {
	span := TileSpan(zoom)
	n := 1 << uint(zoom)
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}

	// 边界上的像素不属于下一块瓦片
	const eps = 1e-6
	minX := clamp(int(math.Floor((b.Min[0] + OriginShift) / span)))
	maxX := clamp(int(math.Floor((b.Max[0]+OriginShift)/span - eps)))
	minY := clamp(int(math.Floor((b.Min[1] + OriginShift) / span)))
	maxY := clamp(int(math.Floor((b.Max[1]+OriginShift)/span - eps)))

	var tiles []maptile.Tile
	for y := maxY; y >= minY; y-- {
		for x := minX; x <= maxX; x++ {
			tx, ty := ToOriginTopLeft(x, y, zoom)
			tiles = append(tiles, maptile.New(uint32(tx), uint32(ty), maptile.Zoom(zoom)))
		}
	}
	return tiles
}
