package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/vector"
)

// Mode 烧录方式
type Mode int

const (
	// Indexed burns each feature's palette index into a single band.
	Indexed Mode = iota
	// Direct burns one fixed color into an RGBA raster.
	Direct
)

func (m Mode) String() string {
	switch m {
	case Indexed:
		return "indexed"
	case Direct:
		return "direct"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Options 栅格化参数
type Options struct {
	Mode Mode
	// Color is the foreground of Direct mode.
	Color color.NRGBA
	// Attribute holds the palette index in Indexed mode.
	Attribute string
}

// Rasterize burns features into a grid covering bound at res. Later features
// overwrite earlier ones. It returns the raster and the number of features
// that touched it; zero is not an error.
func Rasterize(features []*geojson.Feature, bound orb.Bound, res float64, opts Options) (*Raster, int, error) {
	w, h := Size(bound, res)
	if w <= 0 || h <= 0 {
		return nil, 0, fmt.Errorf("raster: empty grid %dx%d for %v at %v", w, h, bound, res)
	}

	b := &burner{bound: bound, res: res, w: w, h: h}
	switch opts.Mode {
	case Indexed:
		b.gray = image.NewGray(image.Rect(0, 0, w, h))
	case Direct:
		b.rgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		b.fg = opts.Color
	default:
		return nil, 0, fmt.Errorf("raster: unknown mode %v", opts.Mode)
	}

	burned := 0
	for _, f := range features {
		if f == nil || f.Geometry == nil || !f.Geometry.Bound().Intersects(bound) {
			continue
		}
		if opts.Mode == Indexed {
			b.value = attributeValue(f, opts.Attribute)
		}
		// clip 会修改输入, 先复制
		g := clip.Geometry(bound, orb.Clone(f.Geometry))
		if g == nil {
			continue
		}
		if b.geometry(g) {
			burned++
		}
	}

	r := &Raster{Bound: bound, Res: res, Image: b.gray}
	if opts.Mode == Direct {
		r.Image = b.rgba
	}
	return r, burned, nil
}

func attributeValue(f *geojson.Feature, key string) uint8 {
	var v float64
	switch n := f.Properties[key].(type) {
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case float64:
		v = n
	default:
		return NoData
	}
	if v < 0 || v > math.MaxUint8 || math.IsNaN(v) {
		return NoData
	}
	return uint8(v)
}

type burner struct {
	bound orb.Bound
	res   float64
	w, h  int

	gray  *image.Gray
	value uint8
	rgba  *image.NRGBA
	fg    color.NRGBA

	z    *vector.Rasterizer
	mask *image.Alpha
}

// toPixel maps a Mercator point to fractional pixel coordinates.
func (b *burner) toPixel(p orb.Point) (float64, float64) {
	return (p[0] - b.bound.Min[0]) / b.res, (b.bound.Max[1] - p[1]) / b.res
}

func (b *burner) set(x, y int) bool {
	if x < 0 || y < 0 || x >= b.w || y >= b.h {
		return false
	}
	if b.gray != nil {
		b.gray.Pix[y*b.gray.Stride+x] = b.value
	} else {
		b.rgba.SetNRGBA(x, y, b.fg)
	}
	return true
}

func (b *burner) geometry(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.Point:
		x, y := b.toPixel(g)
		return b.set(int(math.Floor(x)), int(math.Floor(y)))
	case orb.MultiPoint:
		hit := false
		for _, p := range g {
			hit = b.geometry(p) || hit
		}
		return hit
	case orb.LineString:
		hit := false
		for i := 1; i < len(g); i++ {
			hit = b.segment(g[i-1], g[i]) || hit
		}
		if len(g) == 1 {
			hit = b.geometry(g[0])
		}
		return hit
	case orb.MultiLineString:
		hit := false
		for _, ls := range g {
			hit = b.geometry(ls) || hit
		}
		return hit
	case orb.Ring:
		return b.fill(orb.MultiPolygon{{g}})
	case orb.Polygon:
		return b.fill(orb.MultiPolygon{g})
	case orb.MultiPolygon:
		return b.fill(g)
	case orb.Collection:
		hit := false
		for _, c := range g {
			hit = b.geometry(c) || hit
		}
		return hit
	case orb.Bound:
		return b.fill(orb.MultiPolygon{g.ToPolygon()})
	}
	return false
}

// segment burns every pixel the segment passes through, sampling twice per
// pixel step.
func (b *burner) segment(p0, p1 orb.Point) bool {
	x0, y0 := b.toPixel(p0)
	x1, y1 := b.toPixel(p1)
	n := int(math.Ceil(2*math.Max(math.Abs(x1-x0), math.Abs(y1-y0)))) + 1

	hit := false
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		x := int(math.Floor(x0 + t*(x1-x0)))
		y := int(math.Floor(y0 + t*(y1-y0)))
		hit = b.set(x, y) || hit
	}
	return hit
}

// fill scan converts polygons and burns pixels whose coverage is at least
// half, which approximates a pixel center test.
func (b *burner) fill(mp orb.MultiPolygon) bool {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, poly := range mp {
		for _, ring := range poly {
			for _, p := range ring {
				x, y := b.toPixel(p)
				minX, maxX = math.Min(minX, x), math.Max(maxX, x)
				minY, maxY = math.Min(minY, y), math.Max(maxY, y)
			}
		}
	}
	r := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY)),
	).Intersect(image.Rect(0, 0, b.w, b.h))
	if r.Empty() {
		return false
	}

	size := r.Size()
	if b.z == nil {
		b.z = vector.NewRasterizer(size.X, size.Y)
	} else {
		b.z.Reset(size.X, size.Y)
	}
	b.z.DrawOp = draw.Src

	for _, poly := range mp {
		for i, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			// 外环逆时针, 内环顺时针, 使洞的覆盖率相互抵消
			want := orb.CCW
			if i > 0 {
				want = orb.CW
			}
			if ring.Orientation() != want {
				ring = reversed(ring)
			}

			for j, p := range ring {
				x, y := b.toPixel(p)
				fx, fy := float32(x-float64(r.Min.X)), float32(y-float64(r.Min.Y))
				if j == 0 {
					b.z.MoveTo(fx, fy)
				} else {
					b.z.LineTo(fx, fy)
				}
			}
			b.z.ClosePath()
		}
	}

	// the rasterizer writes the mask as one contiguous w*h block
	if b.mask == nil || b.mask.Rect.Size() != size {
		b.mask = image.NewAlpha(image.Rect(0, 0, size.X, size.Y))
	}
	mask := b.mask
	b.z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	hit := false
	for y := 0; y < size.Y; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+size.X]
		for x, a := range row {
			if a >= 0x80 {
				hit = b.set(r.Min.X+x, r.Min.Y+y) || hit
			}
		}
	}
	return hit
}

func reversed(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}
