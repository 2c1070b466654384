// Package slicer cuts colored rasters into XYZ addressed PNG tiles and runs
// whole-pyramid generation over a fixed-size worker pool.
package slicer

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/paulmach/orb"
	xdraw "golang.org/x/image/draw"

	"vectiler/internal/mercator"
	"vectiler/internal/raster"
)

// Resampling 重采样方式
type Resampling string

const (
	Average    Resampling = "average"
	Nearest    Resampling = "nearest"
	Bilinear   Resampling = "bilinear"
	CatmullRom Resampling = "catmullrom"
)

// ParseResampling validates a resampling name. Empty means Average.
func ParseResampling(s string) (Resampling, error) {
	switch r := Resampling(s); r {
	case "":
		return Average, nil
	case Average, Nearest, Bilinear, CatmullRom:
		return r, nil
	}
	return "", fmt.Errorf("slicer: unknown resampling %q", s)
}

func (r Resampling) interpolator() xdraw.Interpolator {
	switch r {
	case Nearest:
		return xdraw.NearestNeighbor
	case Bilinear:
		return xdraw.BiLinear
	}
	return xdraw.CatmullRom
}

// Options 切片参数
type Options struct {
	TileSize   int
	Resampling Resampling
}

var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// Slice writes every non-empty tile at zoom that r overlaps into sink and
// returns the tiles written. r must be an RGBA raster in Web Mercator.
func Slice(r *raster.Raster, zoom int, sink Sink, opts Options) ([]Tile, error) {
	if opts.TileSize <= 0 {
		opts.TileSize = mercator.DefaultTileSize
	}

	var written []Tile
	for _, t := range mercator.Covering(r.Bound, zoom) {
		img := Cut(r, mercator.XYZBounds(t), opts)
		if img == nil {
			continue
		}

		var buf bytes.Buffer
		if err := encoder.Encode(&buf, img); err != nil {
			return written, fmt.Errorf("slicer: encode %v: %w", t, err)
		}
		tile := Tile{T: t, C: buf.Bytes()}
		if err := sink.Put(tile); err != nil {
			return written, fmt.Errorf("slicer: store %v: %w", t, err)
		}
		written = append(written, tile)
	}
	return written, nil
}

// Cut resamples the part of r inside the tile extent tb into a TileSize
// square. It returns nil when the result has no visible pixel.
func Cut(r *raster.Raster, tb orb.Bound, opts Options) *image.NRGBA {
	size := opts.TileSize
	if size <= 0 {
		size = mercator.DefaultTileSize
	}

	full := r.PixelRect(tb)
	sr := full.Intersect(r.Image.Bounds())
	if sr.Empty() || full.Dx() <= 0 || full.Dy() <= 0 {
		return nil
	}

	// 目标范围按源像素与整块瓦片的比例换算
	dr := image.Rect(
		(sr.Min.X-full.Min.X)*size/full.Dx(),
		(sr.Min.Y-full.Min.Y)*size/full.Dy(),
		(sr.Max.X-full.Min.X)*size/full.Dx(),
		(sr.Max.Y-full.Min.Y)*size/full.Dy(),
	)
	if dr.Empty() {
		return nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	if opts.Resampling == Average || opts.Resampling == "" {
		if !boxDownsample(dst, dr, r.Image, sr) {
			CatmullRom.interpolator().Scale(dst, dr, r.Image, sr, xdraw.Src, nil)
		}
	} else {
		opts.Resampling.interpolator().Scale(dst, dr, r.Image, sr, xdraw.Src, nil)
	}

	if !visible(dst) {
		return nil
	}
	return dst
}

func visible(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			return true
		}
	}
	return false
}

// boxDownsample averages f×f source blocks into each destination pixel with
// alpha weighting. It only handles whole factors and reports false otherwise.
func boxDownsample(dst *image.NRGBA, dr image.Rectangle, src image.Image, sr image.Rectangle) bool {
	if sr.Dx()%dr.Dx() != 0 || sr.Dy()%dr.Dy() != 0 {
		return false
	}
	f := sr.Dx() / dr.Dx()
	if sr.Dy()/dr.Dy() != f {
		return false
	}
	nsrc, ok := src.(*image.NRGBA)
	if !ok {
		nsrc = image.NewNRGBA(sr)
		xdraw.Copy(nsrc, sr.Min, src, sr, xdraw.Src, nil)
	}

	n := uint32(f * f)
	for dy := 0; dy < dr.Dy(); dy++ {
		for dx := 0; dx < dr.Dx(); dx++ {
			var r, g, b, a uint32
			for sy := 0; sy < f; sy++ {
				off := nsrc.PixOffset(sr.Min.X+dx*f, sr.Min.Y+dy*f+sy)
				for sx := 0; sx < f; sx++ {
					p := nsrc.Pix[off+4*sx : off+4*sx+4]
					pa := uint32(p[3])
					r += uint32(p[0]) * pa
					g += uint32(p[1]) * pa
					b += uint32(p[2]) * pa
					a += pa
				}
			}
			if a == 0 {
				continue
			}
			o := dst.PixOffset(dr.Min.X+dx, dr.Min.Y+dy)
			dst.Pix[o] = uint8((r + a/2) / a)
			dst.Pix[o+1] = uint8((g + a/2) / a)
			dst.Pix[o+2] = uint8((b + a/2) / a)
			dst.Pix[o+3] = uint8((a + n/2) / n)
		}
	}
	return true
}
