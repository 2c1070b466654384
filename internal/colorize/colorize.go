// Package colorize expands indexed rasters into RGBA rasters through a
// layer's persisted palette.
//
// The expansion goes through a View: a small JSON descriptor that points at
// the indexed raster and carries the palette, the same role a palette VRT
// plays in GDAL. Materialize turns the view into a concrete raster.
package colorize

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"

	"vectiler/internal/palette"
	"vectiler/internal/raster"
)

// ColorInterpPalette 调色板解释
const ColorInterpPalette = "Palette"

// View is a palette interpretation of an indexed raster.
type View struct {
	Source      string        `json:"source"`
	ColorInterp string        `json:"colorInterp"`
	NoData      int           `json:"noData"`
	ColorTable  []color.NRGBA `json:"colorTable"`
}

// NewView returns the palette view of the indexed raster at source.
func NewView(source string, table *palette.ColorTable) *View {
	entries := make([]color.NRGBA, len(table.Entries))
	copy(entries, table.Entries)
	return &View{
		Source:      source,
		ColorInterp: ColorInterpPalette,
		NoData:      raster.NoData,
		ColorTable:  entries,
	}
}

// Save writes the view descriptor to path.
func (v *View) Save(path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadView reads a descriptor written by Save.
func LoadView(path string) (*View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v := &View{}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("colorize: decode %s: %w", path, err)
	}
	if v.ColorInterp != ColorInterpPalette {
		return nil, fmt.Errorf("colorize: %s has color interpretation %q", path, v.ColorInterp)
	}
	return v, nil
}

// Materialize reads the source raster and expands it to RGBA.
func (v *View) Materialize() (*raster.Raster, error) {
	src, err := raster.Read(v.Source)
	if err != nil {
		return nil, err
	}
	gray, ok := src.Image.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("colorize: %s is %T, not a single band index raster", v.Source, src.Image)
	}
	return &raster.Raster{
		Bound: src.Bound,
		Res:   src.Res,
		Image: Expand(gray, v.ColorTable, uint8(v.NoData)),
	}, nil
}

// Expand replaces every index with its palette entry. The no-data index and
// indices past the end of the palette become fully transparent.
func Expand(src *image.Gray, entries []color.NRGBA, noData uint8) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	var lut [256]color.NRGBA
	for i, c := range entries {
		if i >= len(lut) {
			break
		}
		lut[i] = c
	}
	lut[noData] = color.NRGBA{}

	for y := 0; y < b.Dy(); y++ {
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		row := src.Pix[off : off+b.Dx()]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+4*b.Dx()]
		for x, idx := range row {
			c := lut[idx]
			out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = c.R, c.G, c.B, c.A
		}
	}
	return dst
}

// File materializes the view at viewPath into an RGBA raster at outPath.
func File(viewPath, outPath string) (*raster.Raster, error) {
	v, err := LoadView(viewPath)
	if err != nil {
		return nil, err
	}
	r, err := v.Materialize()
	if err != nil {
		return nil, err
	}
	if err := raster.Write(r, outPath); err != nil {
		return nil, err
	}
	return r, nil
}
