// Package raster burns Mercator vector features into georeferenced grids and
// stores them as deflate compressed TIFF files with a world file alongside.
package raster

import (
	"bufio"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"
)

// NoData 索引栅格的无数据值, 与缺省黑色索引重叠
const NoData = 0

// Raster is an image placed on the Mercator plane. Pixel (0, 0) is the
// north-west corner of Bound.
type Raster struct {
	Bound orb.Bound
	Res   float64
	Image image.Image
}

// Size returns the pixel dimensions needed to cover b at res.
func Size(b orb.Bound, res float64) (int, int) {
	w := int(math.Round((b.Max[0] - b.Min[0]) / res))
	h := int(math.Round((b.Max[1] - b.Min[1]) / res))
	return w, h
}

// PixelRect returns the pixel rectangle of b within r, not clipped to the
// raster bounds.
func (r *Raster) PixelRect(b orb.Bound) image.Rectangle {
	return image.Rect(
		int(math.Round((b.Min[0]-r.Bound.Min[0])/r.Res)),
		int(math.Round((r.Bound.Max[1]-b.Max[1])/r.Res)),
		int(math.Round((b.Max[0]-r.Bound.Min[0])/r.Res)),
		int(math.Round((r.Bound.Max[1]-b.Min[1])/r.Res)),
	)
}

// Write stores r at path as a deflate compressed TIFF and writes the world
// file next to it.
func Write(r *Raster, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	err = tiff.Encode(w, r.Image, &tiff.Options{Compression: tiff.Deflate})
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("raster: encode %s: %w", path, err)
	}
	return writeWorldFile(WorldFile(path), r)
}

// Read loads a raster written by Write.
func Read(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("raster: decode %s: %w", path, err)
	}
	res, originX, originY, err := readWorldFile(WorldFile(path))
	if err != nil {
		return nil, err
	}

	size := img.Bounds().Size()
	return &Raster{
		Bound: orb.Bound{
			Min: orb.Point{originX, originY - float64(size.Y)*res},
			Max: orb.Point{originX + float64(size.X)*res, originY},
		},
		Res:   res,
		Image: img,
	}, nil
}

// WorldFile 世界文件路径
func WorldFile(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".tfw"
}

// The six world file lines are pixel width, two rotation terms, negative
// pixel height and the center of the upper left pixel.
func writeWorldFile(path string, r *Raster) error {
	half := r.Res / 2
	lines := []float64{r.Res, 0, 0, -r.Res, r.Bound.Min[0] + half, r.Bound.Max[1] - half}

	var sb strings.Builder
	for _, v := range lines {
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func readWorldFile(path string) (res, originX, originY float64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 6 {
		return 0, 0, 0, fmt.Errorf("raster: world file %s has %d values", path, len(fields))
	}
	var v [6]float64
	for i, s := range fields {
		if v[i], err = strconv.ParseFloat(s, 64); err != nil {
			return 0, 0, 0, fmt.Errorf("raster: world file %s: %w", path, err)
		}
	}
	if v[1] != 0 || v[2] != 0 || v[0] <= 0 || v[0] != -v[3] {
		return 0, 0, 0, fmt.Errorf("raster: world file %s is not north-up square pixels", path)
	}
	res = v[0]
	return res, v[4] - res/2, v[5] + res/2, nil
}
