package vector

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FlatGeobufExt 二进制要素文件扩展名
const FlatGeobufExt = ".fgb"

// ErrNoIndex is returned for FlatGeobuf files written without a spatial
// index; their features cannot be enumerated.
var ErrNoIndex = errors.New("vector: flatgeobuf file has no spatial index")

// Open reads a layer file, FlatGeobuf when path ends in .fgb and GeoJSON
// otherwise.
func Open(path string) (*geojson.FeatureCollection, error) {
	if strings.EqualFold(filepath.Ext(path), FlatGeobufExt) {
		return LoadFlatGeobuf(path)
	}
	return Load(path)
}

// LoadFlatGeobuf reads every feature of a FlatGeobuf file. The header CRS, if
// any, is carried over as a GeoJSON "crs" member.
func LoadFlatGeobuf(path string) (fc *geojson.FeatureCollection, err error) {
	defer func() {
		// flatbuffers 访问越界时会 panic
		if r := recover(); r != nil {
			fc, err = nil, fmt.Errorf("vector: decode %s: %v", path, r)
		}
	}()

	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("vector: read %s: %w", path, err)
	}
	h := fgb.Header()
	if h == nil {
		return nil, fmt.Errorf("vector: decode %s: no header", path)
	}

	fc = geojson.NewFeatureCollection()
	var crs flattypes.Crs
	if h.Crs(&crs) != nil && crs.Code() != 0 {
		setCRS(fc, fmt.Sprintf("EPSG:%d", crs.Code()))
	}
	if h.FeaturesCount() == 0 {
		return fc, nil
	}
	if h.IndexNodeSize() == 0 || h.EnvelopeLength() < 4 {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, path)
	}

	features, err := fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
	if err != nil {
		return nil, fmt.Errorf("vector: decode %s: %w", path, err)
	}
	for _, f := range features {
		var g flattypes.Geometry
		geom := f.Geometry(&g)
		if geom == nil {
			continue
		}
		feature := geojson.NewFeature(fgbGeometry(geom))
		if n := f.PropertiesLength(); n > 0 {
			data := make([]byte, n)
			for i := range data {
				data[i] = byte(f.Properties(i))
			}
			feature.Properties = fgbProperties(data, h)
		}
		fc.Append(feature)
	}
	return fc, nil
}

func fgbGeometry(g *flattypes.Geometry) orb.Geometry {
	switch g.Type() {
	case flattypes.GeometryTypePoint:
		if pts := fgbPoints(g, 0, uint32(g.XyLength()/2)); len(pts) > 0 {
			return pts[0]
		}
		return orb.Point{}
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(fgbPoints(g, 0, uint32(g.XyLength()/2)))
	case flattypes.GeometryTypeLineString:
		return orb.LineString(fgbPoints(g, 0, uint32(g.XyLength()/2)))
	case flattypes.GeometryTypeMultiLineString:
		var mls orb.MultiLineString
		for _, part := range fgbParts(g) {
			mls = append(mls, orb.LineString(part))
		}
		return mls
	case flattypes.GeometryTypePolygon:
		return fgbPolygon(g)
	case flattypes.GeometryTypeMultiPolygon:
		var mp orb.MultiPolygon
		if g.PartsLength() == 0 {
			return append(mp, fgbPolygon(g))
		}
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				mp = append(mp, fgbPolygon(&part))
			}
		}
		return mp
	case flattypes.GeometryTypeGeometryCollection:
		var c orb.Collection
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := fgbGeometry(&part); child != nil {
					c = append(c, child)
				}
			}
		}
		return c
	}
	return nil
}

func fgbPolygon(g *flattypes.Geometry) orb.Polygon {
	var poly orb.Polygon
	for _, part := range fgbParts(g) {
		poly = append(poly, orb.Ring(part))
	}
	return poly
}

// fgbParts splits the coordinates of g at its ends offsets. Without ends the
// whole coordinate list is one part.
func fgbParts(g *flattypes.Geometry) [][]orb.Point {
	n := uint32(g.XyLength() / 2)
	if g.EndsLength() == 0 {
		return [][]orb.Point{fgbPoints(g, 0, n)}
	}
	parts := make([][]orb.Point, 0, g.EndsLength())
	start := uint32(0)
	for i := 0; i < g.EndsLength(); i++ {
		end := g.Ends(i)
		if end > n {
			end = n
		}
		parts = append(parts, fgbPoints(g, start, end))
		start = end
	}
	return parts
}

func fgbPoints(g *flattypes.Geometry, start, end uint32) []orb.Point {
	if end < start {
		return nil
	}
	pts := make([]orb.Point, 0, end-start)
	for i := int(start); i < int(end); i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// fgbProperties decodes the property buffer of a feature: a sequence of
// little endian uint16 column indices, each followed by its value.
func fgbProperties(data []byte, h *flattypes.Header) geojson.Properties {
	props := make(geojson.Properties)
	for off := 0; off+2 <= len(data); {
		idx := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2

		var col flattypes.Column
		if idx >= h.ColumnsLength() || !h.Columns(&col, idx) {
			break
		}
		v, n := fgbValue(data[off:], col.Type())
		if n == 0 {
			break
		}
		off += n
		props[string(col.Name())] = v
	}
	return props
}

func fgbValue(data []byte, t flattypes.ColumnType) (interface{}, int) {
	fixed := func(n int) bool { return len(data) >= n }
	switch t {
	case flattypes.ColumnTypeBool:
		if fixed(1) {
			return data[0] != 0, 1
		}
	case flattypes.ColumnTypeByte:
		if fixed(1) {
			return int64(int8(data[0])), 1
		}
	case flattypes.ColumnTypeUByte:
		if fixed(1) {
			return int64(data[0]), 1
		}
	case flattypes.ColumnTypeShort:
		if fixed(2) {
			return int64(int16(binary.LittleEndian.Uint16(data))), 2
		}
	case flattypes.ColumnTypeUShort:
		if fixed(2) {
			return int64(binary.LittleEndian.Uint16(data)), 2
		}
	case flattypes.ColumnTypeInt:
		if fixed(4) {
			return int64(int32(binary.LittleEndian.Uint32(data))), 4
		}
	case flattypes.ColumnTypeUInt:
		if fixed(4) {
			return int64(binary.LittleEndian.Uint32(data)), 4
		}
	case flattypes.ColumnTypeLong:
		if fixed(8) {
			return int64(binary.LittleEndian.Uint64(data)), 8
		}
	case flattypes.ColumnTypeULong:
		if fixed(8) {
			return float64(binary.LittleEndian.Uint64(data)), 8
		}
	case flattypes.ColumnTypeFloat:
		if fixed(4) {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4
		}
	case flattypes.ColumnTypeDouble:
		if fixed(8) {
			return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8
		}
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson, flattypes.ColumnTypeBinary:
		// uint32 长度前缀
		if !fixed(4) {
			break
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			break
		}
		raw := data[4 : 4+n]
		switch t {
		case flattypes.ColumnTypeJson:
			var v interface{}
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, 4 + n
			}
			return string(raw), 4 + n
		case flattypes.ColumnTypeBinary:
			return append([]byte(nil), raw...), 4 + n
		}
		return string(raw), 4 + n
	}
	return nil, 0
}
