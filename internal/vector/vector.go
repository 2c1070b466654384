// Package vector prepares uploaded GeoJSON layers for rendering: it derives
// the color table, stamps each feature with its palette index and reprojects
// the geometry to spherical Mercator.
package vector

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"vectiler/internal/mercator"
	"vectiler/internal/palette"
)

// IndexKey 调色板索引属性名
const IndexKey = "c"

// CRS 坐标参考系
type CRS int

const (
	WGS84 CRS = iota
	WebMercator
)

// ErrUnsupportedCRS is returned for source projections other than WGS84 and
// Web Mercator.
var ErrUnsupportedCRS = errors.New("vector: unsupported source projection")

// ErrMalformedGeometry is returned for features whose geometry cannot be
// rendered.
var ErrMalformedGeometry = errors.New("vector: malformed geometry")

// Layer 预处理结果
type Layer struct {
	Features *geojson.FeatureCollection
	Table    *palette.ColorTable
}

// Load reads a GeoJSON FeatureCollection from path.
func Load(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vector: read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("vector: decode %s: %w", path, err)
	}
	return fc, nil
}

// Write stores fc as GeoJSON at path.
func Write(fc *geojson.FeatureCollection, path string) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Preprocess builds the color table of fc, annotates its features and
// reprojects them in place.
func Preprocess(fc *geojson.FeatureCollection) (*Layer, error) {
	crs, err := SourceCRS(fc)
	if err != nil {
		return nil, err
	}
	if err := Validate(fc); err != nil {
		return nil, err
	}

	table := palette.Build(fc.Features)
	if table.Len() > palette.MaxEntries {
		return nil, fmt.Errorf("vector: %d colors exceed the %d entry palette", table.Len()-1, palette.MaxEntries-1)
	}

	Annotate(fc, table)
	if crs == WGS84 {
		if err := checkLonLat(fc); err != nil {
			return nil, err
		}
		Reproject(fc)
	}
	setCRS(fc, "urn:ogc:def:crs:EPSG::3857")

	return &Layer{Features: fc, Table: table}, nil
}

// Annotate stores every feature's palette index under IndexKey. Features
// without a known color get 0.
func Annotate(fc *geojson.FeatureCollection, table *palette.ColorTable) {
	for _, f := range fc.Features {
		idx := 0
		if hex, ok := palette.FeatureColor(f); ok {
			idx = table.Index(hex)
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		f.Properties[IndexKey] = idx
	}
}

// Reproject converts WGS84 geometries to Web Mercator in place. Latitudes are
// clamped to the Mercator limit.
func Reproject(fc *geojson.FeatureCollection) {
	for _, f := range fc.Features {
		f.Geometry = project.Geometry(f.Geometry, toMercator)
		f.BBox = nil
	}
	fc.BBox = nil
}

func toMercator(p orb.Point) orb.Point {
	lat := math.Max(-mercator.MaxLatitude, math.Min(mercator.MaxLatitude, p[1]))
	return project.WGS84.ToMercator(orb.Point{p[0], lat})
}

// Validate rejects features with degenerate or non-finite geometry. A null
// geometry is allowed; such features are kept but never burned.
func Validate(fc *geojson.FeatureCollection) error {
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if err := checkGeometry(f.Geometry); err != nil {
			return fmt.Errorf("%w: feature %d: %v", ErrMalformedGeometry, i, err)
		}
	}
	return nil
}

func checkGeometry(g orb.Geometry) error {
	switch g := g.(type) {
	case orb.Point:
		return checkPoint(g)
	case orb.MultiPoint:
		for _, p := range g {
			if err := checkPoint(p); err != nil {
				return err
			}
		}
	case orb.LineString:
		if len(g) < 2 {
			return errors.New("line string needs two points")
		}
		return checkGeometry(orb.MultiPoint(g))
	case orb.MultiLineString:
		for _, ls := range g {
			if err := checkGeometry(ls); err != nil {
				return err
			}
		}
	case orb.Ring:
		if len(g) < 4 {
			return errors.New("ring needs four points")
		}
		return checkGeometry(orb.MultiPoint(g))
	case orb.Polygon:
		if len(g) == 0 {
			return errors.New("empty polygon")
		}
		for _, r := range g {
			if err := checkGeometry(r); err != nil {
				return err
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if err := checkGeometry(p); err != nil {
				return err
			}
		}
	case orb.Collection:
		for _, c := range g {
			if err := checkGeometry(c); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported geometry %T", g)
	}
	return nil
}

var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

func checkLonLat(fc *geojson.FeatureCollection) error {
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if !world.Contains(b.Min) || !world.Contains(b.Max) {
			return fmt.Errorf("%w: feature %d lies outside lon/lat range %v", ErrUnsupportedCRS, i, b)
		}
	}
	return nil
}

func checkPoint(p orb.Point) error {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite coordinate")
		}
	}
	return nil
}

// SourceCRS reads the legacy GeoJSON "crs" member. A missing member means
// WGS84 as RFC 7946 requires.
func SourceCRS(fc *geojson.FeatureCollection) (CRS, error) {
	raw, ok := fc.ExtraMembers["crs"]
	if !ok || raw == nil {
		return WGS84, nil
	}

	member, ok := raw.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("%w: malformed crs member", ErrUnsupportedCRS)
	}
	props, _ := member["properties"].(map[string]interface{})
	name, _ := props["name"].(string)

	switch normalizeCRS(name) {
	case "4326", "CRS84":
		return WGS84, nil
	case "3857", "900913", "102100":
		return WebMercator, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, name)
}

// normalizeCRS reduces "urn:ogc:def:crs:EPSG::3857", "EPSG:3857" and
// "urn:ogc:def:crs:OGC:1.3:CRS84" to their last component.
func normalizeCRS(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func setCRS(fc *geojson.FeatureCollection, name string) {
	if fc.ExtraMembers == nil {
		fc.ExtraMembers = geojson.Properties{}
	}
	fc.ExtraMembers["crs"] = map[string]interface{}{
		"type":       "name",
		"properties": map[string]interface{}{"name": name},
	}
}
