package vector

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

type fgbFeature struct {
	geom  orb.Polygon
	color string
}

// fgbGenerator feeds polygons with a single string "color" column to the
// flatgeobuf writer.
type fgbGenerator struct {
	features []fgbFeature
	i        int
}

func (g *fgbGenerator) Generate() *writer.Feature {
	if g.i >= len(g.features) {
		return nil
	}
	f := g.features[g.i]
	g.i++

	b := flatbuffers.NewBuilder(1024)
	geom := writer.NewGeometry(b)
	geom.SetType(flattypes.GeometryTypePolygon)
	var (
		xy   []float64
		ends []uint32
	)
	for _, r := range f.geom {
		for _, p := range r {
			xy = append(xy, p[0], p[1])
		}
		ends = append(ends, uint32(len(xy)/2))
	}
	geom.SetXY(xy)
	geom.SetEnds(ends)

	feature := writer.NewFeature(b)
	feature.SetGeometry(geom)
	if f.color != "" {
		props := make([]byte, 6, 6+len(f.color))
		binary.LittleEndian.PutUint16(props, 0)
		binary.LittleEndian.PutUint32(props[2:], uint32(len(f.color)))
		feature.SetProperties(append(props, f.color...))
	}
	return feature
}

func writeFGB(t *testing.T, path string, epsg int32, features ...fgbFeature) {
	t.Helper()
	b := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(b)
	header.SetGeometryType(flattypes.GeometryTypePolygon)
	header.SetName("test")

	col := writer.NewColumn(b)
	col.SetName("color")
	col.SetType(flattypes.ColumnTypeString)
	col.SetNullable(true)
	header.SetColumns([]*writer.Column{col})

	if epsg != 0 {
		crs := writer.NewCrs(b)
		crs.SetOrg("EPSG")
		crs.SetCode(epsg)
		header.SetCrs(crs)
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	w := writer.NewWriter(header, true, &fgbGenerator{features: features}, nil)
	if _, err := w.Write(file); err != nil {
		t.Fatalf("write fgb: %v", err)
	}
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func TestOpenFlatGeobuf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "squares.fgb")
	writeFGB(t, path, 4326,
		fgbFeature{square(10, 10, 5), "#FF0000"},
		fgbFeature{square(30, 10, 5), "#00FF00"},
		fgbFeature{square(50, 10, 5), ""},
	)

	fc, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("read %d features, want 3", len(fc.Features))
	}
	colors := map[string]bool{}
	for _, f := range fc.Features {
		if _, ok := f.Geometry.(orb.Polygon); !ok {
			t.Errorf("geometry is %T", f.Geometry)
		}
		if c, ok := f.Properties["color"].(string); ok {
			colors[c] = true
		}
	}
	if !colors["#FF0000"] || !colors["#00FF00"] || len(colors) != 2 {
		t.Errorf("colors = %v", colors)
	}
	if crs, err := SourceCRS(fc); err != nil || crs != WGS84 {
		t.Errorf("SourceCRS = %v, %v", crs, err)
	}

	l, err := Preprocess(fc)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if l.Table.Len() != 3 {
		t.Errorf("table has %d entries, want 3", l.Table.Len())
	}
}

func TestOpenFlatGeobufUnsupportedCRS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utm.fgb")
	writeFGB(t, path, 32637, fgbFeature{square(500000, 0, 1000), "#FF0000"})

	fc, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := Preprocess(fc); !errors.Is(err, ErrUnsupportedCRS) {
		t.Errorf("Preprocess = %v, want ErrUnsupportedCRS", err)
	}
}

func TestOpenFlatGeobufGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fgb")
	if err := os.WriteFile(path, []byte("not a flatgeobuf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for garbage input")
	}
}
