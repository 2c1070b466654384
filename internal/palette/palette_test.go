package palette

import (
	"image/color"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func feature(props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties = props
	return f
}

func TestDecodeHexColor(t *testing.T) {
	tests := []struct {
		hex     string
		want    color.NRGBA
		wantErr bool
	}{
		{hex: "#BDBDBD", want: color.NRGBA{189, 189, 189, 255}},
		{hex: "#ff0000", want: color.NRGBA{255, 0, 0, 255}},
		{hex: "#00FF7f", want: color.NRGBA{0, 255, 127, 255}},
		{hex: "BDBDBD", wantErr: true},
		{hex: "#BDBD", wantErr: true},
		{hex: "#GG0000", wantErr: true},
		{hex: "#+10000", wantErr: true},
		{hex: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := DecodeHexColor(tc.hex)
		if tc.wantErr {
			if err == nil {
				t.Errorf("DecodeHexColor(%q) expected error, got %v", tc.hex, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("DecodeHexColor(%q) error: %v", tc.hex, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DecodeHexColor(%q) = %v, want %v", tc.hex, got, tc.want)
		}
	}
}

func TestBuildFirstSeenOrder(t *testing.T) {
	const a, b, c = "#FF0000", "#00FF00", "#0000FF"
	features := []*geojson.Feature{
		feature(geojson.Properties{"color": a}),
		feature(geojson.Properties{"color": a}),
		feature(geojson.Properties{"color": b}),
		feature(geojson.Properties{"color": c}),
		feature(geojson.Properties{"name": "no color"}),
	}

	ct := Build(features)

	want := map[string]int{a: 1, b: 2, c: 3}
	for hex, idx := range want {
		if got := ct.Index(hex); got != idx {
			t.Errorf("Index(%s) = %d, want %d", hex, got, idx)
		}
	}
	if ct.Len() != 4 {
		t.Errorf("Len() = %d, want 4", ct.Len())
	}
	if ct.Entries[0] != Fallback {
		t.Errorf("entry 0 = %v, want fallback black", ct.Entries[0])
	}
	if got := ct.Index("#123456"); got != 0 {
		t.Errorf("unknown color index = %d, want 0", got)
	}
}

func TestBuildSkipsUnparseable(t *testing.T) {
	features := []*geojson.Feature{
		feature(geojson.Properties{"color": "red"}),
		feature(geojson.Properties{"color": 42}),
		feature(nil),
		feature(geojson.Properties{"color": "#bdbdbd"}),
	}
	ct := Build(features)
	if ct.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ct.Len())
	}
	if got := ct.Index("#BDBDBD"); got != 1 {
		t.Errorf("case-insensitive lookup = %d, want 1", got)
	}
}

func TestSaveLoad(t *testing.T) {
	ct := New()
	ct.Add("#FF0000")
	ct.Add("#00FF00")

	path := filepath.Join(t.TempDir(), "color_table.json")
	if err := ct.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Entries, ct.Entries) {
		t.Errorf("entries = %v, want %v", loaded.Entries, ct.Entries)
	}
	if loaded.Index("#00ff00") != 2 {
		t.Errorf("loaded Index(#00ff00) = %d, want 2", loaded.Index("#00ff00"))
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing table")
	}
}
