// Package palette derives and persists the color table of a layer.
//
// A table maps "#RRGGBB" strings to indices into an ordered list of RGBA
// entries. Index 0 is always the fallback black used for features without a
// recognizable color. Every other color gets the next index the first time it
// is seen while walking the features in their stored order.
package palette

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// ColorKey 颜色属性名
const ColorKey = "color"

// MaxEntries 8位索引栅格可容纳的颜色数
const MaxEntries = 256

// Fallback 缺省颜色
var Fallback = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// ColorTable is an ordered hex → index mapping. Entries[i] is the color of
// index i.
type ColorTable struct {
	Entries []color.NRGBA
	index   map[string]int
}

// New returns a table holding only the fallback entry.
func New() *ColorTable {
	return &ColorTable{
		Entries: []color.NRGBA{Fallback},
		index:   make(map[string]int),
	}
}

// Build walks features in order and assigns indices to distinct colors.
// Features with a missing or unparseable color are skipped.
func Build(features []*geojson.Feature) *ColorTable {
	ct := New()
	for _, f := range features {
		hex, ok := FeatureColor(f)
		if !ok {
			continue
		}
		ct.Add(hex)
	}
	return ct
}

// Add inserts hex if it is new and returns its index.
func (ct *ColorTable) Add(hex string) int {
	key := strings.ToUpper(hex)
	if i, ok := ct.index[key]; ok {
		return i
	}
	c, err := DecodeHexColor(hex)
	if err != nil {
		return 0
	}
	ct.Entries = append(ct.Entries, c)
	ct.index[key] = len(ct.Entries) - 1
	return len(ct.Entries) - 1
}

// Index returns the palette index of hex, or 0 if hex is not in the table.
func (ct *ColorTable) Index(hex string) int {
	return ct.index[strings.ToUpper(hex)]
}

// Len 颜色数量(含缺省色)
func (ct *ColorTable) Len() int {
	return len(ct.Entries)
}

// Palette returns the table as a color.Palette, index for index.
func (ct *ColorTable) Palette() color.Palette {
	p := make(color.Palette, len(ct.Entries))
	for i, c := range ct.Entries {
		p[i] = c
	}
	return p
}

// FeatureColor returns the feature's "#RRGGBB" color attribute if it has a
// parseable one.
func FeatureColor(f *geojson.Feature) (string, bool) {
	if f == nil || f.Properties == nil {
		return "", false
	}
	hex, ok := f.Properties[ColorKey].(string)
	if !ok {
		return "", false
	}
	if _, err := DecodeHexColor(hex); err != nil {
		return "", false
	}
	return hex, true
}

// DecodeHexColor parses "#RRGGBB" into an opaque color.
func DecodeHexColor(hex string) (color.NRGBA, error) {
	if len(hex) != 7 || hex[0] != '#' {
		return color.NRGBA{}, fmt.Errorf("palette: invalid hex color %q", hex)
	}
	var ch [3]uint8
	for i := range ch {
		v, err := strconv.ParseUint(hex[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("palette: invalid hex color %q: %w", hex, err)
		}
		ch[i] = uint8(v)
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: 255}, nil
}

// Save writes the entries as a JSON list to path.
func (ct *ColorTable) Save(path string) error {
	data, err := json.Marshal(ct.Entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a table written by Save. The hex index is rebuilt from the
// entries, so Index keeps working on a loaded table.
func Load(path string) (*ColorTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []color.NRGBA
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("palette: decode %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("palette: %s has no entries", path)
	}

	ct := &ColorTable{Entries: entries, index: make(map[string]int)}
	for i, c := range entries[1:] {
		ct.index[fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)] = i + 1
	}
	return ct, nil
}
