package render

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/paulmach/orb/project"

	"vectiler/internal/colorize"
	"vectiler/internal/mercator"
	"vectiler/internal/raster"
	"vectiler/internal/slicer"
	"vectiler/internal/vector"
)

const (
	// FormatFile writes {z}/{x}/{y}.png under the pyramid directory.
	FormatFile = "file"
	// FormatMBTiles writes one <layer>.mbtiles database.
	FormatMBTiles = "mbtiles"
)

// layerSource renders pyramid tiles of one layer in memory.
type layerSource struct {
	layer *vector.Layer
	// 经纬度几何, 用于计算覆盖瓦片
	lonlat []orb.Geometry
	bounds []orb.Bound
	grid   mercator.Grid
	delta  int
	opts   raster.Options
}

func newLayerSource(l *vector.Layer, grid mercator.Grid, delta int, opts raster.Options) *layerSource {
	s := &layerSource{layer: l, grid: grid, delta: delta, opts: opts}
	for _, f := range l.Features.Features {
		if f.Geometry == nil {
			continue
		}
		s.bounds = append(s.bounds, f.Geometry.Bound())
		s.lonlat = append(s.lonlat, project.Geometry(orb.Clone(f.Geometry), project.Mercator.ToWGS84))
	}
	return s
}

// Tiles returns the tiles covered by any feature, sorted by row then column.
// Features tilecover rejects fall back to their bounding box.
func (s *layerSource) Tiles(zoom int) ([]maptile.Tile, error) {
	set := make(maptile.Set)
	for i, g := range s.lonlat {
		cover, err := tilecover.Geometry(g, maptile.Zoom(zoom))
		if err != nil {
			for _, t := range mercator.Covering(s.bounds[i], zoom) {
				set[t] = true
			}
			continue
		}
		for t := range cover {
			set[t] = true
		}
	}
	tiles := make([]maptile.Tile, 0, len(set))
	for t := range set {
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})
	return tiles, nil
}

// Render rasterizes t at the supersampled resolution and colorizes it.
func (s *layerSource) Render(t maptile.Tile) (*raster.Raster, error) {
	r, _, err := raster.Rasterize(s.layer.Features.Features, mercator.XYZBounds(t), s.grid.Resolution(int(t.Z)+s.delta), s.opts)
	if err != nil {
		return nil, err
	}
	if s.opts.Mode == raster.Direct {
		return r, nil
	}
	gray, ok := r.Image.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("indexed raster is %T", r.Image)
	}
	r.Image = colorize.Expand(gray, s.layer.Table.Entries, raster.NoData)
	return r, nil
}

// Extent returns the WGS84 bounding box of a layer in Web Mercator.
func Extent(l *vector.Layer) (orb.Bound, bool) {
	var (
		b  orb.Bound
		ok bool
	)
	for _, f := range l.Features.Features {
		if f.Geometry == nil {
			continue
		}
		if !ok {
			b, ok = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	if !ok {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: project.Mercator.ToWGS84(b.Min),
		Max: project.Mercator.ToWGS84(b.Max),
	}, true
}

// PyramidPath returns where the pyramid of id is written for the configured
// format.
func (s *Service) PyramidPath(id string) string {
	if s.cfg.Pyramid.Format == FormatMBTiles {
		return filepath.Join(s.cfg.Pyramid.Directory, id+".mbtiles")
	}
	return filepath.Join(s.cfg.Pyramid.Directory, id)
}

func (s *Service) checkpointPath(id string) string {
	return filepath.Join(s.cfg.Pyramid.Directory, id+".checkpoint")
}

// clearPyramid removes a stale pyramid and its checkpoint. The caller holds
// the write lock of id.
func (s *Service) clearPyramid(id string) error {
	if s.cfg.Pyramid.Directory == "" {
		return nil
	}
	for _, p := range []string{s.PyramidPath(id), s.checkpointPath(id)} {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
}

// BuildPyramid pre-renders zoom levels min..max of layer id, one task per
// zoom on the configured worker pool. It waits for every zoom and returns the
// first failure. Finished tiles are recorded in a checkpoint, so a rerun after
// a failure or abort only renders what is missing.
func (s *Service) BuildPyramid(id string, min, max int, progress slicer.Progress) error {
	if min < 0 || max > mercator.ZoomMax || min > max {
		return fmt.Errorf("%w: zoom range %d-%d", ErrInvalidRequest, min, max)
	}
	if s.cfg.Pyramid.Directory == "" {
		return errors.New("pyramid directory is not configured")
	}

	release := s.store.RLock(id)
	defer release()
	l, err := s.loadLayer(id)
	if err != nil {
		return err
	}

	// 同一图层同时只允许一个任务
	s.mu.Lock()
	if _, busy := s.pyramids[id]; busy {
		s.mu.Unlock()
		return fmt.Errorf("pyramid of %s is already running", id)
	}
	s.pyramids[id] = nil
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pyramids, id)
		s.mu.Unlock()
	}()

	if err := os.MkdirAll(s.cfg.Pyramid.Directory, os.ModePerm); err != nil {
		return err
	}

	var sink slicer.Sink
	switch s.cfg.Pyramid.Format {
	case FormatMBTiles:
		m, err := slicer.OpenMBTiles(s.PyramidPath(id))
		if err != nil {
			return err
		}
		md := slicer.Metadata{Name: id, Description: "vectiler " + id, MinZoom: min, MaxZoom: max}
		if b, ok := Extent(l); ok {
			md.Bound = b
		}
		if err := m.SetMetadata(md); err != nil {
			m.Close()
			return err
		}
		sink = m
	default:
		sink = slicer.Dir{Root: s.PyramidPath(id)}
	}
	defer sink.Close()

	ck, err := slicer.OpenCheckpoint(s.checkpointPath(id), s.cfg.BufSize, s.log.WithField("layer", id))
	if err != nil {
		return err
	}
	defer ck.Close()

	src := newLayerSource(l, s.grid, s.cfg.Supersample, s.rasterOptions(raster.Indexed))
	p := slicer.NewPyramid(id, min, max, s.cfg.Workers, src, sink, s.slicerOptions())
	p.Checkpoint = ck
	p.Progress = progress
	p.Log = s.log

	s.mu.Lock()
	s.pyramids[id] = p
	s.mu.Unlock()

	s.log.WithField("layer", id).Infof("pyramid %s started, z%d-z%d, %d done before", p.ID, min, max, ck.Len())
	return p.Run()
}

// Abort stops every running pyramid at its next tile.
func (s *Service) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pyramids {
		if p != nil {
			p.Abort()
		}
	}
}

// LayerInfo describes a layer for tile clients.
type LayerInfo struct {
	Name     string    `json:"name"`
	Bounds   []float64 `json:"bounds,omitempty"`
	MinZoom  int       `json:"minzoom"`
	MaxZoom  int       `json:"maxzoom"`
	TileSize int       `json:"tileSize"`
	Colors   int       `json:"colors"`
	Features int       `json:"features"`
}

// Info 图层信息
func (s *Service) Info(id string) (*LayerInfo, error) {
	release := s.store.RLock(id)
	defer release()
	l, err := s.loadLayer(id)
	if err != nil {
		return nil, err
	}
	info := &LayerInfo{
		Name:     id,
		MinZoom:  0,
		MaxZoom:  mercator.ZoomMax,
		TileSize: s.cfg.TileSize,
		Colors:   l.Table.Len(),
		Features: len(l.Features.Features),
	}
	if b, ok := Extent(l); ok {
		info.Bounds = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return info, nil
}
