// Package render ties the pipeline together: ingest of uploaded layers,
// per-request tile rendering inside a throwaway workspace, and pyramid
// pre-generation.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"vectiler/internal/conf"
	"vectiler/internal/layer"
	"vectiler/internal/mercator"
	"vectiler/internal/palette"
	"vectiler/internal/slicer"
	"vectiler/internal/vector"
	"vectiler/internal/workspace"
)

// DefaultSupersample 默认超采样级数
const DefaultSupersample = 2

// MaxSupersample bounds the zoom delta of a request.
const MaxSupersample = 4

// Config holds everything a Service needs. It is built once from conf.Conf.
type Config struct {
	LayersRoot  string
	OutputRoot  string
	TileSize    int
	Supersample int
	DirectColor color.NRGBA
	Resampling  slicer.Resampling
	Workers     int
	BufSize     int

	Pyramid PyramidConfig
}

// PyramidConfig 预切片配置
type PyramidConfig struct {
	OnIngest  bool
	MinZoom   int
	MaxZoom   int
	Format    string
	Directory string
}

// ConfigFrom converts the loaded configuration.
func ConfigFrom(c *conf.Conf) (Config, error) {
	fg, err := palette.DecodeHexColor(c.Render.DirectColor)
	if err != nil {
		return Config{}, fmt.Errorf("render.directColor: %w", err)
	}
	rs, err := slicer.ParseResampling(c.Render.Resampling)
	if err != nil {
		return Config{}, err
	}
	return Config{
		LayersRoot:  c.Storage.Layers,
		OutputRoot:  c.Output.Directory,
		TileSize:    c.Render.TileSize,
		Supersample: c.Render.Supersample,
		DirectColor: fg,
		Resampling:  rs,
		Workers:     c.Task.Workers,
		BufSize:     c.Task.BufSize,
		Pyramid: PyramidConfig{
			OnIngest:  c.Pyramid.OnIngest,
			MinZoom:   c.Pyramid.MinZoom,
			MaxZoom:   c.Pyramid.MaxZoom,
			Format:    c.Pyramid.Format,
			Directory: c.Pyramid.Directory,
		},
	}, nil
}

// Service renders tiles for the layers in its store. It is safe for
// concurrent use.
type Service struct {
	cfg   Config
	grid  mercator.Grid
	store *layer.Store
	ws    *workspace.Manager
	log   logrus.FieldLogger

	mu       sync.Mutex
	pyramids map[string]*slicer.Pyramid
}

// New 创建渲染服务
func New(cfg Config, log logrus.FieldLogger) (*Service, error) {
	if cfg.TileSize <= 0 {
		cfg.TileSize = mercator.DefaultTileSize
	}
	if cfg.Resampling == "" {
		cfg.Resampling = slicer.Average
	}
	if cfg.DirectColor == (color.NRGBA{}) {
		cfg.DirectColor = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	store, err := layer.NewStore(cfg.LayersRoot)
	if err != nil {
		return nil, fmt.Errorf("layer store: %w", err)
	}
	ws, err := workspace.NewManager(cfg.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Service{
		cfg:      cfg,
		grid:     mercator.Grid{TileSize: cfg.TileSize},
		store:    store,
		ws:       ws,
		log:      log,
		pyramids: make(map[string]*slicer.Pyramid),
	}, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) slicerOptions() slicer.Options {
	return slicer.Options{TileSize: s.cfg.TileSize, Resampling: s.cfg.Resampling}
}

// IngestResult is reported back to the uploader.
type IngestResult struct {
	Message string `json:"message"`
	Size    string `json:"size"`
	Key     string `json:"key"`
}

// Ingest preprocesses the GeoJSON or FlatGeobuf file at path and persists it as layer id,
// replacing any previous layer of that id. On failure nothing is persisted
// and the error is an *IngestError.
//
// When pyramids are generated on ingest, a pyramid failure is returned after
// the layer has been saved, together with the result.
func (s *Service) Ingest(path, id string) (*IngestResult, error) {
	log := s.log.WithField("layer", id)
	fail := func(err error) (*IngestResult, error) {
		log.Errorf("ingest failed: %v", err)
		return nil, &IngestError{Layer: id, Err: err}
	}

	if !layer.ValidID(id) {
		return fail(fmt.Errorf("%w: %q", layer.ErrInvalidID, id))
	}
	info, err := os.Stat(path)
	if err != nil {
		return fail(err)
	}
	fc, err := vector.Open(path)
	if err != nil {
		return fail(err)
	}
	l, err := vector.Preprocess(fc)
	if err != nil {
		return fail(err)
	}

	release := s.store.Lock(id)
	err = s.store.Save(id, l)
	if err == nil {
		// 旧的预切片已失效
		err = s.clearPyramid(id)
	}
	release()
	if err != nil {
		return fail(err)
	}
	log.Infof("ingested %d features, %d colors", len(l.Features.Features), l.Table.Len())

	res := &IngestResult{
		Message: fmt.Sprintf("File '%s' uploaded successfully", filepath.Base(path)),
		Size:    fmt.Sprintf("%.1f MiB", float64(info.Size())/(1024*1024)),
		Key:     id,
	}
	if s.cfg.Pyramid.OnIngest {
		if err := s.BuildPyramid(id, s.cfg.Pyramid.MinZoom, s.cfg.Pyramid.MaxZoom, nil); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Exists reports whether layer id has been ingested.
func (s *Service) Exists(id string) bool {
	release := s.store.RLock(id)
	defer release()
	return s.store.Exists(id)
}

func (s *Service) notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
}

// loadLayer maps the store's not-found error onto ErrLayerNotFound. The
// caller holds the read lock.
func (s *Service) loadLayer(id string) (*vector.Layer, error) {
	fc, table, err := s.store.Load(id)
	if errors.Is(err, layer.ErrNotFound) {
		return nil, s.notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &vector.Layer{Features: fc, Table: table}, nil
}
