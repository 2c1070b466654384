package slicer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"vectiler/internal/raster"
)

// ErrAborted is returned by Run after Abort.
var ErrAborted = errors.New("slicer: pyramid aborted")

// Source supplies the tiles of one zoom level and renders the colored raster
// of a single tile.
type Source interface {
	Tiles(zoom int) ([]maptile.Tile, error)
	Render(t maptile.Tile) (*raster.Raster, error)
}

// Bar is the per-zoom progress handle. *pb.ProgressBar satisfies it.
type Bar interface {
	Increment() int
	Finish()
}

// Progress creates a Bar per zoom level.
type Progress interface {
	Zoom(zoom, total int) Bar
}

// Pyramid 金字塔切片任务
type Pyramid struct {
	ID      string
	Name    string
	Min     int
	Max     int
	Workers int

	Source     Source
	Sink       Sink
	Options    Options
	Checkpoint *Checkpoint
	Progress   Progress
	Log        logrus.FieldLogger

	abort     chan struct{}
	abortOnce sync.Once
}

// NewPyramid 创建切片任务
func NewPyramid(name string, min, max, workers int, src Source, sink Sink, opts Options) *Pyramid {
	id, err := shortid.Generate()
	if err != nil {
		id = fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
	}
	if workers <= 0 {
		workers = 1
	}
	return &Pyramid{
		ID:      id,
		Name:    name,
		Min:     min,
		Max:     max,
		Workers: workers,
		Source:  src,
		Sink:    sink,
		Options: opts,
		Log:     logrus.StandardLogger(),
		abort:   make(chan struct{}),
	}
}

// Abort 结束任务. Zoom levels stop at the next tile boundary.
func (p *Pyramid) Abort() {
	p.abortOnce.Do(func() { close(p.abort) })
}

// Run renders zoom levels Min..Max, one task per zoom on a pool of Workers.
// Every task runs to completion; the first error is returned.
func (p *Pyramid) Run() error {
	if p.Min > p.Max {
		return fmt.Errorf("slicer: min zoom %d above max zoom %d", p.Min, p.Max)
	}
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(p.Workers)
	for z := p.Min; z <= p.Max; z++ {
		z := z
		g.Go(func() error {
			return p.zoom(z)
		})
	}
	err := g.Wait()

	p.Log.WithField("task", p.ID).Infof("pyramid %s z%d-z%d finished in %.3fs", p.Name, p.Min, p.Max, time.Since(start).Seconds())
	return err
}

func (p *Pyramid) zoom(z int) error {
	log := p.Log.WithFields(logrus.Fields{"task": p.ID, "zoom": z})

	tiles, err := p.Source.Tiles(z)
	if err != nil {
		return fmt.Errorf("zoom %d: %w", z, err)
	}
	log.Infof("zoom: %d, tiles: %d", z, len(tiles))

	var bar Bar
	if p.Progress != nil {
		bar = p.Progress.Zoom(z, len(tiles))
		defer bar.Finish()
	}

	written := 0
	for _, t := range tiles {
		select {
		case <-p.abort:
			log.Infof("task %s got canceled", p.Name)
			return ErrAborted
		default:
		}

		if bar != nil {
			bar.Increment()
		}
		if p.Checkpoint != nil && p.Checkpoint.IsSucceeded(t) {
			log.Debugf("tile %v already done, skip", t)
			continue
		}

		start := time.Now()
		r, err := p.Source.Render(t)
		if err != nil {
			return fmt.Errorf("zoom %d tile %v: %w", z, t, err)
		}
		out, err := Slice(r, z, p.Sink, p.Options)
		if err != nil {
			return fmt.Errorf("zoom %d tile %v: %w", z, t, err)
		}
		written += len(out)

		if p.Checkpoint != nil {
			p.Checkpoint.SetSucceeded(t)
		}
		log.Debugf("tile(z:%d, x:%d, y:%d), %dms", t.Z, t.X, t.Y, time.Since(start).Milliseconds())
	}

	log.Infof("zoom %d finished, %d tiles written", z, written)
	return nil
}
