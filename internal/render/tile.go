package render

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"vectiler/internal/colorize"
	"vectiler/internal/mercator"
	"vectiler/internal/raster"
	"vectiler/internal/slicer"
	"vectiler/internal/vector"
	"vectiler/internal/workspace"
)

// TileRequest 瓦片请求
type TileRequest struct {
	Layer string
	Z     int
	X     int
	Y     int
	// Supersample renders at zoom Z+Supersample before downsampling.
	Supersample int
	Mode        raster.Mode
}

// NewTileRequest returns an indexed request with the default supersampling.
func NewTileRequest(layer string, z, x, y int) TileRequest {
	return TileRequest{Layer: layer, Z: z, X: x, Y: y, Supersample: DefaultSupersample, Mode: raster.Indexed}
}

// Validate checks the request before any work is done.
func (r TileRequest) Validate() error {
	switch {
	case r.Layer == "":
		return fmt.Errorf("%w: empty layer", ErrInvalidRequest)
	case !mercator.Valid(r.X, r.Y, r.Z):
		return fmt.Errorf("%w: no tile %d/%d/%d", ErrInvalidRequest, r.Z, r.X, r.Y)
	case r.Supersample < 0 || r.Supersample > MaxSupersample:
		return fmt.Errorf("%w: supersample %d outside [0, %d]", ErrInvalidRequest, r.Supersample, MaxSupersample)
	case r.Mode != raster.Indexed && r.Mode != raster.Direct:
		return fmt.Errorf("%w: mode %v", ErrInvalidRequest, r.Mode)
	}
	return nil
}

// GetTile renders one tile and returns its PNG bytes.
//
// Each call runs in its own workspace, which is removed before GetTile
// returns whatever the outcome. A layer that does not exist fails before a
// workspace is created.
func (s *Service) GetTile(req TileRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{
		"layer": req.Layer,
		"tile":  fmt.Sprintf("%d/%d/%d", req.Z, req.X, req.Y),
	})
	start := time.Now()

	release := s.store.RLock(req.Layer)
	defer release()
	if !s.store.Exists(req.Layer) {
		return nil, s.notFound(req.Layer)
	}

	sess, err := s.ws.Create(req.Layer)
	if err != nil {
		return nil, &RenderError{Layer: req.Layer, State: Received, Err: err}
	}
	log = log.WithField("session", sess.ID)
	log.Debugf("state %s", WorkspaceCreated)
	defer func() {
		if err := sess.Destroy(); err != nil {
			log.Warnf("destroy workspace %s: %v", sess.Dir, err)
			return
		}
		log.Debugf("state %s", WorkspaceDestroyed)
	}()

	data, state, err := s.render(sess, req, log)
	if err != nil {
		if errors.Is(err, ErrTileEmpty) {
			log.Debugf("empty tile after %s", state)
			return nil, err
		}
		log.Errorf("render failed after %s: %v", state, err)
		return nil, &RenderError{Layer: req.Layer, State: state, Err: err}
	}
	log.Infof("tile served, %dms", time.Since(start).Milliseconds())
	return data, nil
}

// render runs the pipeline inside sess and returns the last state reached.
func (s *Service) render(sess *workspace.Session, req TileRequest, log logrus.FieldLogger) ([]byte, State, error) {
	state := WorkspaceCreated

	l, err := s.loadLayer(req.Layer)
	if err != nil {
		return nil, state, err
	}

	// 请求的 y 为左上原点, 计算范围需要左下原点
	bx, by := mercator.FromOriginTopLeft(req.X, req.Y, req.Z)
	bound := mercator.TileBounds(bx, by, req.Z)
	res := s.grid.Resolution(req.Z + req.Supersample)
	state = BoundsComputed
	log.Debugf("state %s, bound %v, res %f", state, bound, res)

	r, burned, err := raster.Rasterize(l.Features.Features, bound, res, s.rasterOptions(req.Mode))
	if err != nil {
		return nil, state, err
	}
	rasterPath := sess.Artifact(".tif")
	if err := raster.Write(r, rasterPath); err != nil {
		return nil, state, err
	}
	state = Rasterized
	log.Debugf("state %s, %d features burned", state, burned)

	colored := r
	if req.Mode == raster.Indexed {
		view := colorize.NewView(rasterPath, l.Table)
		viewPath := sess.Artifact(".vrt")
		if err := view.Save(viewPath); err != nil {
			return nil, state, err
		}
		if colored, err = colorize.File(viewPath, sess.Artifact("_c.tif")); err != nil {
			return nil, state, err
		}
		state = Colorized
		log.Debugf("state %s", state)
	}

	dir := slicer.Dir{Root: sess.TilesRoot()}
	if _, err := slicer.Slice(colored, req.Z, dir, s.slicerOptions()); err != nil {
		return nil, state, err
	}
	state = Sliced
	log.Debugf("state %s", state)

	data, err := os.ReadFile(slicer.TilePath(dir.Root, req.Z, req.X, req.Y))
	if os.IsNotExist(err) {
		return nil, state, ErrTileEmpty
	}
	if err != nil {
		return nil, state, err
	}
	return data, Served, nil
}

func (s *Service) rasterOptions(mode raster.Mode) raster.Options {
	return raster.Options{Mode: mode, Color: s.cfg.DirectColor, Attribute: vector.IndexKey}
}
