// Package api exposes the render service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"vectiler/internal/raster"
	"vectiler/internal/render"
)

// FormFile is the multipart field carrying the upload.
const FormFile = "file"

// maxUpload 上传大小上限
const maxUpload = 512 << 20

// Server 瓦片服务
type Server struct {
	svc     *render.Service
	uploads string
	log     logrus.FieldLogger
	router  chi.Router
}

// New builds the router. Uploaded files are kept under uploads.
func New(svc *render.Service, uploads string, log logrus.FieldLogger) (*Server, error) {
	if err := os.MkdirAll(uploads, os.ModePerm); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{svc: svc, uploads: uploads, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/upload", s.upload)
		r.Get("/{layer}", s.metadata)
		r.Get("/{layer}/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}", s.tile)
	})
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"request": middleware.GetReqID(r.Context()),
			"status":  ww.Status(),
		}).Infof("%s %s, %dms", r.Method, r.URL.Path, time.Since(start).Milliseconds())
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "OK")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// LayerID derives the layer identifier from an upload file name: the base
// name up to its first dot.
func LayerID(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile(FormFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	id := LayerID(header.Filename)
	if header.Filename == "" || id == "" || id == "." || id == ".." {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	path := filepath.Join(s.uploads, filepath.Base(header.Filename))
	if err := saveUpload(file, path); err != nil {
		s.log.Errorf("save upload %s: %v", path, err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	res, err := s.svc.Ingest(path, id)
	var ie *render.IngestError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
		return
	case err != nil && res == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		// 图层已保存, 仅预切片失败
		s.log.WithField("layer", id).Errorf("pyramid: %v", err)
	}
	writeJSON(w, http.StatusOK, res)
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// TileRequest parses a tile request. zoom_add_raster defaults to the service
// supersampling, black to false.
func TileRequest(r *http.Request, defaultSupersample int) (render.TileRequest, error) {
	var (
		req render.TileRequest
		err error
	)
	req.Layer = chi.URLParam(r, "layer")
	for _, p := range []struct {
		name string
		dst  *int
	}{{"z", &req.Z}, {"x", &req.X}, {"y", &req.Y}} {
		if *p.dst, err = strconv.Atoi(chi.URLParam(r, p.name)); err != nil {
			return req, fmt.Errorf("%w: %s: %v", render.ErrInvalidRequest, p.name, err)
		}
	}

	q := r.URL.Query()
	req.Supersample = defaultSupersample
	if v := q.Get("zoom_add_raster"); v != "" {
		if req.Supersample, err = strconv.Atoi(v); err != nil {
			return req, fmt.Errorf("%w: zoom_add_raster: %v", render.ErrInvalidRequest, err)
		}
	}
	req.Mode = raster.Indexed
	if v := q.Get("black"); v != "" {
		black, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("%w: black: %v", render.ErrInvalidRequest, err)
		}
		if black {
			req.Mode = raster.Direct
		}
	}
	return req, req.Validate()
}

func (s *Server) tile(w http.ResponseWriter, r *http.Request) {
	req, err := TileRequest(r, s.svc.Config().Supersample)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.svc.GetTile(req)
	switch {
	case errors.Is(err, render.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, render.ErrLayerNotFound):
		writeError(w, http.StatusNotFound, "Id not found")
		return
	case errors.Is(err, render.ErrTileEmpty):
		writeError(w, http.StatusNotFound, "Tile is empty")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// Metadata is a TileJSON style description of a layer.
type Metadata struct {
	*render.LayerInfo
	TileJSON string   `json:"tilejson"`
	Tiles    []string `json:"tiles"`
	Preview  string   `json:"preview,omitempty"`
}

// previewZoom 预览瓦片级别
const previewZoom = 3

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "layer")
	info, err := s.svc.Info(id)
	if errors.Is(err, render.ErrLayerNotFound) {
		writeError(w, http.StatusNotFound, "Id not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tmpl := TileTemplate(r, id)
	md := Metadata{LayerInfo: info, TileJSON: "2.2.0", Tiles: []string{tmpl}}
	if len(info.Bounds) == 4 {
		center := orb.Point{(info.Bounds[0] + info.Bounds[2]) / 2, (info.Bounds[1] + info.Bounds[3]) / 2}
		md.Preview = TileURL(tmpl, maptile.At(center, previewZoom))
	}
	writeJSON(w, http.StatusOK, md)
}

// TileTemplate returns the {z}/{x}/{y} URL template of layer as seen by the
// client of r.
func TileTemplate(r *http.Request, layer string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s/v1/%s/{z}/{x}/{y}", scheme, r.Host, layer)
}

// TileURL fills a {z}/{x}/{y} template with t.
func TileURL(tmpl string, t maptile.Tile) string {
	url := strings.Replace(tmpl, "{x}", strconv.Itoa(int(t.X)), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(int(t.Y)), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(int(t.Z)), -1)
	return url
}
