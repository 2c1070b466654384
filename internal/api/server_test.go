package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"vectiler/internal/render"
)

const square = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"color":"#3366CC"},
  "geometry":{"type":"Polygon","coordinates":[[[-170,10],[-100,10],[-100,60],[-170,60],[-170,10]]]}}]}`

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	svc, err := render.New(render.Config{
		LayersRoot:  filepath.Join(root, "handle"),
		OutputRoot:  filepath.Join(root, "out"),
		TileSize:    32,
		Supersample: render.DefaultSupersample,
		Workers:     1,
	}, log)
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	s, err := New(svc, filepath.Join(root, "uploads"), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func upload(t *testing.T, ts *httptest.Server, field, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	resp, err := http.Post(ts.URL+"/v1/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := testServer(t)
	if resp := get(t, ts.URL+"/"); resp.StatusCode != http.StatusOK {
		t.Errorf("GET / = %d", resp.StatusCode)
	}
}

func TestUploadAndFetch(t *testing.T) {
	ts := testServer(t)

	resp := upload(t, ts, FormFile, "square.geojson", square)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload = %d", resp.StatusCode)
	}
	var res render.IngestResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Key != "square" || !strings.HasSuffix(res.Size, " MiB") {
		t.Errorf("result = %+v", res)
	}

	tests := []struct {
		name   string
		path   string
		status int
		ctype  string
	}{
		{"indexed", "/v1/square/1/0/0", http.StatusOK, "image/png"},
		{"black", "/v1/square/1/0/0?black=true", http.StatusOK, "image/png"},
		{"no supersampling", "/v1/square/1/0/0?zoom_add_raster=0", http.StatusOK, "image/png"},
		{"empty tile", "/v1/square/1/1/1", http.StatusNotFound, "application/json"},
		{"unknown layer", "/v1/nope/0/0/0", http.StatusNotFound, "application/json"},
		{"out of range", "/v1/square/1/5/0", http.StatusBadRequest, "application/json"},
		{"bad delta", "/v1/square/1/0/0?zoom_add_raster=9", http.StatusBadRequest, "application/json"},
		{"bad black", "/v1/square/1/0/0?black=maybe", http.StatusBadRequest, "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, ts.URL+tt.path)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := resp.Header.Get("Content-Type"); got != tt.ctype {
				t.Errorf("content type = %q, want %q", got, tt.ctype)
			}
		})
	}
}

func TestUploadRejected(t *testing.T) {
	ts := testServer(t)

	if resp := upload(t, ts, "other", "square.geojson", square); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file part = %d", resp.StatusCode)
	}
	if resp := upload(t, ts, FormFile, ".geojson", square); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty id = %d", resp.StatusCode)
	}
	if resp := upload(t, ts, FormFile, "broken.geojson", `{"type":`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed geojson = %d", resp.StatusCode)
	}
	if resp := get(t, ts.URL+"/v1/broken/0/0/0"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("failed ingest left a layer: %d", resp.StatusCode)
	}
}

func TestMetadata(t *testing.T) {
	ts := testServer(t)
	upload(t, ts, FormFile, "square.geojson", square)

	resp := get(t, ts.URL+"/v1/square")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var md struct {
		Name    string    `json:"name"`
		Tiles   []string  `json:"tiles"`
		Bounds  []float64 `json:"bounds"`
		Preview string    `json:"preview"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		t.Fatal(err)
	}
	if md.Name != "square" || len(md.Tiles) != 1 || !strings.HasSuffix(md.Tiles[0], "/v1/square/{z}/{x}/{y}") {
		t.Errorf("metadata = %+v", md)
	}
	if len(md.Bounds) != 4 || !strings.Contains(md.Preview, "/v1/square/3/") {
		t.Errorf("bounds %v, preview %q", md.Bounds, md.Preview)
	}

	if resp := get(t, ts.URL+"/v1/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown layer = %d", resp.StatusCode)
	}
}

func TestLayerID(t *testing.T) {
	tests := map[string]string{
		"roads.geojson":        "roads",
		"roads.v2.geojson":     "roads",
		`C:\data\lakes.json`:   "lakes",
		"../../etc/rivers.geo": "rivers",
		".hidden":              "",
	}
	for in, want := range tests {
		if got := LayerID(in); got != want {
			t.Errorf("LayerID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTileURL(t *testing.T) {
	got := TileURL("http://host/v1/a/{z}/{x}/{y}", maptile.New(3, 5, 4))
	if got != "http://host/v1/a/4/3/5" {
		t.Errorf("TileURL = %q", got)
	}
}
