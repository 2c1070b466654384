// Package layer persists ingested layers: the reprojected features and the
// color table, one directory per layer id.
package layer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"vectiler/internal/palette"
	"vectiler/internal/vector"
)

const (
	// GeometryFile 重投影后的要素
	GeometryFile = "epsg3857.geojson"
	// ColorTableFile 颜色表
	ColorTableFile = "color_table.json"
)

// ErrNotFound is returned for ids without persisted geometry.
var ErrNotFound = errors.New("layer: not found")

// ErrInvalidID is returned for ids that cannot name a directory.
var ErrInvalidID = errors.New("layer: invalid id")

// Store keeps layers under Root. Reads of a layer hold its read lock, ingest
// holds the write lock, so a re-upload never races an in-flight render.
type Store struct {
	Root string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewStore 创建图层存储
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("layer: empty root")
	}
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, err
	}
	return &Store{Root: root, locks: make(map[string]*sync.RWMutex)}, nil
}

// ValidID reports whether id is usable as a layer directory name.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." &&
		!strings.HasPrefix(id, ".") && !strings.ContainsAny(id, `/\`)
}

func (s *Store) lock(id string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[id] = l
	}
	return l
}

// Lock takes the write lock of id and returns its release.
func (s *Store) Lock(id string) func() {
	l := s.lock(id)
	l.Lock()
	return l.Unlock
}

// RLock takes the read lock of id and returns its release.
func (s *Store) RLock(id string) func() {
	l := s.lock(id)
	l.RLock()
	return l.RUnlock
}

// Dir 图层目录
func (s *Store) Dir(id string) string {
	return filepath.Join(s.Root, id)
}

// Exists reports whether id has persisted geometry.
func (s *Store) Exists(id string) bool {
	if !ValidID(id) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.Dir(id), GeometryFile))
	return err == nil
}

// Save writes layer under id, replacing any previous version as a whole.
// Files are staged in a sibling directory and swapped in, so a failure leaves
// the previous version untouched. The caller holds the write lock.
func (s *Store) Save(id string, l *vector.Layer) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	stage := filepath.Join(s.Root, "."+id+"."+uuid.NewString())
	if err := os.Mkdir(stage, os.ModePerm); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(stage)
		}
	}()

	if err := l.Table.Save(filepath.Join(stage, ColorTableFile)); err != nil {
		return err
	}
	if err := vector.Write(l.Features, filepath.Join(stage, GeometryFile)); err != nil {
		return err
	}

	dir := s.Dir(id)
	old := stage + ".old"
	if err := os.Rename(dir, old); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(stage, dir); err != nil {
		os.Rename(old, dir)
		return err
	}
	committed = true
	return os.RemoveAll(old)
}

// Load reads the features and color table of id. The caller holds the read
// lock.
func (s *Store) Load(id string) (*geojson.FeatureCollection, *palette.ColorTable, error) {
	if !s.Exists(id) {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	fc, err := vector.Load(filepath.Join(s.Dir(id), GeometryFile))
	if err != nil {
		return nil, nil, err
	}
	table, err := palette.Load(filepath.Join(s.Dir(id), ColorTableFile))
	if err != nil {
		return nil, nil, err
	}
	return fc, table, nil
}
