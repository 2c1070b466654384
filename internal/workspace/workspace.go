// Package workspace hands out per-request scratch directories.
//
// Every tile request gets its own directory named by a random session id
// under <root>/<layer>/. Destroying a session removes that directory and
// nothing else, so concurrent requests against the same layer never touch
// each other's files.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// TilesDir 会话内切片输出目录
const TilesDir = "tiles"

// Manager allocates sessions under Root.
type Manager struct {
	Root string
}

// NewManager 创建工作区管理器
func NewManager(root string) (*Manager, error) {
	if root == "" {
		return nil, errors.New("workspace: empty root")
	}
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, err
	}
	return &Manager{Root: root}, nil
}

// Session is one request's workspace.
type Session struct {
	ID    string
	Layer string
	Dir   string

	once sync.Once
	err  error
}

// Create makes a fresh session directory for layer. The directory is
// created exclusively, so an id collision fails instead of sharing files.
func (m *Manager) Create(layer string) (*Session, error) {
	id := uuid.NewString()
	parent := filepath.Join(m.Root, layer)
	if err := os.MkdirAll(parent, os.ModePerm); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	dir := filepath.Join(parent, id)
	if err := os.Mkdir(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Session{ID: id, Layer: layer, Dir: dir}, nil
}

// Path returns name inside the session directory.
func (s *Session) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Artifact returns <dir>/<session id><suffix>, the naming used for the
// intermediate rasters of a request.
func (s *Session) Artifact(suffix string) string {
	return s.Path(s.ID + suffix)
}

// TilesRoot is where the slicer writes this session's {z}/{x}/{y}.png tree.
func (s *Session) TilesRoot() string {
	return s.Path(TilesDir)
}

// Destroy removes the session directory. Only the first call does any work;
// later calls return the first result.
func (s *Session) Destroy() error {
	s.once.Do(func() {
		s.err = os.RemoveAll(s.Dir)
	})
	return s.err
}
