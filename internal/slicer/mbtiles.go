package slicer

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"vectiler/internal/mercator"
)

const mbtilesSchema = `
CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);
CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name);
CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
`

// MBTiles stores tiles in an MBTiles 1.3 SQLite database. Rows use the TMS
// numbering of the format, so y is flipped on the way in.
type MBTiles struct {
	db *sql.DB
	mu sync.Mutex
}

// Metadata 瓦片集元数据
type Metadata struct {
	Name        string
	Description string
	MinZoom     int
	MaxZoom     int
	// Bound is in WGS84 degrees.
	Bound orb.Bound
}

// OpenMBTiles creates or opens the database at path.
func OpenMBTiles(path string) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open mbtiles %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(mbtilesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init mbtiles %s: %w", path, err)
	}
	return &MBTiles{db: db}, nil
}

// SetMetadata writes the metadata rows.
func (m *MBTiles) SetMetadata(md Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := md.Bound
	rows := [][2]string{
		{"name", md.Name},
		{"description", md.Description},
		{"format", PNG},
		{"type", "overlay"},
		{"version", "1.3"},
		{"minzoom", strconv.Itoa(md.MinZoom)},
		{"maxzoom", strconv.Itoa(md.MaxZoom)},
		{"bounds", fmt.Sprintf("%f,%f,%f,%f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])},
	}
	for _, r := range rows {
		if _, err := m.db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", r[0], r[1]); err != nil {
			return err
		}
	}
	return nil
}

// Put 保存瓦片
func (m *MBTiles) Put(t Tile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, row := mercator.FromOriginTopLeft(int(t.T.X), int(t.T.Y), int(t.T.Z))
	_, err := m.db.Exec(
		"INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)",
		t.T.Z, t.T.X, row, t.C,
	)
	return err
}

// Get returns the tile at XYZ address t, or nil if it is absent.
func (m *MBTiles) Get(t maptile.Tile) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, row := mercator.FromOriginTopLeft(int(t.X), int(t.Y), int(t.Z))
	var data []byte
	err := m.db.QueryRow(
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		t.Z, t.X, row,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return data, err
}

// Close 关闭数据库
func (m *MBTiles) Close() error {
	return m.db.Close()
}
