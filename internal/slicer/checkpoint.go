package slicer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
)

// Checkpoint 断点记录
//
// Finished tiles are appended to a log file, one "x-y-z" key per line, so an
// interrupted pyramid run can skip them when restarted.
type Checkpoint struct {
	file       *os.File
	saveChan   chan maptile.Tile
	successMap map[string]struct{}
	done       chan struct{}
	closeOnce  sync.Once
	log        logrus.FieldLogger
	// 第一次写入失败, 写协程结束后才可读
	writeErr   error
}

// OpenCheckpoint loads the log at path, creating it if needed, and starts the
// writer goroutine. Write failures are reported to log and returned by Close.
func OpenCheckpoint(path string, buffer int, log logrus.FieldLogger) (*Checkpoint, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}

	// 获取断点记录
	successMap, err := readCheckpoint(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	c := &Checkpoint{
		file:       file,
		saveChan:   make(chan maptile.Tile, buffer),
		successMap: successMap,
		done:       make(chan struct{}),
		log:        log.WithField("checkpoint", path),
	}
	go c.start()
	return c, nil
}

func readCheckpoint(file *os.File) (map[string]struct{}, error) {
	res := make(map[string]struct{})
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			res[line] = struct{}{}
		}
	}
	return res, sc.Err()
}

// IsSucceeded reports whether t was finished by an earlier run.
func (c *Checkpoint) IsSucceeded(t maptile.Tile) bool {
	_, ok := c.successMap[Key(t)]
	return ok
}

// Len 已完成瓦片数
func (c *Checkpoint) Len() int {
	return len(c.successMap)
}

// SetSucceeded queues t for the log.
func (c *Checkpoint) SetSucceeded(t maptile.Tile) {
	c.saveChan <- t
}

func (c *Checkpoint) start() {
	defer close(c.done)
	for t := range c.saveChan {
		if _, err := c.file.WriteString(Key(t) + "\n"); err != nil {
			c.log.WithField("tile", Key(t)).Errorf("record finished tile: %v", err)
			if c.writeErr == nil {
				c.writeErr = err
			}
		}
	}
}

// Close flushes queued records and closes the log. It returns the first
// failed write, if any. SetSucceeded must not be called afterwards.
func (c *Checkpoint) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.saveChan)
		<-c.done
		err = c.file.Close()
		if c.writeErr != nil {
			err = fmt.Errorf("checkpoint lost records: %w", c.writeErr)
		}
	})
	return err
}
