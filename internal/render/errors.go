package render

import (
	"errors"
	"fmt"
)

var (
	// ErrLayerNotFound 图层不存在
	ErrLayerNotFound = errors.New("layer not found")
	// ErrTileEmpty means rendering succeeded but the tile has no content.
	ErrTileEmpty = errors.New("tile has no content")
	// ErrInvalidRequest 请求参数错误
	ErrInvalidRequest = errors.New("invalid tile request")
)

// IngestError wraps any failure that aborted an ingest. Nothing is persisted
// when it is returned.
type IngestError struct {
	Layer string
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Layer, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// RenderError is a failure after the request workspace was created. State is
// the last state reached before the failure.
type RenderError struct {
	Layer string
	State State
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s after %s: %v", e.Layer, e.State, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
