package render

import "fmt"

// State is a step of one tile fetch.
type State int

const (
	Received State = iota
	WorkspaceCreated
	BoundsComputed
	Rasterized
	Colorized
	Sliced
	Served
	WorkspaceDestroyed
)

var stateNames = [...]string{
	Received:           "RECEIVED",
	WorkspaceCreated:   "WORKSPACE_CREATED",
	BoundsComputed:     "BOUNDS_COMPUTED",
	Rasterized:         "RASTERIZED",
	Colorized:          "COLORIZED",
	Sliced:             "SLICED",
	Served:             "SERVED",
	WorkspaceDestroyed: "WORKSPACE_DESTROYED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
