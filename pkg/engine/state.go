package engine

import "fmt"

// State identifies the phase a run is in. One run moves
// Idle → Snapshotting → Scanning → Applying → Completed, detouring through
// RollingBack when any phase after a successful snapshot fails, and always
// returns to Idle.
type State int

const (
	StateIdle State = iota
	StateSnapshotting
	StateScanning
	StateApplying
	StateCompleted
	StateRollingBack
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateSnapshotting: "snapshotting",
	StateScanning:     "scanning",
	StateApplying:     "applying",
	StateCompleted:    "completed",
	StateRollingBack:  "rolling-back",
}

// String returns the lowercase name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}
