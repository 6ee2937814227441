package supervisor

// State is the lifecycle state of the supervised server. It only changes
// inside the Supervisor, and every change fires a ServerStateChanged event.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
)

func (s State) String() string { return string(s) }

// alive reports whether a child process exists for this state.
func (s State) alive() bool {
	switch s {
	case StateStarting, StateRunning, StateStopping:
		return true
	}
	return false
}
