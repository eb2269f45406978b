package job

// State is a job's lifecycle state. Transitions are monotonic:
// Pending → Running → {Finished, Cancelled}. There is no transition out of a
// terminal state.
type State int

const (
	Pending State = iota
	Running
	Finished
	Cancelled
)

// terminal reports whether the state ends the job's lifecycle.
func (s State) terminal() bool {
	return s == Finished || s == Cancelled
}

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
