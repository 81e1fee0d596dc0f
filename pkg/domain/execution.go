package domain

// Phase is the transient execution status of a node. It drives the UI
// overlay only and never reaches the document store.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// ExecutionState is the per-node overlay projected from the push channel.
type ExecutionState struct {
	Phase    Phase
	Progress float64 // meaningful while Phase == PhaseRunning, 0..1
	Err      string  // set while Phase == PhaseError
}

// Idle reports whether the overlay carries no visual flag.
func (e ExecutionState) Idle() bool {
	return e.Phase == "" || e.Phase == PhaseIdle
}
