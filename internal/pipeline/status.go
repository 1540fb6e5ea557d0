package pipeline

// Status is the state of a stage execution attempt. "Gate not ready" and
// "never attempted" are ordinary values here, not error conditions.
type Status string

const (
	// StatusNone means the stage has never been attempted for the run.
	StatusNone Status = ""

	StatusRunning          Status = "running"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusApproved         Status = "approved"
)

// Satisfied reports whether this status allows downstream stages to run.
func (s Status) Satisfied() bool {
	return s == StatusCompleted || s == StatusApproved
}

func (s Status) String() string {
	if s == StatusNone {
		return "not_started"
	}
	return string(s)
}
