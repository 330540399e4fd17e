package events

// Event identifies a topic on the bus.
type Event string

const (
	EventJobProgress  Event = "optimization.progress"
	EventJobCompleted Event = "optimization.completed"
	EventJobFailed    Event = "optimization.failed"
)

// JobProgress is the payload published while a sweep is running.
type JobProgress struct {
	JobID     string
	Completed int
	Total     int
	Progress  int
}

// JobDone is the payload published when a sweep reaches a terminal state.
type JobDone struct {
	JobID string
	Error string // empty on success
}
