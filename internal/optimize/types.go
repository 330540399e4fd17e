package optimize

import (
	"context"
	"fmt"
	"time"

	"backtest-core/internal/backtest"
)

// Status is the lifecycle state of an optimization job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Job tracks one parameter sweep. It is owned by the runner's collector
// goroutine while RUNNING; readers go through the store.
type Job struct {
	ID             string             `json:"id"`
	StrategyID     string             `json:"strategyId,omitempty"`
	Target         string             `json:"target"`
	Status         Status             `json:"status"`
	Progress       int                `json:"progress"`
	BestParameters map[string]float64 `json:"bestParameters,omitempty"`
	BestSummary    *backtest.Summary  `json:"bestSummary,omitempty"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Range describes the values swept for one parameter. Either Values is
// set explicitly or Min/Max/Step describe an inclusive arithmetic range.
type Range struct {
	Min    float64   `json:"min" yaml:"min"`
	Max    float64   `json:"max" yaml:"max"`
	Step   float64   `json:"step" yaml:"step"`
	Values []float64 `json:"values,omitempty" yaml:"values"`
}

// Ranges maps "nodeId_paramName" keys to their swept range.
type Ranges map[string]Range

// JobStore persists job state. The sqlite store in pkg/db and the
// in-memory store used by tests both implement it.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
}

// SetupError reports a sweep that cannot start at all (for example zero
// parameter combinations). It fails the whole job.
type SetupError struct {
	Reason string
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("optimization setup: %s", e.Reason)
}
