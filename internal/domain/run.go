package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a BatchRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// BatchRun is the bookkeeping record of one pipeline execution.
// FinishedAt is nil while the run is still in progress.
type BatchRun struct {
	ID            uuid.UUID
	Period        Period
	Source        string
	Sink          string
	Status        RunStatus
	RecordsRead   int
	RecordsScored int
	Error         string
	StartedAt     time.Time
	FinishedAt    *time.Time
}
