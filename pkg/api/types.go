package api

import "time"

// v0 contains public types shared by the runner, the preflight checks and report consumers.

type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskRunning     TaskStatus = "running"
	TaskSuccess     TaskStatus = "success"
	TaskFailed      TaskStatus = "failed"
	TaskTimedOut    TaskStatus = "timed_out"
	TaskMissing     TaskStatus = "missing"
	TaskInterrupted TaskStatus = "interrupted"
)

// Terminal reports whether a task in this status will not change again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSuccess, TaskFailed, TaskTimedOut, TaskMissing, TaskInterrupted:
		return true
	}
	return false
}

type TaskResult struct {
	Task     string        `json:"task" yaml:"task"`
	Path     string        `json:"path" yaml:"path"`
	Status   TaskStatus    `json:"status" yaml:"status"`
	ExitCode *int          `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// RunReport holds one TaskResult per attempted task, in execution order.
type RunReport struct {
	RunID      string       `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Results    []TaskResult `json:"results" yaml:"results"`
}

// Count returns how many results ended in the given status.
func (r RunReport) Count(status TaskStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

type CapabilityStatus struct {
	Name     string `json:"name" yaml:"name"`
	Module   string `json:"module" yaml:"module"`
	Resolved bool   `json:"resolved" yaml:"resolved"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
}
