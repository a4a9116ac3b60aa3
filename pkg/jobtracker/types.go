// Package jobtracker tracks asynchronously dispatched sifter runs.
//
// Submission enqueues work onto a dispatcher (the worker pool) and returns
// immediately; callers poll for status afterwards. Job status is monotonic:
// once terminal it never changes on subsequent polls.
package jobtracker

import "time"

// Status is the caller-visible lifecycle status of a job.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"

	// StatusSifterFailure means the worker ran the task to completion but
	// the sifter itself failed. Distinguishes "the task ran" from "the
	// task's payload succeeded".
	StatusSifterFailure Status = "SIFTER_FAILURE"

	// StatusRevoked is a recognized terminal status reserved for future
	// cancellation support; nothing produces it today.
	StatusRevoked Status = "REVOKED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSifterFailure, StatusRevoked:
		return true
	}
	return false
}

// State is the dispatcher's own infrastructure-level view of a task.
type State string

const (
	StatePending State = "PENDING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// Result is the payload a completed task reports back.
type Result struct {
	// Success is whether the sifter run itself succeeded.
	Success bool `json:"success"`

	// Sifter is the sifter name the task ran.
	Sifter string `json:"sifter"`

	// Artifact is the delivered artifact filename, when one was produced.
	Artifact string `json:"artifact,omitempty"`

	// Error is the failure text when Success is false.
	Error string `json:"error,omitempty"`
}

// Job is one tracked sifter execution for a course scope.
type Job struct {
	ID          string    `json:"task_id"`
	Sifter      string    `json:"sifter"`
	CourseID    string    `json:"course"`
	ExtraArgs   []string  `json:"extra_args"`
	SubmittedAt time.Time `json:"time"`
	Status      Status    `json:"status"`
	Result      *Result   `json:"results,omitempty"`
}
