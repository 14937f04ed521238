package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible except deletion
// by the retention sweep.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrorCode classifies why a job failed or was requeued.
type ErrorCode string

const (
	ErrCodeAITimeout          ErrorCode = "ai_timeout"
	ErrCodeRateLimited        ErrorCode = "rate_limited"
	ErrCodeValidationFailed   ErrorCode = "validation_failed"
	ErrCodeStorageError       ErrorCode = "storage_error"
	ErrCodeMaxRetriesExceeded ErrorCode = "max_retries_exceeded"
	ErrCodeUserCancelled      ErrorCode = "user_cancelled"
	ErrCodeClientReset        ErrorCode = "client_reset"
	ErrCodeUnknown            ErrorCode = "unknown"
)

// Retryable reports whether a failure with this code is eligible for the
// retry budget. A user cancellation is always terminal.
func (c ErrorCode) Retryable() bool {
	return c != ErrCodeUserCancelled
}

// Job is one plan-generation request moving through the queue. Exactly one
// worker holds the lease while status is processing; all mutations are
// conditional updates against current status and ownership.
type Job struct {
	ID              string
	OwnerID         string
	CycleKey        string
	Status          JobStatus
	InputSnapshot   json.RawMessage
	ResultReference string
	ErrorCode       ErrorCode
	ErrorMessage    string
	RetryCount      int
	MaxRetries      int
	CheckpointPhase int
	CheckpointData  json.RawMessage
	WorkerID        string
	LockExpiresAt   *time.Time
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// JobSummary carries the fields a polling client needs to decide whether to
// keep waiting, cancel, or reset a stuck job.
type JobSummary struct {
	ID            string
	Status        JobStatus
	CycleKey      string
	RetryCount    int
	MaxRetries    int
	ErrorCode     ErrorCode
	ErrorMessage  string
	LockExpiresAt *time.Time
	CreatedAt     time.Time
	StartedAt     *time.Time
}
