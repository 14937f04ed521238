package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Queue owns the write path of the job table. No caller mutates job rows
// outside these operations; every state transition is a compare-and-swap
// conditioned on current status and, where relevant, current ownership.
type Queue interface {
	// Enqueue creates a pending job for (ownerID, cycleKey) and returns its
	// id. Returns ErrDuplicateActiveJob if a pending or processing job
	// already exists for the pair.
	Enqueue(ctx context.Context, ownerID, cycleKey string, snapshot json.RawMessage) (string, error)

	// Claim atomically takes the oldest eligible job (pending, or processing
	// with an elapsed lease) and transitions it to processing under a fresh
	// lease owned by workerID. Returns ErrNoJob when nothing is eligible.
	Claim(ctx context.Context, workerID string, lease time.Duration) (*Job, error)

	// Heartbeat persists checkpoint progress and extends the lease. Returns
	// false without mutating anything if workerID no longer owns the job.
	Heartbeat(ctx context.Context, jobID, workerID string, phase int, data json.RawMessage, lease time.Duration) (bool, error)

	// Complete transitions a processing job owned by workerID to completed.
	// Returns false if the row already left processing or changed owner.
	Complete(ctx context.Context, jobID, workerID, resultRef string) (bool, error)

	// Fail records a failure and decides retry versus terminal: with budget
	// remaining the job returns to pending with retry_count incremented,
	// otherwise it is terminally failed. A non-retryable code is terminal
	// regardless of budget. Returns false if workerID lost ownership.
	Fail(ctx context.Context, jobID, workerID string, code ErrorCode, msg string) (bool, error)

	// Cancel terminally fails a pending or processing job owned by ownerID
	// with code user_cancelled, bypassing the retry budget.
	Cancel(ctx context.Context, jobID, ownerID string) (bool, error)

	// ResetIfStuck requeues (or terminally fails, when retries are spent) a
	// processing job owned by ownerID whose started_at is at least minAge
	// old. Younger jobs are left alone and false is returned.
	ResetIfStuck(ctx context.Context, jobID, ownerID string, minAge time.Duration) (bool, error)

	// GetActiveJob returns the most recent pending or processing job for
	// ownerID, or nil when none exists.
	GetActiveJob(ctx context.Context, ownerID string) (*JobSummary, error)

	// GetJob returns the job by id scoped to ownerID. Returns ErrNotFound
	// for missing rows and rows belonging to someone else alike.
	GetJob(ctx context.Context, jobID, ownerID string) (*Job, error)

	// Sweep deletes terminal jobs whose completed_at is older than the
	// retention window and reports how many rows went away.
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}
