package domain

import "errors"

var (
	// ErrNotFound covers both missing jobs and jobs visible only to another
	// owner; callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateActiveJob rejects an enqueue while a pending or processing
	// job already exists for the same owner and cycle.
	ErrDuplicateActiveJob = errors.New("duplicate active job")

	// ErrNoJob means no eligible work; the claim loop sleeps and retries.
	ErrNoJob = errors.New("no job available")
)
