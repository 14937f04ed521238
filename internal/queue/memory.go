package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
)

// Memory implements domain.Queue on a mutex-guarded map. It mirrors the
// PostgreSQL transition rules exactly and backs tests and local development
// without a database. The mutex makes every operation as atomic as the
// conditional UPDATE it stands in for.
type Memory struct {
	mu         sync.Mutex
	jobs       map[string]*domain.Job
	maxRetries int
	now        func() time.Time
}

// NewMemory creates an in-memory queue with the given retry budget.
func NewMemory(maxRetries int) *Memory {
	return NewMemoryWithClock(maxRetries, time.Now)
}

// NewMemoryWithClock injects the clock, letting tests step through lease
// expiry, grace periods, and retention windows deterministically.
func NewMemoryWithClock(maxRetries int, now func() time.Time) *Memory {
	return &Memory{
		jobs:       make(map[string]*domain.Job),
		maxRetries: maxRetries,
		now:        now,
	}
}

func (m *Memory) Enqueue(ctx context.Context, ownerID, cycleKey string, snapshot json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.OwnerID == ownerID && j.CycleKey == cycleKey && !j.Status.Terminal() {
			return "", domain.ErrDuplicateActiveJob
		}
	}

	if len(snapshot) == 0 {
		snapshot = json.RawMessage(`{}`)
	}
	j := &domain.Job{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		CycleKey:      cycleKey,
		Status:        domain.JobStatusPending,
		InputSnapshot: append(json.RawMessage(nil), snapshot...),
		MaxRetries:    m.maxRetries,
		CreatedAt:     m.now(),
	}
	m.jobs[j.ID] = j
	return j.ID, nil
}

func (m *Memory) Claim(ctx context.Context, workerID string, lease time.Duration) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var candidates []*domain.Job
	for _, j := range m.jobs {
		switch {
		case j.Status == domain.JobStatusPending:
			candidates = append(candidates, j)
		case j.Status == domain.JobStatusProcessing && j.LockExpiresAt != nil && !j.LockExpiresAt.After(now):
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoJob
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].CreatedAt.Equal(candidates[b].CreatedAt) {
			return candidates[a].ID < candidates[b].ID
		}
		return candidates[a].CreatedAt.Before(candidates[b].CreatedAt)
	})

	j := candidates[0]
	expires := now.Add(lease)
	started := now
	j.Status = domain.JobStatusProcessing
	j.WorkerID = workerID
	j.LockExpiresAt = &expires
	j.StartedAt = &started
	return cloneJob(j), nil
}

func (m *Memory) Heartbeat(ctx context.Context, jobID, workerID string, phase int, data json.RawMessage, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobStatusProcessing || j.WorkerID != workerID {
		return false, nil
	}
	expires := m.now().Add(lease)
	j.CheckpointPhase = phase
	j.CheckpointData = append(json.RawMessage(nil), data...)
	j.LockExpiresAt = &expires
	return true, nil
}

func (m *Memory) Complete(ctx context.Context, jobID, workerID, resultRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobStatusProcessing || j.WorkerID != workerID {
		return false, nil
	}
	now := m.now()
	j.Status = domain.JobStatusCompleted
	j.ResultReference = resultRef
	j.CompletedAt = &now
	j.WorkerID = ""
	j.LockExpiresAt = nil
	return true, nil
}

func (m *Memory) Fail(ctx context.Context, jobID, workerID string, code domain.ErrorCode, msg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobStatusProcessing || j.WorkerID != workerID {
		return false, nil
	}
	m.settleFailure(j, code, msg)
	return true, nil
}

func (m *Memory) Cancel(ctx context.Context, jobID, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.OwnerID != ownerID || j.Status.Terminal() {
		return false, nil
	}
	now := m.now()
	j.Status = domain.JobStatusFailed
	j.ErrorCode = domain.ErrCodeUserCancelled
	j.ErrorMessage = "cancelled by owner"
	j.CompletedAt = &now
	j.WorkerID = ""
	j.LockExpiresAt = nil
	return true, nil
}

func (m *Memory) ResetIfStuck(ctx context.Context, jobID, ownerID string, minAge time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.OwnerID != ownerID || j.Status != domain.JobStatusProcessing {
		return false, nil
	}
	if j.StartedAt == nil || m.now().Sub(*j.StartedAt) < minAge {
		return false, nil
	}
	m.settleFailure(j, domain.ErrCodeClientReset, "reset by owner")
	return true, nil
}

func (m *Memory) GetActiveJob(ctx context.Context, ownerID string) (*domain.JobSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.Job
	for _, j := range m.jobs {
		if j.OwnerID != ownerID || j.Status.Terminal() {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, nil
	}
	return &domain.JobSummary{
		ID:            latest.ID,
		Status:        latest.Status,
		CycleKey:      latest.CycleKey,
		RetryCount:    latest.RetryCount,
		MaxRetries:    latest.MaxRetries,
		ErrorCode:     latest.ErrorCode,
		ErrorMessage:  latest.ErrorMessage,
		LockExpiresAt: cloneTime(latest.LockExpiresAt),
		CreatedAt:     latest.CreatedAt,
		StartedAt:     cloneTime(latest.StartedAt),
	}, nil
}

func (m *Memory) GetJob(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *Memory) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-retention)
	var deleted int64
	for id, j := range m.jobs {
		if j.Status.Terminal() && j.CompletedAt != nil && !j.CompletedAt.After(cutoff) {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

// settleFailure applies the shared retry-versus-terminal rule. Callers hold
// the mutex.
func (m *Memory) settleFailure(j *domain.Job, code domain.ErrorCode, msg string) {
	if code.Retryable() && j.RetryCount < j.MaxRetries {
		j.Status = domain.JobStatusPending
		j.RetryCount++
		j.ErrorCode = code
		j.ErrorMessage = msg
		j.StartedAt = nil
		j.WorkerID = ""
		j.LockExpiresAt = nil
		return
	}
	now := m.now()
	j.Status = domain.JobStatusFailed
	if code.Retryable() {
		j.ErrorCode = domain.ErrCodeMaxRetriesExceeded
	} else {
		j.ErrorCode = code
	}
	j.ErrorMessage = msg
	j.CompletedAt = &now
	j.WorkerID = ""
	j.LockExpiresAt = nil
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	c.InputSnapshot = append(json.RawMessage(nil), j.InputSnapshot...)
	c.CheckpointData = append(json.RawMessage(nil), j.CheckpointData...)
	c.LockExpiresAt = cloneTime(j.LockExpiresAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

var _ domain.Queue = (*Memory)(nil)
