// Package queue owns the write path of the plan_jobs table. Every state
// transition is a single conditional statement against the store, never a
// read-then-write pair, so concurrent workers and client recovery calls can
// race without corrupting each other.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
	"github.com/lakshayybhati/liftor-sub005/internal/infra"
	"github.com/lakshayybhati/liftor-sub005/internal/sqlinline"
)

const pgUniqueViolation = "23505"

// PG implements domain.Queue on PostgreSQL via sqlinline statements.
type PG struct {
	sql        infra.SQLExecutor
	maxRetries int
}

// NewPG creates a queue backed by the given executor. maxRetries is the
// retry budget stamped onto each enqueued job.
func NewPG(sql infra.SQLExecutor, maxRetries int) *PG {
	return &PG{sql: sql, maxRetries: maxRetries}
}

// EnsureSchema applies the idempotent DDL for the queue tables.
func (q *PG) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqlinline.SchemaStatements {
		if _, err := q.sql.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (q *PG) Enqueue(ctx context.Context, ownerID, cycleKey string, snapshot json.RawMessage) (string, error) {
	if len(snapshot) == 0 {
		snapshot = json.RawMessage(`{}`)
	}
	row := q.sql.QueryRow(ctx, sqlinline.QEnqueueJob, ownerID, cycleKey, []byte(snapshot), q.maxRetries)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrDuplicateActiveJob
		}
		// The partial unique index catches the race two concurrent enqueues
		// can slip past the not-exists guard.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", domain.ErrDuplicateActiveJob
		}
		return "", err
	}
	return id, nil
}

func (q *PG) Claim(ctx context.Context, workerID string, lease time.Duration) (*domain.Job, error) {
	row := q.sql.QueryRow(ctx, sqlinline.QClaimJob, workerID, lease.Seconds())

	var (
		j             domain.Job
		lockExpiresAt time.Time
		startedAt     time.Time
	)
	if err := row.Scan(
		&j.ID,
		&j.OwnerID,
		&j.CycleKey,
		&j.Status,
		&j.InputSnapshot,
		&j.RetryCount,
		&j.MaxRetries,
		&j.CheckpointPhase,
		&j.CheckpointData,
		&j.WorkerID,
		&lockExpiresAt,
		&j.CreatedAt,
		&startedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJob
		}
		return nil, err
	}
	j.LockExpiresAt = &lockExpiresAt
	j.StartedAt = &startedAt
	// Ensure payload bytes are not aliased to the driver's buffers.
	j.InputSnapshot = append(json.RawMessage(nil), j.InputSnapshot...)
	j.CheckpointData = append(json.RawMessage(nil), j.CheckpointData...)
	return &j, nil
}

func (q *PG) Heartbeat(ctx context.Context, jobID, workerID string, phase int, data json.RawMessage, lease time.Duration) (bool, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QHeartbeatJob, jobID, workerID, phase, nullableJSON(data), lease.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *PG) Complete(ctx context.Context, jobID, workerID, resultRef string) (bool, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QCompleteJob, jobID, workerID, resultRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *PG) Fail(ctx context.Context, jobID, workerID string, code domain.ErrorCode, msg string) (bool, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QFailJob, jobID, workerID, string(code), msg, code.Retryable())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *PG) Cancel(ctx context.Context, jobID, ownerID string) (bool, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QCancelJob, jobID, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *PG) ResetIfStuck(ctx context.Context, jobID, ownerID string, minAge time.Duration) (bool, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QResetJobIfStuck, jobID, ownerID, minAge.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *PG) GetActiveJob(ctx context.Context, ownerID string) (*domain.JobSummary, error) {
	row := q.sql.QueryRow(ctx, sqlinline.QGetActiveJob, ownerID)

	var (
		s         domain.JobSummary
		errorCode string
	)
	if err := row.Scan(
		&s.ID,
		&s.Status,
		&s.CycleKey,
		&s.RetryCount,
		&s.MaxRetries,
		&errorCode,
		&s.ErrorMessage,
		&s.LockExpiresAt,
		&s.CreatedAt,
		&s.StartedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	s.ErrorCode = domain.ErrorCode(errorCode)
	return &s, nil
}

func (q *PG) GetJob(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	row := q.sql.QueryRow(ctx, sqlinline.QGetJob, jobID, ownerID)

	var (
		j         domain.Job
		errorCode string
	)
	if err := row.Scan(
		&j.ID,
		&j.OwnerID,
		&j.CycleKey,
		&j.Status,
		&j.InputSnapshot,
		&j.ResultReference,
		&errorCode,
		&j.ErrorMessage,
		&j.RetryCount,
		&j.MaxRetries,
		&j.CheckpointPhase,
		&j.CheckpointData,
		&j.WorkerID,
		&j.LockExpiresAt,
		&j.CreatedAt,
		&j.StartedAt,
		&j.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.ErrorCode = domain.ErrorCode(errorCode)
	j.InputSnapshot = append(json.RawMessage(nil), j.InputSnapshot...)
	j.CheckpointData = append(json.RawMessage(nil), j.CheckpointData...)
	return &j, nil
}

func (q *PG) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QSweepJobs, retention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableJSON(b json.RawMessage) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.Queue = (*PG)(nil)
