// Package worker drives claimed jobs through the generation phases. One
// worker process runs one claim loop; any number of processes may poll the
// same queue concurrently.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
	"github.com/lakshayybhati/liftor-sub005/internal/infra"
	"github.com/lakshayybhati/liftor-sub005/internal/notify"
	"github.com/lakshayybhati/liftor-sub005/internal/plangen"
)

// Config controls the claim loop and lease maintenance.
type Config struct {
	WorkerID          string
	PollInterval      time.Duration
	Lease             time.Duration
	KeepaliveInterval time.Duration
}

// errLeaseLost aborts phase execution when another worker has reclaimed the
// job; the new owner is in charge and nothing here may mutate it further.
var errLeaseLost = errors.New("lease lost")

// Worker claims jobs and executes them phase by phase, persisting a
// checkpoint after each phase so a reclaiming worker never redoes work.
type Worker struct {
	queue    domain.Queue
	gen      plangen.Generator
	notifier notify.Sender
	logger   infra.Logger
	cfg      Config
}

func New(queue domain.Queue, gen plangen.Generator, notifier notify.Sender, logger infra.Logger, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = cfg.Lease / 4
	}
	return &Worker{queue: queue, gen: gen, notifier: notifier, logger: logger, cfg: cfg}
}

// Run polls for work until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Str("worker_id", w.cfg.WorkerID).Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.queue.Claim(ctx, w.cfg.WorkerID, w.cfg.Lease)
		if err != nil {
			if errors.Is(err, domain.ErrNoJob) {
				sleepCtx(ctx, w.cfg.PollInterval)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("worker: claim failed")
			sleepCtx(ctx, w.cfg.PollInterval)
			continue
		}

		w.Execute(ctx, job)
	}
}

// Execute runs one claimed job to a terminal call (complete, fail, or
// abandoned after losing the lease). Exported for tests and for embedding
// the worker in other binaries.
func (w *Worker) Execute(ctx context.Context, job *domain.Job) {
	log := w.logger.With().Str("job_id", job.ID).Str("worker_id", w.cfg.WorkerID).Logger()
	log.Info().Int("resume_phase", job.CheckpointPhase+1).Int("retry_count", job.RetryCount).Msg("worker: picked job")

	data := job.CheckpointData
	for phase := job.CheckpointPhase + 1; phase <= w.gen.PhaseCount(); phase++ {
		res, err := w.runPhase(ctx, job, phase, data)
		if err != nil {
			if errors.Is(err, errLeaseLost) {
				log.Warn().Int("phase", phase).Msg("worker: lease lost, abandoning job")
				return
			}
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				// Shutting down mid-phase: leave the row processing; the
				// lease will lapse and another worker resumes from the
				// checkpoint without burning a retry.
				log.Info().Int("phase", phase).Msg("worker: shutdown mid-phase")
				return
			}
			w.fail(ctx, job, plangen.CodeFor(err), err, log)
			return
		}

		if phase == w.gen.PhaseCount() {
			w.complete(ctx, job, res.ResultRef, log)
			return
		}

		data = res.Data
		ok, err := w.queue.Heartbeat(ctx, job.ID, w.cfg.WorkerID, phase, data, w.cfg.Lease)
		if err != nil {
			log.Error().Err(err).Int("phase", phase).Msg("worker: checkpoint heartbeat failed")
			return
		}
		if !ok {
			log.Warn().Int("phase", phase).Msg("worker: lease lost at checkpoint, abandoning job")
			return
		}
	}
}

// runPhase executes one generation phase while a keepalive goroutine extends
// the lease with the last persisted checkpoint. A keepalive that comes back
// false cancels the phase context: that is how a worker discovers
// cancellation or reclaim mid-phase.
func (w *Worker) runPhase(ctx context.Context, job *domain.Job, phase int, data []byte) (plangen.PhaseResult, error) {
	phaseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		lost bool
		mu   sync.Mutex
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.cfg.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-phaseCtx.Done():
				return
			case <-ticker.C:
				ok, err := w.queue.Heartbeat(phaseCtx, job.ID, w.cfg.WorkerID, phase-1, data, w.cfg.Lease)
				if err != nil {
					continue
				}
				if !ok {
					mu.Lock()
					lost = true
					mu.Unlock()
					cancel()
					return
				}
			}
		}
	}()

	res, err := w.gen.RunPhase(phaseCtx, plangen.PhaseRequest{
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		CycleKey: job.CycleKey,
		Phase:    phase,
		Snapshot: job.InputSnapshot,
		Data:     data,
	})
	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if lost {
		return plangen.PhaseResult{}, errLeaseLost
	}
	return res, err
}

func (w *Worker) complete(ctx context.Context, job *domain.Job, resultRef string, log infra.Logger) {
	ok, err := w.queue.Complete(ctx, job.ID, w.cfg.WorkerID, resultRef)
	if err != nil {
		log.Error().Err(err).Msg("worker: complete failed")
		return
	}
	if !ok {
		log.Warn().Msg("worker: job reclaimed before completion could land")
		return
	}
	log.Info().Str("result_reference", resultRef).Msg("worker: job completed")

	w.send(ctx, notify.Event{
		OwnerID:   job.OwnerID,
		JobID:     job.ID,
		CycleKey:  job.CycleKey,
		Status:    domain.JobStatusCompleted,
		ResultRef: resultRef,
	}, log)
}

func (w *Worker) fail(ctx context.Context, job *domain.Job, code domain.ErrorCode, cause error, log infra.Logger) {
	ok, err := w.queue.Fail(ctx, job.ID, w.cfg.WorkerID, code, cause.Error())
	if err != nil {
		log.Error().Err(err).Msg("worker: fail could not be recorded")
		return
	}
	if !ok {
		log.Warn().Msg("worker: job reclaimed before failure could land")
		return
	}

	// Mirror the store's retry rule to know whether this failure was
	// terminal without another read.
	terminal := !code.Retryable() || job.RetryCount >= job.MaxRetries
	if !terminal {
		log.Warn().Err(cause).Str("error_code", string(code)).Int("retry_count", job.RetryCount+1).Msg("worker: job requeued")
		return
	}
	if code.Retryable() {
		code = domain.ErrCodeMaxRetriesExceeded
	}
	log.Error().Err(cause).Str("error_code", string(code)).Msg("worker: job terminally failed")

	w.send(ctx, notify.Event{
		OwnerID:   job.OwnerID,
		JobID:     job.ID,
		CycleKey:  job.CycleKey,
		Status:    domain.JobStatusFailed,
		ErrorCode: code,
	}, log)
}

func (w *Worker) send(ctx context.Context, ev notify.Event, log infra.Logger) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Send(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("worker: outcome notification failed")
	}
}

// RunSweeper deletes terminal jobs older than retention on every interval
// tick until ctx is cancelled. Housekeeping only; it never touches active
// jobs.
func (w *Worker) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.Sweep(ctx, retention)
			if err != nil {
				w.logger.Error().Err(err).Msg("worker: retention sweep failed")
				continue
			}
			if n > 0 {
				w.logger.Info().Int64("deleted", n).Msg("worker: retention sweep")
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
