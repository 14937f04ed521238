package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
	"github.com/lakshayybhati/liftor-sub005/internal/domain/jsoncfg"
	"github.com/lakshayybhati/liftor-sub005/internal/middleware"
	"github.com/lakshayybhati/liftor-sub005/internal/storage"
)

type planRequest struct {
	CycleKey string              `json:"cycle_key"`
	Profile  jsoncfg.ProfileJSON `json:"profile"`
}

var cycleKeyPattern = regexp.MustCompile(`^\d{4}-W\d{2}$`)

// jobIDParam validates the {id} route parameter. Job IDs are UUIDs; anything
// else cannot name a job, so it reports not found without touching the store.
func (a *App) jobIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return "", false
	}
	return id.String(), true
}

// CycleKeyFor formats the ISO week containing t, e.g. "2026-W02".
func CycleKeyFor(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// PlansCreate snapshots the submitted profile and enqueues a generation job
// for the given cycle. At most one active job may exist per owner and cycle.
func (a *App) PlansCreate(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerFromContext(r.Context())

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Profile.Normalize("")
	if err := req.Profile.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	cycleKey := req.CycleKey
	if cycleKey == "" {
		cycleKey = CycleKeyFor(time.Now())
	}
	if !cycleKeyPattern.MatchString(cycleKey) {
		a.error(w, http.StatusBadRequest, "bad_request", "cycle_key must look like 2026-W02")
		return
	}

	id, err := a.Queue.Enqueue(r.Context(), ownerID, cycleKey, jsoncfg.MustMarshal(req.Profile))
	if errors.Is(err, domain.ErrDuplicateActiveJob) {
		active, aerr := a.Queue.GetActiveJob(r.Context(), ownerID)
		if aerr != nil || active == nil {
			a.error(w, http.StatusConflict, "conflict", "an active job already exists for this cycle")
			return
		}
		a.json(w, http.StatusConflict, map[string]any{
			"error":   "conflict",
			"message": "an active job already exists for this cycle",
			"job":     jobSummaryPayload(active),
		})
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", ownerID).Msg("http: enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue plan job")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"id":        id,
		"cycle_key": cycleKey,
		"status":    domain.JobStatusPending,
	})
}

// PlansActive reports the owner's most recent pending or processing job, the
// one a reconnecting client should resume polling.
func (a *App) PlansActive(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerFromContext(r.Context())
	active, err := a.Queue.GetActiveJob(r.Context(), ownerID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load active job")
		return
	}
	if active == nil {
		a.error(w, http.StatusNotFound, "not_found", "no active job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job": jobSummaryPayload(active)})
}

func (a *App) PlansGet(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerFromContext(r.Context())
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := a.Queue.GetJob(r.Context(), jobID, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job": jobPayload(job)})
}

// PlansArtifact streams the generated plan document for a completed job.
func (a *App) PlansArtifact(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerFromContext(r.Context())
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := a.Queue.GetJob(r.Context(), jobID, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.Status != domain.JobStatusCompleted || job.ResultReference == "" {
		a.error(w, http.StatusConflict, "conflict", "plan is not ready yet")
		return
	}
	data, err := a.Store.Read(r.Context(), job.ResultReference)
	if errors.Is(err, storage.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "plan artifact is missing")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: read artifact failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read plan artifact")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// PlansCancel marks a pending or processing job cancelled. The worker holding
// it observes the ownership change at its next heartbeat and stands down.
func (a *App) PlansCancel(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerFromContext(r.Context())
	jobID, valid := a.jobIDParam(w, r)
	if !valid {
		return
	}
	ok, err := a.Queue.Cancel(r.Context(), jobID, ownerID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	if !ok {
		a.notCancellable(w, r, jobID, ownerID, "job is not cancellable")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"id": jobID, "status": domain.JobStatusFailed, "error_code": domain.ErrCodeUserCancelled})
}

// PlansReset force-releases a job that has been processing longer than the
// grace period, returning it to the queue (or failing it once the retry
// budget is spent).
func (a *App) PlansReset(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerFromContext(r.Context())
	jobID, valid := a.jobIDParam(w, r)
	if !valid {
		return
	}
	ok, err := a.Queue.ResetIfStuck(r.Context(), jobID, ownerID, a.ResetGrace)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to reset job")
		return
	}
	if !ok {
		a.notCancellable(w, r, jobID, ownerID, "job is not stuck")
		return
	}
	job, err := a.Queue.GetJob(r.Context(), jobID, ownerID)
	if err != nil {
		a.json(w, http.StatusOK, map[string]any{"id": jobID})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job": jobPayload(job)})
}

// notCancellable distinguishes a missing job from one in the wrong state so
// a conditional update that matched no row still yields an accurate status.
func (a *App) notCancellable(w http.ResponseWriter, r *http.Request, jobID, ownerID, message string) {
	if _, err := a.Queue.GetJob(r.Context(), jobID, ownerID); errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.error(w, http.StatusConflict, "conflict", message)
}
