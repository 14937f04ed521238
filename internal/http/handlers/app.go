package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
	"github.com/lakshayybhati/liftor-sub005/internal/infra"
	"github.com/lakshayybhati/liftor-sub005/internal/storage"
)

// App bundles the dependencies the HTTP handlers need. The queue owns every
// job-table mutation; handlers never touch SQL directly.
type App struct {
	Queue      domain.Queue
	Store      *storage.FileStore
	Logger     infra.Logger
	ResetGrace time.Duration
}

func NewApp(queue domain.Queue, store *storage.FileStore, logger infra.Logger, resetGrace time.Duration) *App {
	return &App{Queue: queue, Store: store, Logger: logger, ResetGrace: resetGrace}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

func jobSummaryPayload(s *domain.JobSummary) map[string]any {
	payload := map[string]any{
		"id":          s.ID,
		"status":      s.Status,
		"cycle_key":   s.CycleKey,
		"retry_count": s.RetryCount,
		"max_retries": s.MaxRetries,
		"created_at":  s.CreatedAt,
	}
	if s.ErrorCode != "" {
		payload["error_code"] = s.ErrorCode
		payload["error_message"] = s.ErrorMessage
	}
	if s.StartedAt != nil {
		payload["started_at"] = s.StartedAt
	}
	if s.LockExpiresAt != nil {
		payload["lock_expires_at"] = s.LockExpiresAt
	}
	return payload
}

func jobPayload(j *domain.Job) map[string]any {
	payload := map[string]any{
		"id":               j.ID,
		"status":           j.Status,
		"cycle_key":        j.CycleKey,
		"retry_count":      j.RetryCount,
		"max_retries":      j.MaxRetries,
		"checkpoint_phase": j.CheckpointPhase,
		"created_at":       j.CreatedAt,
	}
	if j.ResultReference != "" {
		payload["result_reference"] = j.ResultReference
	}
	if j.ErrorCode != "" {
		payload["error_code"] = j.ErrorCode
		payload["error_message"] = j.ErrorMessage
	}
	if j.StartedAt != nil {
		payload["started_at"] = j.StartedAt
	}
	if j.CompletedAt != nil {
		payload["completed_at"] = j.CompletedAt
	}
	return payload
}
