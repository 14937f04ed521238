// Package plangen defines the generation collaborator contract the worker
// drives. A generator runs in discrete numbered phases; the queue persists
// the opaque checkpoint between phases and never interprets it, so a job
// interrupted mid-plan resumes where the previous worker stopped.
package plangen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
	"github.com/lakshayybhati/liftor-sub005/internal/providers/genai"
)

// PhaseRequest carries everything a generator needs to run one phase.
// Snapshot is the payload captured at enqueue time; Data is the checkpoint
// produced by the previous phase, empty on a fresh job.
type PhaseRequest struct {
	JobID    string
	OwnerID  string
	CycleKey string
	Phase    int
	Snapshot json.RawMessage
	Data     json.RawMessage
}

// PhaseResult is the outcome of one phase. ResultRef is set only by the
// final phase and points at the produced artifact.
type PhaseResult struct {
	Data      json.RawMessage
	ResultRef string
}

// Generator produces a plan in resumable phases numbered 1..PhaseCount.
type Generator interface {
	PhaseCount() int
	RunPhase(ctx context.Context, req PhaseRequest) (PhaseResult, error)
}

// Error is a typed generation failure carrying the queue's error code, so
// the retry-versus-terminal decision stays out of the generator itself.
type Error struct {
	Code domain.ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a typed Error wrapping a formatted cause.
func Errorf(code domain.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeFor extracts the error code from a generation failure, classifying
// transport-level errors from the AI provider along the way.
func CodeFor(err error) domain.ErrorCode {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrCodeAITimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return domain.ErrCodeAITimeout
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return domain.ErrCodeRateLimited
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return domain.ErrCodeValidationFailed
		}
	}
	return domain.ErrCodeUnknown
}
