// Package notify delivers job outcome events to the requesting owner.
// Formatting and transport guarantees live with the receiving side; the
// queue only promises that terminal outcomes produce exactly one event.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
	"github.com/lakshayybhati/liftor-sub005/internal/infra"
)

// Event describes a terminal job outcome.
type Event struct {
	OwnerID   string           `json:"owner_id"`
	JobID     string           `json:"job_id"`
	CycleKey  string           `json:"cycle_key"`
	Status    domain.JobStatus `json:"status"`
	ResultRef string           `json:"result_reference,omitempty"`
	ErrorCode domain.ErrorCode `json:"error_code,omitempty"`
}

// Sender delivers an outcome event. Implementations must be safe for
// concurrent use by multiple worker goroutines.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// LogSender records outcomes in the service log. It is the default sender
// in environments without a push channel.
type LogSender struct {
	Logger infra.Logger
}

func (s LogSender) Send(ctx context.Context, ev Event) error {
	s.Logger.Info().
		Str("owner_id", ev.OwnerID).
		Str("job_id", ev.JobID).
		Str("status", string(ev.Status)).
		Str("error_code", string(ev.ErrorCode)).
		Msg("notify: job outcome")
	return nil
}

// WebhookSender posts outcome events to a configured endpoint.
type WebhookSender struct {
	URL        string
	HTTPClient *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSender) Send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
