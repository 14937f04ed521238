package plangen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
	"github.com/lakshayybhati/liftor-sub005/internal/domain/jsoncfg"
	"github.com/lakshayybhati/liftor-sub005/internal/infra"
	"github.com/lakshayybhati/liftor-sub005/internal/providers/genai"
	"github.com/lakshayybhati/liftor-sub005/internal/storage"
)

// Plan phases. The checkpoint after each phase lets a reclaiming worker skip
// straight to the next one.
const (
	phaseProfile   = 1
	phaseTraining  = 2
	phaseNutrition = 3
	phaseAssemble  = 4
)

// planDraft is the checkpoint payload accumulated across phases.
type planDraft struct {
	Profile   jsoncfg.ProfileJSON `json:"profile"`
	Summary   string              `json:"summary,omitempty"`
	Training  string              `json:"training,omitempty"`
	Nutrition string              `json:"nutrition,omitempty"`
}

// planDocument is the final artifact persisted to storage.
type planDocument struct {
	JobID       string              `json:"job_id"`
	CycleKey    string              `json:"cycle_key"`
	Profile     jsoncfg.ProfileJSON `json:"profile"`
	Summary     string              `json:"summary"`
	Training    string              `json:"training"`
	Nutrition   string              `json:"nutrition"`
	Model       string              `json:"model"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// PlanBuilder generates a weekly plan with Gemini and persists the finished
// document to the artifact store.
type PlanBuilder struct {
	client *genai.Client
	store  *storage.FileStore
	logger infra.Logger
}

func NewPlanBuilder(client *genai.Client, store *storage.FileStore, logger infra.Logger) *PlanBuilder {
	return &PlanBuilder{client: client, store: store, logger: logger}
}

func (b *PlanBuilder) PhaseCount() int {
	return phaseAssemble
}

func (b *PlanBuilder) RunPhase(ctx context.Context, req PhaseRequest) (PhaseResult, error) {
	var draft planDraft
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &draft); err != nil {
			return PhaseResult{}, Errorf(domain.ErrCodeValidationFailed, "decode checkpoint: %w", err)
		}
	}

	switch req.Phase {
	case phaseProfile:
		if err := json.Unmarshal(req.Snapshot, &draft.Profile); err != nil {
			return PhaseResult{}, Errorf(domain.ErrCodeValidationFailed, "decode snapshot: %w", err)
		}
		draft.Profile.Normalize("")
		if err := draft.Profile.Validate(); err != nil {
			return PhaseResult{}, &Error{Code: domain.ErrCodeValidationFailed, Err: err}
		}
		summary, err := b.generate(ctx, req.JobID, b.summaryPrompt(draft.Profile))
		if err != nil {
			return PhaseResult{}, err
		}
		draft.Summary = summary

	case phaseTraining:
		training, err := b.generate(ctx, req.JobID, b.trainingPrompt(draft))
		if err != nil {
			return PhaseResult{}, err
		}
		draft.Training = training

	case phaseNutrition:
		nutrition, err := b.generate(ctx, req.JobID, b.nutritionPrompt(draft))
		if err != nil {
			return PhaseResult{}, err
		}
		draft.Nutrition = nutrition

	case phaseAssemble:
		doc := planDocument{
			JobID:       req.JobID,
			CycleKey:    req.CycleKey,
			Profile:     draft.Profile,
			Summary:     draft.Summary,
			Training:    draft.Training,
			Nutrition:   draft.Nutrition,
			Model:       b.client.Model(),
			GeneratedAt: time.Now().UTC(),
		}
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return PhaseResult{}, Errorf(domain.ErrCodeUnknown, "marshal plan document: %w", err)
		}
		key := fmt.Sprintf("plans/%s/%s/%s.json", req.OwnerID, req.CycleKey, req.JobID)
		savedKey, err := b.store.Write(ctx, key, payload)
		if err != nil {
			return PhaseResult{}, Errorf(domain.ErrCodeStorageError, "persist plan: %w", err)
		}

		b.logger.Info().
			Str("job_id", req.JobID).
			Str("storage_key", savedKey).
			Msg("plangen: plan document persisted")

		data, _ := json.Marshal(draft)
		return PhaseResult{Data: data, ResultRef: savedKey}, nil

	default:
		return PhaseResult{}, Errorf(domain.ErrCodeValidationFailed, "unknown phase %d", req.Phase)
	}

	data, err := json.Marshal(draft)
	if err != nil {
		return PhaseResult{}, Errorf(domain.ErrCodeUnknown, "marshal checkpoint: %w", err)
	}
	return PhaseResult{Data: data}, nil
}

func (b *PlanBuilder) generate(ctx context.Context, jobID, prompt string) (string, error) {
	text, err := b.client.GenerateContent(ctx, jobID, prompt)
	if err != nil {
		return "", &Error{Code: CodeFor(err), Err: err}
	}
	return text, nil
}

func (b *PlanBuilder) summaryPrompt(p jsoncfg.ProfileJSON) string {
	var sb strings.Builder
	sb.WriteString("Summarize the training context for a client with goal ")
	sb.WriteString(p.Goal)
	sb.WriteString(", experience ")
	sb.WriteString(p.Experience)
	fmt.Fprintf(&sb, ", training %d days/week, %d minutes per session.", p.DaysPerWeek, p.SessionMinutes)
	if len(p.Equipment) > 0 {
		sb.WriteString(" Available equipment: ")
		sb.WriteString(strings.Join(p.Equipment, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

func (b *PlanBuilder) trainingPrompt(d planDraft) string {
	return fmt.Sprintf(
		"Write a weekly %d-day training split for this client. Context: %s",
		d.Profile.DaysPerWeek, d.Summary,
	)
}

func (b *PlanBuilder) nutritionPrompt(d planDraft) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Set weekly nutrition targets for a %s goal", d.Profile.Goal)
	if d.Profile.BodyweightKg > 0 {
		fmt.Fprintf(&sb, " at %.1f kg bodyweight", d.Profile.BodyweightKg)
	}
	if d.Profile.DietaryStyle != "" {
		fmt.Fprintf(&sb, ", dietary style %s", d.Profile.DietaryStyle)
	}
	if len(d.Profile.Allergies) > 0 {
		fmt.Fprintf(&sb, ", avoiding %s", strings.Join(d.Profile.Allergies, ", "))
	}
	sb.WriteString(". Context: ")
	sb.WriteString(d.Summary)
	return sb.String()
}

var _ Generator = (*PlanBuilder)(nil)
