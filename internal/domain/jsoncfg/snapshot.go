package jsoncfg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtrasConfig carries presentation preferences that ride along with the
// snapshot but never influence queue behavior.
type ExtrasConfig struct {
	Locale string `json:"locale"`
	Units  string `json:"units"`
}

// ProfileJSON is the input snapshot captured at enqueue time. The worker
// generates from exactly this payload, never from live profile state, so a
// plan stays reproducible even if the owner edits their profile mid-flight.
type ProfileJSON struct {
	Version        string       `json:"version"`
	Goal           string       `json:"goal"`
	Experience     string       `json:"experience"`
	DaysPerWeek    int          `json:"days_per_week"`
	SessionMinutes int          `json:"session_minutes"`
	Equipment      []string     `json:"equipment"`
	DietaryStyle   string       `json:"dietary_style"`
	Allergies      []string     `json:"allergies"`
	BodyweightKg   float64      `json:"bodyweight_kg"`
	Extras         ExtrasConfig `json:"extras"`
}

var allowedGoals = map[string]struct{}{
	"strength":    {},
	"hypertrophy": {},
	"fat_loss":    {},
	"endurance":   {},
	"general":     {},
}

var allowedExperience = map[string]struct{}{
	"beginner":     {},
	"intermediate": {},
	"advanced":     {},
}

const (
	// DefaultSnapshotVersion represents the schema version persisted for snapshots.
	DefaultSnapshotVersion = "2026-01"
	// DefaultDaysPerWeek is applied when the request omits a training frequency.
	DefaultDaysPerWeek = 3
	// MaxDaysPerWeek caps the training frequency a plan may schedule.
	MaxDaysPerWeek = 6
	// DefaultSessionMinutes is the baseline session length.
	DefaultSessionMinutes = 60
	// DefaultExtrasLocale is applied when no locale preference is provided.
	DefaultExtrasLocale = "en"
	// DefaultExtrasUnits represents the baseline measurement system.
	DefaultExtrasUnits = "metric"
)

// Normalize ensures the snapshot respects server defaults and limits.
func (p *ProfileJSON) Normalize(preferredLocale string) {
	if p == nil {
		return
	}
	if p.Version == "" {
		p.Version = DefaultSnapshotVersion
	}
	if p.Goal == "" {
		p.Goal = "general"
	}
	if p.Experience == "" {
		p.Experience = "beginner"
	}
	if p.DaysPerWeek <= 0 {
		p.DaysPerWeek = DefaultDaysPerWeek
	}
	if p.DaysPerWeek > MaxDaysPerWeek {
		p.DaysPerWeek = MaxDaysPerWeek
	}
	if p.SessionMinutes <= 0 {
		p.SessionMinutes = DefaultSessionMinutes
	}
	if p.Extras.Locale == "" {
		if preferredLocale != "" {
			p.Extras.Locale = preferredLocale
		} else {
			p.Extras.Locale = DefaultExtrasLocale
		}
	}
	if p.Extras.Units == "" {
		p.Extras.Units = DefaultExtrasUnits
	}
}

// Validate ensures the snapshot satisfies the contract before persistence.
func (p ProfileJSON) Validate() error {
	if _, ok := allowedGoals[p.Goal]; !ok {
		return fmt.Errorf("goal must be one of strength, hypertrophy, fat_loss, endurance, general")
	}
	if _, ok := allowedExperience[p.Experience]; !ok {
		return fmt.Errorf("experience must be one of beginner, intermediate, advanced")
	}
	if p.DaysPerWeek < 1 || p.DaysPerWeek > MaxDaysPerWeek {
		return fmt.Errorf("days_per_week must be between 1 and %d", MaxDaysPerWeek)
	}
	if p.SessionMinutes < 15 || p.SessionMinutes > 180 {
		return fmt.Errorf("session_minutes must be between 15 and 180")
	}
	if p.BodyweightKg < 0 {
		return fmt.Errorf("bodyweight_kg must not be negative")
	}
	for _, a := range p.Allergies {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("allergies must not contain blank entries")
		}
	}
	return nil
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
