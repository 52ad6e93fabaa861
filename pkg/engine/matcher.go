// Package engine implements journey execution: trigger matching, the node
// executor, the orchestrator drive loop, temporal scheduling and analytics.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// Matcher finds the enabled journey definitions a trigger event should start.
type Matcher struct {
	logger      *slog.Logger
	definitions persistence.DefinitionRepository
	now         func() time.Time
}

func NewMatcher(logger *slog.Logger, definitions persistence.DefinitionRepository) *Matcher {
	return &Matcher{
		logger:      logger.With("module", "trigger_matcher"),
		definitions: definitions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Match returns every enabled definition the event matches. Each match is an
// independent enrollment candidate; the orchestrator handles them separately.
func (m *Matcher) Match(ctx context.Context, event *models.TriggerEvent) ([]*models.JourneyDefinition, error) {
	candidates, err := m.definitions.EnabledByTriggerType(ctx, event.TriggerType)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.JourneyDefinition, 0, len(candidates))

	for _, def := range candidates {
		if m.matches(event, def) {
			matched = append(matched, def)
		}
	}

	m.logger.Debug("Completed trigger matching",
		"event_id", event.EventID,
		"trigger_type", event.TriggerType,
		"candidates", len(candidates),
		"matches", len(matched))

	return matched, nil
}

func (m *Matcher) matches(event *models.TriggerEvent, def *models.JourneyDefinition) bool {
	_, trigger := def.TriggerNode()
	if trigger == nil {
		m.logger.Warn("Enabled definition has no trigger node", "journey_id", def.ID)

		return false
	}

	switch event.TriggerType {
	case models.TriggerTypeFormSubmitted:
		// A trigger node without a formType restriction matches any form.
		want, ok := trigger.ConfigString("formType")
		if !ok || want == "" {
			return true
		}

		return want == event.FormType()
	case models.TriggerTypeDateBased:
		return m.matchesDateWindow(event, trigger)
	default:
		return true
	}
}

// matchesDateWindow checks that the event's reference date falls inside the
// one-day window around now plus the configured lead time. The scheduler's
// daily pass re-emits date events, so a definition enabled late still fires
// once its window opens.
func (m *Matcher) matchesDateWindow(event *models.TriggerEvent, trigger *models.Node) bool {
	if event.ReferenceDate == nil {
		return false
	}

	daysBefore, ok := trigger.ConfigFloat("daysBeforeReference")
	if !ok {
		daysBefore = 0
	}

	target := m.now().Add(time.Duration(daysBefore * 24 * float64(time.Hour)))
	distance := event.ReferenceDate.Sub(target)

	if distance < 0 {
		distance = -distance
	}

	return distance < 24*time.Hour
}
