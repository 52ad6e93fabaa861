package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// Summary aggregates instance outcomes for one journey.
type Summary struct {
	JourneyID      string                        `json:"journey_id"`
	Total          int                           `json:"total"`
	ByStatus       map[models.InstanceStatus]int `json:"by_status"`
	CompletionRate float64                       `json:"completion_rate"`
	// MeanDuration averages enrollment-to-completion over completed
	// instances only.
	MeanDuration time.Duration `json:"mean_duration"`
}

// FunnelStep reports traversal counts for one node, in graph order.
type FunnelStep struct {
	NodeID     string          `json:"node_id"`
	NodeType   models.NodeType `json:"node_type"`
	Entered    int             `json:"entered"`
	Succeeded  int             `json:"succeeded"`
	// Conversion is the share of entering instances that passed this node.
	Conversion float64 `json:"conversion"`
	// DropOff is 1 minus Conversion.
	DropOff float64 `json:"drop_off"`
}

// TrendPoint is one day of enrollment and completion counts.
type TrendPoint struct {
	Day       time.Time `json:"day"`
	Started   int       `json:"started"`
	Completed int       `json:"completed"`
}

// Analytics derives read-only reporting from instances and the execution
// log. Everything here is computed on demand; the log stays the single
// source of truth.
type Analytics struct {
	logger      *slog.Logger
	persistence persistence.Persistence
}

func NewAnalytics(logger *slog.Logger, store persistence.Persistence) *Analytics {
	return &Analytics{
		logger:      logger.With("module", "analytics"),
		persistence: store,
	}
}

// Summary computes status distribution and completion statistics.
func (a *Analytics) Summary(ctx context.Context, journeyID string) (*Summary, error) {
	instances, err := a.persistence.Instances().ByJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		JourneyID: journeyID,
		Total:     len(instances),
		ByStatus:  map[models.InstanceStatus]int{},
	}

	var (
		completed     int
		totalDuration time.Duration
	)

	for _, instance := range instances {
		summary.ByStatus[instance.Status]++

		if instance.Status == models.InstanceStatusCompleted && instance.CompletedAt != nil {
			completed++
			totalDuration += instance.CompletedAt.Sub(instance.CreatedAt)
		}
	}

	if summary.Total > 0 {
		summary.CompletionRate = float64(summary.ByStatus[models.InstanceStatusCompleted]) / float64(summary.Total)
	}

	if completed > 0 {
		summary.MeanDuration = totalDuration / time.Duration(completed)
	}

	return summary, nil
}

// Funnel reports per-node traversal in graph order, so drop-off points stand
// out visually in a dashboard.
func (a *Analytics) Funnel(ctx context.Context, journeyID string) ([]FunnelStep, error) {
	def, err := a.persistence.Definitions().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	entries, err := a.persistence.ExecutionLog().ByJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	entered := map[string]int{}
	succeeded := map[string]int{}

	for _, entry := range entries {
		switch entry.Outcome {
		case models.OutcomeSuccess:
			entered[entry.NodeID]++
			succeeded[entry.NodeID]++
		case models.OutcomeFailed:
			entered[entry.NodeID]++
		case models.OutcomeSkipped:
			// Suppressed duplicates and post-cancel commits are not
			// traversals.
		}
	}

	steps := make([]FunnelStep, 0, len(def.Nodes))

	for _, nodeID := range graphOrder(def) {
		step := FunnelStep{
			NodeID:    nodeID,
			NodeType:  def.Nodes[nodeID].Type,
			Entered:   entered[nodeID],
			Succeeded: succeeded[nodeID],
		}

		// Conversion is relative to the instances that reached the node,
		// not to everything that started the journey.
		if step.Entered > 0 {
			step.Conversion = float64(step.Succeeded) / float64(step.Entered)
			step.DropOff = 1 - step.Conversion
		}

		steps = append(steps, step)
	}

	return steps, nil
}

// Trend buckets enrollments and completions per UTC day in [from, to].
func (a *Analytics) Trend(ctx context.Context, journeyID string, from, to time.Time) ([]TrendPoint, error) {
	instances, err := a.persistence.Instances().ByJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	started := map[time.Time]int{}
	completed := map[time.Time]int{}

	for _, instance := range instances {
		day := instance.CreatedAt.UTC().Truncate(24 * time.Hour)
		if !day.Before(from) && !day.After(to) {
			started[day]++
		}

		if instance.CompletedAt != nil {
			day := instance.CompletedAt.UTC().Truncate(24 * time.Hour)
			if !day.Before(from) && !day.After(to) {
				completed[day]++
			}
		}
	}

	days := map[time.Time]struct{}{}
	for day := range started {
		days[day] = struct{}{}
	}

	for day := range completed {
		days[day] = struct{}{}
	}

	points := make([]TrendPoint, 0, len(days))
	for day := range days {
		points = append(points, TrendPoint{Day: day, Started: started[day], Completed: completed[day]})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })

	return points, nil
}

// graphOrder walks the definition breadth-first from the trigger node,
// including both condition branches, so funnel rows follow the authored
// flow.
func graphOrder(def *models.JourneyDefinition) []string {
	triggerID, trigger := def.TriggerNode()
	if trigger == nil {
		ids := make([]string, 0, len(def.Nodes))
		for id := range def.Nodes {
			ids = append(ids, id)
		}

		sort.Strings(ids)

		return ids
	}

	order := []string{}
	seen := map[string]bool{}
	queue := []string{triggerID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if seen[id] {
			continue
		}

		seen[id] = true

		node, ok := def.Nodes[id]
		if !ok {
			continue
		}

		order = append(order, id)

		next := node.Successors
		if node.Type == models.NodeTypeCondition {
			next = append(append([]string{}, node.BranchSuccessors(true)...), node.BranchSuccessors(false)...)
		}

		queue = append(queue, next...)
	}

	return order
}
