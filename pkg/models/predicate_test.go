package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func predicateInstance() *JourneyInstance {
	refDate := time.Now().UTC().Add(30 * 24 * time.Hour)

	return &JourneyInstance{
		ID:        "inst-1",
		JourneyID: "journey-1",
		SubjectID: "subject-1",
		Status:    InstanceStatusActive,
		StepMemory: map[string]any{
			"send-quote": map[string]any{"amount": 1200.0, "accepted": true},
		},
		Context: map[string]any{
			"subject": map[string]any{"plan": "premium", "guests": 80.0},
		},
		ReferenceDate: &refDate,
	}
}

func TestPredicateStepResult(t *testing.T) {
	inst := predicateInstance()

	p := &Predicate{Kind: PredicateStepResult, Field: "send-quote.amount", Operator: "gt", Value: 1000}

	result, err := p.Evaluate(inst, time.Now())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestPredicateSubjectAttribute(t *testing.T) {
	inst := predicateInstance()

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"eq match", Predicate{Kind: PredicateSubjectAttribute, Field: "plan", Operator: "eq", Value: "premium"}, true},
		{"eq miss", Predicate{Kind: PredicateSubjectAttribute, Field: "plan", Operator: "eq", Value: "basic"}, false},
		{"neq", Predicate{Kind: PredicateSubjectAttribute, Field: "plan", Operator: "neq", Value: "basic"}, true},
		{"lte", Predicate{Kind: PredicateSubjectAttribute, Field: "guests", Operator: "lte", Value: 100}, true},
		{"exists hit", Predicate{Kind: PredicateSubjectAttribute, Field: "plan", Operator: "exists"}, true},
		{"exists miss", Predicate{Kind: PredicateSubjectAttribute, Field: "nickname", Operator: "exists"}, false},
		{"contains", Predicate{Kind: PredicateSubjectAttribute, Field: "plan", Operator: "contains", Value: "prem"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.p.Evaluate(inst, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestPredicateReferenceDate(t *testing.T) {
	inst := predicateInstance()

	p := &Predicate{Kind: PredicateReferenceDate, Operator: "lte", Value: 45}
	result, err := p.Evaluate(inst, time.Now())
	require.NoError(t, err)
	assert.True(t, result)

	p = &Predicate{Kind: PredicateReferenceDate, Operator: "lte", Value: 7}
	result, err = p.Evaluate(inst, time.Now())
	require.NoError(t, err)
	assert.False(t, result)
}

func TestPredicateReferenceDate_Missing(t *testing.T) {
	inst := predicateInstance()
	inst.ReferenceDate = nil

	p := &Predicate{Kind: PredicateReferenceDate, Operator: "lte", Value: 45}

	_, err := p.Evaluate(inst, time.Now())
	assert.ErrorIs(t, err, ErrMissingReferenceDate)
}

func TestPredicateErrors(t *testing.T) {
	inst := predicateInstance()

	p := &Predicate{Kind: "astrology", Operator: "eq"}
	_, err := p.Evaluate(inst, time.Now())
	assert.ErrorIs(t, err, ErrUnknownPredicateKind)

	p = &Predicate{Kind: PredicateSubjectAttribute, Field: "plan", Operator: "resembles", Value: "x"}
	_, err = p.Evaluate(inst, time.Now())
	assert.ErrorIs(t, err, ErrUnknownOperator)

	p = &Predicate{Kind: PredicateSubjectAttribute, Field: "plan", Operator: "gt", Value: 3}
	_, err = p.Evaluate(inst, time.Now())
	assert.Error(t, err)
}

func TestParsePredicate(t *testing.T) {
	config := map[string]any{
		"predicate": map[string]any{
			"kind":     "step-result",
			"field":    "send-quote.accepted",
			"operator": "eq",
			"value":    true,
		},
	}

	p, err := ParsePredicate(config)
	require.NoError(t, err)
	assert.Equal(t, PredicateStepResult, p.Kind)
	assert.Equal(t, "send-quote.accepted", p.Field)

	_, err = ParsePredicate(map[string]any{})
	assert.ErrorIs(t, err, ErrMissingPredicate)

	_, err = ParsePredicate(map[string]any{"predicate": map[string]any{"kind": "weather", "operator": "eq"}})
	assert.ErrorIs(t, err, ErrUnknownPredicateKind)
}
