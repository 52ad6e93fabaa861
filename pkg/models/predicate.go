package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PredicateKind selects what a condition node compares against.
type PredicateKind string

const (
	// PredicateStepResult compares a field of a prior step's stored result.
	PredicateStepResult PredicateKind = "step-result"
	// PredicateSubjectAttribute compares an attribute from the instance's
	// subject snapshot.
	PredicateSubjectAttribute PredicateKind = "subject-attribute"
	// PredicateReferenceDate compares the instance's reference date against
	// an offset in days from now.
	PredicateReferenceDate PredicateKind = "reference-date"
)

// Predicate is the parsed configuration of a condition node.
type Predicate struct {
	Kind     PredicateKind `json:"kind"`
	Field    string        `json:"field,omitempty"`    // "<nodeID>.<key>" for step-result, attribute name otherwise
	Operator string        `json:"operator"`           // eq, neq, gt, gte, lt, lte, contains, exists
	Value    any           `json:"value,omitempty"`
}

var (
	ErrUnknownPredicateKind = errors.New("unknown predicate kind")
	ErrUnknownOperator      = errors.New("unknown predicate operator")
	ErrMissingPredicate     = errors.New("condition node has no predicate")
	ErrMissingReferenceDate = errors.New("instance has no reference date")
)

// ParsePredicate extracts the predicate from a condition node's config.
func ParsePredicate(config map[string]any) (*Predicate, error) {
	raw, ok := config["predicate"].(map[string]any)
	if !ok {
		return nil, ErrMissingPredicate
	}

	kind, _ := raw["kind"].(string)
	field, _ := raw["field"].(string)
	operator, _ := raw["operator"].(string)

	p := &Predicate{
		Kind:     PredicateKind(kind),
		Field:    field,
		Operator: operator,
		Value:    raw["value"],
	}

	switch p.Kind {
	case PredicateStepResult, PredicateSubjectAttribute, PredicateReferenceDate:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPredicateKind, kind)
	}

	return p, nil
}

// Evaluate resolves the predicate against an instance and returns exactly one
// boolean; every malformed input is an error, never a silent branch choice.
func (p *Predicate) Evaluate(instance *JourneyInstance, now time.Time) (bool, error) {
	switch p.Kind {
	case PredicateStepResult:
		return p.compare(lookupPath(instance.StepMemory, p.Field))
	case PredicateSubjectAttribute:
		subject, _ := instance.Context["subject"].(map[string]any)

		return p.compare(lookupPath(subject, p.Field))
	case PredicateReferenceDate:
		if instance.ReferenceDate == nil {
			return false, ErrMissingReferenceDate
		}

		daysUntil := instance.ReferenceDate.Sub(now).Hours() / 24

		return p.compare(daysUntil, true)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownPredicateKind, p.Kind)
	}
}

func (p *Predicate) compare(actual any, found bool) (bool, error) {
	if p.Operator == "exists" {
		return found && actual != nil, nil
	}

	switch p.Operator {
	case "eq":
		return equalValues(actual, p.Value), nil
	case "neq":
		return !equalValues(actual, p.Value), nil
	case "gt", "gte", "lt", "lte":
		a, aok := toFloat(actual)
		b, bok := toFloat(p.Value)

		if !aok || !bok {
			return false, fmt.Errorf("operator %q needs numeric operands, got %T and %T", p.Operator, actual, p.Value)
		}

		switch p.Operator {
		case "gt":
			return a > b, nil
		case "gte":
			return a >= b, nil
		case "lt":
			return a < b, nil
		default:
			return a <= b, nil
		}
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", p.Value)), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, p.Operator)
	}
}

// lookupPath walks dot-separated keys through nested maps.
func lookupPath(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	keys := strings.Split(path, ".")
	var current any = data

	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
