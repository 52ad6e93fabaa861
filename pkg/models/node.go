package models

import (
	"errors"
	"fmt"
	"time"
)

// NodeType is the closed set of step kinds a journey graph may contain.
// The executor dispatches on it with a single exhaustive switch; adding a
// kind means extending that switch, not registering a runtime plugin.
type NodeType string

const (
	NodeTypeTrigger     NodeType = "trigger"
	NodeTypeMessage     NodeType = "message"
	NodeTypeFormRequest NodeType = "form-request"
	NodeTypeDelay       NodeType = "delay"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeAction      NodeType = "action"
)

// Node is a single step in a journey graph.
//
// Successors is the ordered list of follow-up node ids for every kind except
// condition, which keeps its two branches in config under "onTrue"/"onFalse".
type Node struct {
	Type       NodeType       `json:"type"       validate:"required"`
	Config     map[string]any `json:"config"`
	Successors []string       `json:"successors"`
}

// allSuccessors returns every node id this node may hand control to,
// including condition branches. Used by graph validation.
func (n *Node) allSuccessors() []string {
	if n.Type != NodeTypeCondition {
		return n.Successors
	}

	succ := append([]string{}, n.BranchSuccessors(true)...)

	return append(succ, n.BranchSuccessors(false)...)
}

// BranchSuccessors returns the configured successor list for one outcome of a
// condition node.
func (n *Node) BranchSuccessors(outcome bool) []string {
	key := "onFalse"
	if outcome {
		key = "onTrue"
	}

	raw, ok := n.Config[key]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}

		return ids
	default:
		return nil
	}
}

// ConfigString reads a string config value; the second return reports
// presence.
func (n *Node) ConfigString(key string) (string, bool) {
	v, ok := n.Config[key]
	if !ok {
		return "", false
	}

	s, ok := v.(string)

	return s, ok
}

// ConfigFloat reads a numeric config value. JSON decoding produces float64 for
// all numbers, so integer-valued settings pass through here too.
func (n *Node) ConfigFloat(key string) (float64, bool) {
	switch v := n.Config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Delay configuration errors.
var (
	ErrInvalidDelayConfig = errors.New("invalid delay configuration")
	ErrInvalidDelayUnit   = errors.New("invalid delay unit")
)

// DelayDueAt computes the resume time for a delay node, either from a
// relative {unit, amount} pair or an absolute RFC 3339 "untilDate".
func (n *Node) DelayDueAt(now time.Time) (time.Time, error) {
	if until, ok := n.ConfigString("untilDate"); ok {
		due, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: untilDate %q: %w", ErrInvalidDelayConfig, until, err)
		}

		return due, nil
	}

	unit, ok := n.ConfigString("unit")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing unit", ErrInvalidDelayConfig)
	}

	amount, ok := n.ConfigFloat("amount")
	if !ok || amount <= 0 {
		return time.Time{}, fmt.Errorf("%w: missing or non-positive amount", ErrInvalidDelayConfig)
	}

	var per time.Duration

	switch unit {
	case "minutes":
		per = time.Minute
	case "hours":
		per = time.Hour
	case "days":
		per = 24 * time.Hour
	case "weeks":
		per = 7 * 24 * time.Hour
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDelayUnit, unit)
	}

	return now.Add(time.Duration(amount * float64(per))), nil
}
