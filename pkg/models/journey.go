// Package models defines the core domain records for journey automation.
package models

import (
	"errors"
	"fmt"
	"time"
)

// TriggerType classifies the business event that starts a journey.
type TriggerType string

const (
	TriggerTypeSubjectAdded    TriggerType = "subject-added"
	TriggerTypeFormSubmitted   TriggerType = "form-submitted"
	TriggerTypeDateBased       TriggerType = "date-based"
	TriggerTypePaymentReceived TriggerType = "payment-received"
	TriggerTypeManual          TriggerType = "manual"
)

// KnownTriggerType reports whether t is one of the supported trigger kinds.
func KnownTriggerType(t TriggerType) bool {
	switch t {
	case TriggerTypeSubjectAdded, TriggerTypeFormSubmitted, TriggerTypeDateBased,
		TriggerTypePaymentReceived, TriggerTypeManual:
		return true
	default:
		return false
	}
}

// JourneyDefinition is a declarative automation graph. Once enabled it is
// treated as immutable by the engine; authoring tools replace the whole record.
type JourneyDefinition struct {
	ID          string           `json:"id"           validate:"required"`
	OwnerID     string           `json:"owner_id"     validate:"required"`
	Name        string           `json:"name"         validate:"required,min=3"`
	TriggerType TriggerType      `json:"trigger_type" validate:"required"`
	Enabled     bool             `json:"enabled"`
	Nodes       map[string]*Node `json:"nodes"        validate:"required"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Definition validation errors.
var (
	ErrNoTriggerNode        = errors.New("definition has no trigger node")
	ErrMultipleTriggerNodes = errors.New("definition has more than one trigger node")
	ErrUnknownTriggerType   = errors.New("unknown trigger type")
	ErrUnknownSuccessor     = errors.New("successor references unknown node")
	ErrUnreachableNode      = errors.New("node is not reachable from the trigger node")
	ErrCyclicDefinition     = errors.New("definition graph contains a cycle")
)

// TriggerNode returns the single trigger node of the definition, or nil when
// the definition is malformed.
func (d *JourneyDefinition) TriggerNode() (string, *Node) {
	for id, node := range d.Nodes {
		if node.Type == NodeTypeTrigger {
			return id, node
		}
	}

	return "", nil
}

// Validate checks the structural invariants of the graph: exactly one trigger
// node, every successor resolvable, every node reachable from the trigger,
// no cycles, and per-type node configuration. Definitions failing validation
// are rejected at save time and never reach the executor.
func (d *JourneyDefinition) Validate() error {
	if !KnownTriggerType(d.TriggerType) {
		return fmt.Errorf("%w: %q", ErrUnknownTriggerType, d.TriggerType)
	}

	triggerID := ""

	for id, node := range d.Nodes {
		if node.Type == NodeTypeTrigger {
			if triggerID != "" {
				return fmt.Errorf("%w: %q and %q", ErrMultipleTriggerNodes, triggerID, id)
			}

			triggerID = id
		}

		for _, succ := range node.allSuccessors() {
			if _, ok := d.Nodes[succ]; !ok {
				return fmt.Errorf("%w: node %q references %q", ErrUnknownSuccessor, id, succ)
			}
		}

		if err := ValidateNodeConfig(node); err != nil {
			return fmt.Errorf("node %q: %w", id, err)
		}
	}

	if triggerID == "" {
		return ErrNoTriggerNode
	}

	if err := d.checkReachability(triggerID); err != nil {
		return err
	}

	return d.checkAcyclic(triggerID)
}

func (d *JourneyDefinition) checkReachability(triggerID string) error {
	visited := map[string]bool{}
	queue := []string{triggerID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}

		visited[id] = true
		queue = append(queue, d.Nodes[id].allSuccessors()...)
	}

	for id := range d.Nodes {
		if !visited[id] {
			return fmt.Errorf("%w: %q", ErrUnreachableNode, id)
		}
	}

	return nil
}

// checkAcyclic runs a coloured depth-first walk from the trigger node and
// fails on the first back edge.
func (d *JourneyDefinition) checkAcyclic(triggerID string) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)

	color := map[string]int{}

	var visit func(id string) error

	visit = func(id string) error {
		color[id] = gray

		for _, succ := range d.Nodes[id].allSuccessors() {
			switch color[succ] {
			case gray:
				return fmt.Errorf("%w: back edge %q -> %q", ErrCyclicDefinition, id, succ)
			case white:
				if err := visit(succ); err != nil {
					return err
				}
			}
		}

		color[id] = black

		return nil
	}

	return visit(triggerID)
}
