package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidNodeConfig wraps all node configuration schema failures.
var ErrInvalidNodeConfig = errors.New("invalid node configuration")

// nodeConfigSchemas holds one JSON schema per node type. Config maps are
// validated against these at definition save time so malformed nodes never
// reach the executor.
var nodeConfigSchemas = map[NodeType]map[string]any{
	NodeTypeTrigger: {
		"type": "object",
		"properties": map[string]any{
			"formType":            map[string]any{"type": "string"},
			"daysBeforeReference": map[string]any{"type": "number"},
		},
	},
	NodeTypeMessage: {
		"type":     "object",
		"required": []any{"template"},
		"properties": map[string]any{
			"template": map[string]any{"type": "string", "minLength": 1},
			"target":   map[string]any{"type": "string"},
		},
	},
	NodeTypeFormRequest: {
		"type":     "object",
		"required": []any{"formTemplate"},
		"properties": map[string]any{
			"formTemplate": map[string]any{"type": "string", "minLength": 1},
		},
	},
	NodeTypeDelay: {
		"type": "object",
		"properties": map[string]any{
			"unit": map[string]any{
				"type": "string",
				"enum": []any{"minutes", "hours", "days", "weeks"},
			},
			"amount":    map[string]any{"type": "number", "exclusiveMinimum": 0},
			"untilDate": map[string]any{"type": "string", "format": "date-time"},
		},
	},
	NodeTypeCondition: {
		"type":     "object",
		"required": []any{"predicate"},
		"properties": map[string]any{
			"predicate": map[string]any{
				"type":     "object",
				"required": []any{"kind", "operator"},
				"properties": map[string]any{
					"kind": map[string]any{
						"type": "string",
						"enum": []any{"step-result", "subject-attribute", "reference-date"},
					},
					"field": map[string]any{"type": "string"},
					"operator": map[string]any{
						"type": "string",
						"enum": []any{"eq", "neq", "gt", "gte", "lt", "lte", "contains", "exists"},
					},
				},
			},
			"onTrue":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"onFalse": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	},
	NodeTypeAction: {
		"type":     "object",
		"required": []any{"actionName"},
		"properties": map[string]any{
			"actionName": map[string]any{"type": "string", "minLength": 1},
			"params":     map[string]any{"type": "object"},
		},
	},
}

// ValidateNodeConfig checks a node's config map against the schema for its
// type. Unknown node types fail here, which also covers definitions authored
// against a newer engine.
func ValidateNodeConfig(node *Node) error {
	schema, ok := nodeConfigSchemas[node.Type]
	if !ok {
		return fmt.Errorf("%w: unknown node type %q", ErrInvalidNodeConfig, node.Type)
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNodeConfig, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidNodeConfig, strings.Join(details, "; "))
	}

	return nil
}
