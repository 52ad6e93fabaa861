// Package template renders personalization variables for message nodes.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/vowflow/journey/pkg/models"
)

// RenderWithInstance renders input against an instance's context snapshot and
// accumulated step memory. Message nodes use it to personalize templates and
// targets ("{{ .subject.email }}", "{{ .steps.quote.amount }}").
func RenderWithInstance(input string, instance *models.JourneyInstance) (any, error) {
	data := map[string]any{
		"event":   instance.Context["event"],
		"subject": instance.Context["subject"],
		"steps":   instance.StepMemory,
		"instance": map[string]any{
			"id":         instance.ID,
			"journey_id": instance.JourneyID,
			"subject_id": instance.SubjectID,
		},
	}

	if instance.ReferenceDate != nil {
		data["reference_date"] = instance.ReferenceDate.Format(time.RFC3339)
	}

	return Render(input, data)
}

// Render executes a text template and coerces the result back into a typed
// value: JSON documents, numbers and booleans decode, everything else stays a
// string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("personalization").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderVariables renders every string value of a variable map, leaving other
// types untouched.
func RenderVariables(variables map[string]any, instance *models.JourneyInstance) (map[string]any, error) {
	rendered := make(map[string]any, len(variables))

	for key, value := range variables {
		str, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		result, err := RenderWithInstance(str, instance)
		if err != nil {
			return nil, fmt.Errorf("failed to render variable %q: %w", key, err)
		}

		rendered[key] = result
	}

	return rendered, nil
}
