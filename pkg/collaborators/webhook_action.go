package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WebhookActionService posts named actions to a platform webhook endpoint.
// The idempotency key travels as a header so the receiving side can
// deduplicate re-sent actions.
type WebhookActionService struct {
	endpoint string
	client   *http.Client
}

// NewWebhookActionService creates an action service posting to endpoint.
// Call deadlines come from the caller's context; the decorated Set applies
// the configured action timeout.
func NewWebhookActionService(endpoint string) *WebhookActionService {
	return &WebhookActionService{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

func (s *WebhookActionService) Invoke(ctx context.Context, idempotencyKey, actionName string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{
		"action": actionName,
		"params": params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action %s: %w", actionName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for action %s: %w", actionName, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action %s call failed: %w", actionName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("action %s returned status %d", actionName, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response for action %s: %w", actionName, err)
	}

	result := map[string]any{"status_code": resp.StatusCode}

	if len(data) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err == nil {
			result["response"] = parsed
		} else {
			result["response"] = string(data)
		}
	}

	return result, nil
}
