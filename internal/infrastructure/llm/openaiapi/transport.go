package openaiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// chatMessagePayload is the wire form of a conversation message.
type chatMessagePayload struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCallPayload `json:"tool_calls,omitempty"`
}

type toolCallPayload struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function functionPayload `json:"function"`
}

type functionPayload struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolPayload struct {
	Type     string              `json:"type"`
	Function toolFunctionPayload `json:"function"`
}

type toolFunctionPayload struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func toWireMessages(messages []domain.ChatMessage) []chatMessagePayload {
	out := make([]chatMessagePayload, 0, len(messages))
	for _, m := range messages {
		payload := chatMessagePayload{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			payload.ToolCalls = append(payload.ToolCalls, toolCallPayload{
				ID:   call.ID,
				Type: "function",
				Function: functionPayload{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, payload)
	}
	return out
}

func toWireTools(tools []domain.ToolSpec) []toolPayload {
	if len(tools) == 0 {
		return nil
	}
	out := make([]toolPayload, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolPayload{
			Type: "function",
			Function: toolFunctionPayload{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (c *Client) newRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any, operation string) error {
	req, err := c.newRequest(ctx, path, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusToError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

// statusToError maps HTTP failures onto the domain error taxonomy, keeping
// the response body for diagnostics.
func statusToError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	cause := fmt.Errorf("status %s", resp.Status)
	if msg := strings.TrimSpace(string(body)); msg != "" {
		cause = fmt.Errorf("status %s: %s", resp.Status, msg)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.WrapError(domain.ErrCredentials, operation, cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.WrapError(domain.ErrRateLimited, operation, cause)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return domain.WrapError(domain.ErrTemporary, operation, cause)
	default:
		return fmt.Errorf("%s: %w", operation, cause)
	}
}
