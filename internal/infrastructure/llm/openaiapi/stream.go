package openaiapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

type streamDelta struct {
	Content   string `json:"content"`
	ToolCalls []struct {
		Index    int    `json:"index"`
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

type streamChunk struct {
	Choices []struct {
		Delta        streamDelta `json:"delta"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// StreamChat runs one streamed completion. Content deltas go through onToken
// as they arrive; tool-call fragments are accumulated by index and returned
// whole on the finished turn. No retry here: once a token has been delivered
// the call is not idempotent.
func (c *Client) StreamChat(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSpec, onToken func(string) error) (*domain.ChatTurn, error) {
	const operation = "chat stream"

	request := map[string]any{
		"model":    c.chatModel,
		"messages": toWireMessages(messages),
		"stream":   true,
	}
	if wireTools := toWireTools(tools); wireTools != nil {
		request["tools"] = wireTools
	}

	req, err := c.newRequest(ctx, "/chat/completions", request)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, statusToError(operation, resp)
	}

	var text strings.Builder
	pending := make(map[int]*domain.ToolCall)
	finishReason := ""

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("%s: decode chunk: %w", operation, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}

		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if onToken != nil {
				if err := onToken(choice.Delta.Content); err != nil {
					return nil, err
				}
			}
		}

		for _, fragment := range choice.Delta.ToolCalls {
			call, ok := pending[fragment.Index]
			if !ok {
				call = &domain.ToolCall{}
				pending[fragment.Index] = call
			}
			if fragment.ID != "" {
				call.ID = fragment.ID
			}
			if fragment.Function.Name != "" {
				call.Name = fragment.Function.Name
			}
			call.Arguments += fragment.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, operation, err)
	}

	turn := &domain.ChatTurn{
		Text:         text.String(),
		FinishReason: finishReason,
	}
	if len(pending) > 0 {
		indices := make([]int, 0, len(pending))
		for i := range pending {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			turn.ToolCalls = append(turn.ToolCalls, *pending[i])
		}
	}
	return turn, nil
}
