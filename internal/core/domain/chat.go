package domain

import "encoding/json"

// ChatMessage is one turn of an LLM conversation, OpenAI wire-shaped.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model-issued invocation of a registered tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatTurn is the model's completed output for one streamed call: either
// final text, or a set of tool calls to execute before calling again.
type ChatTurn struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
}

// ChatRequest is the inbound contract of the chat service.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// ChatEvent is one unit of the outbound stream. Type is one of "token",
// "tool_call", "sources", "done", "error".
type ChatEvent struct {
	Type         string             `json:"type"`
	Content      string             `json:"content,omitempty"`
	ToolName     string             `json:"tool_name,omitempty"`
	ToolArgs     string             `json:"tool_args,omitempty"`
	ToolResult   string             `json:"tool_result,omitempty"`
	Sources      []SourceDescriptor `json:"sources,omitempty"`
	CitedIndices []int              `json:"cited_indices,omitempty"`
}
