package translate

import (
	"encoding/json"
	"fmt"
	"time"

	"chatgate/internal/canonical"
)

// Format A: the OpenAI-compatible chat completions schema.

type CompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []CompletionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	Tools       []CompletionTool    `json:"tools,omitempty"`
}

type CompletionMessage struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []CompletionToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
}

type CompletionTool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type CompletionToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   CompletionUsage    `json:"usage"`
}

type CompletionChoice struct {
	Index        int               `json:"index"`
	Message      CompletionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

var completionRoles = map[string]struct{}{
	canonical.RoleSystem:    {},
	canonical.RoleUser:      {},
	canonical.RoleAssistant: {},
	canonical.RoleTool:      {},
}

// ValidateCompletion checks the inbound body before translation. The
// returned error message carries the offending field path.
func ValidateCompletion(req *CompletionRequest) error {
	if req.Model == "" {
		return fmt.Errorf("model: field is required")
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("messages: at least one message is required")
	}
	for i, m := range req.Messages {
		if _, ok := completionRoles[m.Role]; !ok {
			return fmt.Errorf("messages[%d].role: unsupported role %q", i, m.Role)
		}
	}
	if req.MaxTokens < 0 {
		return fmt.Errorf("max_tokens: must not be negative")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return fmt.Errorf("temperature: must be between 0 and 2")
	}
	return nil
}

// CompletionToCanonical maps a validated Format A request onto the
// canonical shape. It is total: it never fails on validated input.
func CompletionToCanonical(req *CompletionRequest, defaultModel string) *canonical.Request {
	out := &canonical.Request{
		Model:       ResolveModel(req.Model, defaultModel),
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    make([]canonical.Message, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, canonical.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, canonical.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return out
}

// CanonicalToCompletion maps a canonical response back to the Format A
// response schema. Usage is the deterministic length-based estimate.
func CanonicalToCompletion(req *canonical.Request, resp *canonical.Response, id string, now time.Time) *CompletionResponse {
	msg := CompletionMessage{
		Role:    canonical.RoleAssistant,
		Content: resp.Content,
	}
	finish := "stop"
	if len(resp.ToolCalls) > 0 {
		finish = "tool_calls"
		for _, tc := range resp.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, CompletionToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
	}

	prompt := req.PromptTokens()
	completion := canonical.EstimateTokens(resp.Content)
	return &CompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   req.Model,
		Choices: []CompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: CompletionUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}
}
