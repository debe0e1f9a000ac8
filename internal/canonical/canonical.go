// Package canonical defines the internal pivot format between the two
// public chat schemas and the upstream provider call. It is never exposed
// on the wire.
package canonical

import (
	"encoding/json"
	"strings"
)

// Roles used in the canonical message list.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one normalized chat turn.
type Message struct {
	Role    string
	Content string
}

// Tool is the normalized declaration of a callable function.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Request is the normalized chat request submitted upstream.
type Request struct {
	Model       string
	Messages    []Message
	Stream      bool
	MaxTokens   int
	Temperature *float64
	Tools       []Tool
}

// Response is the normalized chat response returned by the upstream
// provider.
type Response struct {
	Model     string
	Content   string
	ToolCalls []ToolCall
}

// EstimateTokens derives a token count from text length. The upstream
// provider does not supply exact counts, so usage accounting is a
// deterministic word-count heuristic: the same input always yields the
// same estimate.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return words + words/3
}

// PromptTokens estimates the input token total for a request, with a
// small fixed overhead per message.
func (r *Request) PromptTokens() int {
	total := 0
	for _, m := range r.Messages {
		total += EstimateTokens(m.Content) + 3
	}
	return total
}
