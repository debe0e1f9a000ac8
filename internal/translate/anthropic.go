package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatgate/internal/canonical"
)

// Format B: the Anthropic-compatible messages schema. Message content is
// either a plain string or an array of typed blocks, so it is kept raw
// until translation.

type MessagesRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	Messages    []MessagesMessage `json:"messages"`
	System      json.RawMessage   `json:"system,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	Tools       []MessagesTool    `json:"tools,omitempty"`
}

type MessagesMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type MessagesTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence any            `json:"stop_sequence"`
	Usage        MessagesUsage  `json:"usage"`
}

type MessagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ValidateMessages checks the inbound body before translation. The
// returned error message carries the offending field path.
func ValidateMessages(req *MessagesRequest) error {
	if req.Model == "" {
		return fmt.Errorf("model: field is required")
	}
	if req.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens: must be a positive integer")
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("messages: at least one message is required")
	}
	for i, m := range req.Messages {
		if m.Role != canonical.RoleUser && m.Role != canonical.RoleAssistant {
			return fmt.Errorf("messages[%d].role: unsupported role %q", i, m.Role)
		}
		if len(m.Content) == 0 {
			return fmt.Errorf("messages[%d].content: field is required", i)
		}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		return fmt.Errorf("temperature: must be between 0 and 1")
	}
	return nil
}

// MessagesToCanonical maps a validated Format B request onto the
// canonical shape. The top-level system field is injected as a synthetic
// leading system-role message. It is total on validated input.
func MessagesToCanonical(req *MessagesRequest, defaultModel string) *canonical.Request {
	out := &canonical.Request{
		Model:       ResolveModel(req.Model, defaultModel),
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    make([]canonical.Message, 0, len(req.Messages)+1),
	}
	if sys := systemText(req.System); sys != "" {
		out.Messages = append(out.Messages, canonical.Message{
			Role:    canonical.RoleSystem,
			Content: sys,
		})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, canonical.Message{
			Role:    m.Role,
			Content: flattenContent(m.Content),
		})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, canonical.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return out
}

// systemText extracts the system prompt, which may be a string or an
// array of text blocks.
func systemText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return joinText(blocks)
	}
	return ""
}

// flattenContent reduces a message's content to its textual form,
// preserving block order. Tool results contribute their text content.
func flattenContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var b strings.Builder
	for _, blk := range blocks {
		var text string
		switch blk.Type {
		case "text":
			text = blk.Text
		case "tool_result":
			text = resultText(blk.Content)
		}
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String()
}

func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return joinText(blocks)
	}
	return string(raw)
}

func joinText(blocks []ContentBlock) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Type != "text" || blk.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(blk.Text)
	}
	return b.String()
}

// CanonicalToMessages maps a canonical response back to the Format B
// response schema. Tool calls become tool_use content blocks and drive
// the stop reason.
func CanonicalToMessages(req *canonical.Request, resp *canonical.Response, id string) *MessagesResponse {
	content := make([]ContentBlock, 0, 1+len(resp.ToolCalls))
	if resp.Content != "" {
		content = append(content, ContentBlock{Type: "text", Text: resp.Content})
	}
	stop := "end_turn"
	if len(resp.ToolCalls) > 0 {
		stop = "tool_use"
		for _, tc := range resp.ToolCalls {
			input := tc.Arguments
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			content = append(content, ContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: input,
			})
		}
	}

	return &MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       canonical.RoleAssistant,
		Content:    content,
		Model:      req.Model,
		StopReason: stop,
		Usage: MessagesUsage{
			InputTokens:  req.PromptTokens(),
			OutputTokens: canonical.EstimateTokens(resp.Content),
		},
	}
}
