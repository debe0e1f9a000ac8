package translate

import (
	"encoding/json"
	"testing"
	"time"

	"chatgate/internal/canonical"

	"github.com/stretchr/testify/assert"
)

func TestValidateCompletion(t *testing.T) {
	valid := func() *CompletionRequest {
		return &CompletionRequest{
			Model: "gpt-4o",
			Messages: []CompletionMessage{
				{Role: "user", Content: "hello"},
			},
		}
	}

	assert.NoError(t, ValidateCompletion(valid()))

	req := valid()
	req.Model = ""
	err := ValidateCompletion(req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "model")

	req = valid()
	req.Messages = nil
	err = ValidateCompletion(req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "messages")

	req = valid()
	req.Messages[0].Role = "robot"
	err = ValidateCompletion(req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "messages[0].role")

	req = valid()
	req.MaxTokens = -1
	assert.Error(t, ValidateCompletion(req))

	req = valid()
	temp := 2.5
	req.Temperature = &temp
	err = ValidateCompletion(req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")

	// All four roles are accepted.
	req = valid()
	req.Messages = []CompletionMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool", Content: "42", ToolCallID: "call_1"},
	}
	assert.NoError(t, ValidateCompletion(req))
}

func TestCompletionToCanonical(t *testing.T) {
	temp := 0.7
	req := &CompletionRequest{
		Model: "gpt-4o",
		Messages: []CompletionMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
		MaxTokens:   256,
		Temperature: &temp,
		Stream:      true,
		Tools: []CompletionTool{{
			Type: "function",
			Function: FunctionDef{
				Name:        "get_weather",
				Description: "Look up the weather",
				Parameters:  json.RawMessage(`{"type":"object"}`),
			},
		}},
	}

	creq := CompletionToCanonical(req, "gemini-2.0-flash")
	assert.Equal(t, "gemini-2.5-pro", creq.Model)
	assert.True(t, creq.Stream)
	assert.Equal(t, 256, creq.MaxTokens)
	assert.Equal(t, 0.7, *creq.Temperature)

	// Roles, contents and order survive the mapping.
	assert.Len(t, creq.Messages, 2)
	assert.Equal(t, "system", creq.Messages[0].Role)
	assert.Equal(t, "be brief", creq.Messages[0].Content)
	assert.Equal(t, "user", creq.Messages[1].Role)

	assert.Len(t, creq.Tools, 1)
	assert.Equal(t, "get_weather", creq.Tools[0].Name)
}

func TestCompletionToCanonicalUnknownModel(t *testing.T) {
	req := &CompletionRequest{
		Model:    "totally-unknown-model",
		Messages: []CompletionMessage{{Role: "user", Content: "hi"}},
	}
	creq := CompletionToCanonical(req, "gemini-2.0-flash")
	assert.Equal(t, "gemini-2.0-flash", creq.Model)
}

func TestCanonicalToCompletion(t *testing.T) {
	creq := &canonical.Request{
		Model:    "gemini-2.5-pro",
		Messages: []canonical.Message{{Role: "user", Content: "say four words please"}},
	}
	resp := &canonical.Response{Model: "gemini-2.5-pro", Content: "here are four words"}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	out := CanonicalToCompletion(creq, resp, "chatcmpl-123", now)
	assert.Equal(t, "chatcmpl-123", out.ID)
	assert.Equal(t, "chat.completion", out.Object)
	assert.Equal(t, now.Unix(), out.Created)
	assert.Equal(t, "gemini-2.5-pro", out.Model)
	assert.Len(t, out.Choices, 1)
	assert.Equal(t, "assistant", out.Choices[0].Message.Role)
	assert.Equal(t, "here are four words", out.Choices[0].Message.Content)
	assert.Equal(t, "stop", out.Choices[0].FinishReason)

	// Usage is the deterministic estimate: same input, same numbers.
	again := CanonicalToCompletion(creq, resp, "chatcmpl-456", now)
	assert.Equal(t, out.Usage, again.Usage)
	assert.Equal(t, out.Usage.PromptTokens+out.Usage.CompletionTokens, out.Usage.TotalTokens)
}

func TestCanonicalToCompletionToolCalls(t *testing.T) {
	creq := &canonical.Request{
		Model:    "gemini-2.5-pro",
		Messages: []canonical.Message{{Role: "user", Content: "weather in Oslo?"}},
	}
	resp := &canonical.Response{
		Model: "gemini-2.5-pro",
		ToolCalls: []canonical.ToolCall{{
			ID:        "call_abc",
			Name:      "get_weather",
			Arguments: json.RawMessage(`{"city":"Oslo"}`),
		}},
	}

	out := CanonicalToCompletion(creq, resp, "chatcmpl-123", time.Now())
	assert.Equal(t, "tool_calls", out.Choices[0].FinishReason)
	calls := out.Choices[0].Message.ToolCalls
	assert.Len(t, calls, 1)
	assert.Equal(t, "call_abc", calls[0].ID)
	assert.Equal(t, "function", calls[0].Type)
	assert.Equal(t, "get_weather", calls[0].Function.Name)
	assert.JSONEq(t, `{"city":"Oslo"}`, calls[0].Function.Arguments)
}
