package stream

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventEncode(t *testing.T) {
	bare := Event{Data: []byte(`{"a":1}`)}
	assert.Equal(t, "data: {\"a\":1}\n\n", string(bare.Encode()))

	named := Event{Name: "message_stop", Data: []byte(`{"type":"message_stop"}`)}
	assert.Equal(t, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n", string(named.Encode()))
}

func TestCompletionTransducer(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewCompletionTransducer("chatcmpl-123", "gemini-2.0-flash", now)

	fragments := []string{"Hi", " there", "!"}
	var events []Event
	for _, f := range fragments {
		events = append(events, tr.Chunk(f))
	}
	events = append(events, tr.Done())

	// Exactly one frame per fragment plus the sentinel.
	assert.Len(t, events, 4)
	assert.Equal(t, "data: [DONE]\n\n", string(events[3].Encode()))

	type chunkPayload struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		Model   string `json:"model"`
		Choices []struct {
			Index        int            `json:"index"`
			Delta        map[string]any `json:"delta"`
			FinishReason any            `json:"finish_reason"`
		} `json:"choices"`
	}

	for i, f := range fragments {
		var p chunkPayload
		assert.NoError(t, json.Unmarshal(events[i].Data, &p))
		assert.Equal(t, "chatcmpl-123", p.ID)
		assert.Equal(t, "chat.completion.chunk", p.Object)
		assert.Equal(t, now.Unix(), p.Created)
		assert.Equal(t, "gemini-2.0-flash", p.Model)
		assert.Len(t, p.Choices, 1)
		assert.Equal(t, f, p.Choices[0].Delta["content"])
		assert.Nil(t, p.Choices[0].FinishReason)

		// Only the first delta carries the role.
		if i == 0 {
			assert.Equal(t, "assistant", p.Choices[0].Delta["role"])
		} else {
			assert.NotContains(t, p.Choices[0].Delta, "role")
		}
	}
}

func TestMessagesTransducer(t *testing.T) {
	tr := NewMessagesTransducer("msg_123", "gemini-2.0-flash", 7)

	var events []Event
	for _, f := range []string{"Hi", " there", "!"} {
		events = append(events, tr.Chunk(f)...)
	}
	events = append(events, tr.Done()...)

	// message_start, three deltas, message_stop.
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	assert.Equal(t, []string{
		"message_start",
		"content_block_delta", "content_block_delta", "content_block_delta",
		"message_stop",
	}, names)

	var start struct {
		Type    string `json:"type"`
		Message struct {
			ID      string `json:"id"`
			Role    string `json:"role"`
			Model   string `json:"model"`
			Content []any  `json:"content"`
			Usage   struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		} `json:"message"`
	}
	assert.NoError(t, json.Unmarshal(events[0].Data, &start))
	assert.Equal(t, "message_start", start.Type)
	assert.Equal(t, "msg_123", start.Message.ID)
	assert.Equal(t, "assistant", start.Message.Role)
	assert.Empty(t, start.Message.Content)
	assert.Equal(t, 7, start.Message.Usage.InputTokens)
	assert.Equal(t, 0, start.Message.Usage.OutputTokens)

	var delta struct {
		Type  string `json:"type"`
		Index int    `json:"index"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	}
	assert.NoError(t, json.Unmarshal(events[2].Data, &delta))
	assert.Equal(t, "content_block_delta", delta.Type)
	assert.Equal(t, 0, delta.Index)
	assert.Equal(t, "text_delta", delta.Delta.Type)
	assert.Equal(t, " there", delta.Delta.Text)
}

func TestMessagesTransducerEmptyStream(t *testing.T) {
	// A stream that yields no fragments still produces a well-formed
	// start/stop pair, so the client parser terminates cleanly.
	tr := NewMessagesTransducer("msg_123", "gemini-2.0-flash", 0)
	events := tr.Done()
	assert.Len(t, events, 2)
	assert.Equal(t, "message_start", events[0].Name)
	assert.Equal(t, "message_stop", events[1].Name)
}

func TestCompletionTransducerWire(t *testing.T) {
	tr := NewCompletionTransducer("chatcmpl-123", "m", time.Now())
	var b strings.Builder
	b.Write(tr.Chunk("x").Encode())
	b.Write(tr.Done().Encode())

	wire := b.String()
	assert.True(t, strings.HasSuffix(wire, "data: [DONE]\n\n"))
	// Every frame is double-newline terminated.
	assert.Equal(t, 2, strings.Count(wire, "\n\n"))
}
