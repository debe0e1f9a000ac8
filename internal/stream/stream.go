// Package stream converts an incremental upstream text stream into the
// two public SSE wire formats. The transducers are pure with respect to
// IO: they produce framed events, and the HTTP layer writes them.
package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is one framed SSE event. Name is empty for bare data frames
// (Format A); Format B uses named events.
type Event struct {
	Name string
	Data []byte
}

// Encode renders the event in SSE wire framing.
func (e Event) Encode() []byte {
	if e.Name == "" {
		return []byte(fmt.Sprintf("data: %s\n\n", e.Data))
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, e.Data))
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// The payload maps below only hold marshalable values.
		panic(err)
	}
	return b
}

// CompletionTransducer emits Format A chat.completion.chunk frames. Its
// only state is whether the first chunk went out: the first delta carries
// the assistant role, every later delta carries content only.
type CompletionTransducer struct {
	id      string
	model   string
	created int64
	started bool
}

func NewCompletionTransducer(id, model string, now time.Time) *CompletionTransducer {
	return &CompletionTransducer{id: id, model: model, created: now.Unix()}
}

// Chunk wraps one text fragment in a chunk frame.
func (t *CompletionTransducer) Chunk(fragment string) Event {
	delta := map[string]any{"content": fragment}
	if !t.started {
		t.started = true
		delta["role"] = "assistant"
	}
	payload := map[string]any{
		"id":      t.id,
		"object":  "chat.completion.chunk",
		"created": t.created,
		"model":   t.model,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": nil,
		}},
	}
	return Event{Data: mustJSON(payload)}
}

// Done returns the terminating sentinel. It must be emitted even when
// the upstream stream ends abnormally, so the client parser never hangs.
func (t *CompletionTransducer) Done() Event {
	return Event{Data: []byte("[DONE]")}
}

// MessagesTransducer emits Format B named events: message_start on the
// first fragment, a content_block_delta per fragment, message_stop at
// the end.
type MessagesTransducer struct {
	id          string
	model       string
	inputTokens int
	started     bool
}

func NewMessagesTransducer(id, model string, inputTokens int) *MessagesTransducer {
	return &MessagesTransducer{id: id, model: model, inputTokens: inputTokens}
}

// Chunk converts one text fragment into events. The first fragment also
// yields the stream-start envelope with empty content.
func (t *MessagesTransducer) Chunk(fragment string) []Event {
	events := make([]Event, 0, 2)
	if !t.started {
		t.started = true
		events = append(events, t.start())
	}
	events = append(events, Event{
		Name: "content_block_delta",
		Data: mustJSON(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{
				"type": "text_delta",
				"text": fragment,
			},
		}),
	})
	return events
}

// Done closes the stream. A stream that produced no fragments still gets
// a well-formed start/stop pair.
func (t *MessagesTransducer) Done() []Event {
	events := make([]Event, 0, 2)
	if !t.started {
		t.started = true
		events = append(events, t.start())
	}
	events = append(events, Event{
		Name: "message_stop",
		Data: mustJSON(map[string]any{"type": "message_stop"}),
	})
	return events
}

func (t *MessagesTransducer) start() Event {
	return Event{
		Name: "message_start",
		Data: mustJSON(map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":            t.id,
				"type":          "message",
				"role":          "assistant",
				"model":         t.model,
				"content":       []any{},
				"stop_reason":   nil,
				"stop_sequence": nil,
				"usage": map[string]any{
					"input_tokens":  t.inputTokens,
					"output_tokens": 0,
				},
			},
		}),
	}
}
