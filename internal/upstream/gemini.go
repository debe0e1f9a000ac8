package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"chatgate/internal/canonical"
	"chatgate/internal/config"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini calls the Google Generative AI API through the official SDK.
type Gemini struct {
	client  *genai.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewGemini(ctx context.Context, cfg config.UpstreamConfig, logger *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{
		client:  client,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:  logger.With("component", "upstream"),
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Complete(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session, parts := g.prepare(req)
	resp, err := session.SendMessage(ctx, parts...)
	if err != nil {
		return nil, classify(err)
	}
	return decodeResponse(req.Model, resp)
}

func (g *Gemini) Stream(ctx context.Context, req *canonical.Request) (Streamer, error) {
	// The deadline bounds the whole streaming call; the client's own
	// disconnect cancels through the parent context.
	ctx, cancel := context.WithTimeout(ctx, g.timeout)

	session, parts := g.prepare(req)
	iter := session.SendMessageStream(ctx, parts...)
	return &geminiStreamer{iter: iter, cancel: cancel}, nil
}

// prepare builds a chat session from the canonical request: leading
// system messages become the system instruction, prior turns become the
// history, and the final message is returned as the parts to send.
func (g *Gemini) prepare(req *canonical.Request) (*genai.ChatSession, []genai.Part) {
	model := g.client.GenerativeModel(req.Model)

	var system []string
	var turns []canonical.Message
	for _, m := range req.Messages {
		if m.Role == canonical.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))},
		}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaFromJSON(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	session := chatSession(model, turns)
	last := "..."
	if len(turns) > 0 {
		last = turns[len(turns)-1].Content
	}
	return session, []genai.Part{genai.Text(last)}
}

func chatSession(model *genai.GenerativeModel, turns []canonical.Message) *genai.ChatSession {
	cs := model.StartChat()
	if len(turns) < 2 {
		return cs
	}
	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == canonical.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	cs.History = history
	return cs
}

// decodeResponse classifies the raw response into the closed set of
// known part shapes, failing loudly on anything else instead of guessing.
func decodeResponse(model string, resp *genai.GenerateContentResponse) (*canonical.Response, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrBadResponse
	}

	out := &canonical.Response{Model: model}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, fmt.Errorf("%w: unmarshalable function call args", ErrBadResponse)
			}
			out.ToolCalls = append(out.ToolCalls, canonical.ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      p.Name,
				Arguments: args,
			})
		default:
			return nil, fmt.Errorf("%w: %T", ErrBadResponse, part)
		}
	}
	out.Content = text.String()
	return out, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("upstream call failed: %w", err)
}

type geminiStreamer struct {
	iter   *genai.GenerateContentResponseIterator
	cancel context.CancelFunc
}

// Next returns the next non-empty text fragment. The bounded-call cancel
// runs once the iterator is exhausted or fails.
func (s *geminiStreamer) Next() (string, error) {
	for {
		resp, err := s.iter.Next()
		if err != nil {
			s.cancel()
			if errors.Is(err, iterator.Done) {
				return "", io.EOF
			}
			return "", classify(err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		if text.Len() > 0 {
			return text.String(), nil
		}
	}
}

// schemaFromJSON converts a JSON Schema fragment into the SDK's schema
// type. Unknown or missing pieces degrade to permissive defaults; tool
// declarations are best-effort, not validated here.
func schemaFromJSON(raw json.RawMessage) *genai.Schema {
	if len(raw) == 0 {
		return nil
	}
	var node struct {
		Type        string                     `json:"type"`
		Description string                     `json:"description"`
		Enum        []string                   `json:"enum"`
		Items       json.RawMessage            `json:"items"`
		Properties  map[string]json.RawMessage `json:"properties"`
		Required    []string                   `json:"required"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}

	schema := &genai.Schema{
		Description: node.Description,
		Enum:        node.Enum,
		Required:    node.Required,
	}
	switch node.Type {
	case "object":
		schema.Type = genai.TypeObject
	case "array":
		schema.Type = genai.TypeArray
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		schema.Type = genai.TypeUnspecified
	}
	if len(node.Items) > 0 {
		schema.Items = schemaFromJSON(node.Items)
	}
	if len(node.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(node.Properties))
		for name, prop := range node.Properties {
			schema.Properties[name] = schemaFromJSON(prop)
		}
	}
	return schema
}
