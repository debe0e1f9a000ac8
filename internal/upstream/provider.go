// Package upstream abstracts the chat provider behind one capability:
// submit a normalized request, get back a normalized response or an
// incremental text stream.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"chatgate/internal/canonical"
	"chatgate/internal/config"
)

// ErrTimeout reports that the bounded upstream call deadline expired.
// It is retryable by the caller; the gateway itself does not retry.
var ErrTimeout = errors.New("upstream request timed out")

// ErrBadResponse reports that the upstream returned a shape outside the
// closed set of known response kinds.
var ErrBadResponse = errors.New("unrecognized upstream response shape")

// Streamer yields incremental text fragments. Next returns io.EOF when
// the stream is complete.
type Streamer interface {
	Next() (string, error)
}

// Provider is the upstream chat capability. Implementations are selected
// by configuration and injected into the HTTP handlers, never reached
// through a process-global.
type Provider interface {
	Complete(ctx context.Context, req *canonical.Request) (*canonical.Response, error)
	Stream(ctx context.Context, req *canonical.Request) (Streamer, error)
	Close() error
}

// New builds the configured provider.
func New(ctx context.Context, cfg config.UpstreamConfig, log *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg, log)
	case "fixture":
		log.Warn("Using the fixture upstream provider; responses are canned")
		return NewFixture(), nil
	default:
		return nil, fmt.Errorf("unsupported upstream provider: %s", cfg.Provider)
	}
}

// Fixture is a deterministic provider for tests and degraded operation.
// It never performs network IO.
type Fixture struct {
	// Reply is the non-streaming response text.
	Reply string
	// Chunks is the fragment sequence Stream yields. When nil, the
	// whole Reply is emitted as a single fragment.
	Chunks []string
}

func NewFixture() *Fixture {
	return &Fixture{Reply: "Hello! This is a canned reply from the fixture provider."}
}

func (f *Fixture) Complete(_ context.Context, req *canonical.Request) (*canonical.Response, error) {
	return &canonical.Response{Model: req.Model, Content: f.Reply}, nil
}

func (f *Fixture) Stream(_ context.Context, req *canonical.Request) (Streamer, error) {
	chunks := f.Chunks
	if chunks == nil {
		chunks = []string{f.Reply}
	}
	return &sliceStreamer{chunks: chunks}, nil
}

func (f *Fixture) Close() error { return nil }

type sliceStreamer struct {
	chunks []string
	pos    int
}

func (s *sliceStreamer) Next() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}
