package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"chatgate/internal/apierr"
	"chatgate/internal/auth"
	"chatgate/internal/canonical"
	"chatgate/internal/stream"
	"chatgate/internal/translate"
	"chatgate/internal/upstream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// chatCompletions serves the Format A surface.
func (s *Server) chatCompletions(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req translate.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.BadRequest("invalid_json", "request body is not valid JSON"))
		return
	}
	// Validation happens before the limiter runs: a malformed request
	// must not consume quota.
	if err := translate.ValidateCompletion(&req); err != nil {
		apierr.Write(c, apierr.BadRequest("invalid_field", err.Error()))
		return
	}

	cred, ok := auth.CredentialFrom(c)
	if !ok {
		apierr.Write(c, apierr.Internal("credential missing from context"))
		return
	}
	if !s.reserveQuota(c, cred) {
		return
	}

	creq := translate.CompletionToCanonical(&req, s.cfg.Upstream.DefaultModel)
	id := "chatcmpl-" + uuid.NewString()

	if creq.Stream {
		tr := stream.NewCompletionTransducer(id, creq.Model, time.Now())
		s.streamChat(c, creq, func(fragment string) []stream.Event {
			return []stream.Event{tr.Chunk(fragment)}
		}, func() []stream.Event {
			return []stream.Event{tr.Done()}
		})
		return
	}

	resp, err := s.provider.Complete(c.Request.Context(), creq)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, translate.CanonicalToCompletion(creq, resp, id, time.Now()))
}

// messages serves the Format B surface.
func (s *Server) messages(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req translate.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.BadRequest("invalid_json", "request body is not valid JSON"))
		return
	}
	if err := translate.ValidateMessages(&req); err != nil {
		apierr.Write(c, apierr.BadRequest("invalid_field", err.Error()))
		return
	}

	cred, ok := auth.CredentialFrom(c)
	if !ok {
		apierr.Write(c, apierr.Internal("credential missing from context"))
		return
	}
	if !s.reserveQuota(c, cred) {
		return
	}

	creq := translate.MessagesToCanonical(&req, s.cfg.Upstream.DefaultModel)
	id := "msg_" + uuid.NewString()

	if creq.Stream {
		tr := stream.NewMessagesTransducer(id, creq.Model, creq.PromptTokens())
		s.streamChat(c, creq, tr.Chunk, tr.Done)
		return
	}

	resp, err := s.provider.Complete(c.Request.Context(), creq)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, translate.CanonicalToMessages(creq, resp, id))
}

// streamChat drains the upstream stream through a transducer. The
// terminating events are emitted even when the upstream ends abnormally,
// so the client's SSE parser never hangs. Client disconnects cancel the
// request context and stop the read loop promptly.
func (s *Server) streamChat(c *gin.Context, req *canonical.Request, chunk func(string) []stream.Event, done func() []stream.Event) {
	streamer, err := s.provider.Stream(c.Request.Context(), req)
	if err != nil {
		s.upstreamError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	ctx := c.Request.Context()
	for {
		if ctx.Err() != nil {
			s.logger.Warn("Client disconnected mid-stream")
			break
		}
		fragment, err := streamer.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("Upstream stream ended abnormally", "error", err)
			}
			break
		}
		for _, ev := range chunk(fragment) {
			c.Writer.Write(ev.Encode())
		}
		c.Writer.Flush()
	}

	for _, ev := range done() {
		c.Writer.Write(ev.Encode())
	}
	c.Writer.Flush()
}

// upstreamError maps provider failures onto the envelope without leaking
// the raw upstream error body.
func (s *Server) upstreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, upstream.ErrTimeout):
		apierr.Write(c, apierr.Upstream("upstream_timeout", "upstream request timed out"))
	case errors.Is(err, upstream.ErrBadResponse):
		s.logger.Error("Upstream returned an unrecognized shape", "error", err)
		apierr.Write(c, apierr.Upstream("upstream_error", "upstream returned an unrecognized response"))
	default:
		s.logger.Error("Upstream call failed", "error", err)
		apierr.Write(c, apierr.Upstream("upstream_error", "upstream request failed"))
	}
}
