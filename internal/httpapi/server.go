// Package httpapi exposes the two public chat surfaces, the credential
// management surface and the static capability endpoints.
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatgate/internal/apierr"
	"chatgate/internal/auth"
	"chatgate/internal/config"
	"chatgate/internal/db"
	"chatgate/internal/model"
	"chatgate/internal/quota"
	"chatgate/internal/upstream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxBodyBytes caps inbound chat request bodies.
const maxBodyBytes = 10 << 20

// Server wires the handlers to their dependencies. The upstream provider
// is injected so tests can substitute the fixture implementation.
type Server struct {
	db       db.Service
	limiter  *quota.Limiter
	provider upstream.Provider
	cfg      *config.Config
	logger   *slog.Logger
}

func NewServer(dbService db.Service, limiter *quota.Limiter, provider upstream.Provider, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		db:       dbService,
		limiter:  limiter,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "httpapi"),
	}
}

// Register attaches all routes to the router.
func (s *Server) Register(router *gin.Engine) {
	router.Use(requestID())

	router.GET("/health", s.health)
	router.GET("/v1/models", s.listModels)
	router.GET("/v1/engines", s.deprecatedEngines)

	chat := router.Group("/v1", auth.Middleware(s.db, model.ScopeChat, s.logger))
	chat.POST("/chat/completions", s.chatCompletions)
	chat.POST("/messages", s.messages)

	admin := []gin.HandlerFunc{auth.Middleware(s.db, model.ScopeAdmin, s.logger), s.usageHeaders()}
	keys := router.Group("/v1/keys")
	keys.POST("", s.createKey)
	keys.GET("", append(admin, s.listKeys)...)
	keys.GET("/:id", s.getKey)
	keys.GET("/:id/usage", s.keyUsage)
	keys.DELETE("/:id", append(admin, s.deleteKey)...)
	keys.PATCH("/:id", append(admin, s.renameKey)...)

	router.NoRoute(func(c *gin.Context) {
		apierr.Write(c, apierr.NotFound("unknown route"))
	})
}

// requestID stamps every response with a correlation id, preserving one
// supplied by the client.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// reserveQuota runs the limiter for an authenticated chat request. It
// sets the quota headers and writes the 429 envelope on rejection. The
// limiter is advisory: if the counter store is unreachable the request
// is admitted and the failure logged.
func (s *Server) reserveQuota(c *gin.Context, cred *model.Credential) bool {
	decision, err := s.limiter.CheckAndReserve(c.Request.Context(), cred, time.Now())
	if err != nil {
		s.logger.Error("Quota check failed, admitting request", "credential_id", cred.ID, "error", err)
		return true
	}
	setQuotaHeaders(c, decision.Windows)
	if !decision.Allowed {
		apierr.Write(c, apierr.New(http.StatusTooManyRequests, apierr.TypeRateLimit,
			"rate_limit_exceeded",
			fmt.Sprintf("rate limit exceeded for the current %s window", decision.RetryWindow)))
		return false
	}
	return true
}

// attachUsageHeaders stamps the caller's current quota snapshot onto a
// response that does not itself consume quota. Best-effort: a counter
// store failure drops the headers, never the response.
func (s *Server) attachUsageHeaders(c *gin.Context, cred *model.Credential) {
	windows, err := s.limiter.Usage(c.Request.Context(), cred, time.Now())
	if err != nil {
		s.logger.Warn("Failed to read usage counters for headers", "credential_id", cred.ID, "error", err)
		return
	}
	setQuotaHeaders(c, windows)
}

// usageHeaders attaches the quota snapshot on routes that run behind
// the auth middleware.
func (s *Server) usageHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cred, ok := auth.CredentialFrom(c); ok {
			s.attachUsageHeaders(c, cred)
		}
		c.Next()
	}
}

func setQuotaHeaders(c *gin.Context, windows []quota.WindowStatus) {
	for _, w := range windows {
		suffix := windowHeaderSuffix(w.Window)
		c.Header("X-RateLimit-Limit-"+suffix, strconv.Itoa(w.Limit))
		c.Header("X-RateLimit-Remaining-"+suffix, strconv.FormatInt(w.Remaining, 10))
		c.Header("X-RateLimit-Reset-"+suffix, strconv.FormatInt(w.ResetAt.Unix(), 10))
	}
}

func windowHeaderSuffix(w quota.Window) string {
	switch w {
	case quota.WindowMinute:
		return "Minute"
	case quota.WindowHour:
		return "Hour"
	default:
		return "Day"
	}
}
