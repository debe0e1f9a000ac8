package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatgate/internal/apierr"
	"chatgate/internal/auth"
	"chatgate/internal/db"
	"chatgate/internal/model"
	"chatgate/internal/quota"

	"github.com/gin-gonic/gin"
)

type createKeyRequest struct {
	Name        string         `json:"name"`
	Permissions []string       `json:"permissions"`
	RateLimit   *rateLimitSpec `json:"rateLimit"`
}

type rateLimitSpec struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

type createKeyResponse struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Key       string       `json:"key"`
	Scopes    []string     `json:"scopes"`
	Limits    quota.Limits `json:"limits"`
	CreatedAt time.Time    `json:"created_at"`
}

// createKey handles POST /v1/keys. While the store has never held a
// credential the call needs no authentication; this bootstrap window
// closes permanently once the first credential exists. The gate counts
// all rows, not just active ones: revoking every credential must not
// reopen it. The check-then-create race is accepted: a concurrent burst
// during bootstrap can at worst create a few extra keys before the
// latch shuts.
func (s *Server) createKey(c *gin.Context) {
	count, err := s.db.CountCredentials()
	if err != nil {
		apierr.Write(c, apierr.Internal("credential store unreachable"))
		return
	}
	bootstrap := count == 0
	if !bootstrap {
		caller, aerr := auth.Validate(s.db, auth.ExtractToken(c), model.ScopeAdmin)
		if aerr != nil {
			apierr.Write(c, aerr)
			return
		}
		s.touchCredential(caller.Secret)
		s.attachUsageHeaders(c, caller)
	}

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.BadRequest("invalid_json", "request body is not valid JSON"))
		return
	}
	if req.Name == "" {
		apierr.Write(c, apierr.BadRequest("invalid_field", "name: field is required"))
		return
	}

	scopes := req.Permissions
	if len(scopes) == 0 {
		if bootstrap {
			// The first key must be able to manage the ones after it.
			scopes = []string{model.ScopeChat, model.ScopeAdmin}
		} else {
			scopes = []string{model.ScopeChat}
		}
	}
	for _, sc := range scopes {
		if sc != model.ScopeChat && sc != model.ScopeAdmin {
			apierr.Write(c, apierr.BadRequest("invalid_field", fmt.Sprintf("permissions: unknown scope %q", sc)))
			return
		}
	}

	cred := &model.Credential{
		Name:   req.Name,
		Scopes: strings.Join(scopes, ","),
	}
	if req.RateLimit != nil {
		if req.RateLimit.PerMinute < 0 || req.RateLimit.PerHour < 0 || req.RateLimit.PerDay < 0 {
			apierr.Write(c, apierr.BadRequest("invalid_field", "rateLimit: limits must not be negative"))
			return
		}
		cred.PerMinute = req.RateLimit.PerMinute
		cred.PerHour = req.RateLimit.PerHour
		cred.PerDay = req.RateLimit.PerDay
	}

	if err := s.db.CreateCredential(cred); err != nil {
		s.logger.Error("Failed to create credential", "error", err)
		apierr.Write(c, apierr.Internal("failed to create credential"))
		return
	}
	if bootstrap {
		s.logger.Info("Bootstrap credential created, unauthenticated creation is now closed", "credential_id", cred.ID)
	}

	// The secret appears exactly once, in this response.
	c.JSON(http.StatusCreated, createKeyResponse{
		ID:        cred.ID,
		Name:      cred.Name,
		Key:       cred.Secret,
		Scopes:    cred.ScopeList(),
		Limits:    quota.LimitsFor(cred, s.cfg.Limits),
		CreatedAt: cred.CreatedAt,
	})
}

// listKeys handles GET /v1/keys. Secrets never appear in listings; the
// model hides the column from JSON.
func (s *Server) listKeys(c *gin.Context) {
	creds, err := s.db.ListCredentials(100)
	if err != nil {
		apierr.Write(c, apierr.Internal("failed to list credentials"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": creds, "count": len(creds)})
}

// getKey handles GET /v1/keys/:id. The reserved id "current" resolves to
// the caller's own credential and only requires a valid key; any other
// id requires the admin scope. The record comes back with its effective
// limits and current counter snapshot.
func (s *Server) getKey(c *gin.Context) {
	cred, caller, aerr := s.resolveKey(c)
	if aerr != nil {
		apierr.Write(c, aerr)
		return
	}
	s.attachUsageHeaders(c, caller)
	windows, err := s.limiter.Usage(c.Request.Context(), cred, time.Now())
	if err != nil {
		s.logger.Error("Failed to read usage counters", "credential_id", cred.ID, "error", err)
		apierr.Write(c, apierr.Internal("failed to read usage counters"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":     cred,
		"limits":  quota.LimitsFor(cred, s.cfg.Limits),
		"windows": windows,
	})
}

// keyUsage handles GET /v1/keys/:id/usage, returning counter snapshots
// plus the configured limits. Reads do not reserve quota.
func (s *Server) keyUsage(c *gin.Context) {
	cred, caller, aerr := s.resolveKey(c)
	if aerr != nil {
		apierr.Write(c, aerr)
		return
	}
	s.attachUsageHeaders(c, caller)
	windows, err := s.limiter.Usage(c.Request.Context(), cred, time.Now())
	if err != nil {
		s.logger.Error("Failed to read usage counters", "credential_id", cred.ID, "error", err)
		apierr.Write(c, apierr.Internal("failed to read usage counters"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      cred.ID,
		"name":    cred.Name,
		"limits":  quota.LimitsFor(cred, s.cfg.Limits),
		"windows": windows,
	})
}

// deleteKey handles DELETE /v1/keys/:id. Revocation is terminal: the
// first call returns 200, any repeat returns 404.
func (s *Server) deleteKey(c *gin.Context) {
	id := c.Param("id")
	if err := s.db.RevokeCredential(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			apierr.Write(c, apierr.NotFound("no active credential with id "+id))
			return
		}
		apierr.Write(c, apierr.Internal("failed to revoke credential"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": false})
}

type renameKeyRequest struct {
	Name string `json:"name"`
}

// renameKey handles PATCH /v1/keys/:id. The name is the only mutable
// piece of credential metadata.
func (s *Server) renameKey(c *gin.Context) {
	var req renameKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		apierr.Write(c, apierr.BadRequest("invalid_field", "name: field is required"))
		return
	}
	id := c.Param("id")
	if err := s.db.UpdateCredentialName(id, req.Name); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			apierr.Write(c, apierr.NotFound("no credential with id "+id))
			return
		}
		apierr.Write(c, apierr.Internal("failed to update credential"))
		return
	}
	cred, err := s.db.FindCredentialByID(id)
	if err != nil {
		apierr.Write(c, apierr.Internal("failed to load credential"))
		return
	}
	c.JSON(http.StatusOK, cred)
}

// resolveKey authenticates and resolves the :id parameter for the read
// endpoints, applying the current-vs-admin scope rule. The caller's own
// credential comes back alongside the target so the response can carry
// the caller's quota snapshot.
func (s *Server) resolveKey(c *gin.Context) (target, caller *model.Credential, aerr *apierr.Error) {
	id := c.Param("id")
	token := auth.ExtractToken(c)

	if id == "current" {
		caller, aerr = auth.Validate(s.db, token, "")
		if aerr != nil {
			return nil, nil, aerr
		}
		s.touchCredential(caller.Secret)
		return caller, caller, nil
	}

	caller, aerr = auth.Validate(s.db, token, model.ScopeAdmin)
	if aerr != nil {
		return nil, nil, aerr
	}
	s.touchCredential(caller.Secret)
	cred, err := s.db.FindCredentialByID(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, apierr.NotFound("no credential with id " + id)
		}
		return nil, nil, apierr.Internal("failed to load credential")
	}
	return cred, caller, nil
}

// touchCredential updates last_used_at off the request path, mirroring
// what the auth middleware does for the chat routes.
func (s *Server) touchCredential(secret string) {
	go func() {
		if err := s.db.TouchCredentialLastUsed(secret); err != nil {
			s.logger.Warn("Failed to touch credential last_used_at", "error", err)
		}
	}()
}
