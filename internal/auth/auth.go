package auth

import (
	"errors"
	"log/slog"
	"strings"

	"chatgate/internal/apierr"
	"chatgate/internal/db"
	"chatgate/internal/model"

	"github.com/gin-gonic/gin"
)

// credentialKey is the gin context key the resolved credential is stored
// under.
const credentialKey = "chatgate.credential"

// ExtractToken pulls the bearer secret from the Authorization header, or
// falls back to the api_key query parameter.
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.Query("api_key"))
}

// Validate resolves a token against the credential store and checks the
// required scope. An empty scope only requires a valid active credential.
func Validate(svc db.Service, token, scope string) (*model.Credential, *apierr.Error) {
	if token == "" {
		return nil, apierr.Unauthorized("missing_credential", "API key is required")
	}
	cred, err := svc.FindCredentialBySecret(token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apierr.Unauthorized("invalid_credential", "Invalid API key")
		}
		return nil, apierr.Internal("credential lookup failed")
	}
	if !cred.Active {
		return nil, apierr.Unauthorized("invalid_credential", "Invalid API key")
	}
	if scope != "" && !cred.HasScope(scope) {
		return nil, apierr.Forbidden("insufficient_scope", "API key lacks the "+scope+" scope")
	}
	return cred, nil
}

// Middleware authenticates the request, attaches the credential to the
// context and touches last_used_at in the background. The touch is
// best-effort and never fails the request.
func Middleware(svc db.Service, scope string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, aerr := Validate(svc, ExtractToken(c), scope)
		if aerr != nil {
			apierr.Abort(c, aerr)
			return
		}

		c.Set(credentialKey, cred)

		go func(secret string) {
			if err := svc.TouchCredentialLastUsed(secret); err != nil {
				log.Warn("Failed to touch credential last_used_at", "error", err)
			}
		}(cred.Secret)

		c.Next()
	}
}

// CredentialFrom returns the credential attached by Middleware.
func CredentialFrom(c *gin.Context) (*model.Credential, bool) {
	v, ok := c.Get(credentialKey)
	if !ok {
		return nil, false
	}
	cred, ok := v.(*model.Credential)
	return cred, ok
}
