package model

import (
	"strings"
	"time"
)

// Capability scopes a credential may carry.
const (
	ScopeChat  = "chat"
	ScopeAdmin = "admin"
)

// Credential represents a client's API key for accessing the gateway.
// The Secret is the bearer token; it is generated once at creation and
// never serialized in listings.
type Credential struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Secret     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Scopes     string    `gorm:"type:varchar(255);not null" json:"scopes"`
	PerMinute  int       `gorm:"default:0" json:"per_minute"`
	PerHour    int       `gorm:"default:0" json:"per_hour"`
	PerDay     int       `gorm:"default:0" json:"per_day"`
	Active     bool      `gorm:"default:true;not null" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// ScopeList splits the comma-separated Scopes column.
func (c *Credential) ScopeList() []string {
	if c.Scopes == "" {
		return nil
	}
	parts := strings.Split(c.Scopes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasScope reports whether the credential carries the given scope.
func (c *Credential) HasScope(scope string) bool {
	for _, s := range c.ScopeList() {
		if s == scope {
			return true
		}
	}
	return false
}
