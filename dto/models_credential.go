package dto

import (
	"strings"
	"time"
)

// Claims is the decoded, unverified view of a credential.
type Claims struct {
	SubjectID string         `json:"sub" yaml:"sub"`
	UserID    string         `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Role      string         `json:"role,omitempty" yaml:"role,omitempty"`
	Roles     []string       `json:"roles,omitempty" yaml:"roles,omitempty"`
	IssuedAt  *time.Time     `json:"iat,omitempty" yaml:"iat,omitempty"`
	ExpiresAt time.Time      `json:"exp" yaml:"exp"`
	Extra     map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Credential is an opaque bearer string plus its decoded claims.
type Credential struct {
	Raw string `json:"-" yaml:"-"`
	// TokenType is inferred if not provided (default "Bearer").
	TokenType string `json:"token_type" yaml:"token_type"`
	Claims    Claims `json:"claims" yaml:"claims"`
}

func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.Raw) == ""
}

// IsExpired returns true if the credential is empty or within buffer of its expiry at now.
func (c Credential) IsExpired(buffer time.Duration, now time.Time) bool {
	if c.IsZero() {
		return true
	}
	if c.Claims.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.Claims.ExpiresAt.Add(-buffer))
}

// HasRole matches the primary role or any listed role, case-insensitively.
func (c Credential) HasRole(role string) bool {
	if strings.EqualFold(c.Claims.Role, role) {
		return true
	}
	for _, r := range c.Claims.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
