// Package token decodes bearer credentials on the client side.
//
// Decoding never verifies a signature: the result is advisory and only drives
// scheduling decisions. The server remains the authority on validity.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joy-dx/gosession/dto"
)

var ErrMissingExpiry = errors.New("missing exp claim")

type Inspector struct {
	parser *jwt.Parser
}

func NewInspector() *Inspector {
	return &Inspector{parser: jwt.NewParser()}
}

// Decode returns the credential view of raw or a *dto.DecodeError.
func (i *Inspector) Decode(raw string) (cred dto.Credential, err error) {
	defer func() {
		if r := recover(); r != nil {
			cred = dto.Credential{}
			err = &dto.DecodeError{Reason: fmt.Sprintf("parser panic: %v", r)}
		}
	}()

	raw, tokenType := splitScheme(raw)
	if raw == "" {
		return dto.Credential{}, &dto.DecodeError{Reason: "empty credential"}
	}
	if strings.Count(raw, ".") != 2 {
		return dto.Credential{}, &dto.DecodeError{Reason: "not a three-part token"}
	}

	mc := jwt.MapClaims{}
	if _, _, err := i.parser.ParseUnverified(raw, mc); err != nil {
		return dto.Credential{}, &dto.DecodeError{Reason: "malformed token", Err: err}
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return dto.Credential{}, &dto.DecodeError{Reason: "invalid exp claim", Err: err}
	}
	if exp == nil {
		return dto.Credential{}, &dto.DecodeError{Reason: "no expiry", Err: ErrMissingExpiry}
	}

	claims := dto.Claims{
		ExpiresAt: exp.Time,
		Extra:     map[string]any{},
	}
	if sub, err := mc.GetSubject(); err == nil {
		claims.SubjectID = sub
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		claims.IssuedAt = &t
	}
	claims.UserID = firstString(mc, "userId", "user_id", "uid")
	claims.Roles = stringList(mc["roles"])
	claims.Role = firstString(mc, "role")
	if claims.Role == "" && len(claims.Roles) > 0 {
		claims.Role = claims.Roles[0]
	}
	for k, v := range mc {
		switch k {
		case "sub", "exp", "iat", "userId", "user_id", "uid", "role", "roles":
			continue
		}
		claims.Extra[k] = v
	}

	return dto.Credential{Raw: raw, TokenType: tokenType, Claims: claims}, nil
}

// SecondsUntilExpiry is a pure function of the decoded expiry and now.
// Negative values mean the credential already expired.
func SecondsUntilExpiry(cred dto.Credential, now time.Time) float64 {
	return UntilExpiry(cred, now).Seconds()
}

func UntilExpiry(cred dto.Credential, now time.Time) time.Duration {
	if cred.Claims.ExpiresAt.IsZero() {
		return 0
	}
	return cred.Claims.ExpiresAt.Sub(now)
}

// RefreshDelay is how long to wait before renewing, given a margin. It may be <= 0.
func RefreshDelay(cred dto.Credential, now time.Time, margin time.Duration) time.Duration {
	return UntilExpiry(cred, now) - margin
}

func splitScheme(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, `"`)
	if scheme, rest, ok := strings.Cut(raw, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest), "Bearer"
	}
	return raw, "Bearer"
}

func firstString(mc jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := mc[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	case string:
		if vv == "" {
			return nil
		}
		return strings.Fields(strings.ReplaceAll(vv, ",", " "))
	}
	return nil
}
