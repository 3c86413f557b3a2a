package httpclient

import (
	"fmt"
	"strings"
)

// normalizeAuthType ensures proper "Bearer", "Basic", or custom capitalization.
func normalizeAuthType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "bearer":
		return "Bearer"
	case "basic":
		return "Basic"
	default:
		if t == "" {
			return "Bearer"
		}
		return t
	}
}

// bearerFromHeader returns the credential part of an Authorization header.
func bearerFromHeader(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, ' '); i > 0 {
		return strings.TrimSpace(v[i+1:])
	}
	return v
}

// -----------------------------------------------------------------------------
// HEADER MANAGEMENT
// -----------------------------------------------------------------------------

// attachAuth stamps the current credential on the request and records what
// was stamped. An Authorization header set explicitly on the request wins.
func (c *HTTPClient) attachAuth(req *HTTPRequest) error {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}

	if explicit := req.Header("Authorization"); explicit != "" {
		req.Stamped = bearerFromHeader(explicit)
		return nil
	}

	if c.cfg.Credentials != nil {
		cred, ok := c.cfg.Credentials.Current()
		if ok && !cred.IsZero() {
			req.stamp(cred.TokenType, cred.Raw)
			return nil
		}
	}

	if c.cfg.OAuthSource != nil {
		tok, err := c.cfg.OAuthSource.Token()
		if err != nil {
			return fmt.Errorf("oauth2 token fetch: %w", err)
		}
		if tok.AccessToken != "" {
			req.stamp(tok.TokenType, tok.AccessToken)
		}
	}
	return nil
}

func (r *HTTPRequest) stamp(tokenType, raw string) {
	r.SetHeader("Authorization", normalizeAuthType(tokenType)+" "+raw)
	r.Stamped = raw
}
