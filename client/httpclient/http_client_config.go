package httpclient

import (
	"context"

	"github.com/joy-dx/gosession/dto"
	"golang.org/x/oauth2"
)

type Middleware func(ctx context.Context, req *HTTPRequest) error

type HTTPClientConfig struct {
	// Credentials supplies the bearer stamped on each request
	Credentials dto.CredentialSource
	// Renewer is asked for a fresh credential when a request comes back 401
	Renewer dto.SessionRenewer
	// OAuthSource is a fallback bearer source for clients outside the session
	OAuthSource oauth2.TokenSource
	// SkipRenewalPaths never trigger renewal on 401 (login, refresh)
	SkipRenewalPaths []string
	Middlewares      []Middleware
}

func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		SkipRenewalPaths: make([]string, 0),
		Middlewares:      make([]Middleware, 0),
	}
}

func (c *HTTPClientConfig) WithCredentials(source dto.CredentialSource) *HTTPClientConfig {
	c.Credentials = source
	return c
}
func (c *HTTPClientConfig) WithRenewer(renewer dto.SessionRenewer) *HTTPClientConfig {
	c.Renewer = renewer
	return c
}
func (c *HTTPClientConfig) WithOAuthSource(tokenSource oauth2.TokenSource) *HTTPClientConfig {
	c.OAuthSource = tokenSource
	return c
}
func (c *HTTPClientConfig) WithSkipRenewalPaths(paths ...string) *HTTPClientConfig {
	c.SkipRenewalPaths = append(c.SkipRenewalPaths, paths...)
	return c
}
func (c *HTTPClientConfig) WithMiddleware(m ...Middleware) *HTTPClientConfig {
	c.Middlewares = append(c.Middlewares, m...)
	return c
}
