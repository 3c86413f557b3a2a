package httpclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/joy-dx/gosession/dto"
)

// HTTPRequestConfig is immutable input (safe to reuse).
type HTTPRequestConfig struct {
	Method string `json:"method" yaml:"method"`
	URL    string
	Body   map[string]interface{} `json:"body" yaml:"body"`
	// BodyType application/json, application/x-www-form-urlencoded
	BodyType string            `json:"body_type" yaml:"body_type"`
	Headers  map[string]string `json:"headers" yaml:"headers"`
	// SkipRenewal returns a 401 as-is instead of renewing and replaying
	SkipRenewal bool `json:"skip_renewal" yaml:"skip_renewal"`
}

func DefaultHTTPRequestConfig() HTTPRequestConfig {
	return HTTPRequestConfig{
		Method:   http.MethodGet,
		Body:     map[string]interface{}{},
		BodyType: "application/json",
		Headers:  make(map[string]string),
	}
}

func (c *HTTPRequestConfig) Ref() dto.NetClientType {
	return NetClientHTTPRef
}

func (c *HTTPRequestConfig) WithMethod(method string) *HTTPRequestConfig {
	c.Method = method
	return c
}
func (c *HTTPRequestConfig) WithBody(body map[string]interface{}) *HTTPRequestConfig {
	c.Body = body
	return c
}
func (c *HTTPRequestConfig) WithHeaders(headers map[string]string) *HTTPRequestConfig {
	c.Headers = headers
	return c
}
func (c *HTTPRequestConfig) WithURL(url string) *HTTPRequestConfig {
	c.URL = url
	return c
}
func (c *HTTPRequestConfig) WithSkipRenewal(skip bool) *HTTPRequestConfig {
	c.SkipRenewal = skip
	return c
}

// NewRequest creates a per-call mutable request object.
// This avoids mutating the spec and avoids leaks without cloning the spec maps.
func (c *HTTPRequestConfig) NewRequest(ctx context.Context) (any, error) {
	r := &HTTPRequest{
		RequestID:   uuid.NewString(),
		Method:      c.Method,
		URL:         c.URL,
		BodyType:    c.BodyType,
		Headers:     make(map[string]string, len(c.Headers)),
		Body:        make(map[string]any, len(c.Body)),
		SkipRenewal: c.SkipRenewal,
	}
	for k, v := range c.Headers {
		r.Headers[k] = v
	}
	for k, v := range c.Body {
		r.Body[k] = v
	}
	return r, nil
}

// HTTPRequest is per-call mutable state.
type HTTPRequest struct {
	RequestID string
	Method    string
	URL       string
	Body      map[string]any
	BodyType  string
	Headers   map[string]string
	// Finalized wire body (deterministic for tests and retries)
	BodyBytes   []byte
	ContentType string
	// Stamped is the raw credential sent with the latest attempt
	Stamped     string
	SkipRenewal bool
	// Retried is set once the request has been replayed after a 401
	Retried bool
}

func (r *HTTPRequest) ClientType() dto.NetClientType { return NetClientHTTPRef }

func (r *HTTPRequest) SetHeader(k, v string) {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[k] = v
}

func (r *HTTPRequest) Header(k string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[k]
}
