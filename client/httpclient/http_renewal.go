package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/relays"
)

// handleUnauthorized renews the session and replays req once. When renewal is
// not allowed or fails, the original 401 goes back to the caller.
func (c *HTTPClient) handleUnauthorized(ctx context.Context, req *HTTPRequest, resp dto.Response) (dto.Response, error) {
	if !c.shouldRenew(req) {
		return resp, unauthorized(req.URL)
	}

	req.Retried = true
	cred, err := c.cfg.Renewer.RenewAfter(ctx, req.Stamped)
	if err != nil {
		c.relay.Warn(relays.RlyRequest{
			RequestID: req.RequestID,
			Method:    req.Method,
			URL:       req.URL,
			Status:    resp.StatusCode,
			Msg:       "renewal after 401 failed: " + err.Error(),
		})
		return resp, fmt.Errorf("%w: %s: %w", dto.ErrUnauthorized, req.URL, err)
	}

	req.stamp(cred.TokenType, cred.Raw)
	replayed, err := c.send(ctx, req)
	success := err == nil && replayed.StatusCode != http.StatusUnauthorized
	c.metrics.RequestReplayed(success)
	c.relay.Debug(relays.RlyRequest{
		RequestID: req.RequestID,
		Method:    req.Method,
		URL:       req.URL,
		Status:    replayed.StatusCode,
		Retried:   true,
		Msg:       "request replayed after renewal",
	})
	if err != nil {
		return dto.Response{}, err
	}
	if replayed.StatusCode == http.StatusUnauthorized {
		return replayed, unauthorized(req.URL)
	}
	return replayed, nil
}

func (c *HTTPClient) shouldRenew(req *HTTPRequest) bool {
	if c.cfg.Renewer == nil || req.Retried || req.SkipRenewal {
		return false
	}
	return !c.isSkipPath(req.URL)
}

func (c *HTTPClient) isSkipPath(raw string) bool {
	if len(c.cfg.SkipRenewalPaths) == 0 {
		return false
	}
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	// whole trailing segments only, so /auth/login never covers /auth/login-history
	for _, skip := range c.cfg.SkipRenewalPaths {
		skip = strings.TrimRight(skip, "/")
		if skip != "" && strings.HasSuffix(path, skip) &&
			(len(path) == len(skip) || skip[0] == '/' || path[len(path)-len(skip)-1] == '/') {
			return true
		}
	}
	return false
}

func unauthorized(target string) error {
	return fmt.Errorf("%w: %s", dto.ErrUnauthorized, target)
}
