// Package authapi talks to the credential issuing endpoints: login, refresh
// and the current-session profile.
package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/joy-dx/gosession/client/httpclient"
	"github.com/joy-dx/gosession/config"
	"github.com/joy-dx/gosession/dto"
)

// ErrEmptyToken is returned when a login or refresh reply carries no credential.
var ErrEmptyToken = errors.New("empty token in response")

// Client implements dto.AuthAPI on top of a net client. Its requests never
// trigger 401 renewal and always carry their credential explicitly.
type Client struct {
	cfg *config.SessionSvcConfig
	net dto.NetClientInterface
}

func New(cfg *config.SessionSvcConfig, net dto.NetClientInterface) *Client {
	return &Client{cfg: cfg, net: net}
}

// Login issues a credential. The body carries the generic identifier/secret
// pair plus the phone, username and password aliases older endpoints expect.
func (c *Client) Login(ctx context.Context, req dto.LoginRequest) (string, error) {
	body := map[string]interface{}{
		"identifier": req.Identifier,
		"secret":     req.Secret,
		"phone":      req.Identifier,
		"username":   req.Identifier,
		"password":   req.Secret,
	}
	if req.Role != "" {
		body["role"] = strings.ToUpper(req.Role)
	}

	resp, err := c.do(ctx, http.MethodPost, c.cfg.LoginPath, "", body)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	raw, err := ParseTokenResponse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return raw, nil
}

// Refresh exchanges the still-valid credential for a new one.
func (c *Client) Refresh(ctx context.Context, currentRaw string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.cfg.RefreshPath, currentRaw, nil)
	if err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	raw, err := ParseTokenResponse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	return raw, nil
}

func (c *Client) Me(ctx context.Context, raw string) (dto.Profile, error) {
	resp, err := c.do(ctx, http.MethodGet, c.cfg.ProfilePath, raw, nil)
	if err != nil {
		return dto.Profile{}, fmt.Errorf("profile: %w", err)
	}
	profile, err := ParseProfile(resp.Body)
	if err != nil {
		return dto.Profile{}, fmt.Errorf("profile: %w", err)
	}
	return profile, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body map[string]interface{}) (dto.Response, error) {
	url := strings.TrimRight(c.cfg.APIBaseURL, "/") + path

	httpReqCfg := httpclient.DefaultHTTPRequestConfig()
	httpReqCfg.WithURL(url).
		WithMethod(method).
		WithSkipRenewal(true)
	if body != nil {
		httpReqCfg.WithBody(body)
	}
	if bearer != "" {
		httpReqCfg.Headers["Authorization"] = "Bearer " + bearer
	}

	reqCfg := dto.DefaultRequestConfig()
	reqCfg.WithReqConfig(&httpReqCfg).
		WithTimeout(c.cfg.RequestTimeout).
		WithAnonymous(true).
		WithTaskName(method + " " + path)

	if reqCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, reqCfg.Timeout)
		defer cancel()
	}

	resp, err := c.net.ProcessRequest(ctx, &reqCfg)
	if err != nil {
		if errors.Is(err, dto.ErrUnauthorized) {
			return resp, &dto.APIError{StatusCode: resp.StatusCode, URL: url, Body: resp.Body}
		}
		return resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &dto.APIError{StatusCode: resp.StatusCode, URL: url, Body: resp.Body}
	}
	return resp, nil
}

// ParseTokenResponse accepts a raw token body, a JSON string, or an object
// with a token, accessToken or access_token field.
func ParseTokenResponse(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ErrEmptyToken
	}

	var raw string
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return "", fmt.Errorf("decode token string: %w", err)
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return "", fmt.Errorf("decode token object: %w", err)
		}
		for _, k := range []string{"token", "accessToken", "access_token"} {
			if v, ok := obj[k].(string); ok && v != "" {
				raw = v
				break
			}
		}
	default:
		raw = trimmed
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyToken
	}
	return raw, nil
}

// ParseProfile decodes a profile reply. userId may be a number or a string.
func ParseProfile(body []byte) (dto.Profile, error) {
	var wire struct {
		UserID any    `json:"userId"`
		Name   string `json:"name"`
		Phone  string `json:"phone"`
		Role   string `json:"role"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return dto.Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	p := dto.Profile{Name: wire.Name, Phone: wire.Phone, Role: wire.Role}
	switch v := wire.UserID.(type) {
	case string:
		p.UserID = v
	case float64:
		p.UserID = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return p, nil
}
