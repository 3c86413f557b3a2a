package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joy-dx/gosession/config"
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/metrics"
	relayDTO "github.com/joy-dx/relay/dto"
)

// -----------------------------------------------------------------------------
// PERSISTENT CLIENT IMPLEMENTATION
// -----------------------------------------------------------------------------

// HTTPClient performs requests on behalf of a session. It stamps the current
// credential on every call and, when a call comes back 401, asks the session
// for a fresh credential and replays the call exactly once.
//
// Bearer sources, in order of precedence:
//   - an Authorization header set on the request itself
//   - the configured dto.CredentialSource
//   - an OAuth2 TokenSource (golang.org/x/oauth2)

const NetClientHTTPRef dto.NetClientType = "net.client.http"

type HTTPClient struct {
	NetClient dto.NetClient `json:"net_client" yaml:"net_client"`
	cfg       *HTTPClientConfig
	svcCfg    *config.SessionSvcConfig
	relay     relayDTO.RelayInterface
	metrics   dto.SessionMetrics
	client    *http.Client
	// middlewares is the configured chain behind the client-wide headers
	middlewares []Middleware
}

func NewHTTPClient(ref string, svcCfg *config.SessionSvcConfig, cfg *HTTPClientConfig) *HTTPClient {
	middlewares := make([]Middleware, 0, len(cfg.Middlewares)+1)
	if len(svcCfg.ExtraHeaders) > 0 {
		middlewares = append(middlewares, StaticHeaderMiddleware(svcCfg.ExtraHeaders))
	}
	middlewares = append(middlewares, cfg.Middlewares...)

	return &HTTPClient{
		middlewares: middlewares,
		cfg:         cfg,
		svcCfg:      svcCfg,
		relay:       svcCfg.Relay(),
		metrics:     metrics.OrNoop(svcCfg.Metrics()),
		NetClient: dto.NetClient{
			Name:        "HTTP Client",
			Ref:         ref,
			ClientType:  NetClientHTTPRef,
			Description: "Perform HTTP requests with session credentials and 401 renewal",
		},
		client: &http.Client{
			Timeout: svcCfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				DisableKeepAlives:   false,
				Proxy:               http.ProxyFromEnvironment,
			},
		},
	}
}

func (c *HTTPClient) Ref() string {
	return c.NetClient.Ref
}
func (c *HTTPClient) Type() dto.NetClientType {
	return NetClientHTTPRef
}

// -----------------------------------------------------------------------------
// REQUEST EXECUTION
// -----------------------------------------------------------------------------

// ProcessRequest executes one authenticated, middleware-wrapped call.
// A 401 is returned together with an error wrapping dto.ErrUnauthorized.
func (c *HTTPClient) ProcessRequest(ctx context.Context, inCfg *dto.RequestConfig) (dto.Response, error) {
	cfg, castOk := inCfg.ReqConfig.(*HTTPRequestConfig)
	if !castOk {
		return dto.Response{}, errors.New("problem casting to httprequestconfig")
	}

	reqAny, err := cfg.NewRequest(ctx)
	if err != nil {
		return dto.Response{}, fmt.Errorf("build request: %w", err)
	}
	reqCfg, ok := reqAny.(*HTTPRequest)
	if !ok {
		return dto.Response{}, errors.New("problem casting built request to httprequest")
	}
	// a retry of a request that already renewed once must not renew again
	reqCfg.Retried = inCfg.Renewed

	for _, mw := range c.middlewares {
		if err := mw(ctx, reqCfg); err != nil {
			return dto.Response{}, fmt.Errorf("middleware aborted: %w", err)
		}
	}

	if err := c.attachAuth(reqCfg); err != nil {
		return dto.Response{}, fmt.Errorf("attach auth: %w", err)
	}

	if err := reqCfg.FinalizeBody(); err != nil {
		return dto.Response{}, err
	}

	response, err := c.send(ctx, reqCfg)
	if err != nil {
		return dto.Response{}, err
	}

	if response.StatusCode == http.StatusUnauthorized {
		response, err = c.handleUnauthorized(ctx, reqCfg, response)
		if reqCfg.Retried {
			inCfg.Renewed = true
		}
		return response, err
	}
	return response, nil
}

// send performs a single round trip of a finalized request. It is safe to
// call again for a replay since the body is kept as bytes.
func (c *HTTPClient) send(ctx context.Context, reqCfg *HTTPRequest) (dto.Response, error) {
	httpReq, err := http.NewRequestWithContext(
		ctx,
		reqCfg.Method,
		reqCfg.URL,
		bytes.NewReader(reqCfg.BodyBytes),
	)
	if err != nil {
		return dto.Response{}, fmt.Errorf("create request: %w", err)
	}

	if c.svcCfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.svcCfg.UserAgent)
	}
	for k, v := range reqCfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if reqCfg.RequestID != "" && httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", reqCfg.RequestID)
	}

	if reqCfg.ContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", reqCfg.ContentType)
	}

	// client.Do may return a non-nil response together with an error
	httpResp, reqErr := c.client.Do(httpReq)
	if httpResp != nil {
		defer func() {
			io.Copy(io.Discard, httpResp.Body) // drain fully for connection reuse
			httpResp.Body.Close()
		}()
	}
	if reqErr != nil {
		return dto.Response{}, fmt.Errorf("perform request: %w", reqErr)
	}

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return dto.Response{}, fmt.Errorf("read body: %w", err)
	}

	return dto.Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header.Clone(),
		Body:       bodyBytes,
	}, nil
}
