package httpclient

import (
	"context"

	"github.com/joy-dx/gosession/relays"
	relayDTO "github.com/joy-dx/relay/dto"
)

// StaticHeaderMiddleware adds headers the request does not already carry, so
// per-request headers keep precedence over client-wide ones.
func StaticHeaderMiddleware(headers map[string]string) Middleware {
	return func(ctx context.Context, r *HTTPRequest) error {
		for k, v := range headers {
			if r.Header(k) == "" {
				r.SetHeader(k, v)
			}
		}
		return nil
	}
}

// LoggingMiddleware reports each outbound request to relay before it is sent.
func LoggingMiddleware(relay relayDTO.RelayInterface) Middleware {
	return func(ctx context.Context, r *HTTPRequest) error {
		relay.Debug(relays.RlyRequest{
			RequestID: r.RequestID,
			Method:    r.Method,
			URL:       r.URL,
			Msg:       "sending request",
		})
		return nil
	}
}
