package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joy-dx/gosession/config"
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/relays"
	"golang.org/x/oauth2"
)

// --- helpers ----------------------------------------------------------------

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

func newTestClient(t *testing.T, cfg *HTTPClientConfig) *HTTPClient {
	t.Helper()

	svcCfg := config.DefaultSessionSvcConfig()
	svcCfg.WithRequestTimeout(2 * time.Second).
		WithRelay(relays.NewSlogRelay(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if cfg == nil {
		c := DefaultHTTPClientConfig()
		cfg = &c
	}
	return NewHTTPClient("test", &svcCfg, cfg)
}

type staticTokenSource struct {
	tok *oauth2.Token
	err error
	n   atomic.Int64
}

func (s *staticTokenSource) Token() (*oauth2.Token, error) {
	s.n.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	// return a copy to avoid tests mutating shared state
	cpy := *s.tok
	return &cpy, nil
}

// fakeCredentials is a mutable dto.CredentialSource.
type fakeCredentials struct {
	mu   sync.RWMutex
	cred dto.Credential
}

func newFakeCredentials(raw string) *fakeCredentials {
	return &fakeCredentials{cred: dto.Credential{Raw: raw, TokenType: "bearer"}}
}

func (f *fakeCredentials) Current() (dto.Credential, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cred, !f.cred.IsZero()
}

func (f *fakeCredentials) Set(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cred = dto.Credential{Raw: raw, TokenType: "Bearer"}
}

type recordedRequest struct {
	Method      string
	Path        string
	Header      http.Header
	Body        []byte
	ContentType string
}

// recorder keeps every request a test server received.
type recorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (r *recorder) add(rr recordedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, rr)
}

func (r *recorder) All() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.reqs...)
}

func (r *recorder) Last() recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reqs) == 0 {
		return recordedRequest{}
	}
	return r.reqs[len(r.reqs)-1]
}

func newRecordingServer(t *testing.T, handler func(rr recordedRequest, w http.ResponseWriter)) (*httptest.Server, *recorder) {
	t.Helper()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()

		rr := recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Header:      r.Header.Clone(),
			Body:        b,
			ContentType: r.Header.Get("Content-Type"),
		}
		rec.add(rr)
		handler(rr, w)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

// --- tests ------------------------------------------------------------------

func Test_HTTPClient_ProcessRequest_golden_endToEnd(t *testing.T) {
	type golden struct {
		status int
		body   string

		reqMethod      string
		reqBody        map[string]any
		reqHeaders     map[string]string
		wantAuth       string
		wantNoAuth     bool
		wantHeaders    map[string]string
		wantCT         string
		wantBodyJSON   map[string]any
		wantOAuthCalls int64

		errIs error
	}

	cases := []struct {
		name  string
		g     golden
		build func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource)
	}{
		{
			name: "session bearer attached + static headers + json body",
			g: golden{
				reqMethod:    http.MethodPost,
				reqBody:      map[string]any{"orig": "v"},
				reqHeaders:   map[string]string{"X-FromSpec": "1"},
				wantAuth:     "Bearer abc",
				wantHeaders:  map[string]string{"X-Static": "1", "X-FromSpec": "1", "User-Agent": "gosession/1"},
				wantCT:       "application/json",
				wantBodyJSON: map[string]any{"orig": "v"},
			},
			build: func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource) {
				cfg := DefaultHTTPClientConfig()
				cfg.WithCredentials(newFakeCredentials("abc")).
					WithMiddleware(StaticHeaderMiddleware(map[string]string{"X-Static": "1"}))
				return &cfg, nil
			},
		},
		{
			name: "middleware body edit reaches the wire",
			g: golden{
				reqMethod:    http.MethodPost,
				reqBody:      map[string]any{"orig": "v"},
				wantAuth:     "Bearer abc",
				wantCT:       "application/json",
				wantBodyJSON: map[string]any{"orig": "v", "injected": "yes"},
			},
			build: func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource) {
				cfg := DefaultHTTPClientConfig()
				cfg.WithCredentials(newFakeCredentials("abc")).
					WithMiddleware(func(ctx context.Context, r *HTTPRequest) error {
						r.Body["injected"] = "yes"
						return nil
					})
				return &cfg, nil
			},
		},
		{
			name: "explicit authorization header wins over session",
			g: golden{
				reqMethod:  http.MethodGet,
				reqHeaders: map[string]string{"Authorization": "Bearer explicit"},
				wantAuth:   "Bearer explicit",
			},
			build: func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource) {
				cfg := DefaultHTTPClientConfig()
				cfg.WithCredentials(newFakeCredentials("abc"))
				return &cfg, nil
			},
		},
		{
			name: "oauth fallback when session has no credential",
			g: golden{
				reqMethod:      http.MethodGet,
				wantAuth:       "Bearer oauth",
				wantOAuthCalls: 1,
			},
			build: func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource) {
				ts := &staticTokenSource{tok: &oauth2.Token{
					AccessToken: "oauth",
					TokenType:   "bearer",
					Expiry:      time.Now().Add(time.Hour),
				}}
				cfg := DefaultHTTPClientConfig()
				cfg.WithCredentials(&fakeCredentials{}).WithOAuthSource(ts)
				return &cfg, ts
			},
		},
		{
			name: "session credential takes precedence over oauth",
			g: golden{
				reqMethod: http.MethodGet,
				wantAuth:  "Bearer abc",
			},
			build: func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource) {
				ts := &staticTokenSource{tok: &oauth2.Token{AccessToken: "oauth"}}
				cfg := DefaultHTTPClientConfig()
				cfg.WithCredentials(newFakeCredentials("abc")).WithOAuthSource(ts)
				return &cfg, ts
			},
		},
		{
			name: "anonymous request carries no authorization",
			g: golden{
				reqMethod:  http.MethodGet,
				wantNoAuth: true,
			},
			build: func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource) {
				cfg := DefaultHTTPClientConfig()
				return &cfg, nil
			},
		},
		{
			name: "401 without renewer returns response and error",
			g: golden{
				status:    http.StatusUnauthorized,
				body:      "nope",
				reqMethod: http.MethodGet,
				errIs:     dto.ErrUnauthorized,
			},
			build: func(t *testing.T, g golden) (*HTTPClientConfig, *staticTokenSource) {
				cfg := DefaultHTTPClientConfig()
				cfg.WithCredentials(newFakeCredentials("abc"))
				return &cfg, nil
			},
		},
	}

	for _, cse := range cases {
		t.Run(cse.name, func(t *testing.T) {
			g := cse.g
			srv, rec := newRecordingServer(t, func(rr recordedRequest, w http.ResponseWriter) {
				if g.status != 0 {
					w.WriteHeader(g.status)
				} else {
					w.WriteHeader(200)
				}
				_, _ = w.Write([]byte(g.body))
			})

			cfg, ts := cse.build(t, g)
			client := newTestClient(t, cfg)

			reqCfg := DefaultHTTPRequestConfig()
			reqCfg.WithURL(srv.URL).WithMethod(g.reqMethod)
			if g.reqBody != nil {
				reqCfg.WithBody(g.reqBody)
			}
			if g.reqHeaders != nil {
				reqCfg.WithHeaders(g.reqHeaders)
			}

			resp, err := client.ProcessRequest(context.Background(), &dto.RequestConfig{
				ReqConfig: &reqCfg,
			})

			if g.errIs != nil {
				if !errors.Is(err, g.errIs) {
					t.Fatalf("err=%v; want %v", err, g.errIs)
				}
				if resp.StatusCode != g.status {
					t.Fatalf("resp.StatusCode=%d; want %d", resp.StatusCode, g.status)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProcessRequest error: %v", err)
			}

			last := rec.Last()
			if last.Method != g.reqMethod {
				t.Fatalf("method=%q; want %q", last.Method, g.reqMethod)
			}
			if g.wantAuth != "" {
				if got := last.Header.Get("Authorization"); got != g.wantAuth {
					t.Fatalf("Authorization=%q; want %q", got, g.wantAuth)
				}
			}
			if g.wantNoAuth && last.Header.Get("Authorization") != "" {
				t.Fatalf("unexpected Authorization=%q", last.Header.Get("Authorization"))
			}
			if last.Header.Get("X-Request-ID") == "" {
				t.Fatalf("missing X-Request-ID")
			}
			for k, v := range g.wantHeaders {
				if got := last.Header.Get(k); got != v {
					t.Fatalf("header %s=%q; want %q", k, got, v)
				}
			}
			if g.wantCT != "" && last.ContentType != g.wantCT {
				t.Fatalf("Content-Type=%q; want %q", last.ContentType, g.wantCT)
			}
			if g.wantBodyJSON != nil {
				var got map[string]any
				if err := json.Unmarshal(last.Body, &got); err != nil {
					t.Fatalf("unmarshal body=%q: %v", last.Body, err)
				}
				if !reflect.DeepEqual(got, g.wantBodyJSON) {
					t.Fatalf("json body=%v; want %v", got, g.wantBodyJSON)
				}
			}
			if ts != nil && ts.n.Load() != g.wantOAuthCalls {
				t.Fatalf("oauth Token() calls=%d; want %d", ts.n.Load(), g.wantOAuthCalls)
			}
		})
	}
}

func Test_HTTPClient_ProcessRequest_oauthErrorAborts(t *testing.T) {
	cfg := DefaultHTTPClientConfig()
	cfg.WithOAuthSource(&staticTokenSource{err: errors.New("no token")})
	c := newTestClient(t, &cfg)

	reqCfg := DefaultHTTPRequestConfig()
	reqCfg.WithURL("http://127.0.0.1:1/unused")

	_, err := c.ProcessRequest(context.Background(), &dto.RequestConfig{ReqConfig: &reqCfg})
	if err == nil || !strings.Contains(err.Error(), "oauth2 token fetch") {
		t.Fatalf("err=%v; want oauth2 token fetch error", err)
	}
}

func Test_HTTPClient_ProcessRequest_wrongReqConfig(t *testing.T) {
	c := newTestClient(t, nil)
	_, err := c.ProcessRequest(context.Background(), &dto.RequestConfig{ReqConfig: badReqConfig{}})
	if err == nil {
		t.Fatalf("expected cast error")
	}
}

type badReqConfig struct{}

func (badReqConfig) Ref() dto.NetClientType                      { return NetClientHTTPRef }
func (badReqConfig) NewRequest(ctx context.Context) (any, error) { return nil, nil }
