package dto

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

type SessionInterface interface {
	Hydrate(ctx context.Context) error
	WaitReady(ctx context.Context) error
	State() *SessionSnapshot
	Current() (Credential, bool)
	Login(ctx context.Context, req LoginRequest) (Credential, error)
	Logout(ctx context.Context) error
	TokenSource() oauth2.TokenSource
	Get(ctx context.Context, url string, withRetry bool) (Response, error)
	Post(ctx context.Context, url string, payload map[string]interface{}, withRetry bool) (Response, error)
	RegisterClient(ref string, client NetClientInterface)
	RequestOnce(ctx context.Context, cfg *RequestConfig) (Response, error)
	RequestWithRetry(ctx context.Context, cfg *RequestConfig) (Response, error)
}

// CredentialStore is the durable holder of the current bearer credential.
// Implementations persist one opaque string and must make Set and Clear atomic
// with respect to concurrent Get calls.
type CredentialStore interface {
	Get(ctx context.Context) (raw string, ok bool, err error)
	Set(ctx context.Context, raw string) error
	Clear(ctx context.Context) error
}

// CredentialSource exposes the credential to stamp on outbound requests.
type CredentialSource interface {
	Current() (Credential, bool)
}

// SessionRenewer is consulted by the HTTP client when a request comes back 401.
// staleRaw is the credential that was stamped on the failed request.
type SessionRenewer interface {
	RenewAfter(ctx context.Context, staleRaw string) (Credential, error)
}

// Inspector decodes an opaque credential without verifying it.
type Inspector interface {
	Decode(raw string) (Credential, error)
}

// AuthAPI is the collaborator contract for issuing and validating credentials.
type AuthAPI interface {
	Login(ctx context.Context, req LoginRequest) (string, error)
	Refresh(ctx context.Context, currentRaw string) (string, error)
	Me(ctx context.Context, raw string) (Profile, error)
}

// Clock abstracts time so expiry math and timers can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is an alias so utils.SystemClock can satisfy Clock without importing dto.
type Timer = interface {
	Stop() bool
}

// SessionMetrics receives lifecycle counters.
type SessionMetrics interface {
	RenewalStarted(trigger RenewalTrigger)
	RenewalFinished(trigger RenewalTrigger, outcome RenewalOutcome, elapsed time.Duration)
	RequestReplayed(success bool)
	ForcedLogout()
	StateChanged(state SessionState)
}

// NetClientInterface abstracts a transport so the session service can be tested with fakes.
type NetClientInterface interface {
	Ref() string
	Type() NetClientType
	ProcessRequest(ctx context.Context, cfg *RequestConfig) (Response, error)
}
