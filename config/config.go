package config

import (
	"time"

	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/relays"
	"github.com/joy-dx/gosession/utils"
	relayDTO "github.com/joy-dx/relay/dto"
)

type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreFile   StoreKind = "file"
	StoreRedis  StoreKind = "redis"
	StoreS3     StoreKind = "s3"
)

const (
	DefaultRefreshMargin      = 60 * time.Second
	DefaultRenewalTimeout     = 10 * time.Second
	DefaultMinRenewalInterval = time.Second
	DefaultRequestTimeout     = 10 * time.Second
	DefaultLoginPath          = "/auth/login"
	DefaultRefreshPath        = "/auth/refresh-token"
	DefaultProfilePath        = "/auth/me"
)

// StoreConfig selects and parameterises the credential store backend.
type StoreConfig struct {
	Kind StoreKind `json:"kind" yaml:"kind"`
	// Path used by the file store
	Path string `json:"path" yaml:"path"`
	// Key names the redis key or s3 object holding the credential
	Key           string `json:"key" yaml:"key"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"-" yaml:"-"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	S3Bucket      string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region      string `json:"s3_region" yaml:"s3_region"`
	S3Endpoint    string `json:"s3_endpoint" yaml:"s3_endpoint"`
}

// SessionSvcConfig configures the session supervisor and everything it wires.
type SessionSvcConfig struct {
	APIBaseURL  string `json:"api_base_url" yaml:"api_base_url"`
	LoginPath   string `json:"login_path" yaml:"login_path"`
	RefreshPath string `json:"refresh_path" yaml:"refresh_path"`
	ProfilePath string `json:"profile_path" yaml:"profile_path"`
	// RefreshMargin how long before expiry the scheduler renews
	RefreshMargin time.Duration `json:"refresh_margin" yaml:"refresh_margin"`
	// RenewalTimeout bounds a single refresh call; a timeout is a renewal failure
	RenewalTimeout time.Duration `json:"renewal_timeout" yaml:"renewal_timeout"`
	// MinRenewalInterval spaces back-to-back renewals when a fresh credential is already inside the margin.
	// Zero renews again immediately.
	MinRenewalInterval  time.Duration    `json:"min_renewal_interval" yaml:"min_renewal_interval"`
	RequestTimeout      time.Duration    `json:"request_timeout" yaml:"request_timeout"`
	UserAgent           string           `json:"user_agent" yaml:"user_agent"`
	ExtraHeaders        dto.ExtraHeaders `json:"extra_headers" yaml:"extra_headers"`
	FetchProfileOnLogin bool             `json:"fetch_profile_on_login" yaml:"fetch_profile_on_login"`
	Store               StoreConfig      `json:"store" yaml:"store"`
	relay               relayDTO.RelayInterface
	clock               dto.Clock
	metrics             dto.SessionMetrics
	credentialStore     dto.CredentialStore
}

func DefaultSessionSvcConfig() SessionSvcConfig {
	return SessionSvcConfig{
		LoginPath:           DefaultLoginPath,
		RefreshPath:         DefaultRefreshPath,
		ProfilePath:         DefaultProfilePath,
		RefreshMargin:       DefaultRefreshMargin,
		RenewalTimeout:      DefaultRenewalTimeout,
		MinRenewalInterval:  DefaultMinRenewalInterval,
		RequestTimeout:      DefaultRequestTimeout,
		UserAgent:           "gosession/1",
		ExtraHeaders:        make(dto.ExtraHeaders),
		FetchProfileOnLogin: true,
		Store: StoreConfig{
			Kind: StoreFile,
			Path: ".gosession/credential.json",
			Key:  "gosession:credential",
		},
	}
}

func (c *SessionSvcConfig) WithAPIBaseURL(url string) *SessionSvcConfig {
	c.APIBaseURL = url
	return c
}

func (c *SessionSvcConfig) WithPaths(login, refresh, profile string) *SessionSvcConfig {
	if login != "" {
		c.LoginPath = login
	}
	if refresh != "" {
		c.RefreshPath = refresh
	}
	if profile != "" {
		c.ProfilePath = profile
	}
	return c
}

func (c *SessionSvcConfig) WithRefreshMargin(d time.Duration) *SessionSvcConfig {
	c.RefreshMargin = d
	return c
}

func (c *SessionSvcConfig) WithRenewalTimeout(d time.Duration) *SessionSvcConfig {
	c.RenewalTimeout = d
	return c
}

// WithMinRenewalInterval sets the pause before renewing a credential that
// arrived already inside the refresh margin. Zero disables the pause.
func (c *SessionSvcConfig) WithMinRenewalInterval(d time.Duration) *SessionSvcConfig {
	c.MinRenewalInterval = d
	return c
}

func (c *SessionSvcConfig) WithRequestTimeout(d time.Duration) *SessionSvcConfig {
	c.RequestTimeout = d
	return c
}

func (c *SessionSvcConfig) WithUserAgent(ua string) *SessionSvcConfig {
	c.UserAgent = ua
	return c
}

func (c *SessionSvcConfig) WithExtraHeaders(headers dto.ExtraHeaders) *SessionSvcConfig {
	c.ExtraHeaders = headers
	return c
}

func (c *SessionSvcConfig) WithFetchProfileOnLogin(fetch bool) *SessionSvcConfig {
	c.FetchProfileOnLogin = fetch
	return c
}

func (c *SessionSvcConfig) WithStoreConfig(store StoreConfig) *SessionSvcConfig {
	c.Store = store
	return c
}

func (c *SessionSvcConfig) WithRelay(relay relayDTO.RelayInterface) *SessionSvcConfig {
	c.relay = relay
	return c
}

func (c *SessionSvcConfig) WithClock(clock dto.Clock) *SessionSvcConfig {
	c.clock = clock
	return c
}

func (c *SessionSvcConfig) WithMetrics(metrics dto.SessionMetrics) *SessionSvcConfig {
	c.metrics = metrics
	return c
}

// WithCredentialStore overrides the store built from StoreConfig.
func (c *SessionSvcConfig) WithCredentialStore(store dto.CredentialStore) *SessionSvcConfig {
	c.credentialStore = store
	return c
}

// Relay returns the configured relay, falling back to a slog relay on stderr.
func (c *SessionSvcConfig) Relay() relayDTO.RelayInterface {
	if c.relay == nil {
		c.relay = relays.NewSlogRelay(nil)
	}
	return c.relay
}

func (c *SessionSvcConfig) Clock() dto.Clock {
	if c.clock == nil {
		c.clock = utils.SystemClock{}
	}
	return c.clock
}

// Metrics may be nil; callers substitute a no-op.
func (c *SessionSvcConfig) Metrics() dto.SessionMetrics {
	return c.metrics
}

func (c *SessionSvcConfig) CredentialStore() dto.CredentialStore {
	return c.credentialStore
}
