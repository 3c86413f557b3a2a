package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvPrefix = "SESSION_"

// FromEnv builds a config from SESSION_* variables, loading the given .env files
// first (missing files are ignored). Explicit environment variables win over .env values.
func FromEnv(files ...string) (SessionSvcConfig, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return SessionSvcConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := DefaultSessionSvcConfig()
	cfg.APIBaseURL = env("API_URL", cfg.APIBaseURL)
	cfg.WithPaths(env("LOGIN_PATH", ""), env("REFRESH_PATH", ""), env("PROFILE_PATH", ""))
	cfg.UserAgent = env("USER_AGENT", cfg.UserAgent)

	var err error
	if cfg.RefreshMargin, err = envDuration("REFRESH_MARGIN", cfg.RefreshMargin); err != nil {
		return SessionSvcConfig{}, err
	}
	if cfg.RenewalTimeout, err = envDuration("RENEWAL_TIMEOUT", cfg.RenewalTimeout); err != nil {
		return SessionSvcConfig{}, err
	}
	if cfg.MinRenewalInterval, err = envDuration("MIN_RENEWAL_INTERVAL", cfg.MinRenewalInterval); err != nil {
		return SessionSvcConfig{}, err
	}
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return SessionSvcConfig{}, err
	}
	if v := env("FETCH_PROFILE_ON_LOGIN", ""); v != "" {
		b, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			return SessionSvcConfig{}, fmt.Errorf("%sFETCH_PROFILE_ON_LOGIN: %w", EnvPrefix, parseErr)
		}
		cfg.FetchProfileOnLogin = b
	}
	if v := env("EXTRA_HEADERS", ""); v != "" {
		if setErr := cfg.ExtraHeaders.Set(v); setErr != nil {
			return SessionSvcConfig{}, fmt.Errorf("%sEXTRA_HEADERS: %w", EnvPrefix, setErr)
		}
	}

	store := cfg.Store
	store.Kind = StoreKind(strings.ToLower(env("STORE", string(store.Kind))))
	store.Path = env("STORE_PATH", store.Path)
	store.Key = env("STORE_KEY", store.Key)
	store.RedisAddr = env("REDIS_ADDR", store.RedisAddr)
	store.RedisPassword = env("REDIS_PASSWORD", store.RedisPassword)
	if v := env("REDIS_DB", ""); v != "" {
		db, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			return SessionSvcConfig{}, fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, parseErr)
		}
		store.RedisDB = db
	}
	store.S3Bucket = env("S3_BUCKET", store.S3Bucket)
	store.S3Region = env("S3_REGION", store.S3Region)
	store.S3Endpoint = env("S3_ENDPOINT", store.S3Endpoint)
	cfg.Store = store

	if err := cfg.Validate(); err != nil {
		return SessionSvcConfig{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at Hydrate time.
func (c *SessionSvcConfig) Validate() error {
	if c.RefreshMargin < 0 {
		return fmt.Errorf("refresh margin must not be negative")
	}
	if c.RenewalTimeout <= 0 {
		return fmt.Errorf("renewal timeout must be positive")
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Store.Path == "" {
			return fmt.Errorf("file store requires a path")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis store requires an address")
		}
	case StoreS3:
		if c.Store.S3Bucket == "" {
			return fmt.Errorf("s3 store requires a bucket")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	return nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return def
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}
