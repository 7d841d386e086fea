// Package config holds the process settings of the querycache commands,
// read from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/querycache/cache"
	"github.com/agentuity/querycache/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
)

// Environment variable names.
const (
	EnvRedisURL       = "REDIS_URL"
	EnvDatabaseDriver = "DATABASE_DRIVER"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvQueriesDir     = "QUERIES_DIR"
	EnvGCInterval     = "CACHE_GC_INTERVAL"
	EnvQueryTimeout   = "CACHE_QUERY_TIMEOUT"
	EnvCacheProvider  = "CACHE_PROVIDER"
	EnvKeyPrefix      = "CACHE_KEY_PREFIX"
	EnvAppendTable    = "CACHE_APPEND_TABLE"
	EnvUpsertTable    = "CACHE_UPSERT_TABLE"

	EnvBreakerFailures = "CACHE_BREAKER_FAILURES"
	EnvBreakerCooldown = "CACHE_BREAKER_COOLDOWN"

	EnvOTLPURL    = "OTLP_URL"
	EnvOTLPToken  = "OTLP_TOKEN"
	EnvOTLPSecret = "OTLP_SECRET"
)

// ErrInvalid is returned for settings that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	RedisURL       string
	DatabaseDriver cache.Dialect
	DatabaseURL    string
	QueriesDir     string
	GCInterval     time.Duration
	QueryTimeout   time.Duration
	CacheProvider  cache.Kind
	KeyPrefix      string
	AppendTable    string
	UpsertTable    string
	// BreakerFailures opens a provider's circuit breaker after that many
	// consecutive failures. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
	OTLPURL         string
	OTLPToken       string
	OTLPSecret      string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DatabaseDriver:  cache.DialectSQLite,
		QueriesDir:      "queries",
		GCInterval:      cache.DefaultSweepInterval,
		QueryTimeout:    cache.DefaultQueryTimeout,
		CacheProvider:   cache.DefaultKind,
		BreakerCooldown: cache.DefaultBreakerConfig().Cooldown,
	}
}

// FromEnv reads the settings from the process environment on top of
// Default. Durations accept day and week units ("1d", "2h30m").
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvRedisURL); ok {
		cfg.RedisURL = v
	}
	if v, ok := get(EnvDatabaseDriver); ok {
		d, err := cache.ParseDialect(v)
		if err != nil {
			return cfg, errors.Mark(errors.Wrap(err, EnvDatabaseDriver), ErrInvalid)
		}
		cfg.DatabaseDriver = d
	}
	if v, ok := get(EnvDatabaseURL); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := get(EnvQueriesDir); ok {
		cfg.QueriesDir = v
	}
	for name, dst := range map[string]*time.Duration{
		EnvGCInterval:      &cfg.GCInterval,
		EnvQueryTimeout:    &cfg.QueryTimeout,
		EnvBreakerCooldown: &cfg.BreakerCooldown,
	} {
		v, ok := get(name)
		if !ok {
			continue
		}
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return cfg, errors.Mark(errors.Wrapf(err, "%s=%q", name, v), ErrInvalid)
		}
		*dst = d
	}
	if v, ok := get(EnvCacheProvider); ok {
		k, err := cache.ParseKind(v)
		if err != nil {
			return cfg, errors.Mark(errors.Wrap(err, EnvCacheProvider), ErrInvalid)
		}
		cfg.CacheProvider = k
	}
	if v, ok := get(EnvKeyPrefix); ok {
		cfg.KeyPrefix = v
	}
	if v, ok := get(EnvAppendTable); ok {
		cfg.AppendTable = v
	}
	if v, ok := get(EnvUpsertTable); ok {
		cfg.UpsertTable = v
	}
	if v, ok := get(EnvBreakerFailures); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Mark(errors.Wrapf(err, "%s=%q", EnvBreakerFailures, v), ErrInvalid)
		}
		cfg.BreakerFailures = n
	}
	if v, ok := get(EnvOTLPURL); ok {
		cfg.OTLPURL = v
	}
	if v, ok := get(EnvOTLPToken); ok {
		cfg.OTLPToken = v
	}
	if v, ok := get(EnvOTLPSecret); ok {
		cfg.OTLPSecret = v
	}
	return cfg, cfg.Validate()
}

// Breaker returns the provider circuit breaker settings, or false when the
// breaker is disabled.
func (c Config) Breaker() (cache.BreakerConfig, bool) {
	if c.BreakerFailures <= 0 {
		return cache.BreakerConfig{}, false
	}
	return cache.BreakerConfig{MaxFailures: c.BreakerFailures, Cooldown: c.BreakerCooldown}, true
}

// OTLPAuthToken returns the bearer token sent to the collector. With a
// shared secret set, the token is signed with it.
func (c Config) OTLPAuthToken() (string, error) {
	if c.OTLPSecret == "" || c.OTLPToken == "" {
		return c.OTLPToken, nil
	}
	return telemetry.GenerateOTLPBearerToken(c.OTLPSecret, c.OTLPToken)
}

// Validate checks that the settings are usable together.
func (c Config) Validate() error {
	if c.GCInterval <= 0 {
		return errors.Wrapf(ErrInvalid, "gc interval must be positive, got %s", c.GCInterval)
	}
	if c.QueryTimeout <= 0 {
		return errors.Wrapf(ErrInvalid, "query timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.BreakerFailures < 0 {
		return errors.Wrapf(ErrInvalid, "%s must not be negative, got %d", EnvBreakerFailures, c.BreakerFailures)
	}
	if c.BreakerFailures > 0 && c.BreakerCooldown <= 0 {
		return errors.Wrapf(ErrInvalid, "breaker cooldown must be positive, got %s", c.BreakerCooldown)
	}
	if c.DatabaseDriver == cache.DialectPostgres && c.DatabaseURL == "" {
		return errors.Wrapf(ErrInvalid, "%s is required for postgres", EnvDatabaseURL)
	}
	if c.CacheProvider == cache.KindKeyValue && c.RedisURL == "" {
		return errors.Wrapf(ErrInvalid, "%s is required when the default provider is %s", EnvRedisURL, cache.KindKeyValue)
	}
	return nil
}
