package config

import (
	"strings"
	"testing"
	"time"

	"github.com/agentuity/querycache/cache"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, cache.DialectSQLite, cfg.DatabaseDriver)
	assert.Equal(t, time.Minute, cfg.GCInterval)
	assert.Equal(t, cache.KindAppendTable, cfg.CacheProvider)
}

func TestFromLookup(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		EnvRedisURL:       "redis://localhost:6379/1",
		EnvDatabaseDriver: "postgresql",
		EnvDatabaseURL:    "postgres://cache@localhost/cache?sslmode=disable",
		EnvQueriesDir:     "/srv/queries",
		EnvGCInterval:     "1d",
		EnvQueryTimeout:   "1500ms",
		EnvCacheProvider:  "redis",
		EnvKeyPrefix:      " ossinsight ",
		EnvAppendTable:    "cache_log",
		EnvUpsertTable:    "",
	}))
	require.NoError(t, err)
	assert.Equal(t, cache.DialectPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "/srv/queries", cfg.QueriesDir)
	assert.Equal(t, 24*time.Hour, cfg.GCInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.QueryTimeout)
	assert.Equal(t, cache.KindKeyValue, cfg.CacheProvider)
	assert.Equal(t, "ossinsight", cfg.KeyPrefix)
	assert.Equal(t, "cache_log", cfg.AppendTable)
	assert.Equal(t, "", cfg.UpsertTable)
}

func TestFromLookupInvalid(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"driver":         {EnvDatabaseDriver: "mysql"},
		"duration":       {EnvGCInterval: "soon"},
		"zero interval":  {EnvGCInterval: "0s"},
		"provider":       {EnvCacheProvider: "memcached"},
		"postgres dsn":   {EnvDatabaseDriver: "postgres"},
		"redis required": {EnvCacheProvider: "REDIS"},
		"breaker count":  {EnvBreakerFailures: "many"},
		"negative count": {EnvBreakerFailures: "-1"},
		"cooldown":       {EnvBreakerFailures: "3", EnvBreakerCooldown: "0s"},
	} {
		_, err := fromLookup(lookupFrom(env))
		assert.True(t, errors.Is(err, ErrInvalid), name)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvQueriesDir, "testdata/queries")
	t.Setenv(EnvGCInterval, "30s")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "testdata/queries", cfg.QueriesDir)
	assert.Equal(t, 30*time.Second, cfg.GCInterval)
}

func TestBreaker(t *testing.T) {
	_, ok := Default().Breaker()
	assert.False(t, ok)

	cfg, err := fromLookup(lookupFrom(map[string]string{
		EnvBreakerFailures: "3",
		EnvBreakerCooldown: "2m",
	}))
	require.NoError(t, err)
	bc, ok := cfg.Breaker()
	require.True(t, ok)
	assert.Equal(t, cache.BreakerConfig{MaxFailures: 3, Cooldown: 2 * time.Minute}, bc)
}

func TestOTLPAuthToken(t *testing.T) {
	cfg := Default()
	tok, err := cfg.OTLPAuthToken()
	require.NoError(t, err)
	assert.Empty(t, tok)

	cfg.OTLPToken = "abc"
	tok, err = cfg.OTLPAuthToken()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	cfg.OTLPSecret = "secret"
	tok, err = cfg.OTLPAuthToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok, "abc."))
	assert.Greater(t, len(tok), len("abc."))
}
