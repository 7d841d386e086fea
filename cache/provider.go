package cache

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind names a provider variant. The values match the names used in query
// definitions.
type Kind string

const (
	// KindKeyValue stores entries in a key-value store with native expiry.
	KindKeyValue Kind = "REDIS"
	// KindAppendTable appends a row per write and reads the latest valid row.
	KindAppendTable Kind = "NORMAL_TABLE"
	// KindUpsertTable keeps one row per key, replaced on write.
	KindUpsertTable Kind = "CACHED_TABLE"
	// KindMemory keeps entries in process memory.
	KindMemory Kind = "MEMORY"
)

// DefaultKind is used when a query definition names no provider.
const DefaultKind = KindAppendTable

func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a provider name into a Kind. Matching is case-insensitive
// and accepts short aliases. An empty name yields DefaultKind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultKind, nil
	case "redis", "kv", "key_value", "keyvalue":
		return KindKeyValue, nil
	case "normal_table", "append", "append_table", "table":
		return KindAppendTable, nil
	case "cached_table", "upsert", "upsert_table":
		return KindUpsertTable, nil
	case "memory", "inmemory", "in_memory":
		return KindMemory, nil
	}
	return "", errors.Wrapf(ErrUnknownProvider, "%q", s)
}

// Provider is the storage capability a Cache writes entries through. Values
// are opaque encoded entries.
type Provider interface {
	// Get returns the stored value for key. found is false when nothing valid
	// is stored.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value under key. ttlSeconds is NoExpiry or a positive number
	// of seconds after which the value is no longer returned.
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	// Kind reports the provider variant.
	Kind() Kind
}

// Sweepable is implemented by providers whose expired data must be deleted
// explicitly.
type Sweepable interface {
	// DeleteExpired removes expired data and returns how many rows went away.
	DeleteExpired(ctx context.Context) (int64, error)
	// Name identifies the swept storage in logs and metrics.
	Name() string
}
