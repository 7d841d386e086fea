package cache

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config controls how a Cache stores and refreshes its entry.
type Config struct {
	// TTLSeconds is the backend expiry of written entries. NoExpiry (-1) keeps
	// entries forever; 0 disables write-back entirely.
	TTLSeconds int
	// RefreshWindow, when positive, makes a cached entry stale once it is
	// older than the window; stale entries are recomputed.
	RefreshWindow time.Duration
	// OnlyFromCache forbids recomputation for every load of this cache.
	OnlyFromCache bool
	// BackgroundRefresh serves a stale entry immediately and recomputes it in
	// the background instead of making the caller wait.
	BackgroundRefresh bool
}

// Validate checks the config for out of range values.
func (c Config) Validate() error {
	if c.TTLSeconds < NoExpiry {
		return errors.Wrapf(ErrInvalidConfig, "ttl must be %d or >= 0, got %d", NoExpiry, c.TTLSeconds)
	}
	if c.RefreshWindow < 0 {
		return errors.Wrapf(ErrInvalidConfig, "refresh window must not be negative, got %s", c.RefreshWindow)
	}
	return nil
}

// TTLFromHours converts an hour based TTL, where -1 means never, into seconds.
func TTLFromHours(hours int) int {
	if hours < 0 {
		return NoExpiry
	}
	return hours * 3600
}
