package cache

import "github.com/cockroachdb/errors"

var (
	// ErrCacheMissOnlyFromCache is returned by Load when recomputation is
	// forbidden and no cached entry exists. Callers may retry with
	// recomputation allowed.
	ErrCacheMissOnlyFromCache = errors.New("cache: no cached data and only-from-cache is set")

	// ErrCorruptEntry marks a stored payload that could not be decoded. It is
	// never returned by Load; the entry is treated as a miss.
	ErrCorruptEntry = errors.New("cache: stored entry is corrupt")

	// ErrUnknownProvider is returned by ParseKind for an unrecognised provider name.
	ErrUnknownProvider = errors.New("cache: unknown cache provider")

	// ErrProviderUnavailable is returned by Build when the builder has no
	// provider of the requested kind.
	ErrProviderUnavailable = errors.New("cache: cache provider not configured")

	// ErrInvalidConfig is returned for an inconsistent Config.
	ErrInvalidConfig = errors.New("cache: invalid cache config")
)
