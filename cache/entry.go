package cache

import "time"

// NoExpiry is the TTL sentinel for entries that the backend never evicts.
const NoExpiry = -1

// Entry is one cached result. Entries are immutable once written; a refresh
// produces a new Entry.
type Entry[T any] struct {
	Value       T                 `msgpack:"data" json:"data"`
	RequestedAt time.Time         `msgpack:"requestedAt" json:"requestedAt"`
	ExpiresAt   time.Time         `msgpack:"expiresAt" json:"expiresAt"`
	Extra       map[string]string `msgpack:"extra,omitempty" json:"extra,omitempty"`
}

// NewEntry builds an entry requested at requestedAt. ExpiresAt is left zero
// when ttlSeconds is NoExpiry.
func NewEntry[T any](value T, requestedAt time.Time, ttlSeconds int) *Entry[T] {
	e := &Entry[T]{Value: value, RequestedAt: requestedAt}
	if ttlSeconds != NoExpiry {
		e.ExpiresAt = requestedAt.Add(time.Duration(ttlSeconds) * time.Second)
	}
	return e
}

// NeverExpires reports whether the entry has no expiry.
func (e *Entry[T]) NeverExpires() bool {
	return e.ExpiresAt.IsZero()
}

// Age returns how long ago the entry was requested.
func (e *Entry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.RequestedAt)
}
