package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry coalesces concurrent work per key: while a flight for a key is
// running, further callers for that key wait for and share its result instead
// of starting their own. A flight is removed as soon as it completes, whether
// it succeeded or failed.
//
// One Registry is normally shared by every cache of a process. Coalescing is
// per process; separate processes do not see each other's flights.
type Registry struct {
	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]bool
	waiting map[string]int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{flights: make(map[string]bool), waiting: make(map[string]int)}
}

// Do runs fn once per key among concurrent callers and returns its result.
// joined reports whether the caller attached to a flight that was already
// running.
//
// fn runs on a context detached from the caller's cancellation, so a caller
// that gives up does not abort work other callers depend on; the abandoning
// caller gets ctx.Err() back while the flight continues.
func (r *Registry) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (v any, joined bool, err error) {
	detached := context.WithoutCancel(ctx)
	r.mu.Lock()
	joined = r.flights[key]
	r.flights[key] = true
	r.waiting[key]++
	ch := r.group.DoChan(key, func() (any, error) {
		defer r.finish(key)
		return fn(detached)
	})
	r.mu.Unlock()
	defer r.release(key)

	select {
	case res := <-ch:
		return res.Val, joined, res.Err
	case <-ctx.Done():
		return nil, joined, ctx.Err()
	}
}

// finish ends the flight of key. The group forgets the key under r.mu so a
// caller that sees no flight always starts a new one.
func (r *Registry) finish(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.group.Forget(key)
	delete(r.flights, key)
}

func (r *Registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting[key] <= 1 {
		delete(r.waiting, key)
		return
	}
	r.waiting[key]--
}

// Waiting returns how many callers are currently attached to flights for key.
func (r *Registry) Waiting(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting[key]
}

// InFlight reports whether a flight for key is running, even when every
// caller attached to it has given up.
func (r *Registry) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flights[key]
}
