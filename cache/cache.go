package cache

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/querycache/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentuity/querycache/cache"

// Outcome describes how a load was satisfied.
type Outcome string

const (
	// OutcomeHit means a valid cached entry was returned.
	OutcomeHit Outcome = "hit"
	// OutcomeStale means a stale entry was returned while a background
	// refresh recomputes it.
	OutcomeStale Outcome = "stale"
	// OutcomeComputed means the fallback produced the returned entry.
	OutcomeComputed Outcome = "computed"
)

// Fallback produces a fresh entry on a miss or refresh. It must set Value,
// RequestedAt and ExpiresAt; NewEntry does so.
type Fallback[T any] func(ctx context.Context) (*Entry[T], error)

// Result is what a load hands back to every caller that shared it.
type Result[T any] struct {
	Entry   *Entry[T]
	Outcome Outcome
}

// Cache loads the entry stored under one key through a Provider, calling a
// fallback when the entry is missing or stale and writing the fresh entry
// back. Concurrent loads of the same key are coalesced through the Registry.
type Cache[T any] struct {
	key      string
	provider Provider
	registry *Registry
	cfg      Config
	opts     options
	logger   logger.Logger
	tracer   trace.Tracer

	refreshMu   sync.Mutex
	refreshDone *sync.Cond
	refreshing  int
}

// New returns a Cache for key stored in provider. Caches only coalesce with
// each other when they share a Registry (see WithRegistry); a Cache created
// without one gets a private registry.
func New[T any](provider Provider, key string, cfg Config, opts ...Option) (*Cache[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	registry := o.registry
	if registry == nil {
		registry = NewRegistry()
	}
	c := &Cache[T]{
		key:      key,
		provider: provider,
		registry: registry,
		cfg:      cfg,
		opts:     o,
		logger: o.logger.WithPrefix("[cache]").With(map[string]interface{}{
			"cache_key": key,
			"provider":  provider.Kind().String(),
		}),
		tracer: o.tracerProvider.Tracer(tracerName),
	}
	c.refreshDone = sync.NewCond(&c.refreshMu)
	return c, nil
}

// Key returns the cache key.
func (c *Cache[T]) Key() string {
	return c.key
}

// Config returns the cache configuration.
func (c *Cache[T]) Config() Config {
	return c.cfg
}

// Load returns the entry for the cache key.
//
// If a load of the same key is already in flight, Load waits for it and
// returns its result or error. Otherwise it reads the provider: a valid entry
// is returned as is; with onlyFromCache (or Config.OnlyFromCache) a missing
// entry fails with ErrCacheMissOnlyFromCache; a missing or stale entry is
// recomputed with fallback and written back. Provider failures on this path
// are logged and treated as a miss; write failures never fail the load.
// Fallback errors are returned unchanged and nothing is written.
func (c *Cache[T]) Load(ctx context.Context, fallback Fallback[T], onlyFromCache bool) (*Entry[T], error) {
	res, err := c.LoadResult(ctx, fallback, onlyFromCache)
	if err != nil {
		return nil, err
	}
	return res.Entry, nil
}

// LoadResult is Load that also reports how the entry was obtained.
func (c *Cache[T]) LoadResult(ctx context.Context, fallback Fallback[T], onlyFromCache bool) (*Result[T], error) {
	onlyFromCache = onlyFromCache || c.cfg.OnlyFromCache
	ctx, span := c.tracer.Start(ctx, "cache.Load", trace.WithAttributes(
		attribute.String("cache.key", c.key),
		attribute.String("cache.provider", c.provider.Kind().String()),
		attribute.Bool("cache.only_from_cache", onlyFromCache),
	))
	defer span.End()

	v, joined, err := c.registry.Do(ctx, c.key, func(ctx context.Context) (any, error) {
		return c.load(ctx, fallback, onlyFromCache)
	})
	if joined {
		c.opts.metrics.Coalesced.Inc()
		c.logger.Debug("waited for previous load of the same key")
	}
	span.SetAttributes(attribute.Bool("cache.coalesced", joined))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res, ok := v.(*Result[T])
	if !ok {
		err := errors.AssertionFailedf("cache: in-flight load of %s produced %T", c.key, v)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("cache.outcome", string(res.Outcome)))
	return res, nil
}

func (c *Cache[T]) load(ctx context.Context, fallback Fallback[T], onlyFromCache bool) (*Result[T], error) {
	cached := c.read(ctx)
	kind := c.provider.Kind().String()

	if onlyFromCache {
		if cached == nil {
			return nil, errors.Wrapf(ErrCacheMissOnlyFromCache, "key %s", c.key)
		}
		c.opts.metrics.Lookups.WithLabelValues(kind, "hit").Inc()
		return &Result[T]{Entry: cached, Outcome: OutcomeHit}, nil
	}

	if cached != nil {
		if !c.needsRefresh(cached) {
			c.opts.metrics.Lookups.WithLabelValues(kind, "hit").Inc()
			return &Result[T]{Entry: cached, Outcome: OutcomeHit}, nil
		}
		c.opts.metrics.Lookups.WithLabelValues(kind, "stale").Inc()
		if c.cfg.BackgroundRefresh {
			c.logger.Debug("serving stale entry requested at %s, refreshing in background", cached.RequestedAt.Format(time.RFC3339))
			c.refreshMu.Lock()
			c.refreshing++
			c.refreshMu.Unlock()
			go c.refresh(ctx, fallback)
			return &Result[T]{Entry: cached, Outcome: OutcomeStale}, nil
		}
		c.logger.Debug("cached entry requested at %s is stale, recomputing", cached.RequestedAt.Format(time.RFC3339))
	}

	entry, err := c.recompute(ctx, fallback)
	if err != nil {
		return nil, err
	}
	return &Result[T]{Entry: entry, Outcome: OutcomeComputed}, nil
}

// read returns the cached entry, or nil when there is none or it cannot be used.
func (c *Cache[T]) read(ctx context.Context) *Entry[T] {
	kind := c.provider.Kind().String()
	data, found, err := c.provider.Get(ctx, c.key)
	if err != nil {
		c.opts.metrics.Lookups.WithLabelValues(kind, "error").Inc()
		c.opts.metrics.BackendErrors.WithLabelValues(kind, "get").Inc()
		c.logger.Warn("failed to read cache: %v", err)
		return nil
	}
	if !found {
		c.opts.metrics.Lookups.WithLabelValues(kind, "miss").Inc()
		c.logger.Debug("not hit cache")
		return nil
	}
	entry, err := decodeEntry[T](data)
	if err != nil {
		c.opts.metrics.Lookups.WithLabelValues(kind, "corrupt").Inc()
		c.logger.Warn("cache data is broken: %v", err)
		return nil
	}
	return entry
}

// needsRefresh reports whether entry is older than the refresh window.
func (c *Cache[T]) needsRefresh(entry *Entry[T]) bool {
	return c.cfg.RefreshWindow > 0 && entry.Age(c.opts.now()) >= c.cfg.RefreshWindow
}

func (c *Cache[T]) fallbackKey() string {
	return "fallback\x00" + c.key
}

// recompute runs the fallback and writes its entry back. Foreground loads and
// background refreshes share one flight per key, so the fallback of a key is
// never running twice at once.
func (c *Cache[T]) recompute(ctx context.Context, fallback Fallback[T]) (*Entry[T], error) {
	v, _, err := c.registry.Do(ctx, c.fallbackKey(), func(ctx context.Context) (any, error) {
		return c.compute(ctx, fallback)
	})
	if err != nil {
		return nil, err
	}
	entry, ok := v.(*Entry[T])
	if !ok {
		return nil, errors.AssertionFailedf("cache: fallback flight of %s produced %T", c.key, v)
	}
	return entry, nil
}

func (c *Cache[T]) compute(ctx context.Context, fallback Fallback[T]) (entry *Entry[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.metrics.Fallbacks.WithLabelValues("error").Inc()
			entry, err = nil, errors.Newf("cache: fallback for %s panicked: %v", c.key, r)
		}
	}()
	started := time.Now()
	entry, err = fallback(ctx)
	c.opts.metrics.FallbackDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		c.opts.metrics.Fallbacks.WithLabelValues("error").Inc()
		return nil, err
	}
	if entry == nil {
		c.opts.metrics.Fallbacks.WithLabelValues("error").Inc()
		return nil, errors.AssertionFailedf("cache: fallback for %s returned no entry", c.key)
	}
	c.opts.metrics.Fallbacks.WithLabelValues("success").Inc()
	c.writeBack(ctx, entry)
	return entry, nil
}

// writeBack stores entry. Failures are logged and counted only: the caller
// already has a correct value.
func (c *Cache[T]) writeBack(ctx context.Context, entry *Entry[T]) {
	if c.cfg.TTLSeconds == 0 {
		return
	}
	kind := c.provider.Kind().String()
	data, err := encodeEntry(entry)
	if err != nil {
		c.opts.metrics.BackendErrors.WithLabelValues(kind, "set").Inc()
		c.logger.Error("failed to encode entry: %v", err)
		return
	}
	if err := c.provider.Set(ctx, c.key, data, c.cfg.TTLSeconds); err != nil {
		c.opts.metrics.BackendErrors.WithLabelValues(kind, "set").Inc()
		c.logger.Warn("update failed: %v", err)
	}
}

func (c *Cache[T]) refresh(ctx context.Context, fallback Fallback[T]) {
	defer func() {
		c.refreshMu.Lock()
		c.refreshing--
		if c.refreshing == 0 {
			c.refreshDone.Broadcast()
		}
		c.refreshMu.Unlock()
	}()
	if _, err := c.recompute(ctx, fallback); err != nil {
		c.logger.Warn("background refresh failed: %v", err)
	}
}

// Wait blocks until no background refresh started by this cache is running.
// It may be called while loads are in progress.
func (c *Cache[T]) Wait() {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	for c.refreshing > 0 {
		c.refreshDone.Wait()
	}
}
