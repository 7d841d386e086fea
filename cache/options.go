package cache

import (
	"time"

	"github.com/agentuity/querycache/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultQueryTimeout is the per-operation timeout for providers that perform
// I/O (Redis, SQL). Prevents indefinite hangs on slow or unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// DefaultSweepInterval is how often the Sweeper deletes expired table rows.
const DefaultSweepInterval = time.Minute

// options holds the resolved configuration shared by providers, caches,
// builders and sweepers. Each consumer reads only the fields it needs.
type options struct {
	logger         logger.Logger
	metrics        *Metrics
	registry       *Registry
	tracerProvider trace.TracerProvider
	now            func() time.Time
	queryTimeout   time.Duration
	sweepInterval  time.Duration
	expiryCheck    time.Duration
	prefix         string
	table          string
	breaker        *BreakerConfig
}

// Option configures caches, providers, builders and sweepers.
type Option func(*options)

func defaultOptions() options {
	return options{
		now:           time.Now,
		queryTimeout:  DefaultQueryTimeout,
		sweepInterval: DefaultSweepInterval,
		expiryCheck:   time.Minute,
	}
}

func applyOptions(opts []Option) options {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewNoopLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = NewMetrics(nil)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	return cfg
}

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(l logger.Logger) Option {
	return func(c *options) { c.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to unregistered collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *options) { c.metrics = m }
}

// WithRegistry sets the coalescing registry used by a Builder. Caches built
// from builders sharing a registry coalesce with each other.
func WithRegistry(r *Registry) Option {
	return func(c *options) { c.registry = r }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *options) { c.tracerProvider = tp }
}

// WithClock overrides the time source used for freshness decisions and
// table timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *options) { c.now = now }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed providers.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *options) { c.queryTimeout = d }
}

// WithSweepInterval sets how often the Sweeper runs. Defaults to DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(c *options) { c.sweepInterval = d }
}

// WithExpiryCheck sets the interval for background expired entry cleanup of
// the in-memory provider. Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *options) { c.expiryCheck = d }
}

// WithPrefix sets the key prefix for namespacing cache keys.
// Applies to the Redis provider. Defaults to empty (no prefix).
func WithPrefix(p string) Option {
	return func(c *options) { c.prefix = p }
}

// WithTable overrides the table name of a table provider.
func WithTable(name string) Option {
	return func(c *options) { c.table = name }
}

// WithCircuitBreaker makes NewBuilderFor wrap its Redis and table providers
// in a BreakerProvider.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(c *options) { c.breaker = &cfg }
}
