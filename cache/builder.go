package cache

import (
	"context"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Builder creates caches on one of its providers. Every cache built by the
// same Builder shares the Builder's Registry, so concurrent loads of a key
// coalesce no matter which caller built the cache.
type Builder struct {
	providers map[Kind]Provider
	registry  *Registry
	opts      []Option
}

// NewBuilder returns a Builder over providers. A later provider replaces an
// earlier one of the same kind. Options are passed on to every built cache.
func NewBuilder(providers []Provider, opts ...Option) *Builder {
	cfg := applyOptions(opts)
	registry := cfg.registry
	if registry == nil {
		registry = NewRegistry()
	}
	b := &Builder{
		providers: make(map[Kind]Provider, len(providers)),
		registry:  registry,
		opts:      append(append([]Option(nil), opts...), WithRegistry(registry)),
	}
	for _, p := range providers {
		b.providers[p.Kind()] = p
	}
	return b
}

// Backends are the collaborators NewBuilderFor creates providers for. Nil
// fields are skipped.
type Backends struct {
	// Redis backs the key-value provider.
	Redis redis.UniversalClient
	// DB backs both table providers.
	DB Executor
	// Dialect is the SQL flavour of DB.
	Dialect Dialect
	// Memory adds an in-process provider.
	Memory bool
	// AppendTable and UpsertTable override the default table names.
	AppendTable string
	UpsertTable string
	// EnsureSchema creates the cache tables when missing.
	EnsureSchema bool
}

func withTable(opts []Option, name string) []Option {
	if name == "" {
		return opts
	}
	return append(append([]Option(nil), opts...), WithTable(name))
}

// NewBuilderFor creates a provider for every configured backend and returns a
// Builder over them. Options apply to both providers and caches.
func NewBuilderFor(ctx context.Context, backends Backends, opts ...Option) (*Builder, error) {
	cfg := applyOptions(opts)
	guard := func(p Provider) Provider {
		if cfg.breaker == nil {
			return p
		}
		return NewBreakerProvider(p, *cfg.breaker, opts...)
	}
	var providers []Provider
	if backends.Redis != nil {
		providers = append(providers, guard(NewRedisProvider(backends.Redis, opts...)))
	}
	if backends.DB != nil {
		appendTable, err := NewAppendTableProvider(backends.DB, backends.Dialect, withTable(opts, backends.AppendTable)...)
		if err != nil {
			return nil, err
		}
		upsertTable, err := NewUpsertTableProvider(backends.DB, backends.Dialect, withTable(opts, backends.UpsertTable)...)
		if err != nil {
			return nil, err
		}
		if backends.EnsureSchema {
			if err := appendTable.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			if err := upsertTable.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		providers = append(providers, guard(appendTable), guard(upsertTable))
	}
	if backends.Memory {
		providers = append(providers, NewMemoryProvider(ctx, opts...))
	}
	if len(providers) == 0 {
		return nil, errors.Wrap(ErrProviderUnavailable, "no cache backend configured")
	}
	return NewBuilder(providers, opts...), nil
}

// Registry returns the registry shared by the built caches.
func (b *Builder) Registry() *Registry {
	return b.registry
}

// Provider returns the provider of the given kind.
func (b *Builder) Provider(kind Kind) (Provider, bool) {
	p, ok := b.providers[kind]
	return p, ok
}

// Kinds returns the available provider kinds in name order.
func (b *Builder) Kinds() []Kind {
	kinds := make([]Kind, 0, len(b.providers))
	for k := range b.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Sweepables returns the providers that need expired rows deleted.
func (b *Builder) Sweepables() []Sweepable {
	var out []Sweepable
	for _, k := range b.Kinds() {
		p := b.providers[k]
		if w, ok := p.(interface{ Unwrap() Provider }); ok {
			p = w.Unwrap()
		}
		if s, ok := p.(Sweepable); ok {
			out = append(out, s)
		}
	}
	return out
}

// Close closes providers that hold resources of their own. Clients passed in
// through Backends stay open; the caller owns them.
func (b *Builder) Close() error {
	var err error
	for _, p := range b.providers {
		if w, ok := p.(interface{ Unwrap() Provider }); ok {
			p = w.Unwrap()
		}
		if c, ok := p.(io.Closer); ok {
			err = errors.CombineErrors(err, c.Close())
		}
	}
	return err
}

// Build returns a cache for key on the provider of the given kind. An empty
// kind selects DefaultKind.
func Build[T any](b *Builder, kind Kind, key string, cfg Config) (*Cache[T], error) {
	if kind == "" {
		kind = DefaultKind
	}
	p, ok := b.providers[kind]
	if !ok {
		return nil, errors.Wrapf(ErrProviderUnavailable, "%s", kind)
	}
	return New[T](p, key, cfg, b.opts...)
}
