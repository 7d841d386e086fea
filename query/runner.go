// Package query runs named, parameterized SQL queries through the cache.
//
// Each query lives in its own directory holding template.sql and a params
// document (params.json or params.yaml) that declares the template params and
// the cache policy:
//
//	{
//	  "params": [
//	    {"name": "days", "replaces": "{{days}}", "default": "7"},
//	    {"name": "order", "replaces": "{{order}}", "template": {"asc": "ASC", "desc": "DESC"}}
//	  ],
//	  "cacheHours": 24,
//	  "refreshMinutes": 30,
//	  "cacheProvider": "REDIS"
//	}
//
// Results are cached under query:<name>:<values> where values are the
// resolved param values in declared order.
package query

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/agentuity/querycache/cache"
	"github.com/agentuity/querycache/logger"
	"github.com/agentuity/querycache/params"
	"github.com/cockroachdb/errors"
)

// Extra keys set on every computed entry.
const (
	ExtraSQL    = "sql"
	ExtraSpent  = "spent"
	ExtraParams = "params"
)

// Runner loads query definitions from a directory and runs them.
type Runner struct {
	builder     *cache.Builder
	db          Queryer
	dir         string
	logger      logger.Logger
	defaultKind cache.Kind
	now         func() time.Time
	reload      bool

	mu          sync.Mutex
	definitions map[string]*Definition
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithDefaultKind sets the provider used by definitions that name none.
// Defaults to cache.DefaultKind.
func WithDefaultKind(k cache.Kind) Option {
	return func(r *Runner) { r.defaultKind = k }
}

// WithClock overrides the time source stamped on computed entries.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithReload makes the runner read definitions from disk on every run
// instead of once.
func WithReload(reload bool) Option {
	return func(r *Runner) { r.reload = reload }
}

// NewRunner returns a Runner for the queries below dir, executing SQL on db
// and caching through builder.
func NewRunner(builder *cache.Builder, db Queryer, dir string, opts ...Option) *Runner {
	r := &Runner{
		builder:     builder,
		db:          db,
		dir:         dir,
		defaultKind: cache.DefaultKind,
		now:         time.Now,
		definitions: make(map[string]*Definition),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.NewNoopLogger()
	}
	r.logger = r.logger.WithPrefix("[query]")
	return r
}

// Definition returns the definition of name.
func (r *Runner) Definition(name string) (*Definition, error) {
	if !r.reload {
		r.mu.Lock()
		def, ok := r.definitions[name]
		r.mu.Unlock()
		if ok {
			return def, nil
		}
	}
	def, err := LoadDefinition(r.dir, name)
	if err != nil {
		return nil, err
	}
	if !r.reload {
		r.mu.Lock()
		r.definitions[name] = def
		r.mu.Unlock()
	}
	return def, nil
}

// Prepared is a rendered query ready to run.
type Prepared struct {
	Definition *Definition
	Key        string
	SQL        string
	Values     []string
}

// Prepare renders the SQL of name and derives its cache key.
func (r *Runner) Prepare(name string, values map[string]string) (*Prepared, error) {
	def, err := r.Definition(name)
	if err != nil {
		return nil, err
	}
	resolved, err := def.Schema.Resolve(values)
	if err != nil {
		return nil, err
	}
	sql, err := params.Render(def.Template, def.Schema, values)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		Definition: def,
		Key:        cache.Key("query:"+name, resolved...),
		SQL:        sql,
		Values:     resolved,
	}, nil
}

// Run returns the result of name for values, from the cache when possible.
// The definition's onlyFromCache setting is ignored when ignoreOnlyFromCache
// is set.
func (r *Runner) Run(ctx context.Context, name string, values map[string]string, ignoreOnlyFromCache bool) (*cache.Entry[Rows], error) {
	p, err := r.Prepare(name, values)
	if err != nil {
		return nil, err
	}
	kind, err := p.Definition.Kind()
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = r.defaultKind
	}
	cfg := p.Definition.CacheConfig()
	c, err := cache.Build[Rows](r.builder, kind, p.Key, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", name)
	}
	onlyFromCache := p.Definition.OnlyFromCache && !ignoreOnlyFromCache
	return c.Load(ctx, r.fallback(p, values, cfg.TTLSeconds), onlyFromCache)
}

func (r *Runner) fallback(p *Prepared, values map[string]string, ttlSeconds int) cache.Fallback[Rows] {
	return func(ctx context.Context) (*cache.Entry[Rows], error) {
		started := r.now()
		rows, err := execute(ctx, r.db, p.SQL)
		if err != nil {
			return nil, errors.Wrapf(err, "query %s", p.Definition.Name)
		}
		spent := r.now().Sub(started)
		r.logger.Debug("query %s returned %d rows in %s", p.Definition.Name, len(rows), spent)
		entry := cache.NewEntry(rows, started, ttlSeconds)
		entry.Extra = map[string]string{
			ExtraSQL:    p.SQL,
			ExtraSpent:  strconv.FormatFloat(spent.Seconds(), 'f', -1, 64),
			ExtraParams: encodeValues(values),
		}
		return entry, nil
	}
}

func encodeValues(values map[string]string) string {
	q := make(url.Values, len(values))
	for k, v := range values {
		q.Set(k, v)
	}
	return q.Encode()
}
