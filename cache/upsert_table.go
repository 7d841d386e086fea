package cache

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// DefaultUpsertTable is the table used by UpsertTableProvider.
const DefaultUpsertTable = "query_cache"

// UpsertTableProvider keeps a single row per key, replaced in place on write.
type UpsertTableProvider struct {
	tableProvider
}

var (
	_ Provider  = (*UpsertTableProvider)(nil)
	_ Sweepable = (*UpsertTableProvider)(nil)
)

// NewUpsertTableProvider returns an insert-or-replace table provider. Call
// EnsureSchema before first use unless the table already exists.
func NewUpsertTableProvider(db Executor, dialect Dialect, opts ...Option) (*UpsertTableProvider, error) {
	tp, err := newTableProvider(db, dialect, DefaultUpsertTable, opts)
	if err != nil {
		return nil, err
	}
	return &UpsertTableProvider{tableProvider: tp}, nil
}

// EnsureSchema creates the table and its index if missing.
func (p *UpsertTableProvider) EnsureSchema(ctx context.Context) error {
	return p.ensure(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	cache_key VARCHAR(255) PRIMARY KEY,
	cache_value %s NOT NULL,
	updated_at BIGINT NOT NULL,
	expires BIGINT NOT NULL
)`, p.table, p.dialect.blobType()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (updated_at)`, p.indexName("updated"), p.table),
	)
}

func (p *UpsertTableProvider) Kind() Kind {
	return KindUpsertTable
}

func (p *UpsertTableProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.queryValue(ctx,
		fmt.Sprintf(`SELECT cache_value FROM %s WHERE cache_key = ? AND %s LIMIT 1`, p.table, p.validClause()),
		key, p.nowMillis(),
	)
}

func (p *UpsertTableProvider) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if ttlSeconds == 0 {
		return nil
	}
	_, err := p.exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (cache_key, cache_value, updated_at, expires) VALUES (?, ?, ?, ?)
ON CONFLICT (cache_key) DO UPDATE SET cache_value = excluded.cache_value, updated_at = excluded.updated_at, expires = excluded.expires`, p.table),
		key, value, p.nowMillis(), int64(ttlSeconds),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert into %s", p.table)
	}
	return nil
}
