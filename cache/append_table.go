package cache

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// DefaultAppendTable is the table used by AppendTableProvider.
const DefaultAppendTable = "query_cache_log"

// AppendTableProvider writes every entry as a new row and reads the most
// recent valid row for a key. Row ids are time-ordered UUIDv7 values, so rows
// written in the same millisecond still sort by insertion order.
type AppendTableProvider struct {
	tableProvider
}

var (
	_ Provider  = (*AppendTableProvider)(nil)
	_ Sweepable = (*AppendTableProvider)(nil)
)

// NewAppendTableProvider returns an append-only table provider. Call
// EnsureSchema before first use unless the table already exists.
func NewAppendTableProvider(db Executor, dialect Dialect, opts ...Option) (*AppendTableProvider, error) {
	tp, err := newTableProvider(db, dialect, DefaultAppendTable, opts)
	if err != nil {
		return nil, err
	}
	return &AppendTableProvider{tableProvider: tp}, nil
}

// EnsureSchema creates the table and its indexes if missing.
func (p *AppendTableProvider) EnsureSchema(ctx context.Context) error {
	return p.ensure(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(36) PRIMARY KEY,
	cache_key VARCHAR(255) NOT NULL,
	cache_value %s NOT NULL,
	updated_at BIGINT NOT NULL,
	expires BIGINT NOT NULL
)`, p.table, p.dialect.blobType()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (cache_key, updated_at)`, p.indexName("key_updated"), p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (updated_at)`, p.indexName("updated"), p.table),
	)
}

func (p *AppendTableProvider) Kind() Kind {
	return KindAppendTable
}

func (p *AppendTableProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.queryValue(ctx,
		fmt.Sprintf(`SELECT cache_value FROM %s WHERE cache_key = ? AND %s ORDER BY updated_at DESC, id DESC LIMIT 1`,
			p.table, p.validClause()),
		key, p.nowMillis(),
	)
}

func (p *AppendTableProvider) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if ttlSeconds == 0 {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Wrap(err, "generate row id")
	}
	_, err = p.exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, cache_key, cache_value, updated_at, expires) VALUES (?, ?, ?, ?, ?)`, p.table),
		id.String(), key, value, p.nowMillis(), int64(ttlSeconds),
	)
	if err != nil {
		return errors.Wrapf(err, "insert into %s", p.table)
	}
	return nil
}
