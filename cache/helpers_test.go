package cache

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(DialectSQLite, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestAppendTable(t *testing.T, db *sql.DB, opts ...Option) *AppendTableProvider {
	t.Helper()
	p, err := NewAppendTableProvider(db, DialectSQLite, opts...)
	require.NoError(t, err)
	require.NoError(t, p.EnsureSchema(context.Background()))
	return p
}

func newTestUpsertTable(t *testing.T, db *sql.DB, opts ...Option) *UpsertTableProvider {
	t.Helper()
	p, err := NewUpsertTableProvider(db, DialectSQLite, opts...)
	require.NoError(t, err)
	require.NoError(t, p.EnsureSchema(context.Background()))
	return p
}

// stubProvider is an in-memory Provider whose failures can be switched on.
type stubProvider struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]int
	gets    int
	sets    int
	failGet bool
	failSet bool
}

func newStubProvider() *stubProvider {
	return &stubProvider{data: make(map[string][]byte), ttls: make(map[string]int)}
}

func (p *stubProvider) Kind() Kind {
	return KindMemory
}

func (p *stubProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.failGet {
		return nil, false, errors.New("connection refused")
	}
	v, ok := p.data[key]
	return v, ok, nil
}

func (p *stubProvider) Set(_ context.Context, key string, value []byte, ttlSeconds int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets++
	if p.failSet {
		return errors.New("read-only replica")
	}
	p.data[key] = value
	p.ttls[key] = ttlSeconds
	return nil
}

func (p *stubProvider) put(key string, value []byte) {
	p.mu.Lock()
	p.data[key] = value
	p.mu.Unlock()
}

func (p *stubProvider) counts() (gets, sets int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets, p.sets
}
