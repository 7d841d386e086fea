package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDB(t *testing.T) {
	db, err := OpenDB(DialectSQLite, "")
	require.NoError(t, err)
	assert.NoError(t, db.Close())

	db, err = OpenDB(DialectSQLite, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	assert.NoError(t, db.Close())

	_, err = OpenDB(DialectPostgres, "")
	assert.Error(t, err)

	_, err = OpenDB(Dialect("mysql"), "root@/db")
	assert.Error(t, err)
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"":           DialectSQLite,
		"sqlite3":    DialectSQLite,
		"SQLite":     DialectSQLite,
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
	} {
		got, err := ParseDialect(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE k = ? AND u > ?"
	assert.Equal(t, q, DialectSQLite.rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE k = $1 AND u > $2", DialectPostgres.rebind(q))
}

func TestTableProviderRejectsBadTableName(t *testing.T) {
	db := newTestDB(t)
	_, err := NewAppendTableProvider(db, DialectSQLite, WithTable("cache; DROP TABLE users"))
	assert.Error(t, err)
	_, err = NewUpsertTableProvider(db, DialectSQLite, WithTable("1cache"))
	assert.Error(t, err)
	_, err = NewUpsertTableProvider(db, Dialect("mssql"))
	assert.Error(t, err)
}

func TestTableProviderNames(t *testing.T) {
	db := newTestDB(t)
	assert.Equal(t, DefaultAppendTable, newTestAppendTable(t, db).Name())
	assert.Equal(t, DefaultUpsertTable, newTestUpsertTable(t, db).Name())
	assert.Equal(t, "my_cache", newTestUpsertTable(t, db, WithTable("my_cache")).Name())
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	p := newTestAppendTable(t, db)
	assert.NoError(t, p.EnsureSchema(context.Background()))
	u := newTestUpsertTable(t, db)
	assert.NoError(t, u.EnsureSchema(context.Background()))
}

func TestAppendTableSetGet(t *testing.T) {
	clock := newFakeClock()
	p := newTestAppendTable(t, newTestDB(t), WithClock(clock.Now))
	ctx := context.Background()
	assert.Equal(t, KindAppendTable, p.Kind())

	data, found, err := p.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	assert.NoError(t, p.Set(ctx, "key", []byte("first"), 60))
	clock.Advance(time.Second)
	assert.NoError(t, p.Set(ctx, "key", []byte("second"), 60))

	data, found, err = p.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("second"), data)

	var rows int
	require.NoError(t, p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+p.table).Scan(&rows))
	assert.Equal(t, 2, rows)
}

func TestAppendTableSameMillisecond(t *testing.T) {
	clock := newFakeClock()
	p := newTestAppendTable(t, newTestDB(t), WithClock(clock.Now))
	ctx := context.Background()

	// identical updated_at, the later insert must still win
	assert.NoError(t, p.Set(ctx, "key", []byte("first"), 60))
	assert.NoError(t, p.Set(ctx, "key", []byte("second"), 60))
	assert.NoError(t, p.Set(ctx, "key", []byte("third"), 60))

	data, found, err := p.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("third"), data)
}

func TestAppendTableSkipsExpiredRows(t *testing.T) {
	clock := newFakeClock()
	p := newTestAppendTable(t, newTestDB(t), WithClock(clock.Now))
	ctx := context.Background()

	assert.NoError(t, p.Set(ctx, "key", []byte("long"), 3600))
	clock.Advance(time.Second)
	assert.NoError(t, p.Set(ctx, "key", []byte("short"), 2))

	data, _, err := p.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("short"), data)

	clock.Advance(3 * time.Second)
	data, found, err := p.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("long"), data)
}

func TestUpsertTableSetGet(t *testing.T) {
	clock := newFakeClock()
	p := newTestUpsertTable(t, newTestDB(t), WithClock(clock.Now))
	ctx := context.Background()
	assert.Equal(t, KindUpsertTable, p.Kind())

	_, found, err := p.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, p.Set(ctx, "key", []byte("first"), 60))
	assert.NoError(t, p.Set(ctx, "key", []byte("second"), 60))

	data, found, err := p.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("second"), data)

	var rows int
	require.NoError(t, p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+p.table).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestUpsertTableExpiry(t *testing.T) {
	clock := newFakeClock()
	p := newTestUpsertTable(t, newTestDB(t), WithClock(clock.Now))
	ctx := context.Background()

	assert.NoError(t, p.Set(ctx, "short", []byte("value"), 2))
	assert.NoError(t, p.Set(ctx, "forever", []byte("value"), NoExpiry))

	clock.Advance(2 * time.Second)
	_, found, err := p.Get(ctx, "short")
	assert.NoError(t, err)
	assert.False(t, found)

	clock.Advance(1000 * time.Hour)
	_, found, err = p.Get(ctx, "forever")
	assert.NoError(t, err)
	assert.True(t, found)
}

func TestTableZeroTTLSkipsWrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, p := range []Provider{newTestAppendTable(t, db), newTestUpsertTable(t, db)} {
		assert.NoError(t, p.Set(ctx, "key", []byte("value"), 0))
		_, found, err := p.Get(ctx, "key")
		assert.NoError(t, err)
		assert.False(t, found, p.Kind())
	}
}

func TestTableDeleteExpired(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t)
	ctx := context.Background()
	appendTable := newTestAppendTable(t, db, WithClock(clock.Now))
	upsertTable := newTestUpsertTable(t, db, WithClock(clock.Now))

	for _, p := range []Provider{appendTable, upsertTable} {
		assert.NoError(t, p.Set(ctx, "expiring", []byte("value"), 1))
		assert.NoError(t, p.Set(ctx, "forever", []byte("value"), NoExpiry))
		assert.NoError(t, p.Set(ctx, "later", []byte("value"), 3600))
	}
	clock.Advance(2 * time.Second)

	for _, s := range []Sweepable{appendTable, upsertTable} {
		n, err := s.DeleteExpired(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), n, s.Name())

		var rows int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.Name()).Scan(&rows))
		assert.Equal(t, 2, rows, s.Name())
	}

	n, err := appendTable.DeleteExpired(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestTableTimeout(t *testing.T) {
	p := newTestUpsertTable(t, newTestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := p.Get(ctx, "key")
	assert.Error(t, err)
}
