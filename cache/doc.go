// Package cache provides a read-through cache for expensive computations such
// as parameterized SQL queries, with interchangeable storage backends,
// per-key request coalescing and expiry housekeeping.
//
// # Cache
//
// A [Cache] is bound to one key, one [Provider] and one [Config]. [Cache.Load]
// returns the stored [Entry] when it is valid and otherwise calls a
// [Fallback] to compute a fresh one, which is then written back:
//
//	c, err := cache.Build[Rows](builder, cache.KindKeyValue, cache.Key("top_users", "7"), cache.Config{
//	    TTLSeconds:    cache.TTLFromHours(24),
//	    RefreshWindow: 10 * time.Minute,
//	})
//	entry, err := c.Load(ctx, func(ctx context.Context) (*cache.Entry[Rows], error) {
//	    rows, err := runQuery(ctx)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return cache.NewEntry(rows, time.Now(), cache.TTLFromHours(24)), nil
//	}, false)
//
// An entry is stale once it is older than Config.RefreshWindow. Stale entries
// are recomputed before returning, or served as is while a background
// refresh runs when Config.BackgroundRefresh is set.
//
// With onlyFromCache the fallback is never called; a miss fails with
// [ErrCacheMissOnlyFromCache] and a stale entry is returned unchanged.
//
// # Error Handling
//
// Errors from the fallback are returned to every caller waiting on the load
// and nothing is written. Provider read failures and undecodable payloads are
// logged and treated as a miss. Write failures are logged and the computed
// entry is still returned: failing to cache a correct value is a degradation,
// not a failure.
//
// # Coalescing
//
// Every [Cache] consults a [Registry] before touching the provider. While a
// load for a key is in flight, further loads for the same key wait for it and
// receive the same entry pointer or the same error. Caches built by one
// [Builder] share its registry. Coalescing is per process.
//
// # Providers
//
//   - [RedisProvider] ([KindKeyValue]) stores entries in Redis via
//     [github.com/redis/go-redis/v9] with native TTL. An optional key prefix
//     namespaces multiple caches on the same instance.
//
//   - [AppendTableProvider] ([KindAppendTable]) inserts a row per write and
//     reads the newest valid row. It is the default provider.
//
//   - [UpsertTableProvider] ([KindUpsertTable]) keeps one row per key and
//     replaces it on write.
//
//   - [MemoryProvider] ([KindMemory]) keeps entries in a map. Lost on process
//     restart and not shared across processes.
//
// Table providers run on SQLite ([modernc.org/sqlite], pure Go) and
// PostgreSQL ([github.com/lib/pq]). Rows carry updated_at in unix
// milliseconds and expires in seconds, where -1 never expires. Expired rows
// are skipped on read and deleted by a [Sweeper].
//
// A TTL of 0 disables write-back; every provider treats it as a no-op.
//
// [WithCircuitBreaker] makes [NewBuilderFor] wrap the Redis and table
// providers in a [BreakerProvider]. Once a backend keeps failing, loads stop
// waiting on it and go straight to the fallback until the cooldown ends.
//
// # Serialization
//
// Entries are encoded with msgpack ([github.com/vmihailenco/msgpack/v5]).
// Numbers nested in interface values decode as int64, uint64 or float64.
//
// # Timeouts
//
// The Redis and table providers apply a per-operation timeout
// ([DefaultQueryTimeout], 5 seconds) derived from the caller's context.
//
// # Observability
//
// Caches log through [github.com/agentuity/querycache/logger], record
// Prometheus counters ([Metrics]) and open a "cache.Load" OpenTelemetry span
// per load.
package cache
