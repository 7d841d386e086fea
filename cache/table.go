package cache

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of a table provider.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	}
	return "", errors.Newf("cache: unsupported sql driver %q", driver)
}

// Executor is the relational collaborator of the table providers. *sql.DB
// satisfies it; pooling and retries are its concern.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenDB opens and pings a database for the given dialect. An empty SQLite
// dsn opens a private in-memory database.
func OpenDB(dialect Dialect, dsn string) (*sql.DB, error) {
	dsn = strings.TrimSpace(dsn)
	switch dialect {
	case DialectSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
	case DialectPostgres:
		if dsn == "" {
			return nil, errors.New("cache: postgres dsn is required")
		}
	default:
		return nil, errors.Newf("cache: unsupported dialect %q", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dialect)
	}
	if dialect == DialectSQLite {
		if dsn == ":memory:" {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "enable sqlite wal")
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", dialect)
	}
	return db, nil
}

func (d Dialect) blobType() string {
	if d == DialectPostgres {
		return "BYTEA"
	}
	return "BLOB"
}

// rebind rewrites ? placeholders into the dialect's positional form.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}(\.[A-Za-z_][A-Za-z0-9_]{0,62})?$`)

// tableProvider holds what both table variants share: the executor, the
// dialect, and the updated_at/expires bookkeeping used for validity and GC.
//
// updated_at is stored in unix milliseconds and expires in seconds, so a row
// is valid while expires = -1 OR updated_at + expires*1000 > now.
type tableProvider struct {
	db      Executor
	dialect Dialect
	table   string
	cfg     options
}

func newTableProvider(db Executor, dialect Dialect, defaultTable string, opts []Option) (tableProvider, error) {
	cfg := applyOptions(opts)
	table := cfg.table
	if table == "" {
		table = defaultTable
	}
	if !identifierRe.MatchString(table) {
		return tableProvider{}, errors.Newf("cache: invalid table name %q", table)
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return tableProvider{}, errors.Newf("cache: unsupported dialect %q", dialect)
	}
	return tableProvider{db: db, dialect: dialect, table: table, cfg: cfg}, nil
}

func (p *tableProvider) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, p.cfg.queryTimeout)
}

func (p *tableProvider) nowMillis() int64 {
	return p.cfg.now().UnixMilli()
}

func (p *tableProvider) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	qctx, cancel := p.queryCtx(ctx)
	defer cancel()
	return p.db.ExecContext(qctx, p.dialect.rebind(query), args...)
}

func (p *tableProvider) queryValue(ctx context.Context, query string, args ...any) ([]byte, bool, error) {
	qctx, cancel := p.queryCtx(ctx)
	defer cancel()
	var data []byte
	err := p.db.QueryRowContext(qctx, p.dialect.rebind(query), args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "query %s", p.table)
	}
	return data, true, nil
}

func (p *tableProvider) validClause() string {
	return "(expires = -1 OR updated_at + expires * 1000 > ?)"
}

func (p *tableProvider) ensure(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := p.exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "initialize %s schema", p.table)
		}
	}
	return nil
}

// indexName derives an index name from the table name, dropping any schema.
func (p *tableProvider) indexName(suffix string) string {
	name := p.table
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return fmt.Sprintf("idx_%s_%s", name, suffix)
}

// Name returns the table name.
func (p *tableProvider) Name() string {
	return p.table
}

// DeleteExpired removes rows whose positive TTL has elapsed. Rows with
// expires = -1 are never removed.
func (p *tableProvider) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := p.exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE expires > 0 AND updated_at + expires * 1000 <= ?`, p.table),
		p.nowMillis(),
	)
	if err != nil {
		return 0, errors.Wrapf(err, "delete expired rows from %s", p.table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "count deleted rows of %s", p.table)
	}
	return n, nil
}
