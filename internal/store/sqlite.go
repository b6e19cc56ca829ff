package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored as
// YYYY-MM-DD text.
type SQLiteStore struct {
	sqlStore
}

var sqliteDialect = dialect{
	name:    "sqlite",
	rebind:  func(q string) string { return q },
	dateArg: func(t time.Time) any { return t.Format(time.DateOnly) },
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// Each pooled connection would otherwise get its own database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{sqlStore{db: sqlBackend{db: db}, dialect: sqliteDialect}}, nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type sqlQuerier struct {
	q sqlExecer
}

func (s sqlQuerier) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.q.ExecContext(ctx, query, args...)
	return err
}

func (s sqlQuerier) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rs}, nil
}

type sqlBackend struct {
	db *sql.DB
}

func (b sqlBackend) exec(ctx context.Context, query string, args ...any) error {
	return sqlQuerier{b.db}.exec(ctx, query, args...)
}

func (b sqlBackend) query(ctx context.Context, query string, args ...any) (rows, error) {
	return sqlQuerier{b.db}.query(ctx, query, args...)
}

func (b sqlBackend) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin tx")
	}
	if err := fn(sqlQuerier{tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "commit tx")
}

func (b sqlBackend) ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b sqlBackend) close() {
	_ = b.db.Close()
}
