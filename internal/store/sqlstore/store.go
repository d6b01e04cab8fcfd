// Package sqlstore implements store.Repository on PostgreSQL or SQLite via sqlx.
package sqlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/shop-orders/internal/config"
	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/store"
)

type Store struct {
	querier
	db     *sqlx.DB
	txOpts database.TxOptions
}

var _ store.Repository = (*Store)(nil)

func New(db *sqlx.DB, maxRetries int) *Store {
	return &Store{
		querier: querier{ext: db},
		db:      db,
		txOpts:  database.TxOptionsFor(db.DriverName(), maxRetries),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return database.WithRetry(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		return fn(ctx, &querier{ext: tx, locking: true})
	})
}

// querier runs the statements against either the pool or a transaction.
type querier struct {
	ext     sqlx.ExtContext
	locking bool
}

// forUpdate appends a row lock to q inside PostgreSQL transactions. SQLite
// transactions already hold the database write lock.
func (q *querier) forUpdate(query string) string {
	if q.locking && q.ext.DriverName() == config.DriverPostgres {
		return query + " FOR UPDATE"
	}
	return query
}

func (q *querier) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *querier) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *querier) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *querier) exists(ctx context.Context, table string, id int64) (bool, error) {
	var exists bool
	err := q.get(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE id = ?)", id)
	return exists, err
}

// now is truncated to the precision PostgreSQL keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
