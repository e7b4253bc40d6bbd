// Package sql wraps database/sql with the dialect specific setup the lock
// store needs: serializable transactions and automatic retry of transient
// concurrency failures.
package sql

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"github.com/lib/pq"
	"github.com/sorintlab/errors"
)

type Type string

const (
	Sqlite3  Type = "sqlite3"
	Postgres Type = "postgres"

	maxTxRetries = 20
)

type DB struct {
	db  *sql.DB
	typ Type
}

func NewDB(dbType Type, dbConnString string) (*DB, error) {
	var driverName string
	switch dbType {
	case Postgres:
		driverName = "postgres"
	case Sqlite3:
		driverName = "sqlite3"
		dbConnString = "file:" + dbConnString + "?cache=shared&_journal=wal&_foreign_keys=true&_case_sensitive_like=false"
	default:
		return nil, errors.New("unknown db type")
	}

	sqldb, err := sql.Open(driverName, dbConnString)
	if err != nil {
		return nil, errors.Wrap(err, "sql open err")
	}

	return &DB{db: sqldb, typ: dbType}, nil
}

func (db *DB) Type() Type {
	return db.typ
}

func (db *DB) Close() error {
	return errors.WithStack(db.db.Close())
}

func (db *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	c, err := db.db.Conn(ctx)
	return c, errors.WithStack(err)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	r, err := db.db.ExecContext(ctx, query, db.translateArgs(args)...)
	return r, errors.WithStack(err)
}

// translateArgs normalizes time arguments to UTC for sqlite3 since it has no
// timezone support and would otherwise store them with their zone offset.
func (db *DB) translateArgs(args []any) []any {
	if db.typ != Sqlite3 {
		return args
	}

	for i, arg := range args {
		if t, ok := arg.(time.Time); ok {
			args[i] = t.UTC()
		}
	}

	return args
}

// Do runs f inside a transaction, replaying it with a short random backoff
// when the db reports a transient concurrency failure. f may run more than
// once and must not apply side effects outside the transaction.
func (db *DB) Do(ctx context.Context, f func(tx *Tx) error) error {
	retries := 0
	for {
		err := db.runTx(ctx, f)
		if err == nil || !db.retryableTxError(err) {
			return errors.WithStack(err)
		}

		retries++
		if retries > maxTxRetries {
			return errors.WithStack(err)
		}
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	}
}

func (db *DB) runTx(ctx context.Context, f func(tx *Tx) error) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.rollback()
			panic(p)
		}
	}()

	if err := f(tx); err != nil {
		_ = tx.rollback()
		return errors.WithStack(err)
	}

	return tx.commit()
}

// retryableTxError reports whether the failed transaction can be replayed: a
// sqlite locked error or a postgres serialization failure.
func (db *DB) retryableTxError(err error) bool {
	switch db.typ {
	case Sqlite3:
		return checkSqlite3RetryError(err)
	case Postgres:
		var pqerr *pq.Error
		return errors.As(err, &pqerr) && pqerr.Code == "40001"
	}

	return false
}

// Tx wraps a sql.Tx started by Do. Statement arguments go through
// translateArgs before reaching the driver.
type Tx struct {
	db  *DB
	tx  *sql.Tx
	ctx context.Context
}

func (db *DB) begin(ctx context.Context) (*Tx, error) {
	wtx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	tx := &Tx{db: db, tx: wtx, ctx: ctx}
	if err := tx.setup(); err != nil {
		_ = tx.rollback()
		return nil, errors.WithStack(err)
	}

	return tx, nil
}

func (tx *Tx) setup() error {
	switch tx.db.typ {
	case Postgres:
		// Concurrent mutations of the same key rely on serializable
		// isolation.
		if _, err := tx.tx.ExecContext(tx.ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
			return errors.WithStack(err)
		}
		// Read times back in UTC. lib/pq chokes on zone offsets carrying
		// seconds, which postgres reports for the go zero time.
		if _, err := tx.tx.ExecContext(tx.ctx, "SET TIME ZONE UTC"); err != nil {
			return errors.WithStack(err)
		}
	case Sqlite3:
		// Sqlite serializes writes already but a read transaction upgrading
		// to write can deadlock against another upgrading transaction, so
		// restart immediately as a write transaction.
		if _, err := tx.tx.ExecContext(tx.ctx, "ROLLBACK; BEGIN IMMEDIATE"); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

func (tx *Tx) commit() error {
	return errors.WithStack(tx.tx.Commit())
}

func (tx *Tx) rollback() error {
	return errors.WithStack(tx.tx.Rollback())
}

func (tx *Tx) Exec(query string, args ...any) (sql.Result, error) {
	r, err := tx.tx.ExecContext(tx.ctx, query, tx.db.translateArgs(args)...)
	return r, errors.WithStack(err)
}

func (tx *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	r, err := tx.tx.QueryContext(tx.ctx, query, tx.db.translateArgs(args)...)
	return r, errors.WithStack(err)
}
