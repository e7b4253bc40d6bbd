package lock

import (
	"context"
	stdsql "database/sql"
	"hash/fnv"

	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/sql"
)

// PGLockFactory hands out postgres advisory locks so multiple lock service
// instances sharing a database serialize mutations of the same key. Keys are
// mapped to the advisory lock int64 space with fnv64a.
type PGLockFactory struct {
	db *sql.DB
}

func NewPGLockFactory(db *sql.DB) *PGLockFactory {
	return &PGLockFactory{db: db}
}

func (f *PGLockFactory) NewLock(key string) Lock {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))

	return &pgLock{db: f.db, key: int64(h.Sum64())}
}

// pgLock pins a dedicated connection while held since advisory locks are
// connection scoped.
type pgLock struct {
	db   *sql.DB
	key  int64
	conn *stdsql.Conn
}

func (l *pgLock) Lock(ctx context.Context) error {
	if l.conn != nil {
		panic("lock already held")
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := conn.ExecContext(ctx, "select pg_advisory_lock($1)", l.key); err != nil {
		conn.Close()
		return errors.WithStack(err)
	}
	l.conn = conn

	return nil
}

func (l *pgLock) Unlock() error {
	if l.conn == nil {
		panic("lock not held")
	}

	_, _ = l.conn.ExecContext(context.Background(), "select pg_advisory_unlock($1)", l.key)
	_ = l.conn.Close()
	l.conn = nil

	return nil
}
