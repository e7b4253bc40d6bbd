package testutil

import (
	stdsql "database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/sorintlab/lockwarden/internal/lock"
	"github.com/sorintlab/lockwarden/internal/sql"
)

// DBType returns the database type under test, selected by the DB_TYPE env
// var. Sqlite3 when unset.
func DBType(t *testing.T) sql.Type {
	dt := os.Getenv("DB_TYPE")
	switch dt {
	case "", "sqlite3":
		return sql.Sqlite3
	case "postgres":
		return sql.Postgres
	}

	t.Fatalf("unknown db type %q", dt)
	return ""
}

// CreateDB creates a throwaway test database and returns it with a lock
// factory fitting the database type. Sqlite3 databases live under dir,
// postgres ones are created through the admin connection PG_CONNSTRING
// points at.
func CreateDB(t *testing.T, dir string) (*sql.DB, lock.LockFactory, string) {
	dbName := fmt.Sprintf("testdb%d", rand.Uint32())

	var sdb *sql.DB
	var lf lock.LockFactory
	var connString string

	switch dbType := DBType(t); dbType {
	case sql.Sqlite3:
		connString = filepath.Join(dir, dbName)

		var err error
		sdb, err = sql.NewDB(sql.Sqlite3, connString)
		NilError(t, err)

		lf = lock.NewLocalLocks()

	case sql.Postgres:
		pgConnString := os.Getenv("PG_CONNSTRING")
		connString = fmt.Sprintf(pgConnString, dbName)

		pgdb, err := stdsql.Open("postgres", fmt.Sprintf(pgConnString, "postgres"))
		NilError(t, err)

		_, err = pgdb.Exec(fmt.Sprintf("drop database if exists %s", dbName))
		NilError(t, err)
		_, err = pgdb.Exec(fmt.Sprintf("create database %s", dbName))
		NilError(t, err)
		NilError(t, pgdb.Close())

		sdb, err = sql.NewDB(sql.Postgres, connString)
		NilError(t, err)

		lf = lock.NewPGLockFactory(sdb)
	}

	t.Cleanup(func() { _ = sdb.Close() })

	return sdb, lf, connString
}
