// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package lockstore

import (
	"context"
	stdsql "database/sql"

	sq "github.com/huandu/go-sqlbuilder"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/sql"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

// SQLStore keeps lock record payloads in a single locks table. The holder
// token is kept in its own column so conditional deletion happens inside one
// serializable transaction without interpreting the payload.
type SQLStore struct {
	log zerolog.Logger
	sdb *sql.DB
}

func NewSQLStore(ctx context.Context, log zerolog.Logger, sdb *sql.DB) (*SQLStore, error) {
	s := &SQLStore{log: log, sdb: sdb}

	if err := s.setup(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to setup locks table")
	}

	return s, nil
}

func (s *SQLStore) setup(ctx context.Context) error {
	var ddlPostgres = []string{
		"create table if not exists locks (lock_key varchar NOT NULL, token varchar NOT NULL, data bytea NOT NULL, PRIMARY KEY (lock_key))",
	}

	var ddlSqlite3 = []string{
		"create table if not exists locks (lock_key varchar NOT NULL, token varchar NOT NULL, data blob NOT NULL, PRIMARY KEY (lock_key))",
	}

	var stmts []string
	switch s.sdb.Type() {
	case sql.Postgres:
		stmts = ddlPostgres
	case sql.Sqlite3:
		stmts = ddlSqlite3
	}

	err := s.sdb.Do(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	})

	return errors.WithStack(err)
}

func (s *SQLStore) flavor() sq.Flavor {
	switch s.sdb.Type() {
	case sql.Postgres:
		return sq.PostgreSQL
	case sql.Sqlite3:
		return sq.SQLite
	}

	return sq.PostgreSQL
}

func (s *SQLStore) exec(tx *sql.Tx, rq sq.Builder) (stdsql.Result, error) {
	q, args := rq.BuildWithFlavor(s.flavor())
	// s.log.Debug().Msgf("q: %s, args: %s", q, util.Dump(args))

	r, err := tx.Exec(q, args...)
	return r, errors.WithStack(err)
}

func (s *SQLStore) query(tx *sql.Tx, rq sq.Builder) (*stdsql.Rows, error) {
	q, args := rq.BuildWithFlavor(s.flavor())

	r, err := tx.Query(q, args...)
	return r, errors.WithStack(err)
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	err := s.sdb.Do(ctx, func(tx *sql.Tx) error {
		q := sq.NewSelectBuilder().Select("data").From("locks")
		q.Where(q.Equal("lock_key", key))

		rows, err := s.query(tx, q)
		if err != nil {
			return errors.WithStack(err)
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return errors.WithStack(err)
			}
			return errors.WithStack(ErrNotExist)
		}
		if err := rows.Scan(&data); err != nil {
			return errors.WithStack(err)
		}

		return errors.WithStack(rows.Err())
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return data, nil
}

func (s *SQLStore) Put(ctx context.Context, record *types.LockRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return errors.WithStack(err)
	}

	err = s.sdb.Do(ctx, func(tx *sql.Tx) error {
		dq := sq.NewDeleteBuilder().DeleteFrom("locks")
		dq.Where(dq.Equal("lock_key", record.Key))
		if _, err := s.exec(tx, dq); err != nil {
			return errors.WithStack(err)
		}

		iq := sq.NewInsertBuilder().InsertInto("locks").Cols("lock_key", "token", "data").Values(record.Key, record.ID, data)
		if _, err := s.exec(tx, iq); err != nil {
			return errors.WithStack(err)
		}

		return nil
	})

	return errors.WithStack(err)
}

func (s *SQLStore) DeleteIfToken(ctx context.Context, key, token string) error {
	err := s.sdb.Do(ctx, func(tx *sql.Tx) error {
		q := sq.NewSelectBuilder().Select("token").From("locks")
		q.Where(q.Equal("lock_key", key))

		rows, err := s.query(tx, q)
		if err != nil {
			return errors.WithStack(err)
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return errors.WithStack(err)
			}
			return errors.WithStack(ErrNotExist)
		}

		var storedToken string
		if err := rows.Scan(&storedToken); err != nil {
			return errors.WithStack(err)
		}
		rows.Close()

		if storedToken != token {
			return errors.WithStack(ErrTokenMismatch)
		}

		dq := sq.NewDeleteBuilder().DeleteFrom("locks")
		dq.Where(dq.Equal("lock_key", key), dq.Equal("token", token))
		if _, err := s.exec(tx, dq); err != nil {
			return errors.WithStack(err)
		}

		return nil
	})

	return errors.WithStack(err)
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	var keys []string

	err := s.sdb.Do(ctx, func(tx *sql.Tx) error {
		keys = nil

		q := sq.NewSelectBuilder().Select("lock_key").From("locks").OrderBy("lock_key")

		rows, err := s.query(tx, q)
		if err != nil {
			return errors.WithStack(err)
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return errors.WithStack(err)
			}
			keys = append(keys, key)
		}

		return errors.WithStack(rows.Err())
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return keys, nil
}
