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
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/services/warden/types"
)

// delIfTokenScript deletes a key only when its payload decodes to a record
// held by the provided token. The compare and the delete run atomically
// server side. Returns -1 when the key doesn't exist, 0 on token mismatch or
// undecodable payload, 1 when deleted.
var delIfTokenScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if raw == false then
    return -1
end
local ok, rec = pcall(cjson.decode, raw)
if not ok or type(rec) ~= "table" or rec["ID"] ~= ARGV[1] then
    return 0
end
return redis.call("DEL", KEYS[1])
`)

// RedisStore keeps lock record payloads in redis, one key per record under a
// common prefix. Every operation is bounded by opTimeout when set, so a
// stalled redis can't hang a detection pass.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, opTimeout time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, opTimeout: opTimeout}
}

func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WithStack(ErrNotExist)
		}
		return nil, errors.WithStack(err)
	}

	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, record *types.LockRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return errors.WithStack(err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+record.Key, data, 0).Err(); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (s *RedisStore) DeleteIfToken(ctx context.Context, key, token string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := delIfTokenScript.Run(ctx, s.client, []string{s.prefix + key}, token).Int64()
	if err != nil {
		return errors.WithStack(err)
	}

	switch res {
	case -1:
		return errors.WithStack(ErrNotExist)
	case 0:
		return errors.WithStack(ErrTokenMismatch)
	}

	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	keys := []string{}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(keys)

	return keys, nil
}
