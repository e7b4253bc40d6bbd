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
	"sync"

	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/services/warden/types"
)

// MemoryStore keeps lock record payloads in process memory. It's the
// default backend of the lockserver and it's also used by tests.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.locks[key]
	if !ok {
		return nil, errors.WithStack(ErrNotExist)
	}

	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Put(ctx context.Context, record *types.LockRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks[record.Key] = data

	return nil
}

func (s *MemoryStore) DeleteIfToken(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.locks[key]
	if !ok {
		return errors.WithStack(ErrNotExist)
	}

	record, _ := DecodeRecord(key, data)
	if record == nil || record.ID != token {
		return errors.WithStack(ErrTokenMismatch)
	}

	delete(s.locks, key)

	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.locks))
	for key := range s.locks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}
