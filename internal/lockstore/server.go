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

	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/util"
	"github.com/sorintlab/lockwarden/services/lockserver/client"
	lsapitypes "github.com/sorintlab/lockwarden/services/lockserver/types"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

// ServerStore reads and writes lock records through a remote lockserver api.
type ServerStore struct {
	client *client.Client
}

func NewServerStore(client *client.Client) *ServerStore {
	return &ServerStore{client: client}
}

func (s *ServerStore) Get(ctx context.Context, key string) ([]byte, error) {
	lock, _, err := s.client.GetLock(ctx, key)
	if err != nil {
		if util.APIErrorIs(err, util.ErrNotExist) {
			return nil, errors.WithStack(ErrNotExist)
		}
		return nil, errors.WithStack(err)
	}

	return lock.Data, nil
}

func (s *ServerStore) Put(ctx context.Context, record *types.LockRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return errors.WithStack(err)
	}

	if _, err := s.client.SetLock(ctx, &lsapitypes.SetLockRequest{Key: record.Key, Data: data}); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (s *ServerStore) DeleteIfToken(ctx context.Context, key, token string) error {
	if _, err := s.client.ReleaseLock(ctx, key, token); err != nil {
		if util.APIErrorIs(err, util.ErrNotExist) {
			return errors.WithStack(ErrNotExist)
		}
		if util.APIErrorIs(err, util.ErrConflict) {
			return errors.WithStack(ErrTokenMismatch)
		}
		return errors.WithStack(err)
	}

	return nil
}

func (s *ServerStore) List(ctx context.Context) ([]string, error) {
	locks, _, err := s.client.GetLocks(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return locks.Keys, nil
}
