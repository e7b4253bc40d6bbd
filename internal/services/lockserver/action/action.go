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

package action

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/lock"
	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/internal/util"
)

type ActionHandler struct {
	log   zerolog.Logger
	store lockstore.Store
	lf    lock.LockFactory
}

func NewActionHandler(log zerolog.Logger, store lockstore.Store, lf lock.LockFactory) *ActionHandler {
	return &ActionHandler{
		log:   log,
		store: store,
		lf:    lf,
	}
}

func (h *ActionHandler) GetLocks(ctx context.Context) ([]string, error) {
	keys, err := h.store.List(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return keys, nil
}

func (h *ActionHandler) GetLock(ctx context.Context, key string) ([]byte, error) {
	data, err := h.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, lockstore.ErrNotExist) {
			return nil, util.NewAPIError(util.ErrNotExist, err)
		}
		return nil, errors.WithStack(err)
	}

	return data, nil
}

// AcquireLock stores the provided record payload under key, failing when a
// record already exists. A record without a token gets a generated one. It
// returns the stored payload so the caller learns the token it must present
// to release.
func (h *ActionHandler) AcquireLock(ctx context.Context, key string, data []byte) ([]byte, error) {
	record, _ := lockstore.DecodeRecord(key, data)
	if record == nil {
		return nil, util.NewAPIError(util.ErrBadRequest, errors.Errorf("cannot decode lock record for key %q", key))
	}
	if record.ID == "" {
		record.ID = uuid.Must(uuid.NewV4()).String()
	}

	l := h.lf.NewLock(key)
	if err := l.Lock(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to acquire key lock for key %q", key)
	}
	defer func() { _ = l.Unlock() }()

	if _, err := h.store.Get(ctx, key); err == nil {
		return nil, util.NewAPIError(util.ErrConflict, errors.Errorf("lock for key %q already held", key))
	} else if !errors.Is(err, lockstore.ErrNotExist) {
		return nil, errors.WithStack(err)
	}

	if err := h.store.Put(ctx, record); err != nil {
		return nil, errors.WithStack(err)
	}

	h.log.Info().Msgf("acquired lock for key %q with token %q", key, record.ID)

	rdata, err := lockstore.EncodeRecord(record)

	return rdata, errors.WithStack(err)
}

// SetLock stores the provided record payload under key, overwriting any
// previous record. It's meant for fixtures and migrations, the acquiring
// tool must use AcquireLock.
func (h *ActionHandler) SetLock(ctx context.Context, key string, data []byte) error {
	record, _ := lockstore.DecodeRecord(key, data)
	if record == nil {
		return util.NewAPIError(util.ErrBadRequest, errors.Errorf("cannot decode lock record for key %q", key))
	}

	l := h.lf.NewLock(key)
	if err := l.Lock(ctx); err != nil {
		return errors.Wrapf(err, "failed to acquire key lock for key %q", key)
	}
	defer func() { _ = l.Unlock() }()

	if err := h.store.Put(ctx, record); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (h *ActionHandler) ReleaseLock(ctx context.Context, key, token string) error {
	l := h.lf.NewLock(key)
	if err := l.Lock(ctx); err != nil {
		return errors.Wrapf(err, "failed to acquire key lock for key %q", key)
	}
	defer func() { _ = l.Unlock() }()

	if err := h.store.DeleteIfToken(ctx, key, token); err != nil {
		if errors.Is(err, lockstore.ErrNotExist) {
			return util.NewAPIError(util.ErrNotExist, err)
		}
		if errors.Is(err, lockstore.ErrTokenMismatch) {
			return util.NewAPIError(util.ErrConflict, err)
		}
		return errors.WithStack(err)
	}

	h.log.Info().Msgf("released lock for key %q with token %q", key, token)

	return nil
}
