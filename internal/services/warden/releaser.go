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

package warden

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

// Releaser removes lock records, verifying the holder token at every step.
type Releaser struct {
	log   zerolog.Logger
	store lockstore.Store
}

func NewReleaser(log zerolog.Logger, store lockstore.Store) *Releaser {
	return &Releaser{log: log, store: store}
}

// Release removes the record stored under key only when it's still held by
// token. The outcome reports what actually happened: released when the
// record was removed, notFound when no record was stored anymore, mismatch
// when the record is held by a different token and wasn't touched.
//
// After the delete the key is fetched again. Finding the same token still
// stored means the store is misbehaving and is reported as a fatal error. A
// different token just means a new lock was acquired right after the
// release.
func (r *Releaser) Release(ctx context.Context, key, token string) (types.ReleaseOutcome, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, lockstore.ErrNotExist) {
			return types.ReleaseOutcomeNotFound, nil
		}
		return "", errors.Wrapf(err, "failed to fetch lock record for key %q", key)
	}

	record, _ := lockstore.DecodeRecord(key, data)
	if record == nil || record.ID != token {
		return types.ReleaseOutcomeMismatch, nil
	}

	if err := r.store.DeleteIfToken(ctx, key, token); err != nil {
		switch {
		case errors.Is(err, lockstore.ErrNotExist):
			// released by someone else between the fetch and the delete
			return types.ReleaseOutcomeNotFound, nil
		case errors.Is(err, lockstore.ErrTokenMismatch):
			return types.ReleaseOutcomeMismatch, nil
		}
		return "", errors.Wrapf(err, "failed to delete lock record for key %q", key)
	}

	data, err = r.store.Get(ctx, key)
	if err == nil {
		if record, _ := lockstore.DecodeRecord(key, data); record != nil && record.ID == token {
			return "", errors.Errorf("lock record for key %q still present after release", key)
		}

		r.log.Info().Msgf("lock for key %q was reacquired right after the release", key)
		return types.ReleaseOutcomeReleased, nil
	}
	if !errors.Is(err, lockstore.ErrNotExist) {
		return "", errors.Wrapf(err, "failed to confirm release of lock record for key %q", key)
	}

	return types.ReleaseOutcomeReleased, nil
}
