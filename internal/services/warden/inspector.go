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

	"github.com/bmatcuk/doublestar"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

// Inspector observes lock records without modifying them.
type Inspector struct {
	log   zerolog.Logger
	store lockstore.Store
}

func NewInspector(log zerolog.Logger, store lockstore.Store) *Inspector {
	return &Inspector{log: log, store: store}
}

// Inspect fetches and decodes the record stored under key. An absent record
// yields a state with a nil Record. A store error is returned as is: a
// failed fetch means nothing can be said about the lock and the whole pass
// must fail instead of misreporting.
func (i *Inspector) Inspect(ctx context.Context, key string) (*types.LockState, error) {
	state := &types.LockState{Key: key}

	data, err := i.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, lockstore.ErrNotExist) {
			return state, nil
		}
		return nil, errors.Wrapf(err, "failed to fetch lock record for key %q", key)
	}

	state.Raw = data

	record, malformed := lockstore.DecodeRecord(key, data)
	state.Record = record
	state.Malformed = malformed
	if malformed {
		i.log.Warn().Msgf("lock record for key %q is malformed", key)
	}

	return state, nil
}

// ListKeys returns the stored keys matching the include patterns and not
// matching the exclude patterns. An empty include list matches every key.
func (i *Inspector) ListKeys(ctx context.Context, includeKeys, excludeKeys []string) ([]string, error) {
	keys, err := i.store.List(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list lock keys")
	}

	matched := []string{}
	for _, key := range keys {
		if len(includeKeys) > 0 && !i.matchKey(includeKeys, key) {
			continue
		}
		if i.matchKey(excludeKeys, key) {
			continue
		}
		matched = append(matched, key)
	}

	return matched, nil
}

func (i *Inspector) matchKey(patterns []string, key string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, key)
		if err != nil {
			i.log.Warn().Err(err).Msgf("invalid key pattern %q", pattern)
			continue
		}
		if ok {
			return true
		}
	}

	return false
}
