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
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/liveness"
	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/internal/objectstorage"
	scommon "github.com/sorintlab/lockwarden/internal/services/common"
	"github.com/sorintlab/lockwarden/internal/services/config"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

// Warden sequences lock inspection, staleness classification and approved
// release over the configured lock store. Every pass is a short-lived,
// sequential run: the only state shared with other invocations is the lock
// records themselves.
type Warden struct {
	log zerolog.Logger
	c   *config.Warden

	store      lockstore.Store
	inspector  *Inspector
	classifier *Classifier
	releaser   *Releaser
	sd         *GrantSigningData
	artifacts  objectstorage.Storage
}

func NewWarden(ctx context.Context, log zerolog.Logger, gc *config.Config) (*Warden, error) {
	c := &gc.Warden
	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	}

	store, err := scommon.NewLockStore(ctx, log, &c.Store)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to setup lock store")
	}

	source, err := scommon.NewRunSource(&c.RunSource)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to setup run source")
	}

	resolver, err := liveness.NewResolver(log, source, c.RunSource.RefPattern, c.RunSource.LookupTimeout)
	if err != nil {
		return nil, err
	}

	sd, err := NewGrantSigningData(&c.TokenSigning)
	if err != nil {
		return nil, err
	}

	artifacts, err := scommon.NewArtifactStorage(&c.ArtifactStorage)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to setup artifact storage")
	}

	return &Warden{
		log:        log,
		c:          c,
		store:      store,
		inspector:  NewInspector(log, store),
		classifier: NewClassifier(c.StaleThreshold, c.ConservativeWindow, c.FailureMarkers, resolver),
		releaser:   NewReleaser(log, store),
		sd:         sd,
		artifacts:  artifacts,
	}, nil
}

// GrantSigningData returns the configured grant signing data, nil when
// grants are disabled.
func (w *Warden) GrantSigningData() *GrantSigningData {
	return w.sd
}

// ListKeys returns the keys a full scan would evaluate, after the configured
// include and exclude filters.
func (w *Warden) ListKeys(ctx context.Context) ([]string, error) {
	return w.inspector.ListKeys(ctx, w.c.IncludeKeys, w.c.ExcludeKeys)
}

// Detect runs one detection pass over keys. An empty keys list scans the
// whole store, filtered by the configured include and exclude patterns.
//
// Tokens pending approval are exported only when the pass found stale locks
// and no active one: an active lock always takes precedence and stops the
// caller before any release can be considered.
func (w *Warden) Detect(ctx context.Context, keys []string) (*types.DetectionResult, error) {
	if len(keys) == 0 {
		var err error
		keys, err = w.inspector.ListKeys(ctx, w.c.IncludeKeys, w.c.ExcludeKeys)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()

	res := &types.DetectionResult{}
	for _, key := range keys {
		state, err := w.inspector.Inspect(ctx, key)
		if err != nil {
			return nil, err
		}
		w.classifier.Classify(ctx, state, now)

		w.log.Info().Msgf("lock for key %q classified %s: %s", key, state.Classification, state.Reason)

		res.Locks = append(res.Locks, state)

		switch state.Classification {
		case types.ClassificationActive:
			res.ActiveLocksFound = true
			res.LockCount++
		case types.ClassificationStale:
			res.StaleLocksFound = true
			res.LockCount++
		}
	}

	if res.StaleLocksFound && !res.ActiveLocksFound {
		for _, state := range res.Locks {
			if state.Classification != types.ClassificationStale {
				continue
			}
			if state.Record == nil || state.Record.ID == "" {
				continue
			}
			res.PendingTokens = append(res.PendingTokens, state.Record.ID)
		}
	}

	return res, nil
}

// Release runs one release pass over keys with the given approvals. Every
// lock is inspected and classified again first: a release only happens for a
// lock that still classifies stale and whose current token was approved.
// Approved tokens that no current lock holds report a not found outcome, the
// caller must re-run detection before proceeding.
func (w *Warden) Release(ctx context.Context, keys []string, approvals *Approvals) (*types.ReleaseResult, error) {
	det, err := w.Detect(ctx, keys)
	if err != nil {
		return nil, err
	}

	res := &types.ReleaseResult{AllReleased: true}

	matched := map[string]struct{}{}
	for _, state := range det.Locks {
		if state.Record == nil {
			continue
		}

		token := state.Record.ID
		if !approvals.Approved(token) {
			continue
		}
		matched[token] = struct{}{}

		release := &types.LockRelease{Key: state.Key, Token: token}
		res.Releases = append(res.Releases, release)

		if state.Classification != types.ClassificationStale {
			release.Outcome = types.ReleaseOutcomeRefused
			release.Reason = state.Reason
			res.AllReleased = false
			w.log.Warn().Msgf("refusing to release lock for key %q: %s", state.Key, state.Reason)
			continue
		}

		outcome, err := w.releaser.Release(ctx, state.Key, token)
		if err != nil {
			return nil, err
		}

		release.Outcome = outcome
		if outcome != types.ReleaseOutcomeReleased {
			release.Reason = "lock changed while the release was pending"
			res.AllReleased = false
		}
	}

	for _, token := range approvals.Tokens() {
		if _, ok := matched[token]; ok {
			continue
		}

		res.Releases = append(res.Releases, &types.LockRelease{
			Token:   token,
			Outcome: types.ReleaseOutcomeNotFound,
			Reason:  "no current lock holds this token",
		})
		res.AllReleased = false
	}

	return res, nil
}

// Show returns the classified state of key and, when artifact storage is
// configured, the info of the state artifact the lock guards. A missing or
// unreachable artifact is reported as nil info, never as an error.
func (w *Warden) Show(ctx context.Context, key string) (*types.LockState, *objectstorage.ObjectInfo, error) {
	state, err := w.inspector.Inspect(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	w.classifier.Classify(ctx, state, time.Now())

	var info *objectstorage.ObjectInfo
	if w.artifacts != nil {
		p := key
		if state.Record != nil && state.Record.Path != "" {
			p = state.Record.Path
		}

		oi, err := w.artifacts.Stat(ctx, p)
		if err != nil {
			if !objectstorage.IsNotExist(err) {
				w.log.Warn().Err(err).Msgf("failed to stat artifact %q", p)
			}
		} else {
			info = oi
		}
	}

	return state, info, nil
}
