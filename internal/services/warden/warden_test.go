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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/sorintlab/lockwarden/internal/liveness"
	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/internal/objectstorage"
	"github.com/sorintlab/lockwarden/internal/services/config"
	"github.com/sorintlab/lockwarden/internal/testutil"
	"github.com/sorintlab/lockwarden/internal/util"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

func newTestWarden(log zerolog.Logger, store lockstore.Store, oracle liveness.Oracle) *Warden {
	c := &config.Warden{
		StaleThreshold:     30 * time.Minute,
		ConservativeWindow: 10 * time.Minute,
		FailureMarkers:     testFailureMarkers,
	}

	return &Warden{
		log:        log,
		c:          c,
		store:      store,
		inspector:  NewInspector(log, store),
		classifier: NewClassifier(c.StaleThreshold, c.ConservativeWindow, c.FailureMarkers, oracle),
		releaser:   NewReleaser(log, store),
	}
}

func TestNewWarden(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := testutil.NewLogger(t)

	t.Run("memory store", func(t *testing.T) {
		w, err := NewWarden(ctx, log, &config.Config{
			Warden: config.Warden{
				StaleThreshold:     30 * time.Minute,
				ConservativeWindow: 10 * time.Minute,
				Store:              config.Store{Type: config.StoreTypeMemory},
			},
		})
		testutil.NilError(t, err)

		assert.Assert(t, w.sd == nil)
		assert.Assert(t, w.artifacts == nil)
	})

	t.Run("unknown store type", func(t *testing.T) {
		_, err := NewWarden(ctx, log, &config.Config{
			Warden: config.Warden{Store: config.Store{Type: "etcd"}},
		})
		assert.ErrorContains(t, err, `unknown store type "etcd"`)
	})

	t.Run("invalid redis url", func(t *testing.T) {
		_, err := NewWarden(ctx, log, &config.Config{
			Warden: config.Warden{Store: config.Store{Type: config.StoreTypeRedis, RedisURL: "://"}},
		})
		assert.ErrorContains(t, err, "failed to parse redis url")
	})

	t.Run("github run source", func(t *testing.T) {
		_, err := NewWarden(ctx, log, &config.Config{
			Warden: config.Warden{
				Store: config.Store{Type: config.StoreTypeMemory},
				RunSource: config.RunSource{
					Type:     config.RunSourceTypeGitHub,
					Token:    "token",
					RepoPath: "org/repo",
				},
			},
		})
		testutil.NilError(t, err)
	})

	t.Run("github run source with a wrong repo path", func(t *testing.T) {
		_, err := NewWarden(ctx, log, &config.Config{
			Warden: config.Warden{
				Store: config.Store{Type: config.StoreTypeMemory},
				RunSource: config.RunSource{
					Type:     config.RunSourceTypeGitHub,
					RepoPath: "org",
				},
			},
		})
		assert.ErrorContains(t, err, `invalid github repository path "org"`)
	})

	t.Run("posix artifact storage", func(t *testing.T) {
		w, err := NewWarden(ctx, log, &config.Config{
			Warden: config.Warden{
				Store:           config.Store{Type: config.StoreTypeMemory},
				ArtifactStorage: config.ObjectStorage{Type: config.ObjectStorageTypePosix, Path: t.TempDir()},
			},
		})
		testutil.NilError(t, err)

		assert.Assert(t, w.artifacts != nil)
	})
}

func TestDetect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := testutil.NewLogger(t)

	key1 := "env:/prod/app1.tfstate"
	key2 := "env:/prod/app2.tfstate"

	t.Run("no locks", func(t *testing.T) {
		w := newTestWarden(log, lockstore.NewMemoryStore(), nil)

		res, err := w.Detect(ctx, []string{key1})
		testutil.NilError(t, err)

		assert.Assert(t, cmp.Len(res.Locks, 1))
		assert.Equal(t, res.Locks[0].Classification, types.ClassificationNone)
		assert.Assert(t, !res.ActiveLocksFound)
		assert.Assert(t, !res.StaleLocksFound)
		assert.Equal(t, res.LockCount, 0)
		assert.Assert(t, cmp.Len(res.PendingTokens, 0))
	})

	t.Run("stale lock exports pending token", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		record := releaseTestRecord(key1, "abc123")
		testutil.NilError(t, store.Put(ctx, record))

		w := newTestWarden(log, store, nil)

		res, err := w.Detect(ctx, []string{key1})
		testutil.NilError(t, err)

		assert.Assert(t, res.StaleLocksFound)
		assert.Assert(t, !res.ActiveLocksFound)
		assert.Equal(t, res.LockCount, 1)
		assert.DeepEqual(t, res.PendingTokens, []string{"abc123"})
	})

	t.Run("active lock", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		record := releaseTestRecord(key1, "abc123")
		record.Created = time.Now().Add(-5 * time.Minute)
		testutil.NilError(t, store.Put(ctx, record))

		w := newTestWarden(log, store, nil)

		res, err := w.Detect(ctx, []string{key1})
		testutil.NilError(t, err)

		assert.Assert(t, res.ActiveLocksFound)
		assert.Assert(t, !res.StaleLocksFound)
		assert.Equal(t, res.LockCount, 1)
		assert.Assert(t, cmp.Len(res.PendingTokens, 0))
	})

	t.Run("active lock holds the approval gate closed", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		stale := releaseTestRecord(key1, "abc123")
		testutil.NilError(t, store.Put(ctx, stale))
		active := releaseTestRecord(key2, "def456")
		active.Created = time.Now().Add(-5 * time.Minute)
		testutil.NilError(t, store.Put(ctx, active))

		w := newTestWarden(log, store, nil)

		res, err := w.Detect(ctx, []string{key1, key2})
		testutil.NilError(t, err)

		assert.Assert(t, res.ActiveLocksFound)
		assert.Assert(t, res.StaleLocksFound)
		assert.Equal(t, res.LockCount, 2)
		assert.Assert(t, cmp.Len(res.PendingTokens, 0))
	})

	t.Run("multiple stale locks export every token", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key1, "abc123")))
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key2, "def456")))

		w := newTestWarden(log, store, nil)

		res, err := w.Detect(ctx, []string{key1, key2})
		testutil.NilError(t, err)

		assert.DeepEqual(t, res.PendingTokens, []string{"abc123", "def456"})
	})

	t.Run("undecodable record counts as active", func(t *testing.T) {
		store := newRawStore()
		store.locks[key1] = []byte("not a lock record")

		w := newTestWarden(log, store, nil)

		res, err := w.Detect(ctx, []string{key1})
		testutil.NilError(t, err)

		assert.Assert(t, res.ActiveLocksFound)
		assert.Equal(t, res.Locks[0].Reason, ReasonMalformedRecord)
		assert.Assert(t, cmp.Len(res.PendingTokens, 0))
	})

	t.Run("stale lock without token stays pending forever", func(t *testing.T) {
		store := newRawStore()
		store.locks[key1] = []byte(`{"Who": "runner-42"}`)

		w := newTestWarden(log, store, nil)

		res, err := w.Detect(ctx, []string{key1})
		testutil.NilError(t, err)

		assert.Assert(t, res.StaleLocksFound)
		assert.Assert(t, cmp.Len(res.PendingTokens, 0))
	})

	t.Run("full scan honors key filters", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key1, "abc123")))
		testutil.NilError(t, store.Put(ctx, releaseTestRecord("env:/staging/app1.tfstate", "def456")))

		w := newTestWarden(log, store, nil)
		w.c.IncludeKeys = []string{"env:/prod/**"}

		res, err := w.Detect(ctx, nil)
		testutil.NilError(t, err)

		assert.Assert(t, cmp.Len(res.Locks, 1))
		assert.Equal(t, res.Locks[0].Key, key1)
	})

	t.Run("store failure aborts the pass", func(t *testing.T) {
		store := newRawStore()
		store.getErr = errors.New("connection refused")

		w := newTestWarden(log, store, nil)

		_, err := w.Detect(ctx, []string{key1})
		assert.ErrorContains(t, err, "failed to fetch lock record")
	})
}

func TestClassifyFixtures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := testutil.NewLogger(t)

	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	records := testutil.LoadLockFixtures(t, filepath.Join("fixtures", "locks.jsonc"))

	store := lockstore.NewMemoryStore()
	for _, record := range records {
		testutil.NilError(t, store.Put(ctx, record))
	}

	inspector := NewInspector(log, store)
	classifier := NewClassifier(30*time.Minute, 10*time.Minute, testFailureMarkers, nil)

	expected := map[string]struct {
		classification types.Classification
		reason         string
	}{
		"env:/prod/app1.tfstate":     {types.ClassificationStale, ReasonAgeExceeded},
		"env:/prod/app2.tfstate":     {types.ClassificationActive, ReasonRecentLock},
		"env:/staging/app1.tfstate":  {types.ClassificationStale, ReasonAgeExceeded},
		"project/networking.tfstate": {types.ClassificationStale, ReasonOriginatorFailed},
	}

	keys, err := inspector.ListKeys(ctx, nil, nil)
	testutil.NilError(t, err)
	assert.Equal(t, len(keys), len(expected))

	for _, key := range keys {
		state, err := inspector.Inspect(ctx, key)
		testutil.NilError(t, err)

		classifier.Classify(ctx, state, now)

		assert.Equal(t, state.Classification, expected[key].classification, key)
		assert.Equal(t, state.Reason, expected[key].reason, key)
	}
}

func TestReleasePass(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := testutil.NewLogger(t)

	key := "env:/prod/app1.tfstate"

	t.Run("detected stale lock gets released after approval", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		record := &types.LockRecord{
			Key:       key,
			ID:        "abc123",
			Operation: types.OperationPlan,
			Who:       "runner-42 (cancelled)",
			Created:   time.Now().Add(-40 * time.Minute),
			Version:   "1.9.4",
			Path:      key,
		}
		testutil.NilError(t, store.Put(ctx, record))

		w := newTestWarden(log, store, nil)

		det, err := w.Detect(ctx, []string{key})
		testutil.NilError(t, err)

		t.Logf("detection result: %s", util.Dump(det))

		assert.Equal(t, det.Locks[0].Classification, types.ClassificationStale)
		assert.Equal(t, det.Locks[0].Reason, ReasonAgeExceeded)
		assert.DeepEqual(t, det.PendingTokens, []string{"abc123"})

		res, err := w.Release(ctx, []string{key}, NewApprovals(det.PendingTokens...))
		testutil.NilError(t, err)

		assert.Assert(t, res.AllReleased)
		assert.Assert(t, cmp.Len(res.Releases, 1))
		assert.Equal(t, res.Releases[0].Outcome, types.ReleaseOutcomeReleased)

		_, err = store.Get(ctx, key)
		assert.Assert(t, errors.Is(err, lockstore.ErrNotExist))
	})

	t.Run("active lock is refused even when approved", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		record := releaseTestRecord(key, "abc123")
		record.Created = time.Now().Add(-5 * time.Minute)
		testutil.NilError(t, store.Put(ctx, record))

		w := newTestWarden(log, store, nil)

		res, err := w.Release(ctx, []string{key}, NewApprovals("abc123"))
		testutil.NilError(t, err)

		assert.Assert(t, !res.AllReleased)
		assert.Assert(t, cmp.Len(res.Releases, 1))
		assert.Equal(t, res.Releases[0].Outcome, types.ReleaseOutcomeRefused)
		assert.Equal(t, res.Releases[0].Reason, ReasonRecentLock)

		_, err = store.Get(ctx, key)
		testutil.NilError(t, err)
	})

	t.Run("reacquired lock is left untouched", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key, "b2b2b2")))

		w := newTestWarden(log, store, nil)

		res, err := w.Release(ctx, []string{key}, NewApprovals("abc123"))
		testutil.NilError(t, err)

		assert.Assert(t, !res.AllReleased)
		assert.Assert(t, cmp.Len(res.Releases, 1))
		assert.Equal(t, res.Releases[0].Token, "abc123")
		assert.Equal(t, res.Releases[0].Outcome, types.ReleaseOutcomeNotFound)

		data, err := store.Get(ctx, key)
		testutil.NilError(t, err)

		current, malformed := lockstore.DecodeRecord(key, data)
		assert.Assert(t, !malformed)
		assert.Equal(t, current.ID, "b2b2b2")
	})

	t.Run("approved token nothing holds reports not found", func(t *testing.T) {
		store := lockstore.NewMemoryStore()

		w := newTestWarden(log, store, nil)

		res, err := w.Release(ctx, []string{key}, NewApprovals("abc123"))
		testutil.NilError(t, err)

		assert.Assert(t, !res.AllReleased)
		assert.Assert(t, cmp.Len(res.Releases, 1))
		assert.Equal(t, res.Releases[0].Outcome, types.ReleaseOutcomeNotFound)
	})

	t.Run("unapproved stale locks are left alone", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key, "abc123")))
		testutil.NilError(t, store.Put(ctx, releaseTestRecord("env:/prod/app2.tfstate", "def456")))

		w := newTestWarden(log, store, nil)

		res, err := w.Release(ctx, []string{key, "env:/prod/app2.tfstate"}, NewApprovals("abc123"))
		testutil.NilError(t, err)

		assert.Assert(t, res.AllReleased)
		assert.Assert(t, cmp.Len(res.Releases, 1))
		assert.Equal(t, res.Releases[0].Key, key)
		assert.Equal(t, res.Releases[0].Outcome, types.ReleaseOutcomeReleased)

		_, err = store.Get(ctx, "env:/prod/app2.tfstate")
		testutil.NilError(t, err)
	})
}

func TestShow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := testutil.NewLogger(t)

	key := "env:/prod/app1.tfstate"

	t.Run("without artifact storage", func(t *testing.T) {
		store := lockstore.NewMemoryStore()
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key, "abc123")))

		w := newTestWarden(log, store, nil)

		state, info, err := w.Show(ctx, key)
		testutil.NilError(t, err)

		assert.Equal(t, state.Classification, types.ClassificationStale)
		assert.Assert(t, info == nil)
	})

	t.Run("with artifact storage", func(t *testing.T) {
		dataDir := t.TempDir()
		testutil.NilError(t, os.MkdirAll(filepath.Join(dataDir, "env:", "prod"), 0o755))
		testutil.NilError(t, os.WriteFile(filepath.Join(dataDir, key), []byte(`{"serial": 7}`), 0o644))

		artifacts, err := objectstorage.NewPosix(dataDir)
		testutil.NilError(t, err)

		store := lockstore.NewMemoryStore()
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key, "abc123")))

		w := newTestWarden(log, store, nil)
		w.artifacts = artifacts

		state, info, err := w.Show(ctx, key)
		testutil.NilError(t, err)

		assert.Equal(t, state.Classification, types.ClassificationStale)
		assert.Assert(t, info != nil)
		assert.Equal(t, info.Size, int64(13))
	})

	t.Run("missing artifact", func(t *testing.T) {
		artifacts, err := objectstorage.NewPosix(t.TempDir())
		testutil.NilError(t, err)

		store := lockstore.NewMemoryStore()
		testutil.NilError(t, store.Put(ctx, releaseTestRecord(key, "abc123")))

		w := newTestWarden(log, store, nil)
		w.artifacts = artifacts

		_, info, err := w.Show(ctx, key)
		testutil.NilError(t, err)

		assert.Assert(t, info == nil)
	})
}
