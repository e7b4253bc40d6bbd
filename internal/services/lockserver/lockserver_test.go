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

package lockserver

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/internal/services/config"
	"github.com/sorintlab/lockwarden/internal/testutil"
	"github.com/sorintlab/lockwarden/internal/util"
	lsclient "github.com/sorintlab/lockwarden/services/lockserver/client"
	lsapitypes "github.com/sorintlab/lockwarden/services/lockserver/types"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

const testAPIToken = "testlockservertoken"

// setupLockserver starts a lockserver with a memory store on a free local
// port and waits for the api to answer.
func setupLockserver(ctx context.Context, t *testing.T, log zerolog.Logger) string {
	ip, port, err := testutil.GetFreePort()
	testutil.NilError(t, err)

	listenAddress := net.JoinHostPort(ip, port)
	apiURL := fmt.Sprintf("http://%s", listenAddress)

	gc := &config.Config{
		Lockserver: config.Lockserver{
			Web: config.Web{
				ListenAddress: listenAddress,
			},
			Store: config.Store{
				Type: config.StoreTypeMemory,
			},
			APIToken:      testAPIToken,
			AdvertisedURL: apiURL,
		},
	}

	ls, err := NewLockserver(ctx, log, gc)
	testutil.NilError(t, err)

	go func() { _ = ls.Run(ctx) }()

	lc := lsclient.NewClient(apiURL, testAPIToken)
	err = testutil.Wait(10*time.Second, func() (bool, error) {
		if _, _, err := lc.GetLocks(ctx); err != nil {
			return false, nil
		}
		return true, nil
	})
	testutil.NilError(t, err)

	return apiURL
}

func TestAPI(t *testing.T) {
	t.Parallel()

	log := testutil.NewLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiURL := setupLockserver(ctx, t, log)
	lc := lsclient.NewClient(apiURL, testAPIToken)

	key := "env:/prod/app1.tfstate"

	locks, _, err := lc.GetLocks(ctx)
	testutil.NilError(t, err)

	assert.Assert(t, cmp.Len(locks.Keys, 0))

	// acquire without a token, the server must generate one
	submitted := &types.LockRecord{
		Key:       key,
		Operation: types.OperationApply,
		Who:       "runner-42",
		Created:   time.Now().UTC(),
		Path:      key,
	}
	data, err := lockstore.EncodeRecord(submitted)
	testutil.NilError(t, err)

	lock, _, err := lc.AcquireLock(ctx, &lsapitypes.AcquireLockRequest{Key: key, Data: data})
	testutil.NilError(t, err)

	record, malformed := lockstore.DecodeRecord(key, lock.Data)
	assert.Assert(t, !malformed)
	assert.Assert(t, record.ID != "")

	token := record.ID

	// acquiring an already held key must report a conflict
	_, _, err = lc.AcquireLock(ctx, &lsapitypes.AcquireLockRequest{Key: key, Data: data})
	assert.Assert(t, util.APIErrorIs(err, util.ErrConflict), "expected conflict error, got: %v", err)

	lock, _, err = lc.GetLock(ctx, key)
	testutil.NilError(t, err)

	record, malformed = lockstore.DecodeRecord(key, lock.Data)
	assert.Assert(t, !malformed)
	assert.Equal(t, record.ID, token)
	assert.DeepEqual(t, record, submitted, cmpopts.IgnoreFields(types.LockRecord{}, "ID"))

	locks, _, err = lc.GetLocks(ctx)
	testutil.NilError(t, err)

	assert.DeepEqual(t, locks.Keys, []string{key})

	// releasing with the wrong token must fail and keep the lock
	_, err = lc.ReleaseLock(ctx, key, "b2b2b2")
	assert.Assert(t, util.APIErrorIs(err, util.ErrConflict), "expected conflict error, got: %v", err)

	_, _, err = lc.GetLock(ctx, key)
	testutil.NilError(t, err)

	_, err = lc.ReleaseLock(ctx, key, token)
	testutil.NilError(t, err)

	_, _, err = lc.GetLock(ctx, key)
	assert.Assert(t, util.APIErrorIs(err, util.ErrNotExist), "expected not exist error, got: %v", err)

	_, err = lc.ReleaseLock(ctx, key, token)
	assert.Assert(t, util.APIErrorIs(err, util.ErrNotExist), "expected not exist error, got: %v", err)
}

func TestAPIBadRequest(t *testing.T) {
	t.Parallel()

	log := testutil.NewLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiURL := setupLockserver(ctx, t, log)
	lc := lsclient.NewClient(apiURL, testAPIToken)

	// empty key
	_, _, err := lc.AcquireLock(ctx, &lsapitypes.AcquireLockRequest{Key: "", Data: []byte(`{"ID": "abc123"}`)})
	assert.Assert(t, util.APIErrorIs(err, util.ErrBadRequest), "expected bad request error, got: %v", err)

	// payload that isn't a json lock record
	_, _, err = lc.AcquireLock(ctx, &lsapitypes.AcquireLockRequest{Key: "env:/prod/app1.tfstate", Data: []byte("not a lock record")})
	assert.Assert(t, util.APIErrorIs(err, util.ErrBadRequest), "expected bad request error, got: %v", err)

	_, _, err = lc.GetLock(ctx, "")
	assert.Assert(t, util.APIErrorIs(err, util.ErrBadRequest), "expected bad request error, got: %v", err)

	_, err = lc.ReleaseLock(ctx, "env:/prod/app1.tfstate", "")
	assert.Assert(t, util.APIErrorIs(err, util.ErrBadRequest), "expected bad request error, got: %v", err)
}

func TestAPIAuth(t *testing.T) {
	t.Parallel()

	log := testutil.NewLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiURL := setupLockserver(ctx, t, log)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "no token",
			token: "",
		},
		{
			name:  "wrong token",
			token: "wrongtoken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := lsclient.NewClient(apiURL, tt.token)

			_, _, err := lc.GetLocks(ctx)
			assert.Assert(t, util.APIErrorIs(err, util.ErrUnauthorized), "expected unauthorized error, got: %v", err)
		})
	}
}

// TestServerStore runs the warden side store adapter against a live
// lockserver.
func TestServerStore(t *testing.T) {
	t.Parallel()

	log := testutil.NewLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiURL := setupLockserver(ctx, t, log)
	store := lockstore.NewServerStore(lsclient.NewClient(apiURL, testAPIToken))

	key := "env:/prod/app2.tfstate"

	_, err := store.Get(ctx, key)
	assert.Assert(t, errors.Is(err, lockstore.ErrNotExist))

	record := &types.LockRecord{
		Key:       key,
		ID:        "abc123",
		Operation: types.OperationPlan,
		Who:       "runner-42",
		Created:   time.Now().UTC(),
		Version:   "1.9.4",
		Path:      key,
	}

	err = store.Put(ctx, record)
	testutil.NilError(t, err)

	data, err := store.Get(ctx, key)
	testutil.NilError(t, err)

	got, malformed := lockstore.DecodeRecord(key, data)
	assert.Assert(t, !malformed)
	assert.DeepEqual(t, got, record)

	keys, err := store.List(ctx)
	testutil.NilError(t, err)

	assert.DeepEqual(t, keys, []string{key})

	err = store.DeleteIfToken(ctx, key, "b2b2b2")
	assert.Assert(t, errors.Is(err, lockstore.ErrTokenMismatch))

	err = store.DeleteIfToken(ctx, key, "abc123")
	testutil.NilError(t, err)

	err = store.DeleteIfToken(ctx, key, "abc123")
	assert.Assert(t, errors.Is(err, lockstore.ErrNotExist))
}
