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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name       string
		components []string
		in         string
		err        string
	}{
		{
			name:       "test config for warden and lockserver",
			components: []string{"warden", "lockserver"},
			in: `
warden:
  store:
    type: db
    db:
      type: sqlite3
      connString: /data/lockwarden/db
  runSource:
    type: github
    token: supersecrettoken
    repoPath: example/infra
  artifactStorage:
    type: posix
    path: /data/terraform/states
  tokenSigning:
    method: hmac
    key: supersecretsigningkey

lockserver:
  web:
    listenAddress: ":4005"
  store:
    type: memory`,
		},
		{
			name:       "test config with global store",
			components: []string{"warden", "lockserver"},
			in: `
store:
  type: redis
  redisURL: "redis://localhost:6379"

lockserverAPIToken: internaltoken`,
		},
		{
			name:       "test config for warden without a store",
			components: []string{"warden"},
			in: `
warden:
  runSource:
    type: none`,
			err: "warden store configuration error: store type is empty",
		},
		{
			name:       "test config with unknown store type",
			components: []string{"warden"},
			in: `
warden:
  store:
    type: etcd`,
			err: `warden store configuration error: unknown store type "etcd"`,
		},
		{
			name:       "test config for github run source without repoPath",
			components: []string{"warden"},
			in: `
warden:
  store:
    type: memory
  runSource:
    type: github
    token: supersecrettoken`,
			err: "warden run source configuration error: github repoPath is empty",
		},
		{
			name:       "test config with invalid run ref pattern",
			components: []string{"warden"},
			in: `
warden:
  store:
    type: memory
  runSource:
    type: gitlab
    projectRef: "123"
    refPattern: "(\\d+"`,
			err: `warden run source configuration error: invalid run ref pattern "(\\d+": error parsing regexp: missing closing ): ` + "`(\\d+`",
		},
		{
			name:       "test config with zero stale threshold",
			components: []string{"warden"},
			in: `
warden:
  staleThreshold: 0s
  store:
    type: memory`,
			err: "warden staleThreshold must be greater than zero",
		},
		{
			name:       "test config with conservative window above stale threshold",
			components: []string{"warden"},
			in: `
warden:
  staleThreshold: 5m
  store:
    type: memory`,
			err: "warden conservativeWindow can't be greater than staleThreshold",
		},
		{
			name:       "test config for lockserver using a lockserver store",
			components: []string{"lockserver"},
			in: `
lockserver:
  store:
    type: lockserver
    lockserverURL: "http://localhost:4005"`,
			err: "lockserver can't use a lockserver store",
		},
		{
			name:       "test config for hmac token signing without key",
			components: []string{"warden"},
			in: `
warden:
  store:
    type: memory
  tokenSigning:
    method: hmac`,
			err: "warden token signing configuration error: empty token signing key for hmac method",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := filepath.Join(t.TempDir(), "config.yml")
			assert.NilError(t, os.WriteFile(configFile, []byte(tt.in), 0644))

			_, err := Parse(configFile, tt.components)
			if tt.err != "" {
				assert.Error(t, err, tt.err)
			} else {
				assert.NilError(t, err)
			}
		})
	}
}

func TestParseConfigDefaults(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yml")

	in := `
store:
  type: redis
  redisURL: "redis://localhost:6379"

lockserverAPIToken: internaltoken`

	assert.NilError(t, os.WriteFile(configFile, []byte(in), 0644))

	c, err := Parse(configFile, []string{"warden", "lockserver"})
	assert.NilError(t, err)

	assert.Equal(t, c.ID, "lockwarden")
	assert.Equal(t, c.Warden.StaleThreshold, 30*time.Minute)
	assert.Equal(t, c.Warden.ConservativeWindow, 10*time.Minute)
	assert.DeepEqual(t, c.Warden.FailureMarkers, []string{"cancelled", "canceled", "failed", "timeout"})
	assert.Equal(t, c.Warden.RunSource.LookupTimeout, 10*time.Second)
	assert.Equal(t, c.Warden.TokenSigning.Duration, 60*time.Minute)

	// the global store cascades into the warden store
	assert.Equal(t, c.Warden.Store.Type, StoreTypeRedis)
	assert.Equal(t, c.Warden.Store.RedisURL, "redis://localhost:6379")
	assert.Equal(t, c.Warden.Store.RequestTimeout, 10*time.Second)

	// the global api token cascades into the lockserver
	assert.Equal(t, c.Lockserver.APIToken, "internaltoken")
	assert.Equal(t, c.Lockserver.Web.ListenAddress, ":4005")
}
