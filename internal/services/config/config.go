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
	"regexp"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/sorintlab/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/sorintlab/lockwarden/internal/sql"
	"github.com/sorintlab/lockwarden/internal/util"
)

const (
	maxIDLength = 20
)

type Config struct {
	// ID defines the lockwarden installation id. It's used to uniquely
	// distinguish it from other installations
	// Defaults to "lockwarden"
	ID string `yaml:"id"`

	Warden     Warden     `yaml:"warden"`
	Lockserver Lockserver `yaml:"lockserver"`

	// Store is the global lock store configuration, used by every component
	// without its own store configuration
	Store Store `yaml:"store"`

	// Global lockserver connection values to avoid repeating them for every
	// component
	LockserverURL      string `yaml:"lockserverURL"`
	LockserverAPIToken string `yaml:"lockserverAPIToken"`
}

type Warden struct {
	Debug bool `yaml:"debug"`

	// StaleThreshold is the age beyond which a lock whose originating job
	// cannot be proven alive is classified as stale
	StaleThreshold time.Duration `yaml:"staleThreshold"`

	// ConservativeWindow is the age below which a lock is kept active when
	// nothing proves it stale
	ConservativeWindow time.Duration `yaml:"conservativeWindow"`

	// FailureMarkers are the holder substrings marking the originating job
	// as failed or aborted. Matched case insensitively.
	FailureMarkers []string `yaml:"failureMarkers"`

	// Keys are the resource keys evaluated when an invocation doesn't name
	// any on the command line.
	Keys []string `yaml:"keys"`

	// IncludeKeys and ExcludeKeys filter the keys observed by full store
	// scans. Both accept glob patterns ("env:/prod/**"). An empty include
	// list means every key.
	IncludeKeys []string `yaml:"includeKeys"`
	ExcludeKeys []string `yaml:"excludeKeys"`

	Store Store `yaml:"store"`

	RunSource RunSource `yaml:"runSource"`

	// ArtifactStorage gives read access to the state artifacts guarded by
	// the locks. Optional, only used for reporting.
	ArtifactStorage ObjectStorage `yaml:"artifactStorage"`

	// Outputs configures where detection outputs for the invoking pipeline
	// are written when no explicit outputs file is requested.
	Outputs Outputs `yaml:"outputs"`

	// TokenSigning configures approval grant signing. When unset grants are
	// disabled and approvals must be passed as plain lock tokens.
	TokenSigning TokenSigning `yaml:"tokenSigning"`
}

type Lockserver struct {
	Debug bool `yaml:"debug"`

	Web Web `yaml:"web"`

	Store Store `yaml:"store"`

	APIToken string `yaml:"apiToken"`

	// AdvertisedURL is the url advertised to api clients. When empty it's
	// derived from the first private ip and the web listen port.
	AdvertisedURL string `yaml:"advertisedURL"`
}

type StoreType string

const (
	StoreTypeMemory     StoreType = "memory"
	StoreTypeRedis      StoreType = "redis"
	StoreTypeDB         StoreType = "db"
	StoreTypeLockserver StoreType = "lockserver"
)

type Store struct {
	Type StoreType `yaml:"type"`

	// RequestTimeout bounds every single store operation
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// db
	DB DB `yaml:"db"`

	// redis
	RedisURL       string `yaml:"redisURL"`
	RedisKeyPrefix string `yaml:"redisKeyPrefix"`

	// lockserver
	LockserverURL      string `yaml:"lockserverURL"`
	LockserverAPIToken string `yaml:"lockserverAPIToken"`
}

type DB struct {
	Type       sql.Type `yaml:"type"`
	ConnString string   `yaml:"connString"`
}

type RunSourceType string

const (
	RunSourceTypeNone   RunSourceType = "none"
	RunSourceTypeGitHub RunSourceType = "github"
	RunSourceTypeGitLab RunSourceType = "gitlab"
)

type RunSource struct {
	Type RunSourceType `yaml:"type"`

	// RefPattern extracts the run id from the lock holder field. The first
	// capture group is used when present, the whole match otherwise.
	RefPattern string `yaml:"refPattern"`

	// LookupTimeout bounds a single run liveness lookup
	LookupTimeout time.Duration `yaml:"lookupTimeout"`

	APIURL     string `yaml:"apiURL"`
	Token      string `yaml:"token"`
	SkipVerify bool   `yaml:"skipVerify"`

	// github: the repository the workflow runs belong to, in "owner/name" form
	RepoPath string `yaml:"repoPath"`

	// gitlab: the numeric project id or the "group/project" path
	ProjectRef string `yaml:"projectRef"`
}

type ObjectStorageType string

const (
	ObjectStorageTypePosix ObjectStorageType = "posix"
	ObjectStorageTypeS3    ObjectStorageType = "s3"
)

type ObjectStorage struct {
	Type ObjectStorageType `yaml:"type"`

	// Posix
	Path string `yaml:"path"`

	// S3
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Location        string `yaml:"location"`
	AccessKey       string `yaml:"accessKey"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	DisableTLS      bool   `yaml:"disableTLS"`
}

type Outputs struct {
	// File is the file the pipeline outputs are appended to ($GITHUB_OUTPUT
	// style). Outputs go to stdout when empty.
	File string `yaml:"file"`

	// DetailsTemplate overrides the builtin lock details template. Parsed
	// with the sprig function map and executed against the lock states.
	DetailsTemplate string `yaml:"detailsTemplate"`
}

type TokenSigning struct {
	// grant duration (defaults to 60 minutes)
	Duration time.Duration `yaml:"duration"`
	// signing method: "hmac" or "rsa"
	Method string `yaml:"method"`
	// signing key. Used only with HMAC signing method
	Key string `yaml:"key"`
	// path to a file containing a pem encoded private key. Used only with RSA signing method
	PrivateKeyPath string `yaml:"privateKeyPath"`
	// path to a file containing a pem encoded public key. Used only with RSA signing method
	PublicKeyPath string `yaml:"publicKeyPath"`
}

type Web struct {
	// http listen addess
	ListenAddress string `yaml:"listenAddress"`

	// use TLS (https)
	TLS bool `yaml:"tls"`
	// TLSCert is the path to the pem formatted server certificate. If the
	// certificate is signed by a certificate authority, the certFile should be
	// the concatenation of the server's certificate, any intermediates, and the
	// CA's certificate.
	TLSCertFile string `yaml:"tlsCertFile"`
	// Server cert private key
	TLSKeyFile string `yaml:"tlsKeyFile"`

	// CORS allowed origins
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

var defaultConfig = func() *Config {
	return &Config{
		ID: "lockwarden",
		Warden: Warden{
			StaleThreshold:     30 * time.Minute,
			ConservativeWindow: 10 * time.Minute,
			FailureMarkers:     []string{"cancelled", "canceled", "failed", "timeout"},
			RunSource: RunSource{
				Type:          RunSourceTypeNone,
				LookupTimeout: 10 * time.Second,
			},
			TokenSigning: TokenSigning{
				Duration: 60 * time.Minute,
			},
		},
		Lockserver: Lockserver{
			Web: Web{
				ListenAddress: ":4005",
			},
		},
	}
}

func Parse(configFile string, componentsNames []string) (*Config, error) {
	configData, err := os.ReadFile(configFile)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := defaultConfig()
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return nil, errors.WithStack(err)
	}

	// Use the global store for components without their own store. A global
	// lockserver store never cascades into the lockserver itself, which
	// falls back to a memory store.
	if c.Warden.Store.Type == "" {
		c.Warden.Store = c.Store
	}
	if c.Lockserver.Store.Type == "" && c.Store.Type != StoreTypeLockserver {
		c.Lockserver.Store = c.Store
	}
	if c.Lockserver.Store.Type == "" {
		c.Lockserver.Store.Type = StoreTypeMemory
	}

	// Use global lockserver connection values if component values are empty
	if c.Warden.Store.LockserverURL == "" {
		c.Warden.Store.LockserverURL = c.LockserverURL
	}
	if c.Warden.Store.LockserverAPIToken == "" {
		c.Warden.Store.LockserverAPIToken = c.LockserverAPIToken
	}
	if c.Lockserver.APIToken == "" {
		c.Lockserver.APIToken = c.LockserverAPIToken
	}

	if c.Warden.Store.RequestTimeout == 0 {
		c.Warden.Store.RequestTimeout = 10 * time.Second
	}
	if c.Lockserver.Store.RequestTimeout == 0 {
		c.Lockserver.Store.RequestTimeout = 10 * time.Second
	}

	return c, Validate(c, componentsNames)
}

func isComponentEnabled(componentsNames []string, name string) bool {
	for _, n := range componentsNames {
		if n == name {
			return true
		}
	}

	return false
}

func validateStore(s *Store) error {
	switch s.Type {
	case StoreTypeMemory:
	case StoreTypeRedis:
		if s.RedisURL == "" {
			return errors.Errorf("redisURL is empty")
		}
	case StoreTypeDB:
		if err := validateDB(&s.DB); err != nil {
			return errors.Wrapf(err, "db configuration error")
		}
	case StoreTypeLockserver:
		if s.LockserverURL == "" {
			return errors.Errorf("lockserverURL is empty")
		}
	case "":
		return errors.Errorf("store type is empty")
	default:
		return errors.Errorf("unknown store type %q", s.Type)
	}

	return nil
}

func validateDB(db *DB) error {
	switch db.Type {
	case sql.Sqlite3:
	case sql.Postgres:
	default:
		return errors.Errorf("unknown db type %q", db.Type)
	}

	if db.ConnString == "" {
		return errors.Errorf("db connection string undefined")
	}

	return nil
}

func validateWeb(w *Web) error {
	if w.ListenAddress == "" {
		return errors.Errorf("listen address undefined")
	}

	if w.TLS {
		if w.TLSKeyFile == "" {
			return errors.Errorf("no tls key file specified")
		}
		if w.TLSCertFile == "" {
			return errors.Errorf("no tls cert file specified")
		}
	}

	return nil
}

func validateRunSource(rs *RunSource) error {
	switch rs.Type {
	case RunSourceTypeNone:
	case RunSourceTypeGitHub:
		if rs.RepoPath == "" {
			return errors.Errorf("github repoPath is empty")
		}
	case RunSourceTypeGitLab:
		if rs.ProjectRef == "" {
			return errors.Errorf("gitlab projectRef is empty")
		}
	default:
		return errors.Errorf("unknown run source type %q", rs.Type)
	}

	if rs.RefPattern != "" {
		if _, err := regexp.Compile(rs.RefPattern); err != nil {
			return errors.Wrapf(err, "invalid run ref pattern %q", rs.RefPattern)
		}
	}

	return nil
}

func validateObjectStorage(s *ObjectStorage) error {
	switch s.Type {
	case "":
	case ObjectStorageTypePosix:
		if s.Path == "" {
			return errors.Errorf("path is empty")
		}
	case ObjectStorageTypeS3:
		if s.Bucket == "" {
			return errors.Errorf("bucket is empty")
		}
		if s.Endpoint == "" {
			return errors.Errorf("endpoint is empty")
		}
	default:
		return errors.Errorf("unknown object storage type %q", s.Type)
	}

	return nil
}

func validateTokenSigning(ts *TokenSigning) error {
	switch ts.Method {
	case "":
	case "hmac":
		if ts.Key == "" {
			return errors.Errorf("empty token signing key for hmac method")
		}
	case "rsa":
		if ts.PrivateKeyPath == "" {
			return errors.Errorf("token signing private key file for rsa method not defined")
		}
		if ts.PublicKeyPath == "" {
			return errors.Errorf("token signing public key file for rsa method not defined")
		}
	default:
		return errors.Errorf("unknown token signing method: %q", ts.Method)
	}

	return nil
}

func Validate(c *Config, componentsNames []string) error {
	// Global
	if len(c.ID) > maxIDLength {
		return errors.Errorf("id too long")
	}
	if !util.ValidateName(c.ID) {
		return errors.Errorf("invalid id")
	}

	// Warden
	if isComponentEnabled(componentsNames, "warden") {
		if err := validateStore(&c.Warden.Store); err != nil {
			return errors.Wrapf(err, "warden store configuration error")
		}
		if c.Warden.StaleThreshold <= 0 {
			return errors.Errorf("warden staleThreshold must be greater than zero")
		}
		if c.Warden.ConservativeWindow <= 0 {
			return errors.Errorf("warden conservativeWindow must be greater than zero")
		}
		if c.Warden.ConservativeWindow > c.Warden.StaleThreshold {
			return errors.Errorf("warden conservativeWindow can't be greater than staleThreshold")
		}
		for _, pattern := range append(append([]string{}, c.Warden.IncludeKeys...), c.Warden.ExcludeKeys...) {
			if _, err := doublestar.Match(pattern, ""); err != nil {
				return errors.Wrapf(err, "invalid warden key pattern %q", pattern)
			}
		}
		if err := validateRunSource(&c.Warden.RunSource); err != nil {
			return errors.Wrapf(err, "warden run source configuration error")
		}
		if err := validateObjectStorage(&c.Warden.ArtifactStorage); err != nil {
			return errors.Wrapf(err, "warden artifact storage configuration error")
		}
		if err := validateTokenSigning(&c.Warden.TokenSigning); err != nil {
			return errors.Wrapf(err, "warden token signing configuration error")
		}
	}

	// Lockserver
	if isComponentEnabled(componentsNames, "lockserver") {
		if err := validateWeb(&c.Lockserver.Web); err != nil {
			return errors.Wrapf(err, "lockserver web configuration error")
		}
		if c.Lockserver.Store.Type == StoreTypeLockserver {
			return errors.Errorf("lockserver can't use a lockserver store")
		}
		if err := validateStore(&c.Lockserver.Store); err != nil {
			return errors.Wrapf(err, "lockserver store configuration error")
		}
	}

	return nil
}
