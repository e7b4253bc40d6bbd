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
	"crypto/tls"
	"net"
	"net/http"
	"net/url"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	sockaddr "github.com/hashicorp/go-sockaddr"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/lock"
	"github.com/sorintlab/lockwarden/internal/lockstore"
	scommon "github.com/sorintlab/lockwarden/internal/services/common"
	"github.com/sorintlab/lockwarden/internal/services/config"
	"github.com/sorintlab/lockwarden/internal/services/lockserver/action"
	"github.com/sorintlab/lockwarden/internal/services/lockserver/api"
	"github.com/sorintlab/lockwarden/internal/sql"
	"github.com/sorintlab/lockwarden/internal/util"
)

// Lockserver exposes a lock store over an http api so the acquiring tool and
// the warden share lock state without a common database.
type Lockserver struct {
	log zerolog.Logger
	gc  *config.Config
	c   *config.Lockserver

	store lockstore.Store
	lf    lock.LockFactory
	ah    *action.ActionHandler
}

func NewLockserver(ctx context.Context, log zerolog.Logger, gc *config.Config) (*Lockserver, error) {
	c := &gc.Lockserver
	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	}

	if c.Store.Type == config.StoreTypeLockserver {
		return nil, errors.Errorf("lockserver can't use a lockserver store")
	}

	var store lockstore.Store
	var lf lock.LockFactory

	// Mutations on the same key serialize through the lock factory. Multiple
	// instances sharing a postgres store get advisory locks, every other
	// setup process local ones.
	switch c.Store.Type {
	case config.StoreTypeDB:
		sdb, err := sql.NewDB(c.Store.DB.Type, c.Store.DB.ConnString)
		if err != nil {
			return nil, errors.Wrapf(err, "new db error")
		}
		store, err = lockstore.NewSQLStore(ctx, log, sdb)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		switch c.Store.DB.Type {
		case sql.Sqlite3:
			lf = lock.NewLocalLocks()
		case sql.Postgres:
			lf = lock.NewPGLockFactory(sdb)
		default:
			return nil, errors.Errorf("unknown db type %q", c.Store.DB.Type)
		}

	default:
		var err error
		store, err = scommon.NewLockStore(ctx, log, &c.Store)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to setup lock store")
		}
		lf = lock.NewLocalLocks()
	}

	return &Lockserver{
		log:   log,
		gc:    gc,
		c:     c,
		store: store,
		lf:    lf,
		ah:    action.NewActionHandler(log, store, lf),
	}, nil
}

// advertisedURL returns the url clients should use to reach the api. When
// not configured it's derived from the first private ip and the web listen
// port.
func (s *Lockserver) advertisedURL() (string, error) {
	if s.c.AdvertisedURL != "" {
		return s.c.AdvertisedURL, nil
	}

	addr, err := sockaddr.GetPrivateIP()
	if err != nil {
		return "", errors.Wrapf(err, "cannot discover lockserver listen address")
	}
	if addr == "" {
		return "", errors.Errorf("cannot discover lockserver listen address")
	}
	u := url.URL{Scheme: "http"}
	if s.c.Web.TLS {
		u.Scheme = "https"
	}
	_, port, err := net.SplitHostPort(s.c.Web.ListenAddress)
	if err != nil {
		return "", errors.Wrapf(err, "cannot get web listen port")
	}
	u.Host = net.JoinHostPort(addr, port)

	return u.String(), nil
}

func (s *Lockserver) Run(ctx context.Context) error {
	corsHandler := func(h http.Handler) http.Handler {
		return h
	}

	if len(s.c.Web.AllowedOrigins) > 0 {
		corsAllowedMethodsOptions := ghandlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE"})
		corsAllowedHeadersOptions := ghandlers.AllowedHeaders([]string{"Accept", "Accept-Encoding", "Authorization", "Content-Length", "Content-Type", "X-CSRF-Token"})
		corsAllowedOriginsOptions := ghandlers.AllowedOrigins(s.c.Web.AllowedOrigins)
		corsHandler = ghandlers.CORS(corsAllowedMethodsOptions, corsAllowedHeadersOptions, corsAllowedOriginsOptions)
	}

	locksHandler := api.NewLocksHandler(s.log, s.ah)
	lockHandler := api.NewLockHandler(s.log, s.ah)
	acquireLockHandler := api.NewAcquireLockHandler(s.log, s.ah)
	setLockHandler := api.NewSetLockHandler(s.log, s.ah)
	releaseLockHandler := api.NewReleaseLockHandler(s.log, s.ah)

	authHandler := api.NewAuthHandler(s.log, s.c.APIToken)

	router := mux.NewRouter()
	apirouter := mux.NewRouter().PathPrefix("/api/v1").Subrouter()

	router.PathPrefix("/api/v1").Handler(authHandler(apirouter))

	apirouter.Handle("/locks", locksHandler).Methods("GET")
	apirouter.Handle("/lock", lockHandler).Methods("GET")
	apirouter.Handle("/lock", acquireLockHandler).Methods("POST")
	apirouter.Handle("/lock", setLockHandler).Methods("PUT")
	apirouter.Handle("/lock", releaseLockHandler).Methods("DELETE")

	mainrouter := mux.NewRouter()
	mainrouter.PathPrefix("/").Handler(corsHandler(router))

	var tlsConfig *tls.Config
	if s.c.Web.TLS {
		var err error
		tlsConfig, err = util.NewTLSConfig(s.c.Web.TLSCertFile, s.c.Web.TLSKeyFile, "", false)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	httpServer := http.Server{
		Addr:      s.c.Web.ListenAddress,
		Handler:   mainrouter,
		TLSConfig: tlsConfig,
	}

	advertisedURL, err := s.advertisedURL()
	if err != nil {
		s.log.Warn().Err(err).Msgf("cannot determine advertised api url")
	} else {
		s.log.Info().Msgf("lockserver api exposed at %s", advertisedURL)
	}

	lerrCh := make(chan error, 1)
	go func() {
		s.log.Info().Msgf("lockserver api listening on %s", s.c.Web.ListenAddress)
		if !s.c.Web.TLS {
			lerrCh <- httpServer.ListenAndServe()
		} else {
			lerrCh <- httpServer.ListenAndServeTLS("", "")
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msgf("lockserver exiting")
		httpServer.Close()
		return nil
	case err := <-lerrCh:
		if err != nil {
			s.log.Err(err).Send()
			return errors.WithStack(err)
		}
	}

	return nil
}
