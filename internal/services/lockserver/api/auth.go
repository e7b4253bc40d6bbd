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

package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/util"
)

// AuthHandler checks the request api token. When no api token is configured
// every request is let through.
type AuthHandler struct {
	log  zerolog.Logger
	next http.Handler

	apiToken string
}

func NewAuthHandler(log zerolog.Logger, apiToken string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return &AuthHandler{log: log, next: h, apiToken: apiToken}
	}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.apiToken != "" && tokenFromRequest(r) != h.apiToken {
		err := util.NewAPIError(util.ErrUnauthorized, errors.Errorf("wrong or missing api token"))
		if util.HTTPError(w, err) {
			h.log.Err(err).Send()
		}
		return
	}

	h.next.ServeHTTP(w, r)
}

// tokenFromRequest pulls the api token out of an "Authorization: token
// THETOKEN" header. The token prefix is matched case insensitively.
func tokenFromRequest(r *http.Request) string {
	const prefix = "token "

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}

	return auth[len(prefix):]
}
