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
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/services/lockserver/action"
	"github.com/sorintlab/lockwarden/internal/util"
	lsapitypes "github.com/sorintlab/lockwarden/services/lockserver/types"
)

type LocksHandler struct {
	log zerolog.Logger
	ah  *action.ActionHandler
}

func NewLocksHandler(log zerolog.Logger, ah *action.ActionHandler) *LocksHandler {
	return &LocksHandler{log: log, ah: ah}
}

func (h *LocksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *LocksHandler) do(r *http.Request) (*lsapitypes.LocksResponse, error) {
	ctx := r.Context()

	keys, err := h.ah.GetLocks(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &lsapitypes.LocksResponse{Keys: keys}, nil
}

type LockHandler struct {
	log zerolog.Logger
	ah  *action.ActionHandler
}

func NewLockHandler(log zerolog.Logger, ah *action.ActionHandler) *LockHandler {
	return &LockHandler{log: log, ah: ah}
}

func (h *LockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *LockHandler) do(r *http.Request) (*lsapitypes.LockResponse, error) {
	ctx := r.Context()
	query := r.URL.Query()

	key := query.Get("key")
	if key == "" {
		return nil, util.NewAPIError(util.ErrBadRequest, errors.Errorf("key is empty"))
	}

	data, err := h.ah.GetLock(ctx, key)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &lsapitypes.LockResponse{Key: key, Data: data}, nil
}

type AcquireLockHandler struct {
	log zerolog.Logger
	ah  *action.ActionHandler
}

func NewAcquireLockHandler(log zerolog.Logger, ah *action.ActionHandler) *AcquireLockHandler {
	return &AcquireLockHandler{log: log, ah: ah}
}

func (h *AcquireLockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *AcquireLockHandler) do(r *http.Request) (*lsapitypes.LockResponse, error) {
	ctx := r.Context()

	var req lsapitypes.AcquireLockRequest
	d := json.NewDecoder(r.Body)
	if err := d.Decode(&req); err != nil {
		return nil, util.NewAPIError(util.ErrBadRequest, err)
	}
	if req.Key == "" {
		return nil, util.NewAPIError(util.ErrBadRequest, errors.Errorf("key is empty"))
	}

	data, err := h.ah.AcquireLock(ctx, req.Key, req.Data)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &lsapitypes.LockResponse{Key: req.Key, Data: data}, nil
}

type SetLockHandler struct {
	log zerolog.Logger
	ah  *action.ActionHandler
}

func NewSetLockHandler(log zerolog.Logger, ah *action.ActionHandler) *SetLockHandler {
	return &SetLockHandler{log: log, ah: ah}
}

func (h *SetLockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, nil); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *SetLockHandler) do(r *http.Request) error {
	ctx := r.Context()

	var req lsapitypes.SetLockRequest
	d := json.NewDecoder(r.Body)
	if err := d.Decode(&req); err != nil {
		return util.NewAPIError(util.ErrBadRequest, err)
	}
	if req.Key == "" {
		return util.NewAPIError(util.ErrBadRequest, errors.Errorf("key is empty"))
	}

	if err := h.ah.SetLock(ctx, req.Key, req.Data); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

type ReleaseLockHandler struct {
	log zerolog.Logger
	ah  *action.ActionHandler
}

func NewReleaseLockHandler(log zerolog.Logger, ah *action.ActionHandler) *ReleaseLockHandler {
	return &ReleaseLockHandler{log: log, ah: ah}
}

func (h *ReleaseLockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, nil); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *ReleaseLockHandler) do(r *http.Request) error {
	ctx := r.Context()
	query := r.URL.Query()

	key := query.Get("key")
	if key == "" {
		return util.NewAPIError(util.ErrBadRequest, errors.Errorf("key is empty"))
	}
	token := query.Get("token")
	if token == "" {
		return util.NewAPIError(util.ErrBadRequest, errors.Errorf("token is empty"))
	}

	if err := h.ah.ReleaseLock(ctx, key, token); err != nil {
		return errors.WithStack(err)
	}

	return nil
}
