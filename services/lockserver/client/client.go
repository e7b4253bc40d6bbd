// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/util"
	lsapitypes "github.com/sorintlab/lockwarden/services/lockserver/types"
)

// Client talks to a lock service instance through its http API.
type Client struct {
	url    string
	client *http.Client
	token  string
}

func NewClient(url, token string) *Client {
	return &Client{
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{},
		token:  token,
	}
}

// SetHTTPClient replaces the default http.Client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.client = client
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.url + "/api/v1" + path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	res, err := c.client.Do(req)

	return res, errors.WithStack(err)
}

func (c *Client) getResponse(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	resp, err := c.doRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := util.ErrFromRemote(resp); err != nil {
		return resp, errors.WithStack(err)
	}

	return resp, nil
}

func (c *Client) getParsedResponse(ctx context.Context, method, path string, query url.Values, body io.Reader, obj any) (*http.Response, error) {
	resp, err := c.getResponse(ctx, method, path, query, body)
	if err != nil {
		return resp, errors.WithStack(err)
	}
	defer resp.Body.Close()

	return resp, errors.WithStack(json.NewDecoder(resp.Body).Decode(obj))
}

func (c *Client) GetLocks(ctx context.Context) (*lsapitypes.LocksResponse, *http.Response, error) {
	locks := new(lsapitypes.LocksResponse)
	resp, err := c.getParsedResponse(ctx, "GET", "/locks", nil, nil, locks)
	return locks, resp, errors.WithStack(err)
}

func (c *Client) GetLock(ctx context.Context, key string) (*lsapitypes.LockResponse, *http.Response, error) {
	q := url.Values{}
	q.Add("key", key)

	lock := new(lsapitypes.LockResponse)
	resp, err := c.getParsedResponse(ctx, "GET", "/lock", q, nil, lock)
	return lock, resp, errors.WithStack(err)
}

func (c *Client) AcquireLock(ctx context.Context, req *lsapitypes.AcquireLockRequest) (*lsapitypes.LockResponse, *http.Response, error) {
	reqj, err := json.Marshal(req)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	lock := new(lsapitypes.LockResponse)
	resp, err := c.getParsedResponse(ctx, "POST", "/lock", nil, bytes.NewReader(reqj), lock)
	return lock, resp, errors.WithStack(err)
}

func (c *Client) SetLock(ctx context.Context, req *lsapitypes.SetLockRequest) (*http.Response, error) {
	reqj, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := c.getResponse(ctx, "PUT", "/lock", nil, bytes.NewReader(reqj))
	return resp, errors.WithStack(err)
}

func (c *Client) ReleaseLock(ctx context.Context, key, token string) (*http.Response, error) {
	q := url.Values{}
	q.Add("key", key)
	q.Add("token", token)

	resp, err := c.getResponse(ctx, "DELETE", "/lock", q, nil)
	return resp, errors.WithStack(err)
}
