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

package github

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/go-github/v74/github"
	"github.com/sorintlab/errors"
	"golang.org/x/oauth2"

	"github.com/sorintlab/lockwarden/internal/runsources"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

const (
	GitHubAPIURL = "https://api.github.com"
)

type Opts struct {
	APIURL     string
	Token      string
	SkipVerify bool

	// RepoPath is the repository the workflow runs belong to, in
	// "owner/name" form.
	RepoPath string
}

type Client struct {
	client *github.Client
	owner  string
	repo   string
}

func splitRepoPath(repoPath string) (string, string, error) {
	owner, name, ok := strings.Cut(repoPath, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", errors.Errorf("invalid github repository path %q, want owner/name", repoPath)
	}

	return owner, name, nil
}

func New(opts Opts) (*Client, error) {
	owner, repo, err := splitRepoPath(opts.RepoPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	httpClient := runsources.NewHTTPClient(opts.SkipVerify)
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}

	client := github.NewClient(httpClient)
	if opts.APIURL != "" && opts.APIURL != GitHubAPIURL {
		client, err = client.WithEnterpriseURLs(opts.APIURL, opts.APIURL)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return &Client{client: client, owner: owner, repo: repo}, nil
}

func (c *Client) GetRunLiveness(ctx context.Context, runID string) (types.Liveness, error) {
	id, err := strconv.ParseInt(runID, 10, 64)
	if err != nil {
		return types.LivenessUnknown, errors.Wrapf(err, "not a github workflow run id: %q", runID)
	}

	run, _, err := c.client.Actions.GetWorkflowRunByID(ctx, c.owner, c.repo, id)
	if err != nil {
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response.StatusCode == http.StatusNotFound {
			return types.LivenessNotRunning, nil
		}
		return types.LivenessUnknown, errors.WithStack(err)
	}

	// every status but completed means github still tracks the run as live
	if run.GetStatus() == "completed" {
		return types.LivenessNotRunning, nil
	}

	return types.LivenessRunning, nil
}
