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

package gitlab

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sorintlab/errors"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/sorintlab/lockwarden/internal/runsources"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

type Opts struct {
	URL        string
	Token      string
	SkipVerify bool

	// ProjectRef is the numeric id or the "group/project" path of the
	// project the pipelines belong to.
	ProjectRef string
}

type Client struct {
	client     *gitlab.Client
	projectRef string
}

func New(opts Opts) (*Client, error) {
	options := []gitlab.ClientOptionFunc{gitlab.WithHTTPClient(runsources.NewHTTPClient(opts.SkipVerify))}
	if opts.URL != "" {
		options = append(options, gitlab.WithBaseURL(opts.URL))
	}

	client, err := gitlab.NewClient(opts.Token, options...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Client{client: client, projectRef: opts.ProjectRef}, nil
}

func (c *Client) GetRunLiveness(ctx context.Context, runID string) (types.Liveness, error) {
	id, err := strconv.Atoi(runID)
	if err != nil {
		return types.LivenessUnknown, errors.Wrapf(err, "not a gitlab pipeline id: %q", runID)
	}

	pipeline, resp, err := c.client.Pipelines.GetPipeline(c.projectRef, id, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return types.LivenessNotRunning, nil
		}
		return types.LivenessUnknown, errors.WithStack(err)
	}

	switch pipeline.Status {
	case "success", "failed", "canceled", "skipped":
		return types.LivenessNotRunning, nil
	}

	return types.LivenessRunning, nil
}
