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

package liveness

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/runsources"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

// DefaultRunRefPattern extracts the last integer sequence from a lock
// holder, e.g. the "42" in "runner-42" or the workflow run id in
// "gh-run-123456789 (apply)".
const DefaultRunRefPattern = `(\d+)\D*$`

const DefaultLookupTimeout = 10 * time.Second

// Oracle reports whether the job that acquired a lock record is still
// executing.
type Oracle interface {
	RunLiveness(ctx context.Context, record *types.LockRecord) types.Liveness
}

// Resolver resolves run liveness through a run source, extracting the run
// reference from the lock holder field. Lookups are bounded by a timeout and
// every failure degrades to LivenessUnknown so a broken or unreachable
// execution system never blocks or fails a detection pass.
type Resolver struct {
	log zerolog.Logger

	source    runsources.RunSource
	refRegexp *regexp.Regexp
	timeout   time.Duration
}

func NewResolver(log zerolog.Logger, source runsources.RunSource, refPattern string, timeout time.Duration) (*Resolver, error) {
	if refPattern == "" {
		refPattern = DefaultRunRefPattern
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}

	refRegexp, err := regexp.Compile(refPattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile run ref pattern %q", refPattern)
	}

	return &Resolver{log: log, source: source, refRegexp: refRegexp, timeout: timeout}, nil
}

func (r *Resolver) RunLiveness(ctx context.Context, record *types.LockRecord) types.Liveness {
	if r.source == nil || record == nil {
		return types.LivenessUnknown
	}

	runRef := r.runRef(record.Who)
	if runRef == "" {
		r.log.Debug().Msgf("no run ref in lock holder %q", record.Who)
		return types.LivenessUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	l, err := r.source.GetRunLiveness(ctx, runRef)
	if err != nil {
		r.log.Warn().Err(err).Msgf("liveness lookup for run %q failed", runRef)
		return types.LivenessUnknown
	}

	return l
}

func (r *Resolver) runRef(who string) string {
	m := r.refRegexp.FindStringSubmatch(who)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return m[1]
	}

	return m[0]
}
