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
	"testing"

	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"

	"github.com/sorintlab/lockwarden/internal/testutil"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

type stubRunSource struct {
	liveness types.Liveness
	err      error

	runID string
}

func (s *stubRunSource) GetRunLiveness(ctx context.Context, runID string) (types.Liveness, error) {
	s.runID = runID
	return s.liveness, s.err
}

func TestRunRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		pattern     string
		who         string
		expectedRef string
	}{
		{
			name:        "default pattern extracts trailing integer",
			who:         "runner-42",
			expectedRef: "42",
		},
		{
			name:        "default pattern extracts last integer sequence",
			who:         "gh-run-123456789 (apply)",
			expectedRef: "123456789",
		},
		{
			name:        "no integer in holder",
			who:         "alice@example.com",
			expectedRef: "",
		},
		{
			name:        "custom pattern with capture group",
			pattern:     `pipeline/(\d+)`,
			who:         "gitlab pipeline/777 on runner-3",
			expectedRef: "777",
		},
		{
			name:        "pattern without capture group uses whole match",
			pattern:     `\d+`,
			who:         "run 42 of 100",
			expectedRef: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := testutil.NewLogger(t)

			r, err := NewResolver(log, &stubRunSource{}, tt.pattern, 0)
			testutil.NilError(t, err)

			assert.Equal(t, r.runRef(tt.who), tt.expectedRef)
		})
	}
}

func TestRunLiveness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	record := &types.LockRecord{Key: "k1", ID: "abc123", Who: "runner-42"}

	t.Run("source liveness is passed through", func(t *testing.T) {
		log := testutil.NewLogger(t)

		source := &stubRunSource{liveness: types.LivenessRunning}
		r, err := NewResolver(log, source, "", 0)
		testutil.NilError(t, err)

		assert.Equal(t, r.RunLiveness(ctx, record), types.LivenessRunning)
		assert.Equal(t, source.runID, "42")
	})

	t.Run("source error degrades to unknown", func(t *testing.T) {
		log := testutil.NewLogger(t)

		source := &stubRunSource{liveness: types.LivenessRunning, err: errors.New("api unreachable")}
		r, err := NewResolver(log, source, "", 0)
		testutil.NilError(t, err)

		assert.Equal(t, r.RunLiveness(ctx, record), types.LivenessUnknown)
	})

	t.Run("no source configured reports unknown", func(t *testing.T) {
		log := testutil.NewLogger(t)

		r, err := NewResolver(log, nil, "", 0)
		testutil.NilError(t, err)

		assert.Equal(t, r.RunLiveness(ctx, record), types.LivenessUnknown)
	})

	t.Run("holder without run ref reports unknown", func(t *testing.T) {
		log := testutil.NewLogger(t)

		source := &stubRunSource{liveness: types.LivenessRunning}
		r, err := NewResolver(log, source, "", 0)
		testutil.NilError(t, err)

		assert.Equal(t, r.RunLiveness(ctx, &types.LockRecord{Key: "k1", Who: "alice"}), types.LivenessUnknown)
	})

	t.Run("invalid pattern fails", func(t *testing.T) {
		log := testutil.NewLogger(t)

		_, err := NewResolver(log, &stubRunSource{}, `(\d+`, 0)
		assert.Assert(t, err != nil)
	})
}
