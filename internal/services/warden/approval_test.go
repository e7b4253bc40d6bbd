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

package warden

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/sorintlab/lockwarden/internal/testutil"
)

func TestApprovals(t *testing.T) {
	t.Parallel()

	a := NewApprovals("abc123", "", "def456")

	assert.Equal(t, a.Size(), 2)
	assert.Assert(t, a.Approved("abc123"))
	assert.Assert(t, a.Approved("def456"))
	assert.Assert(t, !a.Approved(""))
	assert.Assert(t, !a.Approved("ghi789"))

	a.Add("0aa000")

	assert.DeepEqual(t, a.Tokens(), []string{"0aa000", "abc123", "def456"})
}

func TestLoadApprovalsFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string

		expectedTokens []string
		expectedErr    string
	}{
		{
			name: "yaml",
			data: "approvals:\n  - abc123\n  - def456\n",

			expectedTokens: []string{"abc123", "def456"},
		},
		{
			name: "json",
			data: `{"approvals": ["abc123"]}`,

			expectedTokens: []string{"abc123"},
		},
		{
			name: "empty file",
			data: "",
		},
		{
			name: "not yaml",
			data: "\tapprovals",

			expectedErr: "failed to parse approvals file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "approvals.yml")
			testutil.NilError(t, os.WriteFile(path, []byte(tt.data), 0o644))

			tokens, err := LoadApprovalsFile(path)
			if tt.expectedErr != "" {
				assert.ErrorContains(t, err, tt.expectedErr)
				return
			}

			testutil.NilError(t, err)
			assert.DeepEqual(t, tokens, tt.expectedTokens)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadApprovalsFile(filepath.Join(t.TempDir(), "missing.yml"))
		assert.ErrorContains(t, err, "no such file")
	})
}
