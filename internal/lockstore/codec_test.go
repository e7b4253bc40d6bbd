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

package lockstore_test

import (
	"encoding/json"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name              string
		data              string
		expectedRecord    *types.LockRecord
		expectedMalformed bool
	}{
		{
			name: "well formed record",
			data: `{"ID":"abc123","Operation":"Apply","Who":"runner-42","Created":"2025-11-03T10:30:00Z","Version":"1.7.5","Path":"env:/prod/app1.tfstate"}`,
			expectedRecord: &types.LockRecord{
				Key:       "k1",
				ID:        "abc123",
				Operation: types.OperationApply,
				Who:       "runner-42",
				Created:   created,
				Version:   "1.7.5",
				Path:      "env:/prod/app1.tfstate",
			},
		},
		{
			name: "unknown fields are ignored",
			data: `{"ID":"abc123","Created":"2025-11-03T10:30:00Z","Info":"extra"}`,
			expectedRecord: &types.LockRecord{
				Key:     "k1",
				ID:      "abc123",
				Created: created,
			},
		},
		{
			name:           "missing fields decode to zero values",
			data:           `{"ID":"abc123"}`,
			expectedRecord: &types.LockRecord{Key: "k1", ID: "abc123"},
		},
		{
			name:              "numeric id is salvaged",
			data:              `{"ID":12345,"Who":"runner-42","Created":"2025-11-03T10:30:00Z"}`,
			expectedRecord:    &types.LockRecord{Key: "k1", ID: "12345", Who: "runner-42", Created: created},
			expectedMalformed: true,
		},
		{
			name:              "unix timestamp created is salvaged",
			data:              `{"ID":12345,"Created":1762165800}`,
			expectedRecord:    &types.LockRecord{Key: "k1", ID: "12345", Created: created},
			expectedMalformed: true,
		},
		{
			name:              "spaced timestamp layout is salvaged",
			data:              `{"ID":12345,"Created":"2025-11-03 10:30:00"}`,
			expectedRecord:    &types.LockRecord{Key: "k1", ID: "12345", Created: created},
			expectedMalformed: true,
		},
		{
			name:              "garbage created decodes to zero time",
			data:              `{"ID":12345,"Created":"yesterday"}`,
			expectedRecord:    &types.LockRecord{Key: "k1", ID: "12345"},
			expectedMalformed: true,
		},
		{
			name:              "lowercase field names are salvaged",
			data:              `{"id":12345,"who":"runner-42","created":"2025-11-03T10:30:00Z"}`,
			expectedRecord:    &types.LockRecord{Key: "k1", ID: "12345", Who: "runner-42", Created: created},
			expectedMalformed: true,
		},
		{
			name:              "not json at all",
			data:              `LOCKED by runner-42`,
			expectedRecord:    nil,
			expectedMalformed: true,
		},
		{
			name:              "json but not an object",
			data:              `["abc123"]`,
			expectedRecord:    nil,
			expectedMalformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, malformed := lockstore.DecodeRecord("k1", []byte(tt.data))

			assert.Equal(t, malformed, tt.expectedMalformed)
			if tt.expectedRecord == nil {
				assert.Assert(t, record == nil)
				return
			}

			assert.Assert(t, record != nil)
			assert.Assert(t, record.Created.Equal(tt.expectedRecord.Created), "created: %s, expected: %s", record.Created, tt.expectedRecord.Created)

			record.Created = tt.expectedRecord.Created
			assert.DeepEqual(t, record, tt.expectedRecord)
		})
	}
}

func TestEncodeRecordExcludesKey(t *testing.T) {
	t.Parallel()

	data, err := lockstore.EncodeRecord(&types.LockRecord{Key: "k1", ID: "abc123"})
	assert.NilError(t, err)

	fields := map[string]any{}
	assert.NilError(t, json.Unmarshal(data, &fields))

	_, ok := fields["Key"]
	assert.Assert(t, !ok)
}
