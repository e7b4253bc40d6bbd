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

package lockstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/services/warden/types"
)

// createdLayouts are the timestamp layouts accepted by the lenient decode
// pass. time.RFC3339Nano also parses plain RFC3339 values.
var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// EncodeRecord encodes a lock record to its stored payload. The store key
// isn't part of the payload.
func EncodeRecord(record *types.LockRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	return data, errors.WithStack(err)
}

// DecodeRecord decodes a stored payload into a lock record. It first tries a
// strict typed decode. When that fails it falls back to a weakly typed decode
// that salvages every field it can and reports the record as malformed. A
// payload that isn't json at all yields a nil record and malformed true: the
// caller must not trust anything about it.
func DecodeRecord(key string, data []byte) (*types.LockRecord, bool) {
	record := &types.LockRecord{}
	if err := json.Unmarshal(data, record); err == nil {
		record.Key = key
		return record, false
	}

	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, true
	}

	record = &types.LockRecord{}
	createdRaw, hasCreated := lookupField(fields, "created")
	if hasCreated {
		deleteField(fields, "created")
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           record,
	})
	if err == nil {
		// decode errors leave already converted fields populated
		_ = dec.Decode(fields)
	}

	if hasCreated {
		record.Created = parseCreated(createdRaw)
	}

	record.Key = key

	return record, true
}

func parseCreated(v any) time.Time {
	switch c := v.(type) {
	case string:
		for _, layout := range createdLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t
			}
		}
	case float64:
		return time.Unix(int64(c), 0).UTC()
	}

	return time.Time{}
}

func lookupField(fields map[string]any, name string) (any, bool) {
	for k, v := range fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}

	return nil, false
}

func deleteField(fields map[string]any, name string) {
	for k := range fields {
		if strings.EqualFold(k, name) {
			delete(fields, k)
		}
	}
}
