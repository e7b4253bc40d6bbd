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
	"context"
	"errors"

	"github.com/sorintlab/lockwarden/services/warden/types"
)

var (
	// ErrNotExist is returned when no record is stored under the requested key.
	ErrNotExist = errors.New("lock record doesn't exist")

	// ErrTokenMismatch is returned by DeleteIfToken when the stored record
	// is held by a different token than the provided one.
	ErrTokenMismatch = errors.New("lock token mismatch")
)

// Store is a keyed store of lock record payloads. Implementations never
// interpret the payload beyond what's needed for conditional deletion, so a
// payload written by an external tool round trips unmodified.
type Store interface {
	// Get returns the raw payload stored under key or ErrNotExist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the record payload under record.Key, overwriting any
	// previous payload.
	Put(ctx context.Context, record *types.LockRecord) error

	// DeleteIfToken removes the record stored under key only when it's held
	// by the provided token. It returns ErrNotExist when no record is stored
	// and ErrTokenMismatch when the holder token differs.
	DeleteIfToken(ctx context.Context, key, token string) error

	// List returns the keys of all stored records.
	List(ctx context.Context) ([]string, error)
}
