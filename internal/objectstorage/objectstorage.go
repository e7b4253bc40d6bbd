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

package objectstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/sorintlab/errors"
)

// Storage provides read only access to the state artifacts guarded by
// locks. The warden never writes artifacts, it only reports on them.
type Storage interface {
	Stat(ctx context.Context, p string) (*ObjectInfo, error)
}

type ObjectInfo struct {
	Path         string
	LastModified time.Time
	Size         int64
}

type ErrNotExist struct {
	err error
	msg string
}

func NewErrNotExist(err error, format string, args ...any) error {
	return &ErrNotExist{err: err, msg: fmt.Sprintf(format, args...)}
}

func (e *ErrNotExist) Error() string {
	return e.msg
}

func (e *ErrNotExist) Unwrap() error {
	return e.err
}

func IsNotExist(err error) bool {
	var e *ErrNotExist
	return errors.As(err, &e)
}
