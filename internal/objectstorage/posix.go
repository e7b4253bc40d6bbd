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
	"os"
	"path/filepath"

	"github.com/sorintlab/errors"
)

// PosixStorage serves artifacts from a local directory tree.
type PosixStorage struct {
	dataDir string
}

func NewPosix(dataDir string) (*PosixStorage, error) {
	if _, err := os.Stat(dataDir); err != nil {
		return nil, errors.Wrapf(err, "failed to access data dir %q", dataDir)
	}

	return &PosixStorage{dataDir: dataDir}, nil
}

func (s *PosixStorage) Stat(ctx context.Context, p string) (*ObjectInfo, error) {
	fi, err := os.Stat(filepath.Join(s.dataDir, p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewErrNotExist(err, "no object at %q", p)
		}
		return nil, errors.WithStack(err)
	}

	return &ObjectInfo{Path: p, LastModified: fi.ModTime(), Size: fi.Size()}, nil
}
