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

package runsources

import (
	"context"

	"github.com/sorintlab/lockwarden/services/warden/types"
)

// RunSource queries an external execution system for the state of the run
// that acquired a lock.
type RunSource interface {
	// GetRunLiveness reports whether the run identified by runID is still
	// executing. A runID that the system doesn't know about reports
	// LivenessNotRunning. An error reports LivenessUnknown: the caller
	// degrades to purely time based classification.
	GetRunLiveness(ctx context.Context, runID string) (types.Liveness, error)
}
