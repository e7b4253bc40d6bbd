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
	"context"
	"strings"
	"time"

	"github.com/sorintlab/lockwarden/internal/liveness"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

// Classification reasons. Automation keys off the classification, the reason
// is for humans reading reports and logs.
const (
	ReasonNoLock           = "no lock present"
	ReasonMalformedRecord  = "lock record is malformed, refusing automatic release"
	ReasonLiveRun          = "live external job detected"
	ReasonAgeExceeded      = "age exceeds threshold"
	ReasonOriginatorFailed = "originator marked failed"
	ReasonRecentLock       = "recent lock, conservative default"
	ReasonUnverifiable     = "cannot verify liveness for lock beyond conservative window"
)

// Classifier classifies observed lock states as active or stale. Every rule
// errs toward keeping a lock active: releasing a live lock can corrupt the
// state artifact it guards, while keeping a stale lock only blocks jobs
// until the next pass.
type Classifier struct {
	staleThreshold     time.Duration
	conservativeWindow time.Duration
	failureMarkers     []string
	oracle             liveness.Oracle
}

func NewClassifier(staleThreshold, conservativeWindow time.Duration, failureMarkers []string, oracle liveness.Oracle) *Classifier {
	return &Classifier{
		staleThreshold:     staleThreshold,
		conservativeWindow: conservativeWindow,
		failureMarkers:     failureMarkers,
		oracle:             oracle,
	}
}

// Classify classifies state in place as of now, setting Classification,
// Reason, Age and AgeKnown. The rules are evaluated in order, the first
// matching one wins:
//
//  1. no record observed: none
//  2. age over the stale threshold: stale, unless the originating job is
//     proven alive
//  3. originating job proven alive: active
//  4. holder marked failed or aborted: stale
//  5. age below the conservative window: active
//  6. otherwise: stale
//
// A record whose creation time is missing or unparseable counts as older
// than every threshold. A record that couldn't be decoded at all is always
// active: nothing about it can be trusted.
func (cl *Classifier) Classify(ctx context.Context, state *types.LockState, now time.Time) {
	if state.Record == nil && !state.Malformed {
		state.Classification = types.ClassificationNone
		state.Reason = ReasonNoLock
		return
	}

	if state.Record == nil {
		state.Classification = types.ClassificationActive
		state.Reason = ReasonMalformedRecord
		return
	}

	record := state.Record

	age, ageKnown := record.AgeAt(now)
	state.Age = age
	state.AgeKnown = ageKnown

	if !ageKnown || age > cl.staleThreshold {
		if cl.runLiveness(ctx, record) == types.LivenessRunning {
			state.Classification = types.ClassificationActive
			state.Reason = ReasonLiveRun
			return
		}

		state.Classification = types.ClassificationStale
		state.Reason = ReasonAgeExceeded
		return
	}

	if cl.runLiveness(ctx, record) == types.LivenessRunning {
		state.Classification = types.ClassificationActive
		state.Reason = ReasonLiveRun
		return
	}

	if cl.failureMarker(record.Who) != "" {
		state.Classification = types.ClassificationStale
		state.Reason = ReasonOriginatorFailed
		return
	}

	if ageKnown && age < cl.conservativeWindow {
		state.Classification = types.ClassificationActive
		state.Reason = ReasonRecentLock
		return
	}

	state.Classification = types.ClassificationStale
	state.Reason = ReasonUnverifiable
}

func (cl *Classifier) runLiveness(ctx context.Context, record *types.LockRecord) types.Liveness {
	if cl.oracle == nil {
		return types.LivenessUnknown
	}

	return cl.oracle.RunLiveness(ctx, record)
}

func (cl *Classifier) failureMarker(who string) string {
	lowWho := strings.ToLower(who)
	for _, marker := range cl.failureMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(lowWho, strings.ToLower(marker)) {
			return marker
		}
	}

	return ""
}
