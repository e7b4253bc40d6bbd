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
	"sort"

	"github.com/ghodss/yaml"
	"github.com/sorintlab/errors"
)

// Approvals is the set of lock tokens approved for release. Approval is by
// token, never by key: a lock that changed hands since the approval was
// given doesn't match anymore.
type Approvals struct {
	tokens map[string]struct{}
}

func NewApprovals(tokens ...string) *Approvals {
	a := &Approvals{tokens: map[string]struct{}{}}
	for _, token := range tokens {
		a.Add(token)
	}

	return a
}

func (a *Approvals) Add(token string) {
	if token == "" {
		return
	}
	a.tokens[token] = struct{}{}
}

// Approved reports whether token was approved. The empty token is never
// approved, so a record without an ID can't slip through the gate.
func (a *Approvals) Approved(token string) bool {
	if token == "" {
		return false
	}

	_, ok := a.tokens[token]
	return ok
}

func (a *Approvals) Size() int {
	return len(a.tokens)
}

// Tokens returns the approved tokens in lexical order.
func (a *Approvals) Tokens() []string {
	tokens := make([]string, 0, len(a.tokens))
	for token := range a.tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	return tokens
}

type approvalsFile struct {
	Approvals []string `json:"approvals"`
}

// LoadApprovalsFile reads lock tokens from a yaml or json approvals file:
//
//	approvals:
//	  - abc123
//	  - def456
func LoadApprovalsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var f approvalsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse approvals file %q", path)
	}

	return f.Approvals, nil
}
