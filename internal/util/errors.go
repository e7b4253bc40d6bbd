// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"github.com/sorintlab/errors"
)

type ErrorKind int

const (
	ErrBadRequest ErrorKind = iota
	ErrNotExist
	ErrConflict
	ErrForbidden
	ErrUnauthorized
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadRequest:
		return "badrequest"
	case ErrNotExist:
		return "notexist"
	case ErrConflict:
		return "conflict"
	case ErrForbidden:
		return "forbidden"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrInternal:
		return "internal"
	}

	return "unknown"
}

// APIError is an error at an API boundary. Handlers map it to an http status
// and an error response body, clients map the response back to an APIError.
type APIError struct {
	Kind    ErrorKind
	Code    string
	Message string

	err error
}

func NewAPIError(kind ErrorKind, err error) *APIError {
	return &APIError{Kind: kind, err: err}
}

// NewRemoteError builds the client side APIError from the values reported by
// the remote endpoint.
func NewRemoteError(kind ErrorKind, code string, message string) *APIError {
	return &APIError{Kind: kind, Code: code, Message: message}
}

func (e *APIError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.Message != "" {
		return e.Message
	}

	return e.Kind.String()
}

func (e *APIError) Unwrap() error {
	return e.err
}

func AsAPIError(err error) (*APIError, bool) {
	var aerr *APIError
	return aerr, errors.As(err, &aerr)
}

func APIErrorIs(err error, kind ErrorKind) bool {
	if aerr, ok := AsAPIError(err); ok {
		return aerr.Kind == kind
	}

	return false
}
