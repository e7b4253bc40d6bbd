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
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sorintlab/errors"
)

// ErrorResponse is the json body api handlers answer failed requests with.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ErrorResponseFromError(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	if aerr, ok := AsAPIError(err); ok {
		return &ErrorResponse{Code: aerr.Code, Message: aerr.Message}
	}

	// not an api error, don't leak its message to remote callers
	return &ErrorResponse{}
}

var statusByKind = map[ErrorKind]int{
	ErrBadRequest:   http.StatusBadRequest,
	ErrNotExist:     http.StatusNotFound,
	ErrConflict:     http.StatusConflict,
	ErrForbidden:    http.StatusForbidden,
	ErrUnauthorized: http.StatusUnauthorized,
	ErrInternal:     http.StatusInternalServerError,
}

var kindByStatus = map[int]ErrorKind{
	http.StatusBadRequest:   ErrBadRequest,
	http.StatusNotFound:     ErrNotExist,
	http.StatusConflict:     ErrConflict,
	http.StatusForbidden:    ErrForbidden,
	http.StatusUnauthorized: ErrUnauthorized,
}

func httpStatusFromErrorKind(kind ErrorKind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}

	return http.StatusInternalServerError
}

func errorKindFromHTTPStatus(status int) ErrorKind {
	if kind, ok := kindByStatus[status]; ok {
		return kind
	}

	return ErrInternal
}

// HTTPResponse writes res as json with the given status code.
func HTTPResponse(w http.ResponseWriter, code int, res any) error {
	w.Header().Set("Content-Type", "application/json")

	if res == nil {
		w.WriteHeader(code)
		return nil
	}

	resj, err := json.Marshal(res)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return errors.WithStack(err)
	}

	w.WriteHeader(code)
	_, err = w.Write(resj)

	return errors.WithStack(err)
}

// HTTPError writes err as an ErrorResponse with the status code matching its
// api error kind and reports whether it wrote anything. A nil err writes
// nothing so the handler can continue with the success response.
func HTTPError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	code := http.StatusInternalServerError
	if aerr, ok := AsAPIError(err); ok {
		code = httpStatusFromErrorKind(aerr.Kind)
	}

	resj, merr := json.Marshal(ErrorResponseFromError(err))
	if merr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(resj)

	return true
}

// ErrFromRemote turns a non 2xx response into a remote error carrying the
// kind matching the status code and the code and message from the
// ErrorResponse body when one is there.
func ErrFromRemote(resp *http.Response) error {
	if resp == nil || resp.StatusCode/100 == 2 {
		return nil
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}
	// put the body back for callers wanting to read it themselves
	resp.Body = io.NopCloser(bytes.NewBuffer(data))

	kind := errorKindFromHTTPStatus(resp.StatusCode)

	response := &ErrorResponse{}
	if err := json.Unmarshal(data, &response); err != nil {
		return NewRemoteError(kind, "", "")
	}

	return NewRemoteError(kind, response.Code, response.Message)
}
