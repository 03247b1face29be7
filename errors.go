/*
 * Copyright 2024 ScopeDB, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package xtdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrMalformedQuery is returned when a query is evaluated without a find clause
	// or without any where clause, or when a scalar option is out of range.
	ErrMalformedQuery = errors.New("xtdb: malformed query")

	// ErrAlreadySubmitted is returned when a builder is mutated after it has been
	// evaluated or submitted.
	ErrAlreadySubmitted = errors.New("xtdb: already submitted")

	// ErrUnknownParameter is returned when an argument is not recognized by the target action.
	ErrUnknownParameter = errors.New("xtdb: unknown parameter")

	// ErrMalformedLiteral is returned when a caller supplied EDN string does not parse.
	ErrMalformedLiteral = errors.New("xtdb: malformed literal")

	// ErrClientError matches every *Error classified from a 4xx status.
	ErrClientError = errors.New("xtdb: client error")

	// ErrServerError matches every *Error classified from a 5xx status.
	ErrServerError = errors.New("xtdb: server error")
)

// ErrorKind tells whether a transport failure was the caller's or the server's fault.
type ErrorKind string

const (
	// ClientErrorKind is assigned to responses with a status in [400, 500).
	ClientErrorKind ErrorKind = "Client Error"
	// ServerErrorKind is assigned to responses with a status in [500, 600).
	ServerErrorKind ErrorKind = "Server Error"
)

// Error represents an error response from the XTDB node.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Reason     string
	URL        string

	// Body is the raw error payload returned by the node, if any.
	Body string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("xtdb(%d): %s: %s for url: %s", e.StatusCode, e.Kind, e.Reason, e.URL)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is reports whether target is the sentinel for the kind of e.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrClientError:
		return e.Kind == ClientErrorKind
	case ErrServerError:
		return e.Kind == ServerErrorKind
	default:
		return false
	}
}

// Classify maps a transport status to the error taxonomy of this package.
//
// Statuses outside of [400, 600) are not errors and yield nil.
func Classify(statusCode int, reason string, url string) error {
	switch {
	case 400 <= statusCode && statusCode < 500:
		return &Error{Kind: ClientErrorKind, StatusCode: statusCode, Reason: reason, URL: url}
	case 500 <= statusCode && statusCode < 600:
		return &Error{Kind: ServerErrorKind, StatusCode: statusCode, Reason: reason, URL: url}
	default:
		return nil
	}
}

// UnknownParameterError names the parameter an action does not recognize.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return "unknown parameter: " + e.Name
}

func (e *UnknownParameterError) Is(target error) bool {
	return target == ErrUnknownParameter
}

// MalformedLiteralError carries the EDN reader diagnostic for a literal that does not parse.
type MalformedLiteralError struct {
	Literal string
	Err     error
}

func (e *MalformedLiteralError) Error() string {
	return fmt.Sprintf("malformed edn literal %q: %v", e.Literal, e.Err)
}

func (e *MalformedLiteralError) Unwrap() error {
	return e.Err
}

func (e *MalformedLiteralError) Is(target error) bool {
	return target == ErrMalformedLiteral
}

func checkStatusCode(resp *http.Response, u *url.URL) error {
	err := Classify(resp.StatusCode, reasonPhrase(resp), u.String())
	if err == nil {
		return nil
	}

	xe := err.(*Error)
	data, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return xe
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && (payload.Message != "" || payload.Error != "") {
		xe.Body = payload.Message
		if xe.Body == "" {
			xe.Body = payload.Error
		}
	} else {
		xe.Body = strings.TrimSpace(string(data))
	}
	return xe
}

// reasonPhrase strips the numeric prefix net/http leaves in Status.
func reasonPhrase(resp *http.Response) string {
	if reason, ok := strings.CutPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)); ok {
		return reason
	}
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

// sneakyBodyClose closes the body and ignores the error.
// This is useful to close the HTTP response body when we don't care about the error.
func sneakyBodyClose(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
