// Copyright (c) 2025 - The Booking Microservices authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package buildingblocks

import (
	"errors"
	"strings"
)

// ErrHandlerNotFound is when no handler is registered for a request type.
var ErrHandlerNotFound = errors.New("no handler for request")

// ErrHandlerAlreadySet is when a handler is already registered for a request type.
var ErrHandlerAlreadySet = errors.New("handler is already set")

// ErrRegistryFrozen is when a handler registration is attempted after the
// mediator has started serving requests.
var ErrRegistryFrozen = errors.New("registry is frozen")

// ErrMissingHandler is when a nil handler is registered.
var ErrMissingHandler = errors.New("missing handler")

// ErrRecursiveRequest is when a handler re-entrantly sends the request type
// it is currently handling, which would cycle forever.
var ErrRecursiveRequest = errors.New("recursive request dispatch")

// ErrNoActiveTransaction is when the outbox or a repository is used without
// the transaction that must scope the call. This is a programming error: the
// call site bypassed the transaction behavior.
var ErrNoActiveTransaction = errors.New("no active transaction")

// ErrTimeout is when a request exceeded the maximum execution duration
// enforced by the transaction behavior. The transaction has been rolled back.
var ErrTimeout = errors.New("request timed out")

// FieldViolation is a single validation rule failure on a request field.
type FieldViolation struct {
	// Field is the name of the request field.
	Field string
	// Rule is the name of the violated rule, for example "required".
	Rule string
	// Message is a human readable description of the violation.
	Message string
}

// ValidationError is returned when a request fails validation. All rule
// failures for the request are aggregated; the handler was never invoked.
type ValidationError struct {
	Violations []FieldViolation
}

// Error implements the Error method of the errors.Error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "invalid request"
	}

	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}

	return "invalid request: " + strings.Join(msgs, "; ")
}

// RequestError is an error from handling a request, wrapping the cause with
// the request type for observability. Taxonomy errors pass through
// errors.Is/As unchanged.
type RequestError struct {
	// Err is the error.
	Err error
	// RequestType is the type of the request being handled.
	RequestType RequestType
}

// Error implements the Error method of the errors.Error interface.
func (e *RequestError) Error() string {
	str := "request " + e.RequestType.String() + ": "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors Unwrap method.
func (e *RequestError) Cause() error {
	return e.Unwrap()
}
