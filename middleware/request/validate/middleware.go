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

// Package validate provides the validation behavior: every declared rule is
// checked and all violations are aggregated into one ValidationError before
// the handler is ever invoked.
package validate

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	bb "github.com/bookingmicroservices/buildingblocks"
)

// Request is a request with its own validation method, checked in addition to
// the declared field rules.
type Request interface {
	bb.Request

	// Validate returns the error when validating the request.
	Validate() error
}

// NewMiddleware returns a middleware that validates requests. Three rule
// sources apply, in order: required fields (the `bb:"optional"` tag opts out),
// `validate` struct tags, and the request's own Validate method if present.
// All violations are collected; on any violation the inner handler is not
// invoked and a single *buildingblocks.ValidationError is returned.
func NewMiddleware() bb.RequestHandlerMiddleware {
	v := validator.New()

	return bb.RequestHandlerMiddleware(func(h bb.RequestHandler) bb.RequestHandler {
		return bb.RequestHandlerFunc(func(ctx context.Context, req bb.Request) (any, error) {
			violations := bb.CheckRequest(req)

			if isStruct(req) {
				if err := v.StructCtx(ctx, req); err != nil {
					var tagErrs validator.ValidationErrors
					if !errors.As(err, &tagErrs) {
						return nil, fmt.Errorf("could not validate request: %w", err)
					}

					for _, fe := range tagErrs {
						violations = append(violations, bb.FieldViolation{
							Field:   fe.Field(),
							Rule:    fe.Tag(),
							Message: fmt.Sprintf("field %s failed on the %q rule", fe.Field(), fe.Tag()),
						})
					}
				}
			}

			// Call the validation method if it exists.
			if r, ok := req.(Request); ok {
				if err := r.Validate(); err != nil {
					violations = append(violations, bb.FieldViolation{
						Rule:    "validate",
						Message: err.Error(),
					})
				}
			}

			if len(violations) > 0 {
				return nil, &bb.ValidationError{Violations: violations}
			}

			// Request execution.
			return h.HandleRequest(ctx, req)
		})
	})
}

func isStruct(req bb.Request) bool {
	rv := reflect.Indirect(reflect.ValueOf(req))

	return rv.Kind() == reflect.Struct
}
