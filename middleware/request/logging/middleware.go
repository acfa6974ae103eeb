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

// Package logging provides a behavior that logs every request with its
// outcome and duration.
package logging

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	bb "github.com/bookingmicroservices/buildingblocks"
)

// NewMiddleware returns a middleware that logs requests with zap. Successful
// requests log at debug level, failures at warn with the error class.
func NewMiddleware(logger *zap.Logger) bb.RequestHandlerMiddleware {
	return bb.RequestHandlerMiddleware(func(h bb.RequestHandler) bb.RequestHandler {
		return bb.RequestHandlerFunc(func(ctx context.Context, req bb.Request) (any, error) {
			start := time.Now()

			resp, err := h.HandleRequest(ctx, req)

			fields := []zap.Field{
				zap.String("request_type", req.RequestType().String()),
				zap.Duration("duration", time.Since(start)),
			}

			if cmd, ok := req.(bb.Command); ok {
				fields = append(fields, zap.String("aggregate_id", cmd.AggregateID().String()))
			}

			if err != nil {
				fields = append(fields, zap.Error(err), zap.String("error_class", errorClass(err)))
				logger.Warn("request failed", fields...)

				return nil, err
			}

			logger.Debug("request handled", fields...)

			return resp, nil
		})
	})
}

func errorClass(err error) string {
	var validationErr *bb.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.Is(err, bb.ErrIncorrectEntityVersion):
		return "concurrency_conflict"
	case errors.Is(err, bb.ErrTimeout):
		return "timeout"
	case errors.Is(err, bb.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, bb.ErrEntityNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
