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

// Package tracing provides a behavior that adds tracing spans to requests.
package tracing

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	bb "github.com/bookingmicroservices/buildingblocks"
)

// NewMiddleware returns a middleware that adds a tracing span per request.
func NewMiddleware() bb.RequestHandlerMiddleware {
	return bb.RequestHandlerMiddleware(func(h bb.RequestHandler) bb.RequestHandler {
		return bb.RequestHandlerFunc(func(ctx context.Context, req bb.Request) (any, error) {
			opName := fmt.Sprintf("Request(%s)", req.RequestType())
			sp, ctx := opentracing.StartSpanFromContext(ctx, opName)

			resp, err := h.HandleRequest(ctx, req)

			sp.SetTag("bb.request_type", req.RequestType())
			if cmd, ok := req.(bb.Command); ok {
				sp.SetTag("bb.aggregate_id", cmd.AggregateID())
			}
			if err != nil {
				ext.LogError(sp, err)
			}
			sp.Finish()

			return resp, err
		})
	})
}
