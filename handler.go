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
	"context"
)

// RequestHandler is an interface that all handlers of commands and queries
// should implement. A handler is bound 1:1 to exactly one request type and
// must not send requests of that same type back through the mediator.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req Request) (any, error)
}

// RequestHandlerFunc is a function that can be used as a request handler.
type RequestHandlerFunc func(ctx context.Context, req Request) (any, error)

// HandleRequest implements the HandleRequest method of the RequestHandler.
func (h RequestHandlerFunc) HandleRequest(ctx context.Context, req Request) (any, error) {
	return h(ctx, req)
}

// RequestHandlerMiddleware is a function that wraps a RequestHandler with
// behavior running before and/or after the inner handler.
type RequestHandlerMiddleware func(RequestHandler) RequestHandler

// UseRequestHandlerMiddleware wraps a RequestHandler in one or more
// middleware. The first middleware is the outermost: it runs first on the way
// in and last on the way out.
func UseRequestHandlerMiddleware(h RequestHandler, middleware ...RequestHandlerMiddleware) RequestHandler {
	// Apply in reverse order so that the first middleware wraps all others.
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]
		h = m(h)
	}

	return h
}
