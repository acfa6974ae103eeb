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

// Package mediator provides the single dispatch point that routes every
// command and query to its one registered handler through a chain of
// behaviors.
package mediator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	bb "github.com/bookingmicroservices/buildingblocks"
)

// Mediator routes requests to registered handlers. Handlers are registered
// once during startup; the registry freezes on the first Send and is read
// without locking from then on.
type Mediator struct {
	handlers   map[bb.RequestType]bb.RequestHandler
	handlersMu sync.Mutex
	middleware []bb.RequestHandlerMiddleware
	frozen     atomic.Bool
}

// New creates a Mediator with an ordered set of behaviors. The first
// middleware is the outermost: it wraps all following middleware and the
// handler.
func New(middleware ...bb.RequestHandlerMiddleware) *Mediator {
	return &Mediator{
		handlers:   make(map[bb.RequestType]bb.RequestHandler),
		middleware: middleware,
	}
}

// RegisterHandler registers a handler for a request type. Registration must
// complete before the first Send; afterwards the registry is frozen and
// RegisterHandler returns ErrRegistryFrozen.
func (m *Mediator) RegisterHandler(requestType bb.RequestType, handler bb.RequestHandler) error {
	if handler == nil {
		return bb.ErrMissingHandler
	}

	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	if m.frozen.Load() {
		return bb.ErrRegistryFrozen
	}

	if _, ok := m.handlers[requestType]; ok {
		return bb.ErrHandlerAlreadySet
	}

	m.handlers[requestType] = handler

	return nil
}

// Handler returns the registered handler for a request type, resolving the
// same handler reference on every call.
func (m *Mediator) Handler(requestType bb.RequestType) (bb.RequestHandler, error) {
	if !m.frozen.Load() {
		m.handlersMu.Lock()
		defer m.handlersMu.Unlock()
	}

	handler, ok := m.handlers[requestType]
	if !ok {
		return nil, bb.ErrHandlerNotFound
	}

	return handler, nil
}

// Send dispatches a request to its registered handler through the behavior
// chain and returns the handler's response or the first failure encountered.
// Each call composes an independent chain instance, so Send is safe for
// concurrent use. Failures that are not part of the error taxonomy are
// wrapped in a *buildingblocks.RequestError carrying the cause.
func (m *Mediator) Send(ctx context.Context, req bb.Request) (any, error) {
	m.freeze()

	requestType := req.RequestType()

	handler, ok := m.handlers[requestType]
	if !ok {
		return nil, bb.ErrHandlerNotFound
	}

	// Guard against a handler re-entrantly sending the request type it is
	// currently handling.
	if inFlight(ctx, requestType) {
		return nil, &bb.RequestError{Err: bb.ErrRecursiveRequest, RequestType: requestType}
	}
	ctx = withInFlight(ctx, requestType)

	chain := bb.UseRequestHandlerMiddleware(handler, m.middleware...)

	resp, err := chain.HandleRequest(ctx, req)
	if err != nil {
		var reqErr *bb.RequestError
		if errors.As(err, &reqErr) {
			return nil, err
		}

		return nil, &bb.RequestError{Err: err, RequestType: requestType}
	}

	return resp, nil
}

// freeze marks the registry read-only. Taking the registration lock once
// before setting the flag guarantees no registration is mid-flight when the
// lock-free read path opens.
func (m *Mediator) freeze() {
	if m.frozen.Load() {
		return
	}

	m.handlersMu.Lock()
	m.frozen.Store(true)
	m.handlersMu.Unlock()
}

type inFlightContextKey struct{}

func inFlight(ctx context.Context, requestType bb.RequestType) bool {
	types, ok := ctx.Value(inFlightContextKey{}).(map[bb.RequestType]struct{})
	if !ok {
		return false
	}

	_, ok = types[requestType]

	return ok
}

func withInFlight(ctx context.Context, requestType bb.RequestType) context.Context {
	types, _ := ctx.Value(inFlightContextKey{}).(map[bb.RequestType]struct{})

	copied := make(map[bb.RequestType]struct{}, len(types)+1)
	for t := range types {
		copied[t] = struct{}{}
	}
	copied[requestType] = struct{}{}

	return context.WithValue(ctx, inFlightContextKey{}, copied)
}
