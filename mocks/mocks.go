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

// Package mocks provides mocked implementations of the buildingblocks
// interfaces, useful for testing.
package mocks

import (
	"context"
	"sync"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

const (
	// CommandType is the type of Command.
	CommandType bb.RequestType = "mock_command"
	// QueryType is the type of Query.
	QueryType bb.RequestType = "mock_query"
)

// Command is a mocked command.
type Command struct {
	ID      uuid.UUID `validate:"required"`
	Content string    `validate:"required"`

	// Amount is optional and may be zero.
	Amount int `bb:"optional"`
}

var _ = bb.Command(Command{})

// RequestType implements the RequestType method of the
// buildingblocks.Request interface.
func (c Command) RequestType() bb.RequestType { return CommandType }

// AggregateID implements the AggregateID method of the
// buildingblocks.Command interface.
func (c Command) AggregateID() uuid.UUID { return c.ID }

// Query is a mocked query.
type Query struct {
	ID uuid.UUID `validate:"required"`
}

var _ = bb.Query(Query{})

// RequestType implements the RequestType method of the
// buildingblocks.Request interface.
func (q Query) RequestType() bb.RequestType { return QueryType }

// IsQuery implements the IsQuery method of the buildingblocks.Query
// interface.
func (q Query) IsQuery() {}

// RequestHandler is a mocked buildingblocks.RequestHandler, recording the
// requests it handles and returning a scripted response.
type RequestHandler struct {
	Requests []bb.Request
	Response any
	Err      error

	mu sync.Mutex
}

var _ = bb.RequestHandler(&RequestHandler{})

// HandleRequest implements the HandleRequest method of the
// buildingblocks.RequestHandler interface.
func (h *RequestHandler) HandleRequest(ctx context.Context, req bb.Request) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Requests = append(h.Requests, req)

	if h.Err != nil {
		return nil, h.Err
	}

	return h.Response, nil
}

// Handled returns how many requests the handler has seen.
func (h *RequestHandler) Handled() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.Requests)
}

// PublishedMessage is a message recorded by Publisher.
type PublishedMessage struct {
	Topic   string
	EventID uuid.UUID
	Payload []byte
}

// Publisher is a mocked buildingblocks.EventPublisher that fails a scripted
// number of attempts before succeeding, recording everything.
type Publisher struct {
	// Err is the error returned by failing publishes.
	Err error
	// FailuresLeft is how many publishes fail with Err before succeeding.
	// Negative means fail forever.
	FailuresLeft int

	Attempts  int
	Published []PublishedMessage

	mu sync.Mutex
}

var _ = bb.EventPublisher(&Publisher{})

// Publish implements the Publish method of the buildingblocks.EventPublisher
// interface.
func (p *Publisher) Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Attempts++

	if p.Err != nil && p.FailuresLeft != 0 {
		if p.FailuresLeft > 0 {
			p.FailuresLeft--
		}

		return p.Err
	}

	p.Published = append(p.Published, PublishedMessage{
		Topic:   topic,
		EventID: eventID,
		Payload: append([]byte(nil), payload...),
	})

	return nil
}

// PublishedCount returns how many messages were successfully published.
func (p *Publisher) PublishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.Published)
}
