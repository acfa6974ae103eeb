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

// Package local provides an in-process event publisher for testing and
// wiring up services locally.
package local

import (
	"context"
	"sync"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// Message is a published message.
type Message struct {
	Topic   string
	EventID uuid.UUID
	Payload []byte
}

// Publisher is an in-process event publisher that delivers messages
// synchronously to subscribed handlers and records everything it publishes.
type Publisher struct {
	subscribers map[string][]func(Message)
	published   []Message
	mu          sync.Mutex
}

// NewPublisher creates a Publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: map[string][]func(Message){},
	}
}

// Subscribe registers a handler for all messages published to a topic.
func (p *Publisher) Subscribe(topic string, handler func(Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[topic] = append(p.subscribers[topic], handler)
}

// Publish implements the Publish method of the buildingblocks.EventPublisher
// interface.
func (p *Publisher) Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error {
	msg := Message{
		Topic:   topic,
		EventID: eventID,
		Payload: append([]byte(nil), payload...),
	}

	p.mu.Lock()
	p.published = append(p.published, msg)
	handlers := append(([]func(Message))(nil), p.subscribers[topic]...)
	p.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}

	return nil
}

// Published returns copies of all published messages in publish order.
func (p *Publisher) Published() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Message(nil), p.published...)
}
