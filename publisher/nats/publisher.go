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

// Package nats provides a NATS JetStream-backed event publisher.
package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// Publisher publishes events to NATS JetStream subjects. The event ID is set
// as the message ID so JetStream deduplicates redelivered entries within its
// dedupe window.
type Publisher struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	connOpts []nats.Option
}

// NewPublisher creates a Publisher connected to a NATS server, for example
// `nats://localhost:4222`.
func NewPublisher(url string, options ...Option) (*Publisher, error) {
	p := &Publisher{}

	// Apply configuration options.
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	var err error

	p.conn, err = nats.Connect(url, p.connOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to NATS: %w", err)
	}

	p.js, err = p.conn.JetStream()
	if err != nil {
		p.conn.Close()

		return nil, fmt.Errorf("could not create JetStream context: %w", err)
	}

	return p, nil
}

// Option is an option setter used to configure creation.
type Option func(*Publisher) error

// WithNATSOptions adds the NATS options to the underlying client.
func WithNATSOptions(opts ...nats.Option) Option {
	return func(p *Publisher) error {
		p.connOpts = opts

		return nil
	}
}

// Publish implements the Publish method of the buildingblocks.EventPublisher
// interface. It returns after the stream has acknowledged the message.
func (p *Publisher) Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error {
	msg := nats.NewMsg(topic)
	msg.Header.Set(nats.MsgIdHdr, eventID.String())
	msg.Data = payload

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	p.conn.Close()

	return nil
}
