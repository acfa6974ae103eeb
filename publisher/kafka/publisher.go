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

// Package kafka provides a Kafka-backed event publisher.
package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

const eventIDHeader = "event_id"

// Publisher publishes events to Kafka topics. The event ID is used as the
// message key so all attempts for one event land on the same partition, and
// is repeated in a header for consumer-side deduplication.
type Publisher struct {
	// TODO: Support multiple brokers.
	addr   string
	writer *kafka.Writer
}

// NewPublisher creates a Publisher, with optional writer settings.
func NewPublisher(addr string, options ...Option) (*Publisher, error) {
	p := &Publisher{
		addr: addr,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(addr),
			BatchSize:    1,                // Write every event to the bus without delay.
			RequiredAcks: kafka.RequireOne, // Stronger consistency.
		},
	}

	// Apply configuration options.
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return p, nil
}

// Option is an option setter used to configure creation.
type Option func(*Publisher) error

// WithRequiredAcks sets the acknowledgment level required from the broker.
func WithRequiredAcks(acks kafka.RequiredAcks) Option {
	return func(p *Publisher) error {
		p.writer.RequiredAcks = acks

		return nil
	}
}

// Publish implements the Publish method of the buildingblocks.EventPublisher
// interface. It returns after the broker has acknowledged the message.
func (p *Publisher) Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(eventID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{
				Key:   eventIDHeader,
				Value: []byte(eventID.String()),
			},
		},
	}); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
